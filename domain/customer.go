package domain

import (
	"time"

	"github.com/google/uuid"
)

// CustomerProfile is keyed by email in the store.
type CustomerProfile struct {
	ID           uuid.UUID
	Email        string
	FullName     string
	Document     string
	Mobile       string
	ZipCode      string
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	State        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
