package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	d "github.com/fjod/food-commerce/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrIllegalTransition  = errors.New("illegal transition of order status")
	ErrUnknownCatalogItem = errors.New("order line references an unknown catalog item")
)

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the credentials as a lib/pq connection string.
func (c Credentials) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts := []string{
		"host=" + quoteDSN(c.Host),
		"port=" + strconv.Itoa(c.Port),
		"user=" + quoteDSN(c.User),
		"password=" + quoteDSN(c.Password),
		"dbname=" + quoteDSN(c.DBName),
		"sslmode=" + sslMode,
	}
	return strings.Join(parts, " ")
}

// quoteDSN quotes values that lib/pq would otherwise split on.
func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// OutboxEvent is a pending notification written together with an order status change.
type OutboxEvent struct {
	ID          int64
	AggregateId string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

const (
	EventOrderPaid     = "order.paid"
	EventOrderCanceled = "order.canceled"
)

type CatalogRepository interface {
	FindCatalogItemsByIDs(ctx context.Context, ids []int64) ([]d.CatalogItem, error)
	ListCatalogItems(ctx context.Context) ([]d.CatalogItem, error)
}

type OrderRepository interface {
	UpsertCustomerByEmail(ctx context.Context, customer d.CustomerProfile) (*d.CustomerProfile, error)
	CreateOrderWithLines(ctx context.Context, customerID uuid.UUID, lines []d.PricedLine) (*d.Order, error)
	SetOrderPayment(ctx context.Context, orderID uuid.UUID, status d.OrderStatus, transactionID string) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*d.Order, error)
}

// RecoveryRepository finds orders whose checkout never recorded an outcome.
type RecoveryRepository interface {
	FindStalePendingOrders(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error)
	SetOrderPayment(ctx context.Context, orderID uuid.UUID, status d.OrderStatus, transactionID string) error
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type RepoInterface interface {
	CatalogRepository
	OrderRepository
	OutboxRepository
	RecoveryRepository
	Close() error
	RunMigrations() error
}
