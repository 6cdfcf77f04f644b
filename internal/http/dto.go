package http

import (
	"time"

	d "github.com/fjod/food-commerce/domain"
)

type CartItemDTO struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

type CustomerDTO struct {
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	Document     string `json:"document"`
	Mobile       string `json:"mobile"`
	ZipCode      string `json:"zip_code"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

type PaymentDTO struct {
	CardHolderName string `json:"card_holder_name"`
	CardNumber     string `json:"card_number"`
	CardExpiry     string `json:"card_expiration_date"`
	SecurityCode   string `json:"card_security_code"`
}

type CheckoutRequestDTO struct {
	Cart     []CartItemDTO `json:"cart"`
	Customer CustomerDTO   `json:"customer"`
	Payment  PaymentDTO    `json:"payment"`
}

type OrderItemDTO struct {
	CatalogItemID int64  `json:"catalog_item_id"`
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	LineTotal     string `json:"line_total"`
}

type OrderResponseDTO struct {
	ID            string         `json:"id"`
	CustomerID    string         `json:"customer_id"`
	Total         string         `json:"total"`
	Status        string         `json:"status"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Items         []OrderItemDTO `json:"items"`
	Customer      *CustomerDTO   `json:"customer,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

type CheckoutResponseDTO struct {
	Order          OrderResponseDTO `json:"order"`
	SkippedItemIDs []int64          `json:"skipped_item_ids"`
}

type CatalogItemDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
	ImageURL    string `json:"image_url,omitempty"`
}

func (dto CheckoutRequestDTO) toDomain() ([]d.CartItem, d.CustomerProfile, d.PaymentInput) {
	cart := make([]d.CartItem, 0, len(dto.Cart))
	for _, item := range dto.Cart {
		cart = append(cart, d.CartItem{ID: item.ID, Quantity: item.Quantity})
	}

	c := dto.Customer
	customer := d.CustomerProfile{
		Email:        c.Email,
		FullName:     c.FullName,
		Document:     c.Document,
		Mobile:       c.Mobile,
		ZipCode:      c.ZipCode,
		Street:       c.Street,
		Number:       c.Number,
		Complement:   c.Complement,
		Neighborhood: c.Neighborhood,
		City:         c.City,
		State:        c.State,
	}

	payment := d.PaymentInput{
		CardHolderName: dto.Payment.CardHolderName,
		CardNumber:     dto.Payment.CardNumber,
		Expiry:         dto.Payment.CardExpiry,
		SecurityCode:   dto.Payment.SecurityCode,
	}
	return cart, customer, payment
}

func convertOrder(o *d.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, OrderItemDTO{
			CatalogItemID: l.CatalogItemID,
			Name:          l.Name,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice.StringFixed(2),
			LineTotal:     l.LineTotal.StringFixed(2),
		})
	}

	dto := OrderResponseDTO{
		ID:            o.ID.String(),
		CustomerID:    o.CustomerID.String(),
		Total:         o.Total.StringFixed(2),
		Status:        o.Status.String(),
		TransactionID: o.TransactionID,
		Items:         items,
		CreatedAt:     o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.Customer != nil {
		dto.Customer = &CustomerDTO{
			Email:        o.Customer.Email,
			FullName:     o.Customer.FullName,
			Document:     o.Customer.Document,
			Mobile:       o.Customer.Mobile,
			ZipCode:      o.Customer.ZipCode,
			Street:       o.Customer.Street,
			Number:       o.Customer.Number,
			Complement:   o.Customer.Complement,
			Neighborhood: o.Customer.Neighborhood,
			City:         o.Customer.City,
			State:        o.Customer.State,
		}
	}
	return dto
}
