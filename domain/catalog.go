package domain

import "github.com/shopspring/decimal"

// CartItem is what the client sends. Only the id and quantity are trusted.
type CartItem struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

type CatalogItem struct {
	ID          int64
	Name        string
	Description string
	UnitPrice   decimal.Decimal
	ImageURL    string
}

// PricedLine is a cart entry joined with its catalog price.
type PricedLine struct {
	CatalogItemID int64
	Name          string
	Quantity      int
	UnitPrice     decimal.Decimal
	LineTotal     decimal.Decimal
}

func NewPricedLine(item CatalogItem, quantity int) PricedLine {
	return PricedLine{
		CatalogItemID: item.ID,
		Name:          item.Name,
		Quantity:      quantity,
		UnitPrice:     item.UnitPrice,
		LineTotal:     item.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

func SumLines(lines []PricedLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	return total
}
