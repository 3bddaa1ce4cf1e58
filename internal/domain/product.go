package domain

import "time"

// Product represents a catalog product as this service sees it: the stock
// and review aggregate fields it owns, plus the snapshot source for order
// line items.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Price       int64     `json:"price"`
	Stock       int       `json:"stock"`
	SoldCount   int       `json:"sold_count"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"review_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
