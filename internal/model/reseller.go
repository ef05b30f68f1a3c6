package model

import "time"

type Reseller struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	Name            string    `json:"name" db:"name"`
	Email           string    `json:"email" db:"email"`
	DiscountPercent int       `json:"discount_percent" db:"discount_percent"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// ResellerProduct is a reseller's listing of a developer's product with the
// pool of keys it has bought and not yet sold.
type ResellerProduct struct {
	ID             string    `json:"id" db:"id"`
	ResellerID     string    `json:"reseller_id" db:"reseller_id"`
	ProductID      string    `json:"product_id" db:"product_id"`
	WholesaleCents int64     `json:"wholesale_cents" db:"wholesale_cents"`
	MarkupPercent  int       `json:"markup_percent" db:"markup_percent"`
	AvailableKeys  int       `json:"available_keys" db:"available_keys"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`

	ProductName string `json:"product_name,omitempty" db:"product_name"`
}

// RetailCents is the wholesale price raised by the listing's markup.
func (p *ResellerProduct) RetailCents() int64 {
	return p.WholesaleCents * int64(100+p.MarkupPercent) / 100
}

// WholesaleCents applies a reseller discount to a product price.
func WholesaleCents(priceCents int64, discountPercent int) int64 {
	return priceCents * int64(100-discountPercent) / 100
}

type ResellerPurchase struct {
	ID         string    `json:"id" db:"id"`
	ResellerID string    `json:"reseller_id" db:"reseller_id"`
	ListingID  string    `json:"listing_id" db:"listing_id"`
	Quantity   int       `json:"quantity" db:"quantity"`
	UnitCents  int64     `json:"unit_cents" db:"unit_cents"`
	TotalCents int64     `json:"total_cents" db:"total_cents"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// CustomerKey is a key a reseller sold to an end customer.
type CustomerKey struct {
	ID            string     `json:"id" db:"id"`
	Code          string     `json:"key_code" db:"key_code"`
	ListingID     string     `json:"listing_id" db:"listing_id"`
	CustomerEmail string     `json:"customer_email" db:"customer_email"`
	Status        string     `json:"status" db:"status"`
	PriceCents    int64      `json:"price_cents" db:"price_cents"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at" db:"expires_at"`

	ProductName string `json:"product_name,omitempty" db:"product_name"`
}

// SalesSummary totals a reseller's activity.
type SalesSummary struct {
	KeysSold     int   `json:"keys_sold" db:"keys_sold"`
	RevenueCents int64 `json:"revenue_cents" db:"revenue_cents"`
	SpentCents   int64 `json:"spent_cents" db:"spent_cents"`
	KeysInStock  int   `json:"keys_in_stock" db:"keys_in_stock"`
}
