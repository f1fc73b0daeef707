package models

import "time"

// Shop is a vendor storefront
type Shop struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Institution string   `json:"institution,omitempty"`
	State       string   `json:"state,omitempty"`
	School      string   `json:"school,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	Image       string   `json:"image,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Product is a single listing in a shop
type Product struct {
	ID             string   `json:"id"`
	VendorID       string   `json:"vendor_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Category       string   `json:"category,omitempty"`
	Price          float64  `json:"price"`
	PromotionPrice *float64 `json:"promotion_price,omitempty"`
	InStock        int      `json:"in_stock"`
	Rating         float64  `json:"rating,omitempty"`
	Images         []string `json:"images,omitempty"`
}

// ProductPage is a page of product listings
type ProductPage struct {
	Results []Product `json:"results"`
	Count   int       `json:"count"`
	Next    string    `json:"next,omitempty"`
}

// CartItem is one line of the cart
type CartItem struct {
	ID             string   `json:"id"`
	ProductID      string   `json:"product_id"`
	Quantity       int      `json:"quantity"`
	UnitPrice      float64  `json:"unit_price"`
	PromotionPrice *float64 `json:"promotion_price,omitempty"`
}

// EffectivePrice is the promotion price when present, the unit price otherwise
func (i CartItem) EffectivePrice() float64 {
	if i.PromotionPrice != nil {
		return *i.PromotionPrice
	}
	return i.UnitPrice
}

// CartSummary holds server-computed cart totals
type CartSummary struct {
	Subtotal    float64 `json:"subtotal"`
	ShippingFee float64 `json:"shipping_fee"`
	Tax         float64 `json:"tax"`
	Total       float64 `json:"total"`
}

// CartState is the cart as last confirmed by the server, possibly with
// optimistic edits on top. Count is only authoritative after a fetch.
type CartState struct {
	Items   []CartItem  `json:"items"`
	Summary CartSummary `json:"summary"`
	Count   int         `json:"count"`
}

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusShipped   = "SHIPPED"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusCancelled = "CANCELLED"
)

// OrderItem is one line of an order
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Order is a placed order
type Order struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Total     float64     `json:"total"`
	Items     []OrderItem `json:"items,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Transaction is a payment record
type Transaction struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id,omitempty"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AddToCartInput is the body of an add-to-cart call
type AddToCartInput struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"-"`
}

// CartItemUpdate changes the quantity of a cart line
type CartItemUpdate struct {
	ItemID   string `json:"-"`
	Quantity int    `json:"quantity"`
}

// OrderStatusUpdate moves an order to a new status
type OrderStatusUpdate struct {
	OrderID string `json:"-"`
	Status  string `json:"status"`
}

// ReviewInput is a product review
type ReviewInput struct {
	ProductID string `json:"-"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
}
