package models

import "time"

// RawOrderRecord is one line item exactly as the gateway returned it.
// Any field may be missing, null, a string or a JSON number.
type RawOrderRecord map[string]any

// LineItem is the canonical, immutable shape of one product/service entry.
type LineItem struct {
	ItemName  string  `json:"itemName"`
	OrderType string  `json:"orderType"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	ImageURL  string  `json:"imageUrl"`
}

// OrderHeader carries the order-level scalar fields of a raw record.
type OrderHeader struct {
	OrderID       string  `json:"orderId"`
	UserID        string  `json:"userId"`
	Status        string  `json:"status"`
	Address       string  `json:"address"`
	Slot          string  `json:"slot"`
	SlotDatetime  string  `json:"slotDatetime"`
	OrderDatetime string  `json:"orderDatetime"`
	CompletedAt   string  `json:"completedAt"`
	OTP           string  `json:"-"`
	PaymentMethod string  `json:"paymentMethod"`
	Coupon        string  `json:"coupon"`
	FinalPrice    float64 `json:"finalPrice"`
}

// OrderGroup aggregates every line item sharing one order id.
// It is rebuilt from scratch on every poll.
type OrderGroup struct {
	OrderHeader
	Items         []LineItem `json:"items"`
	TotalPrice    float64    `json:"totalPrice"`
	TotalQuantity int        `json:"totalQuantity"`
	OriginalTotal float64    `json:"originalTotal"`
}

// Savings is the discount a coupon produced, or 0.
func (g *OrderGroup) Savings() float64 {
	if g.Coupon == "" || g.OriginalTotal <= g.FinalPrice {
		return 0
	}
	return g.OriginalTotal - g.FinalPrice
}

// LeadOffer is an order offered to the vendor with a bounded response window.
type LeadOffer struct {
	OfferID         string    `json:"offerId"`
	OrderID         string    `json:"orderId"`
	ArrivedAt       time.Time `json:"arrivedAt"`
	DeadlineSeconds int       `json:"deadlineSeconds"`
	Detail          *LineItem `json:"detail"`
}

// NearbyHub is one row of the nearby-hub search.
type NearbyHub struct {
	LoginID     string  `json:"loginId"`
	InventoryID string  `json:"inventoryId"`
	HubName     string  `json:"hubName"`
	ProductName string  `json:"productName"`
	Quantity    string  `json:"quantity"`
	Location    string  `json:"location"`
	DistanceKm  float64 `json:"distanceKm"`
}

// LeadDecision is the journal record of one closed lead offer.
type LeadDecision struct {
	OfferID       string    `json:"offerId"`
	OrderID       string    `json:"orderId"`
	VendorPhone   string    `json:"vendorPhone"`
	Action        string    `json:"action"`
	StatusMutated bool      `json:"statusMutated"`
	LeadCommitted bool      `json:"leadCommitted"`
	Error         string    `json:"error,omitempty"`
	ArrivedAt     time.Time `json:"arrivedAt"`
	DecidedAt     time.Time `json:"decidedAt"`
}
