package models

// Order represents a customer order as the support agent sees it
type Order struct {
	OrderID      string   `json:"order_id"`
	Email        string   `json:"email"`
	Status       string   `json:"status"`
	Items        []Item   `json:"items"`
	Shipment     Shipment `json:"shipment"`
	Payment      Payment  `json:"payment"`
	Invoice      Invoice  `json:"invoice"`
	Refund       Refund   `json:"refund"`
	DeliveryDate string   `json:"delivery_date"`
}

// Item is a single line item of an order
type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Shipment holds carrier and tracking details
type Shipment struct {
	Carrier           string `json:"carrier"`
	TrackingNumber    string `json:"tracking_number"`
	Status            string `json:"status"`
	Address           string `json:"address"`
	EstimatedDelivery string `json:"estimated_delivery"`
}

// Payment holds the payment details of an order
type Payment struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
	Status string  `json:"status"`
}

// Invoice references the invoice or receipt of an order
type Invoice struct {
	InvoiceID  string `json:"invoice_id"`
	ReceiptURL string `json:"receipt_url"`
	IssuedAt   string `json:"issued_at"`
}

// Refund holds refund progress for an order
type Refund struct {
	Status string  `json:"status"`
	Amount float64 `json:"amount"`
}

// Clone returns a deep copy of the order
func (o *Order) Clone() *Order {
	c := *o
	if o.Items != nil {
		c.Items = make([]Item, len(o.Items))
		copy(c.Items, o.Items)
	}
	return &c
}

// Order statuses
const (
	OrderStatusPlaced     = "Placed"
	OrderStatusProcessing = "Processing"
	OrderStatusShipped    = "Shipped"
	OrderStatusDelivered  = "Delivered"
	OrderStatusCancelled  = "Cancelled"
)

// ValidOrderStatus reports whether status is one of the order statuses
func ValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusPlaced, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Payment statuses
const (
	PaymentStatusPending  = "Pending"
	PaymentStatusPaid     = "Paid"
	PaymentStatusFailed   = "Failed"
	PaymentStatusRefunded = "Refunded"
)

// Refund statuses
const (
	RefundStatusNone      = "None"
	RefundStatusInitiated = "Initiated"
	RefundStatusCompleted = "Completed"
)
