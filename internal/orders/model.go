package orders

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customization"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/pricing"
)

// DefaultMaxQuantity is the largest quantity a single line may carry unless configured otherwise.
const DefaultMaxQuantity = 100

var (
	// ErrCartLineNotFound indicates an unknown cart line for the customer.
	ErrCartLineNotFound = errors.New("orders: cart line not found")
	// ErrEmptyCart indicates checkout without lines.
	ErrEmptyCart = errors.New("orders: cart is empty")
	// ErrCartChanged indicates that the cart was modified while an order was being placed.
	ErrCartChanged = errors.New("orders: cart changed during checkout")
	// ErrOrderNotFound indicates an unknown order id.
	ErrOrderNotFound = errors.New("orders: order not found")
	// ErrInvalidStatusTransition indicates a status change the lifecycle does not allow.
	ErrInvalidStatusTransition = errors.New("orders: invalid status transition")
	// ErrInvalidCustomerID indicates an empty customer identifier.
	ErrInvalidCustomerID = errors.New("orders: invalid customer id")
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusCancelled Status = "cancelled"
)

var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
}

// ParseStatus validates a raw status.
func ParseStatus(rawInput string) (Status, error) {
	switch status := Status(strings.ToLower(strings.TrimSpace(rawInput))); status {
	case StatusPending, StatusConfirmed, StatusShipped, StatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidStatusTransition, rawInput)
	}
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CartLine is one product in a customer's cart with its in-progress customization.
// Revision increases on every update; checkout compares it rather than timestamps.
type CartLine struct {
	LineID           string               `gorm:"column:line_id;primaryKey;size:190;not null"`
	CustomerID       string               `gorm:"column:customer_id;size:190;not null;index:idx_cart_lines_customer"`
	ProductID        string               `gorm:"column:product_id;size:190;not null"`
	Quantity         int                  `gorm:"column:quantity;not null"`
	Customization    customization.Record `gorm:"column:customization;type:text;serializer:json;not null"`
	Revision         int64                `gorm:"column:revision;not null;default:0"`
	CreatedAtSeconds int64                `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64                `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CartLine) TableName() string {
	return "cart_lines"
}

// Order is a placed order. Totals are integer cents.
type Order struct {
	OrderID          string `gorm:"column:order_id;primaryKey;size:190;not null"`
	CustomerID       string `gorm:"column:customer_id;size:190;not null;index:idx_orders_customer"`
	Status           Status `gorm:"column:status;size:32;not null"`
	TotalCents       int64  `gorm:"column:total_cents;not null"`
	PlacedAtSeconds  int64  `gorm:"column:placed_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Order) TableName() string {
	return "orders"
}

// OrderLine freezes what was bought: the resolved unit price and the
// customization as it was at checkout. It is never re-resolved.
type OrderLine struct {
	OrderID        string               `gorm:"column:order_id;primaryKey;size:190;not null"`
	Position       int                  `gorm:"column:position;primaryKey;not null;autoIncrement:false"`
	ProductID      string               `gorm:"column:product_id;size:190;not null"`
	Quantity       int                  `gorm:"column:quantity;not null"`
	UnitPriceCents int64                `gorm:"column:unit_price_cents;not null"`
	LineTotalCents int64                `gorm:"column:line_total_cents;not null"`
	Customization  customization.Record `gorm:"column:customization;type:text;serializer:json;not null"`
}

// TableName provides the explicit table binding for GORM.
func (OrderLine) TableName() string {
	return "order_lines"
}

// LineView is the API shape of a cart or order line.
type LineView struct {
	ID            string               `json:"id,omitempty"`
	ProductID     string               `json:"productId"`
	Quantity      int                  `json:"quantity"`
	UnitPrice     *pricing.Money       `json:"unitPrice,omitempty"`
	LineTotal     *pricing.Money       `json:"lineTotal,omitempty"`
	Customization customization.Record `json:"customization"`
}

// OrderView is the API shape of an order.
type OrderView struct {
	ID         string        `json:"id"`
	CustomerID string        `json:"customerId"`
	Status     Status        `json:"status"`
	Total      pricing.Money `json:"total"`
	PlacedAt   int64         `json:"placedAt"`
	Lines      []LineView    `json:"lines"`
}

func cartLineView(line CartLine) LineView {
	return LineView{
		ID:            line.LineID,
		ProductID:     line.ProductID,
		Quantity:      line.Quantity,
		Customization: line.Customization.Snapshot(),
	}
}

func orderView(order Order, lines []OrderLine) OrderView {
	views := make([]LineView, 0, len(lines))
	for _, line := range lines {
		unit := pricing.Cents(line.UnitPriceCents)
		total := pricing.Cents(line.LineTotalCents)
		views = append(views, LineView{
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			UnitPrice:     &unit,
			LineTotal:     &total,
			Customization: line.Customization.Snapshot(),
		})
	}
	return OrderView{
		ID:         order.OrderID,
		CustomerID: order.CustomerID,
		Status:     order.Status,
		Total:      pricing.Cents(order.TotalCents),
		PlacedAt:   order.PlacedAtSeconds,
		Lines:      views,
	}
}
