package catalog

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/pricing"
)

var (
	// ErrInvalidProduct indicates product input that fails validation.
	ErrInvalidProduct = errors.New("catalog: invalid product")
	// ErrProductNotFound indicates an unknown product id.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrProductUnavailable indicates a product that exists but is not for sale.
	ErrProductUnavailable = errors.New("catalog: product unavailable")
	// ErrInvalidQuantity indicates a quantity outside the accepted range.
	ErrInvalidQuantity = errors.New("catalog: invalid quantity")
)

// Product is the persisted sellable item.
type Product struct {
	ProductID        string `gorm:"column:product_id;primaryKey;size:190;not null"`
	Name             string `gorm:"column:name;size:190;not null"`
	BasePriceCents   int64  `gorm:"column:base_price_cents;not null"`
	Active           bool   `gorm:"column:active;not null;default:true"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Product) TableName() string {
	return "products"
}

// ProductTier is one row of a product's tier table. A nil MaxQuantity is unbounded.
type ProductTier struct {
	ProductID      string `gorm:"column:product_id;primaryKey;size:190;not null"`
	MinQuantity    int    `gorm:"column:min_quantity;primaryKey;not null;autoIncrement:false"`
	MaxQuantity    *int   `gorm:"column:max_quantity"`
	UnitPriceCents int64  `gorm:"column:unit_price_cents;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ProductTier) TableName() string {
	return "product_tiers"
}

func (t ProductTier) tier() pricing.Tier {
	tier := pricing.Tier{MinQuantity: t.MinQuantity, UnitPrice: pricing.Cents(t.UnitPriceCents)}
	if t.MaxQuantity != nil {
		maxQuantity := *t.MaxQuantity
		tier.MaxQuantity = &maxQuantity
	}
	return tier
}

func tierRows(productID string, table pricing.TierTable) []ProductTier {
	tiers := table.Tiers()
	rows := make([]ProductTier, 0, len(tiers))
	for _, tier := range tiers {
		rows = append(rows, ProductTier{
			ProductID:      productID,
			MinQuantity:    tier.MinQuantity,
			MaxQuantity:    tier.MaxQuantity,
			UnitPriceCents: tier.UnitPrice.Int64(),
		})
	}
	return rows
}

// ProductView is a product with its tier table.
type ProductView struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	BasePrice pricing.Money  `json:"basePrice"`
	Active    bool           `json:"active"`
	Tiers     []pricing.Tier `json:"tiers"`
}

// Pricing is everything needed to resolve a unit price.
type Pricing struct {
	ProductID string
	Active    bool
	BasePrice pricing.Money
	Table     pricing.TierTable
}

// Quote resolves a quantity against the pricing.
func (p Pricing) Quote(quantity int) (pricing.Quote, error) {
	if quantity < 1 {
		return pricing.Quote{}, ErrInvalidQuantity
	}
	quote, err := pricing.QuoteLine(p.Table, p.BasePrice, quantity)
	if err != nil {
		return pricing.Quote{}, fmt.Errorf("%w: %d: %w", ErrInvalidQuantity, quantity, err)
	}
	return quote, nil
}
