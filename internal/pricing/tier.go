package pricing

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrInvalidPricingTier indicates a tier that overlaps another, has bad bounds,
// or carries non-positive values.
var ErrInvalidPricingTier = errors.New("pricing: invalid pricing tier")

// Tier maps a quantity range to a unit price. A nil MaxQuantity is unbounded.
type Tier struct {
	MinQuantity int   `json:"minQuantity"`
	MaxQuantity *int  `json:"maxQuantity"`
	UnitPrice   Money `json:"unitPrice"`
}

// Bounded returns a tier with an upper bound.
func Bounded(minQuantity, maxQuantity int, unitPrice Money) Tier {
	upper := maxQuantity
	return Tier{MinQuantity: minQuantity, MaxQuantity: &upper, UnitPrice: unitPrice}
}

// Unbounded returns a tier without an upper bound.
func Unbounded(minQuantity int, unitPrice Money) Tier {
	return Tier{MinQuantity: minQuantity, UnitPrice: unitPrice}
}

// EffectiveMax treats an unbounded tier as reaching +∞.
func (t Tier) EffectiveMax() int {
	if t.MaxQuantity == nil {
		return math.MaxInt
	}
	return *t.MaxQuantity
}

// Contains reports whether the quantity falls in the tier's range.
func (t Tier) Contains(quantity int) bool {
	return t.MinQuantity <= quantity && quantity <= t.EffectiveMax()
}

// Overlaps reports whether two tiers share at least one quantity.
func (t Tier) Overlaps(other Tier) bool {
	return t.MinQuantity <= other.EffectiveMax() && other.MinQuantity <= t.EffectiveMax()
}

// Validate checks the tier in isolation.
func (t Tier) Validate() error {
	if t.MinQuantity <= 0 {
		return fmt.Errorf("%w: min quantity %d must be positive", ErrInvalidPricingTier, t.MinQuantity)
	}
	if t.MaxQuantity != nil && *t.MaxQuantity <= t.MinQuantity {
		return fmt.Errorf("%w: max quantity %d must exceed min quantity %d", ErrInvalidPricingTier, *t.MaxQuantity, t.MinQuantity)
	}
	if t.UnitPrice <= 0 {
		return fmt.Errorf("%w: unit price %s must be positive", ErrInvalidPricingTier, t.UnitPrice)
	}
	return nil
}

func (t Tier) clone() Tier {
	if t.MaxQuantity == nil {
		return t
	}
	upper := *t.MaxQuantity
	t.MaxQuantity = &upper
	return t
}

// TierTable is a product's validated tier set, sorted ascending by MinQuantity
// with no two ranges intersecting.
type TierTable struct {
	tiers []Tier
}

// NewTierTable validates every tier and builds the table. Either all tiers are
// accepted or none.
func NewTierTable(tiers ...Tier) (TierTable, error) {
	var table TierTable
	for _, tier := range tiers {
		next, err := table.With(tier)
		if err != nil {
			return TierTable{}, err
		}
		table = next
	}
	return table, nil
}

// With returns a new table including the tier. The receiver is never modified.
func (table TierTable) With(tier Tier) (TierTable, error) {
	if err := tier.Validate(); err != nil {
		return table, err
	}
	for _, existing := range table.tiers {
		if existing.Overlaps(tier) {
			return table, fmt.Errorf("%w: range %s overlaps %s", ErrInvalidPricingTier, describeRange(tier), describeRange(existing))
		}
	}
	tiers := make([]Tier, 0, len(table.tiers)+1)
	for _, existing := range table.tiers {
		tiers = append(tiers, existing.clone())
	}
	tiers = append(tiers, tier.clone())
	slices.SortFunc(tiers, func(a, b Tier) int {
		return a.MinQuantity - b.MinQuantity
	})
	return TierTable{tiers: tiers}, nil
}

// Add registers a tier in place. On rejection the table is left unchanged.
func (table *TierTable) Add(tier Tier) error {
	next, err := table.With(tier)
	if err != nil {
		return err
	}
	*table = next
	return nil
}

// Tiers returns a copy of the sorted tiers.
func (table TierTable) Tiers() []Tier {
	out := make([]Tier, 0, len(table.tiers))
	for _, tier := range table.tiers {
		out = append(out, tier.clone())
	}
	return out
}

// Len reports the number of tiers.
func (table TierTable) Len() int {
	return len(table.tiers)
}

// Match returns the tier containing the quantity.
func (table TierTable) Match(quantity int) (Tier, bool) {
	for _, tier := range table.tiers {
		if tier.Contains(quantity) {
			return tier.clone(), true
		}
	}
	return Tier{}, false
}

// Resolve maps a quantity to a unit price, falling back to the base price when
// no tier matches. It is pure and total.
func Resolve(table TierTable, basePrice Money, quantity int) Money {
	if tier, ok := table.Match(quantity); ok {
		return tier.UnitPrice
	}
	return basePrice
}

// Quote is a resolved unit price and the line total it implies.
type Quote struct {
	Quantity  int   `json:"quantity"`
	UnitPrice Money `json:"unitPrice"`
	LineTotal Money `json:"lineTotal"`
	TierMatch bool  `json:"tierMatch"`
}

// QuoteLine resolves a unit price and multiplies it in integer cents. A line
// total that does not fit in int64 cents fails with ErrAmountOverflow.
func QuoteLine(table TierTable, basePrice Money, quantity int) (Quote, error) {
	tier, matched := table.Match(quantity)
	unit := basePrice
	if matched {
		unit = tier.UnitPrice
	}
	total, err := unit.Times(quantity)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Quantity:  quantity,
		UnitPrice: unit,
		LineTotal: total,
		TierMatch: matched,
	}, nil
}

func describeRange(tier Tier) string {
	if tier.MaxQuantity == nil {
		return fmt.Sprintf("[%d, ∞)", tier.MinQuantity)
	}
	return fmt.Sprintf("[%d, %d]", tier.MinQuantity, *tier.MaxQuantity)
}
