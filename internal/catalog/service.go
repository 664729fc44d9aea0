package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/pricing"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError reports a persistence failure with a stable operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "catalog.service.new"
	opCreateProduct = "catalog.create_product"
	opGetProduct    = "catalog.get_product"
	opListProducts  = "catalog.list_products"
	opReplaceTiers  = "catalog.replace_tiers"
	opQuote         = "catalog.quote"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues product identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service manages products and their tier tables.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// ProductInput is the admin-supplied definition of a product.
type ProductInput struct {
	Name      string
	BasePrice pricing.Money
	Tiers     []pricing.Tier
}

// CreateProduct validates input and stores the product with its tiers.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (ProductView, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return ProductView{}, fmt.Errorf("%w: name required", ErrInvalidProduct)
	}
	if input.BasePrice <= 0 {
		return ProductView{}, fmt.Errorf("%w: base price must be positive", ErrInvalidProduct)
	}
	table, err := pricing.NewTierTable(input.Tiers...)
	if err != nil {
		return ProductView{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateProduct, "id_generation_failed", err)
		return ProductView{}, newServiceError(opCreateProduct, "id_generation_failed", err)
	}
	now := s.clock().UTC().Unix()
	product := Product{
		ProductID:        id,
		Name:             name,
		BasePriceCents:   input.BasePrice.Int64(),
		Active:           true,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&product).Error; err != nil {
			s.logError(opCreateProduct, "product_insert_failed", err, zap.String("product_id", id))
			return newServiceError(opCreateProduct, "product_insert_failed", err)
		}
		if rows := tierRows(id, table); len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				s.logError(opCreateProduct, "tier_insert_failed", err, zap.String("product_id", id))
				return newServiceError(opCreateProduct, "tier_insert_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		return ProductView{}, txErr
	}
	return view(product, table), nil
}

// GetProduct returns a product with its tier table.
func (s *Service) GetProduct(ctx context.Context, id string) (ProductView, error) {
	product, err := s.loadProduct(ctx, s.db, opGetProduct, id)
	if err != nil {
		return ProductView{}, err
	}
	table, err := s.loadTable(ctx, s.db, opGetProduct, product.ProductID)
	if err != nil {
		return ProductView{}, err
	}
	return view(product, table), nil
}

// ListProducts returns every product ordered by name.
func (s *Service) ListProducts(ctx context.Context) ([]ProductView, error) {
	var products []Product
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&products).Error; err != nil {
		s.logError(opListProducts, "query_failed", err)
		return nil, newServiceError(opListProducts, "query_failed", err)
	}
	var rows []ProductTier
	if err := s.db.WithContext(ctx).Order("product_id ASC, min_quantity ASC").Find(&rows).Error; err != nil {
		s.logError(opListProducts, "tier_query_failed", err)
		return nil, newServiceError(opListProducts, "tier_query_failed", err)
	}
	grouped := make(map[string][]pricing.Tier, len(products))
	for _, row := range rows {
		grouped[row.ProductID] = append(grouped[row.ProductID], row.tier())
	}
	views := make([]ProductView, 0, len(products))
	for _, product := range products {
		tiers := grouped[product.ProductID]
		if tiers == nil {
			tiers = []pricing.Tier{}
		}
		views = append(views, ProductView{
			ID:        product.ProductID,
			Name:      product.Name,
			BasePrice: pricing.Cents(product.BasePriceCents),
			Active:    product.Active,
			Tiers:     tiers,
		})
	}
	return views, nil
}

// ReplaceTiers swaps the whole tier table of a product. The new table is
// validated before anything is written; on rejection the stored table stays
// as it was. Placed orders keep the unit price they were placed with.
func (s *Service) ReplaceTiers(ctx context.Context, id string, tiers []pricing.Tier) (ProductView, error) {
	table, err := pricing.NewTierTable(tiers...)
	if err != nil {
		return ProductView{}, err
	}
	var product Product
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadProduct(ctx, tx, opReplaceTiers, id)
		if err != nil {
			return err
		}
		product = loaded
		if err := tx.Where("product_id = ?", product.ProductID).Delete(&ProductTier{}).Error; err != nil {
			s.logError(opReplaceTiers, "tier_delete_failed", err, zap.String("product_id", product.ProductID))
			return newServiceError(opReplaceTiers, "tier_delete_failed", err)
		}
		if rows := tierRows(product.ProductID, table); len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				s.logError(opReplaceTiers, "tier_insert_failed", err, zap.String("product_id", product.ProductID))
				return newServiceError(opReplaceTiers, "tier_insert_failed", err)
			}
		}
		product.UpdatedAtSeconds = s.clock().UTC().Unix()
		if err := tx.Model(&Product{}).Where("product_id = ?", product.ProductID).
			Update("updated_at_s", product.UpdatedAtSeconds).Error; err != nil {
			s.logError(opReplaceTiers, "product_touch_failed", err, zap.String("product_id", product.ProductID))
			return newServiceError(opReplaceTiers, "product_touch_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return ProductView{}, txErr
	}
	return view(product, table), nil
}

// Quote prices a quantity of an active product.
func (s *Service) Quote(ctx context.Context, id string, quantity int) (pricing.Quote, error) {
	if quantity < 1 {
		return pricing.Quote{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	loaded, err := s.Pricing(ctx, s.db, id)
	if err != nil {
		return pricing.Quote{}, err
	}
	if !loaded.Active {
		return pricing.Quote{}, fmt.Errorf("%w: %s", ErrProductUnavailable, loaded.ProductID)
	}
	return loaded.Quote(quantity)
}

// Pricing loads base price and tier table through db, which may be a
// transaction owned by the caller.
func (s *Service) Pricing(ctx context.Context, db *gorm.DB, id string) (Pricing, error) {
	product, err := s.loadProduct(ctx, db, opQuote, id)
	if err != nil {
		return Pricing{}, err
	}
	table, err := s.loadTable(ctx, db, opQuote, product.ProductID)
	if err != nil {
		return Pricing{}, err
	}
	return Pricing{
		ProductID: product.ProductID,
		Active:    product.Active,
		BasePrice: pricing.Cents(product.BasePriceCents),
		Table:     table,
	}, nil
}

func (s *Service) loadProduct(ctx context.Context, db *gorm.DB, operation, id string) (Product, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return Product{}, fmt.Errorf("%w: empty id", ErrProductNotFound)
	}
	var product Product
	err := db.WithContext(ctx).Where("product_id = ?", trimmed).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, trimmed)
	}
	if err != nil {
		s.logError(operation, "product_query_failed", err, zap.String("product_id", trimmed))
		return Product{}, newServiceError(operation, "product_query_failed", err)
	}
	return product, nil
}

func (s *Service) loadTable(ctx context.Context, db *gorm.DB, operation, productID string) (pricing.TierTable, error) {
	var rows []ProductTier
	if err := db.WithContext(ctx).Where("product_id = ?", productID).Order("min_quantity ASC").Find(&rows).Error; err != nil {
		s.logError(operation, "tier_query_failed", err, zap.String("product_id", productID))
		return pricing.TierTable{}, newServiceError(operation, "tier_query_failed", err)
	}
	tiers := make([]pricing.Tier, 0, len(rows))
	for _, row := range rows {
		tiers = append(tiers, row.tier())
	}
	table, err := pricing.NewTierTable(tiers...)
	if err != nil {
		s.logError(operation, "stored_tiers_invalid", err, zap.String("product_id", productID))
		return pricing.TierTable{}, newServiceError(operation, "stored_tiers_invalid", err)
	}
	return table, nil
}

func view(product Product, table pricing.TierTable) ProductView {
	return ProductView{
		ID:        product.ProductID,
		Name:      product.Name,
		BasePrice: pricing.Cents(product.BasePriceCents),
		Active:    product.Active,
		Tiers:     table.Tiers(),
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger := s.logger
	if logger == nil {
		logger = noOpLogger
	}
	logger.Error("catalog service error", attrs...)
}
