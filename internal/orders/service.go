package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customization"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/pricing"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingTemplates  = errors.New("required field resolver is required")
	errMissingPrices     = errors.New("price source is required")
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
	opServiceNew    = "orders.service.new"
	opAddLine       = "orders.add_line"
	opUpdateLine    = "orders.update_line"
	opRemoveLine    = "orders.remove_line"
	opListCart      = "orders.list_cart"
	opPlaceOrder    = "orders.place_order"
	opGetOrder      = "orders.get_order"
	opListOrders    = "orders.list_orders"
	opAdvanceStatus = "orders.advance_status"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues line and order identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// RequiredFieldResolver resolves the current required fields of a template.
type RequiredFieldResolver interface {
	RequiredFields(ctx context.Context, templateID string) ([]customization.RequiredField, error)
}

// PriceSource loads product pricing through the supplied handle.
type PriceSource interface {
	Pricing(ctx context.Context, db *gorm.DB, productID string) (catalog.Pricing, error)
}

// PreviewRenderer draws a draft record as a data URI.
type PreviewRenderer interface {
	RenderDataURI(ctx context.Context, record customization.Record) (string, error)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Templates  RequiredFieldResolver
	Prices     PriceSource
	// Previews, when set, fills in a preview for templated lines submitted
	// without one. Only lines that pass validation are rendered.
	Previews PreviewRenderer
	// MaxQuantity caps a single line. Non-positive values use DefaultMaxQuantity.
	MaxQuantity int
	Logger      *zap.Logger
}

// Service manages carts and placed orders.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  IDProvider
	templates   RequiredFieldResolver
	prices      PriceSource
	previews    PreviewRenderer
	maxQuantity int
	logger      *zap.Logger
}

// NewService validates configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Database == nil:
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	case cfg.IDProvider == nil:
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	case cfg.Templates == nil:
		return nil, newServiceError(opServiceNew, "missing_templates", errMissingTemplates)
	case cfg.Prices == nil:
		return nil, newServiceError(opServiceNew, "missing_prices", errMissingPrices)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	maxQuantity := cfg.MaxQuantity
	if maxQuantity <= 0 {
		maxQuantity = DefaultMaxQuantity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:          cfg.Database,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		templates:   cfg.Templates,
		prices:      cfg.Prices,
		previews:    cfg.Previews,
		maxQuantity: maxQuantity,
		logger:      logger,
	}, nil
}

// LineInput is what the customer submits for a cart line.
type LineInput struct {
	ProductID    string
	Quantity     int
	TemplateID   string
	Answers      []customization.RequiredField
	CustomFields []customization.CustomField
	Description  string
	Preview      string
}

// AddLine puts a product with a draft customization into the cart.
func (s *Service) AddLine(ctx context.Context, customerID string, input LineInput) (LineView, error) {
	customer, err := requireCustomer(customerID)
	if err != nil {
		return LineView{}, err
	}
	record, err := s.draft(ctx, input)
	if err != nil {
		return LineView{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddLine, "id_generation_failed", err, zap.String("customer_id", customer))
		return LineView{}, newServiceError(opAddLine, "id_generation_failed", err)
	}
	now := s.clock().UTC().Unix()
	line := CartLine{
		LineID:           id,
		CustomerID:       customer,
		ProductID:        strings.TrimSpace(input.ProductID),
		Quantity:         input.Quantity,
		Customization:    record,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&line).Error; err != nil {
		s.logError(opAddLine, "insert_failed", err, zap.String("customer_id", customer))
		return LineView{}, newServiceError(opAddLine, "insert_failed", err)
	}
	return cartLineView(line), nil
}

// UpdateLine replaces quantity and customization of a cart line. An empty
// ProductID keeps the line's product.
func (s *Service) UpdateLine(ctx context.Context, customerID, lineID string, input LineInput) (LineView, error) {
	customer, err := requireCustomer(customerID)
	if err != nil {
		return LineView{}, err
	}
	line, err := s.loadLine(ctx, opUpdateLine, customer, lineID)
	if err != nil {
		return LineView{}, err
	}
	if strings.TrimSpace(input.ProductID) == "" {
		input.ProductID = line.ProductID
	}
	record, err := s.draft(ctx, input)
	if err != nil {
		return LineView{}, err
	}
	previous := line.Revision
	line.ProductID = strings.TrimSpace(input.ProductID)
	line.Quantity = input.Quantity
	line.Customization = record
	line.Revision = previous + 1
	line.UpdatedAtSeconds = s.clock().UTC().Unix()
	result := s.db.WithContext(ctx).Model(&line).
		Where("customer_id = ? AND revision = ?", customer, previous).
		Select("*").Updates(&line)
	if result.Error != nil {
		s.logError(opUpdateLine, "save_failed", result.Error, zap.String("line_id", line.LineID))
		return LineView{}, newServiceError(opUpdateLine, "save_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return LineView{}, fmt.Errorf("%w: line %s updated concurrently", ErrCartChanged, line.LineID)
	}
	return cartLineView(line), nil
}

// RemoveLine deletes a cart line.
func (s *Service) RemoveLine(ctx context.Context, customerID, lineID string) error {
	customer, err := requireCustomer(customerID)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Where("customer_id = ? AND line_id = ?", customer, strings.TrimSpace(lineID)).
		Delete(&CartLine{})
	if result.Error != nil {
		s.logError(opRemoveLine, "delete_failed", result.Error, zap.String("line_id", lineID))
		return newServiceError(opRemoveLine, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrCartLineNotFound, lineID)
	}
	return nil
}

// ListCart returns the customer's cart in insertion order.
func (s *Service) ListCart(ctx context.Context, customerID string) ([]LineView, error) {
	customer, err := requireCustomer(customerID)
	if err != nil {
		return nil, err
	}
	lines, err := s.cartLines(ctx, s.db, opListCart, customer)
	if err != nil {
		return nil, err
	}
	views := make([]LineView, 0, len(lines))
	for _, line := range lines {
		views = append(views, cartLineView(line))
	}
	return views, nil
}

// PlaceOrder checks out the whole cart. Every line must answer every field its
// template currently requires; the record and the resolved unit price are
// frozen into the order and the cart is emptied in the same transaction.
func (s *Service) PlaceOrder(ctx context.Context, customerID string) (OrderView, error) {
	customer, err := requireCustomer(customerID)
	if err != nil {
		return OrderView{}, err
	}
	lines, err := s.cartLines(ctx, s.db, opPlaceOrder, customer)
	if err != nil {
		return OrderView{}, err
	}
	if len(lines) == 0 {
		return OrderView{}, ErrEmptyCart
	}

	// Field resolution reads templates through their own handle, so it runs
	// before the transaction; composing happens inside it from the re-read lines.
	resolvedByTemplate := make(map[string][]customization.RequiredField)
	for _, line := range lines {
		templateID := strings.TrimSpace(line.Customization.TemplateID)
		if templateID == "" {
			continue
		}
		if _, ok := resolvedByTemplate[templateID]; ok {
			continue
		}
		resolved, err := s.templates.RequiredFields(ctx, templateID)
		if err != nil {
			return OrderView{}, fmt.Errorf("line %s: %w", line.LineID, err)
		}
		resolvedByTemplate[templateID] = resolved
	}

	orderID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opPlaceOrder, "id_generation_failed", err, zap.String("customer_id", customer))
		return OrderView{}, newServiceError(opPlaceOrder, "id_generation_failed", err)
	}
	now := s.clock().UTC().Unix()
	order := Order{
		OrderID:          orderID,
		CustomerID:       customer,
		Status:           StatusPending,
		PlacedAtSeconds:  now,
		UpdatedAtSeconds: now,
	}
	var orderLines []OrderLine

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.cartLines(ctx, tx, opPlaceOrder, customer)
		if err != nil {
			return err
		}
		if !sameLines(lines, current) {
			return ErrCartChanged
		}

		orderLines = make([]OrderLine, 0, len(current))
		lineIDs := make([]string, 0, len(current))
		for position, line := range current {
			record, err := composeLine(line, resolvedByTemplate)
			if err != nil {
				return err
			}
			productPricing, err := s.prices.Pricing(ctx, tx, line.ProductID)
			if err != nil {
				return fmt.Errorf("line %s: %w", line.LineID, err)
			}
			if !productPricing.Active {
				return fmt.Errorf("line %s: %w: %s", line.LineID, catalog.ErrProductUnavailable, line.ProductID)
			}
			quote, err := productPricing.Quote(line.Quantity)
			if err != nil {
				return fmt.Errorf("line %s: %w", line.LineID, err)
			}
			orderLines = append(orderLines, OrderLine{
				OrderID:        orderID,
				Position:       position + 1,
				ProductID:      line.ProductID,
				Quantity:       line.Quantity,
				UnitPriceCents: quote.UnitPrice.Int64(),
				LineTotalCents: quote.LineTotal.Int64(),
				Customization:  record,
			})
			total, err := pricing.Cents(order.TotalCents).Plus(quote.LineTotal)
			if err != nil {
				return fmt.Errorf("line %s: %w", line.LineID, err)
			}
			order.TotalCents = total.Int64()
			lineIDs = append(lineIDs, line.LineID)
		}

		if err := tx.Create(&order).Error; err != nil {
			s.logError(opPlaceOrder, "order_insert_failed", err, zap.String("order_id", orderID))
			return newServiceError(opPlaceOrder, "order_insert_failed", err)
		}
		if err := tx.Create(&orderLines).Error; err != nil {
			s.logError(opPlaceOrder, "line_insert_failed", err, zap.String("order_id", orderID))
			return newServiceError(opPlaceOrder, "line_insert_failed", err)
		}
		result := tx.Where("customer_id = ? AND line_id IN ?", customer, lineIDs).Delete(&CartLine{})
		if result.Error != nil {
			s.logError(opPlaceOrder, "cart_clear_failed", result.Error, zap.String("order_id", orderID))
			return newServiceError(opPlaceOrder, "cart_clear_failed", result.Error)
		}
		if result.RowsAffected != int64(len(lineIDs)) {
			return ErrCartChanged
		}
		return nil
	})
	if txErr != nil {
		return OrderView{}, txErr
	}
	return orderView(order, orderLines), nil
}

// GetOrder returns one of the customer's orders.
func (s *Service) GetOrder(ctx context.Context, customerID, orderID string) (OrderView, error) {
	customer, err := requireCustomer(customerID)
	if err != nil {
		return OrderView{}, err
	}
	order, err := s.loadOrder(ctx, s.db, opGetOrder, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if order.CustomerID != customer {
		return OrderView{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	lines, err := s.orderLines(ctx, opGetOrder, order.OrderID)
	if err != nil {
		return OrderView{}, err
	}
	return orderView(order, lines), nil
}

// ListOrders returns the customer's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, customerID string) ([]OrderView, error) {
	customer, err := requireCustomer(customerID)
	if err != nil {
		return nil, err
	}
	var orders []Order
	if err := s.db.WithContext(ctx).Where("customer_id = ?", customer).
		Order("placed_at_s DESC, order_id DESC").Find(&orders).Error; err != nil {
		s.logError(opListOrders, "query_failed", err, zap.String("customer_id", customer))
		return nil, newServiceError(opListOrders, "query_failed", err)
	}
	views := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		lines, err := s.orderLines(ctx, opListOrders, order.OrderID)
		if err != nil {
			return nil, err
		}
		views = append(views, orderView(order, lines))
	}
	return views, nil
}

// AdvanceStatus moves an order along pending, confirmed, shipped, with
// cancellation allowed before shipping.
func (s *Service) AdvanceStatus(ctx context.Context, orderID string, next Status) (OrderView, error) {
	var (
		order Order
		lines []OrderLine
	)
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadOrder(ctx, tx, opAdvanceStatus, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(loaded.Status, next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, loaded.Status, next)
		}
		updatedAt := s.clock().UTC().Unix()
		result := tx.Model(&Order{}).
			Where("order_id = ? AND status = ?", loaded.OrderID, loaded.Status).
			Updates(map[string]any{"status": next, "updated_at_s": updatedAt})
		if result.Error != nil {
			s.logError(opAdvanceStatus, "update_failed", result.Error, zap.String("order_id", loaded.OrderID))
			return newServiceError(opAdvanceStatus, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s changed concurrently", ErrInvalidStatusTransition, loaded.OrderID)
		}
		loaded.Status = next
		loaded.UpdatedAtSeconds = updatedAt
		order = loaded
		if err := tx.Where("order_id = ?", loaded.OrderID).Order("position ASC").Find(&lines).Error; err != nil {
			s.logError(opAdvanceStatus, "line_query_failed", err, zap.String("order_id", loaded.OrderID))
			return newServiceError(opAdvanceStatus, "line_query_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return OrderView{}, txErr
	}
	return orderView(order, lines), nil
}

func (s *Service) draft(ctx context.Context, input LineInput) (customization.Record, error) {
	if input.Quantity < 1 || input.Quantity > s.maxQuantity {
		return customization.Record{}, fmt.Errorf("%w: %d not in 1..%d", catalog.ErrInvalidQuantity, input.Quantity, s.maxQuantity)
	}
	productPricing, err := s.prices.Pricing(ctx, s.db, input.ProductID)
	if err != nil {
		return customization.Record{}, err
	}
	if !productPricing.Active {
		return customization.Record{}, fmt.Errorf("%w: %s", catalog.ErrProductUnavailable, productPricing.ProductID)
	}

	templateID := strings.TrimSpace(input.TemplateID)
	var resolved []customization.RequiredField
	if templateID != "" {
		resolved, err = s.templates.RequiredFields(ctx, templateID)
		if err != nil {
			return customization.Record{}, err
		}
	}
	record, err := customization.ComposeDraft(customization.Input{
		TemplateID:   templateID,
		Resolved:     resolved,
		Answers:      input.Answers,
		CustomFields: input.CustomFields,
		Description:  input.Description,
		Preview:      strings.TrimSpace(input.Preview),
	})
	if err != nil {
		return customization.Record{}, err
	}
	if record.Preview == "" && record.HasTemplate() && s.previews != nil {
		preview, err := s.previews.RenderDataURI(ctx, record)
		if err != nil {
			s.logger.Warn("cart line preview skipped", zap.String("template_id", templateID), zap.Error(err))
		} else {
			record.Preview = preview
		}
	}
	return record, nil
}

func (s *Service) loadLine(ctx context.Context, operation, customer, lineID string) (CartLine, error) {
	var line CartLine
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND line_id = ?", customer, strings.TrimSpace(lineID)).
		Take(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CartLine{}, fmt.Errorf("%w: %s", ErrCartLineNotFound, lineID)
	}
	if err != nil {
		s.logError(operation, "line_query_failed", err, zap.String("line_id", lineID))
		return CartLine{}, newServiceError(operation, "line_query_failed", err)
	}
	return line, nil
}

func (s *Service) cartLines(ctx context.Context, db *gorm.DB, operation, customer string) ([]CartLine, error) {
	var lines []CartLine
	if err := db.WithContext(ctx).Where("customer_id = ?", customer).
		Order("created_at_s ASC, line_id ASC").Find(&lines).Error; err != nil {
		s.logError(operation, "cart_query_failed", err, zap.String("customer_id", customer))
		return nil, newServiceError(operation, "cart_query_failed", err)
	}
	return lines, nil
}

func (s *Service) loadOrder(ctx context.Context, db *gorm.DB, operation, orderID string) (Order, error) {
	var order Order
	err := db.WithContext(ctx).Where("order_id = ?", strings.TrimSpace(orderID)).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		s.logError(operation, "order_query_failed", err, zap.String("order_id", orderID))
		return Order{}, newServiceError(operation, "order_query_failed", err)
	}
	return order, nil
}

func (s *Service) orderLines(ctx context.Context, operation, orderID string) ([]OrderLine, error) {
	var lines []OrderLine
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("position ASC").Find(&lines).Error; err != nil {
		s.logError(operation, "line_query_failed", err, zap.String("order_id", orderID))
		return nil, newServiceError(operation, "line_query_failed", err)
	}
	return lines, nil
}

func sameLines(expected, current []CartLine) bool {
	if len(expected) != len(current) {
		return false
	}
	for index := range expected {
		if expected[index].LineID != current[index].LineID ||
			expected[index].Revision != current[index].Revision {
			return false
		}
	}
	return true
}

func composeLine(line CartLine, resolvedByTemplate map[string][]customization.RequiredField) (customization.Record, error) {
	templateID := strings.TrimSpace(line.Customization.TemplateID)
	var resolved []customization.RequiredField
	if templateID != "" {
		cached, ok := resolvedByTemplate[templateID]
		if !ok {
			return customization.Record{}, fmt.Errorf("line %s: %w", line.LineID, ErrCartChanged)
		}
		resolved = cached
	}
	record, err := customization.Compose(customization.Input{
		TemplateID:   templateID,
		Resolved:     resolved,
		Answers:      line.Customization.RequiredFields,
		CustomFields: line.Customization.CustomFields,
		Description:  line.Customization.Description,
		Preview:      line.Customization.Preview,
	})
	if err != nil {
		return customization.Record{}, fmt.Errorf("line %s: %w", line.LineID, err)
	}
	return record.Snapshot(), nil
}

func requireCustomer(customerID string) (string, error) {
	trimmed := strings.TrimSpace(customerID)
	if trimmed == "" {
		return "", ErrInvalidCustomerID
	}
	return trimmed, nil
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
	logger.Error("orders service error", attrs...)
}
