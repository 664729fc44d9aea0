package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/cache"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customization"
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
	opServiceNew      = "templates.service.new"
	opCreateCategory  = "templates.create_category"
	opListCategories  = "templates.list_categories"
	opCreateTemplate  = "templates.create_template"
	opUpdateTemplate  = "templates.update_template"
	opGetTemplate     = "templates.get_template"
	opListTemplates   = "templates.list_templates"
	opDeleteTemplate  = "templates.delete_template"
	opRequiredFields  = "templates.required_fields"
	opCategoryExists  = "templates.category_exists"
	opEncodeElements  = "templates.encode_elements"
	opGenerateID      = "templates.generate_id"
	reasonQueryFailed = "query_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// PreviewNormalizer turns a submitted preview reference into the stored form.
type PreviewNormalizer interface {
	Normalize(reference string) (string, error)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider canvas.IDProvider
	Previews   PreviewNormalizer
	Logger     *zap.Logger
	// CacheTTL bounds how long a decoded template is served without a read.
	CacheTTL time.Duration
}

// Service persists templates and categories.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider canvas.IDProvider
	previews   PreviewNormalizer
	logger     *zap.Logger
	documents  *cache.TTL[string, Document]
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
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		previews:   cfg.Previews,
		logger:     logger,
		documents:  cache.New[string, Document](cache.Config{TTL: cfg.CacheTTL, Clock: clock}),
	}, nil
}

// TemplateInput is the admin-supplied content of a template.
type TemplateInput struct {
	Name       string
	CategoryID string
	// Elements is the encoded object list, current or legacy format.
	Elements json.RawMessage
	Preview  string
}

// CreateCategory stores a new category.
func (s *Service) CreateCategory(ctx context.Context, name string) (Category, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Category{}, fmt.Errorf("%w: name required", ErrInvalidCategory)
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&Category{}).Where("name = ?", trimmed).Count(&count).Error; err != nil {
		s.logError(opCreateCategory, reasonQueryFailed, err)
		return Category{}, newServiceError(opCreateCategory, reasonQueryFailed, err)
	}
	if count > 0 {
		return Category{}, fmt.Errorf("%w: %s", ErrDuplicateCategory, trimmed)
	}
	id, err := s.newID(opCreateCategory)
	if err != nil {
		return Category{}, err
	}
	category := Category{CategoryID: id, Name: trimmed, CreatedAtSeconds: s.clock().UTC().Unix()}
	if err := s.db.WithContext(ctx).Create(&category).Error; err != nil {
		s.logError(opCreateCategory, "insert_failed", err, zap.String("category_id", id))
		return Category{}, newServiceError(opCreateCategory, "insert_failed", err)
	}
	return category, nil
}

// ListCategories returns every category ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		s.logError(opListCategories, reasonQueryFailed, err)
		return nil, newServiceError(opListCategories, reasonQueryFailed, err)
	}
	return categories, nil
}

// CreateTemplate validates and stores a template. Legacy element formats are
// upgraded before they are written.
func (s *Service) CreateTemplate(ctx context.Context, input TemplateInput) (Document, error) {
	row, document, err := s.prepare(ctx, opCreateTemplate, input)
	if err != nil {
		return Document{}, err
	}
	id, err := s.newID(opCreateTemplate)
	if err != nil {
		return Document{}, err
	}
	now := s.clock().UTC().Unix()
	row.TemplateID = id
	row.CreatedAtSeconds = now
	row.UpdatedAtSeconds = now
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logError(opCreateTemplate, "insert_failed", err, zap.String("template_id", id))
		return Document{}, newServiceError(opCreateTemplate, "insert_failed", err)
	}
	document.ID = id
	return document, nil
}

// UpdateTemplate replaces a template's content. Placed orders are unaffected:
// they carry their own snapshot.
func (s *Service) UpdateTemplate(ctx context.Context, id string, input TemplateInput) (Document, error) {
	existing, err := s.loadRow(ctx, opUpdateTemplate, id)
	if err != nil {
		return Document{}, err
	}
	row, document, err := s.prepare(ctx, opUpdateTemplate, input)
	if err != nil {
		return Document{}, err
	}
	updates := map[string]any{
		"name":           row.Name,
		"category_id":    row.CategoryID,
		"elements":       row.Elements,
		"format_version": row.FormatVersion,
		"preview":        row.Preview,
		"updated_at_s":   s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Model(&Template{}).Where("template_id = ?", existing.TemplateID).Updates(updates).Error; err != nil {
		s.logError(opUpdateTemplate, "update_failed", err, zap.String("template_id", id))
		return Document{}, newServiceError(opUpdateTemplate, "update_failed", err)
	}
	s.documents.Invalidate(existing.TemplateID)
	document.ID = existing.TemplateID
	return document, nil
}

// GetTemplate returns a decoded template. Decoded documents are cached until
// the TTL lapses or the template changes.
func (s *Service) GetTemplate(ctx context.Context, id string) (Document, error) {
	document, err := s.documents.GetOrLoad(strings.TrimSpace(id), func() (Document, error) {
		row, err := s.loadRow(ctx, opGetTemplate, id)
		if err != nil {
			return Document{}, err
		}
		return row.document()
	})
	if err != nil {
		return Document{}, err
	}
	document.Elements.Objects = slices.Clone(document.Elements.Objects)
	return document, nil
}

// ListTemplates returns summaries, optionally restricted to one category.
func (s *Service) ListTemplates(ctx context.Context, categoryID string) ([]Summary, error) {
	query := s.db.WithContext(ctx).Model(&Template{}).Order("name ASC")
	if trimmed := strings.TrimSpace(categoryID); trimmed != "" {
		query = query.Where("category_id = ?", trimmed)
	}
	var rows []Template
	if err := query.Select("template_id", "name", "category_id", "preview", "updated_at_s").Find(&rows).Error; err != nil {
		s.logError(opListTemplates, reasonQueryFailed, err)
		return nil, newServiceError(opListTemplates, reasonQueryFailed, err)
	}
	summaries := make([]Summary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, row.summary())
	}
	return summaries, nil
}

// DeleteTemplate removes a template.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	trimmed := strings.TrimSpace(id)
	result := s.db.WithContext(ctx).Where("template_id = ?", trimmed).Delete(&Template{})
	if result.Error != nil {
		s.logError(opDeleteTemplate, "delete_failed", result.Error, zap.String("template_id", trimmed))
		return newServiceError(opDeleteTemplate, "delete_failed", result.Error)
	}
	s.documents.Invalidate(trimmed)
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, trimmed)
	}
	return nil
}

// RequiredFields resolves the answer slots of the current template version.
func (s *Service) RequiredFields(ctx context.Context, id string) ([]customization.RequiredField, error) {
	document, err := s.GetTemplate(ctx, id)
	if err != nil {
		if isServiceError(err) {
			s.logError(opRequiredFields, "load_failed", err, zap.String("template_id", id))
		}
		return nil, err
	}
	return ResolveRequiredFields(document.Elements), nil
}

func (s *Service) prepare(ctx context.Context, operation string, input TemplateInput) (Template, Document, error) {
	elements, err := DecodeElements(input.Elements)
	if err != nil {
		return Template{}, Document{}, err
	}
	document := Document{
		Name:       strings.TrimSpace(input.Name),
		CategoryID: strings.TrimSpace(input.CategoryID),
		Elements:   elements,
	}
	if err := document.Validate(); err != nil {
		return Template{}, Document{}, err
	}
	if err := s.requireCategory(ctx, document.CategoryID); err != nil {
		return Template{}, Document{}, err
	}

	document.Preview = strings.TrimSpace(input.Preview)
	if s.previews != nil {
		normalized, err := s.previews.Normalize(input.Preview)
		if err != nil {
			return Template{}, Document{}, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
		}
		document.Preview = normalized
	}

	encoded, err := EncodeElements(elements)
	if err != nil {
		s.logError(opEncodeElements, "encode_failed", err, zap.String("operation_context", operation))
		return Template{}, Document{}, newServiceError(operation, "encode_failed", err)
	}
	row := Template{
		Name:          document.Name,
		CategoryID:    document.CategoryID,
		Elements:      datatypes.JSON(encoded),
		FormatVersion: CurrentFormatVersion,
		Preview:       document.Preview,
	}
	return row, document, nil
}

func (s *Service) requireCategory(ctx context.Context, categoryID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Category{}).Where("category_id = ?", categoryID).Count(&count).Error; err != nil {
		s.logError(opCategoryExists, reasonQueryFailed, err, zap.String("category_id", categoryID))
		return newServiceError(opCategoryExists, reasonQueryFailed, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
	}
	return nil
}

func (s *Service) loadRow(ctx context.Context, operation, id string) (Template, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return Template{}, fmt.Errorf("%w: empty id", ErrTemplateNotFound)
	}
	var row Template
	err := s.db.WithContext(ctx).Where("template_id = ?", trimmed).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, trimmed)
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("template_id", trimmed))
		return Template{}, newServiceError(operation, reasonQueryFailed, err)
	}
	return row, nil
}

func (s *Service) newID(operation string) (string, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opGenerateID, "id_generation_failed", err, zap.String("operation_context", operation))
		return "", newServiceError(operation, "id_generation_failed", err)
	}
	return id, nil
}

func isServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
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
	logger.Error("templates service error", attrs...)
}
