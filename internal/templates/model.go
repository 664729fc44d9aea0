package templates

import (
	"errors"

	"gorm.io/datatypes"
)

var (
	// ErrInvalidTemplate indicates template metadata or objects that fail validation.
	ErrInvalidTemplate = errors.New("templates: invalid template")
	// ErrTemplateNotFound indicates an unknown template id.
	ErrTemplateNotFound = errors.New("templates: template not found")
	// ErrInvalidCategory indicates a category without a usable name.
	ErrInvalidCategory = errors.New("templates: invalid category")
	// ErrCategoryNotFound indicates a template referencing an unknown category.
	ErrCategoryNotFound = errors.New("templates: category not found")
	// ErrDuplicateCategory indicates a category name already in use.
	ErrDuplicateCategory = errors.New("templates: duplicate category")
)

// Category groups templates for browsing.
type Category struct {
	CategoryID       string `gorm:"column:category_id;primaryKey;size:190;not null"`
	Name             string `gorm:"column:name;size:190;not null;uniqueIndex:idx_template_categories_name"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Category) TableName() string {
	return "template_categories"
}

// Template is the persisted row of a Document. Elements holds the encoded
// object list; rows written before format versioning may hold a JSON string.
type Template struct {
	TemplateID       string         `gorm:"column:template_id;primaryKey;size:190;not null"`
	Name             string         `gorm:"column:name;size:190;not null"`
	CategoryID       string         `gorm:"column:category_id;size:190;not null;index:idx_templates_category"`
	Elements         datatypes.JSON `gorm:"column:elements;not null"`
	FormatVersion    int            `gorm:"column:format_version;not null;default:1"`
	Preview          string         `gorm:"column:preview;type:text;not null;default:''"`
	CreatedAtSeconds int64          `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64          `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Template) TableName() string {
	return "templates"
}

// Summary is the listing view of a template without its elements.
type Summary struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	CategoryID       string `json:"categoryId"`
	Preview          string `json:"preview"`
	UpdatedAtSeconds int64  `json:"updatedAt"`
}

func (t Template) summary() Summary {
	return Summary{
		ID:               t.TemplateID,
		Name:             t.Name,
		CategoryID:       t.CategoryID,
		Preview:          t.Preview,
		UpdatedAtSeconds: t.UpdatedAtSeconds,
	}
}

// document decodes the stored elements.
func (t Template) document() (Document, error) {
	elements, err := DecodeElements(t.Elements)
	if err != nil {
		return Document{}, err
	}
	return Document{
		ID:         t.TemplateID,
		Name:       t.Name,
		CategoryID: t.CategoryID,
		Elements:   elements,
		Preview:    t.Preview,
	}, nil
}
