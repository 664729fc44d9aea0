package customization

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

// SlotType enumerates the kinds of answers a required field accepts.
type SlotType string

const (
	SlotTypeImage SlotType = "image"
	SlotTypeLogo  SlotType = "logo"
	SlotTypeText  SlotType = "text"
)

// FieldType enumerates the kinds of content a customer may add freely.
type FieldType string

const (
	FieldTypeText  FieldType = "text"
	FieldTypeImage FieldType = "image"
)

var (
	// ErrMissingRequiredField matches *MissingRequiredFieldError.
	ErrMissingRequiredField = errors.New("customization: missing required field")
	// ErrUnknownRequiredField indicates an answer keyed by a field id the template does not resolve to.
	ErrUnknownRequiredField = errors.New("customization: unknown required field")
	// ErrInvalidCustomField indicates a custom field without an id or with an unsupported type.
	ErrInvalidCustomField = errors.New("customization: invalid custom field")
	// ErrDuplicateCustomField indicates two custom fields sharing an id within one record.
	ErrDuplicateCustomField = errors.New("customization: duplicate custom field")
)

// MissingRequiredFieldError lists every required field left empty. Callers
// re-prompt for exactly these ids; already answered fields stay valid.
type MissingRequiredFieldError struct {
	FieldIDs []string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingRequiredField.Error(), strings.Join(e.FieldIDs, ", "))
}

// Is lets errors.Is match the sentinel.
func (e *MissingRequiredFieldError) Is(target error) bool {
	return target == ErrMissingRequiredField
}

// RequiredField is one placeholder-derived answer slot.
type RequiredField struct {
	FieldID  string   `json:"fieldId"`
	SlotType SlotType `json:"slotType"`
	Value    string   `json:"value"`
}

// Properties carries free-form style overrides for a custom field. Every value
// is kept verbatim so that later renders reproduce exact placement.
type Properties struct {
	Font     string         `json:"font,omitempty"`
	FontSize float64        `json:"fontSize,omitempty"`
	Fill     string         `json:"fill,omitempty"`
	X        float64        `json:"x"`
	Y        float64        `json:"y"`
	ScaleX   float64        `json:"scaleX,omitempty"`
	ScaleY   float64        `json:"scaleY,omitempty"`
	Rotation float64        `json:"rotation,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// CustomField is customer-added content the template did not anticipate.
type CustomField struct {
	FieldID    string     `json:"fieldId"`
	Type       FieldType  `json:"type"`
	Content    string     `json:"content"`
	Properties Properties `json:"properties"`
}

// Record is the full capture of a customer's answers and additions for one line.
type Record struct {
	TemplateID     string          `json:"template,omitempty"`
	Preview        string          `json:"preview,omitempty"`
	Description    string          `json:"description,omitempty"`
	RequiredFields []RequiredField `json:"requiredFields"`
	CustomFields   []CustomField   `json:"customFields"`
}

// HasTemplate reports whether the record is bound to a template.
func (r Record) HasTemplate() bool {
	return strings.TrimSpace(r.TemplateID) != ""
}

// Snapshot deep-copies the record so that an order keeps its own frozen value.
func (r Record) Snapshot() Record {
	snapshot := Record{
		TemplateID:     r.TemplateID,
		Preview:        r.Preview,
		Description:    r.Description,
		RequiredFields: make([]RequiredField, len(r.RequiredFields)),
		CustomFields:   make([]CustomField, len(r.CustomFields)),
	}
	copy(snapshot.RequiredFields, r.RequiredFields)
	for index, field := range r.CustomFields {
		cloned := field
		if field.Properties.Extra != nil {
			cloned.Properties.Extra = cloneExtra(field.Properties.Extra)
		}
		snapshot.CustomFields[index] = cloned
	}
	return snapshot
}

func cloneExtra(source map[string]any) map[string]any {
	cloned := maps.Clone(source)
	for key, value := range cloned {
		cloned[key] = cloneValue(value)
	}
	return cloned
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneExtra(typed)
	case []any:
		items := make([]any, len(typed))
		for index, item := range typed {
			items[index] = cloneValue(item)
		}
		return items
	default:
		return value
	}
}
