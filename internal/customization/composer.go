package customization

import (
	"fmt"
	"strings"
)

// Input gathers everything the composer merges into a Record.
type Input struct {
	// TemplateID is empty when the line item has no template.
	TemplateID string
	// Resolved is the required-field list the template currently resolves to.
	Resolved []RequiredField
	// Answers holds the customer's values keyed by field id.
	Answers      []RequiredField
	CustomFields []CustomField
	Description  string
	Preview      string
}

// Compose builds a checkout-ready record. Every resolved required field must
// carry a non-empty answer.
func Compose(input Input) (Record, error) {
	return compose(input, true)
}

// ComposeDraft builds a record while the customer is still editing the cart.
// Missing answers are allowed; only answered fields are kept.
func ComposeDraft(input Input) (Record, error) {
	return compose(input, false)
}

func compose(input Input, requireComplete bool) (Record, error) {
	templateID := strings.TrimSpace(input.TemplateID)
	if templateID == "" && len(input.Resolved) > 0 {
		return Record{}, fmt.Errorf("%w: resolved fields supplied without a template", ErrUnknownRequiredField)
	}

	answers, err := indexAnswers(input.Answers, input.Resolved)
	if err != nil {
		return Record{}, err
	}

	requiredFields := make([]RequiredField, 0, len(input.Resolved))
	var missing []string
	for _, resolved := range input.Resolved {
		value, answered := answers[resolved.FieldID]
		if !answered || strings.TrimSpace(value) == "" {
			missing = append(missing, resolved.FieldID)
			continue
		}
		requiredFields = append(requiredFields, RequiredField{
			FieldID:  resolved.FieldID,
			SlotType: resolved.SlotType,
			Value:    value,
		})
	}
	if requireComplete && len(missing) > 0 {
		return Record{}, &MissingRequiredFieldError{FieldIDs: missing}
	}

	customFields, err := validateCustomFields(input.CustomFields)
	if err != nil {
		return Record{}, err
	}

	record := Record{
		TemplateID:     templateID,
		Preview:        input.Preview,
		Description:    input.Description,
		RequiredFields: requiredFields,
		CustomFields:   customFields,
	}
	return record.Snapshot(), nil
}

func indexAnswers(answers []RequiredField, resolved []RequiredField) (map[string]string, error) {
	known := make(map[string]struct{}, len(resolved))
	for _, field := range resolved {
		known[field.FieldID] = struct{}{}
	}
	indexed := make(map[string]string, len(answers))
	for _, answer := range answers {
		fieldID := strings.TrimSpace(answer.FieldID)
		if _, ok := known[fieldID]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRequiredField, answer.FieldID)
		}
		if _, seen := indexed[fieldID]; seen {
			return nil, fmt.Errorf("%w: %q answered twice", ErrUnknownRequiredField, answer.FieldID)
		}
		indexed[fieldID] = answer.Value
	}
	return indexed, nil
}

func validateCustomFields(fields []CustomField) ([]CustomField, error) {
	validated := make([]CustomField, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		fieldID := strings.TrimSpace(field.FieldID)
		if fieldID == "" {
			return nil, fmt.Errorf("%w: empty field id", ErrInvalidCustomField)
		}
		switch field.Type {
		case FieldTypeText, FieldTypeImage:
		default:
			return nil, fmt.Errorf("%w: field %q has unsupported type %q", ErrInvalidCustomField, fieldID, field.Type)
		}
		if _, ok := seen[fieldID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCustomField, fieldID)
		}
		seen[fieldID] = struct{}{}
		field.FieldID = fieldID
		validated = append(validated, field)
	}
	return validated, nil
}

// Validate re-checks a stored record against the fields its template resolves
// to now. It is used when a cart line is checked out.
func Validate(record Record, resolved []RequiredField) error {
	_, err := Compose(Input{
		TemplateID:   record.TemplateID,
		Resolved:     resolved,
		Answers:      record.RequiredFields,
		CustomFields: record.CustomFields,
		Description:  record.Description,
		Preview:      record.Preview,
	})
	return err
}
