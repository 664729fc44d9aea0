package templates

import (
	"strings"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customization"
)

const fieldIDPrefix = "field-"

// FieldID derives the required-field identity of a placeholder. It depends
// only on the object identity, so it survives reordering and re-resolution.
func FieldID(id canvas.ObjectID) string {
	return fieldIDPrefix + id.String()
}

// ObjectIDFromFieldID reverses FieldID.
func ObjectIDFromFieldID(fieldID string) (canvas.ObjectID, bool) {
	raw, found := strings.CutPrefix(fieldID, fieldIDPrefix)
	if !found {
		return "", false
	}
	id, err := canvas.NewObjectID(raw)
	if err != nil {
		return "", false
	}
	return id, true
}

// ResolveRequiredFields lists the answer slots a template demands, in z-order.
// Only tagged placeholders contribute.
func ResolveRequiredFields(elements Elements) []customization.RequiredField {
	fields := make([]customization.RequiredField, 0)
	for _, object := range elements.Objects {
		if !object.IsPlaceholder() {
			continue
		}
		placeholder, _ := object.Placeholder()
		fields = append(fields, customization.RequiredField{
			FieldID:  FieldID(object.ID()),
			SlotType: customization.SlotType(placeholder.Tag().SlotType),
		})
	}
	return fields
}
