package templates

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
)

const legacyIDPrefix = "obj-"

// legacyObject mirrors the editor export stored before format versioning.
// Placeholder slots were groups whose data bag carried the slot type.
type legacyObject struct {
	Type         string          `json:"type"`
	Left         float64         `json:"left"`
	Top          float64         `json:"top"`
	Angle        float64         `json:"angle"`
	ScaleX       float64         `json:"scaleX"`
	ScaleY       float64         `json:"scaleY"`
	Width        float64         `json:"width"`
	Height       float64         `json:"height"`
	Radius       float64         `json:"radius"`
	Fill         json.RawMessage `json:"fill"`
	Stroke       *string         `json:"stroke"`
	StrokeWidth  float64         `json:"strokeWidth"`
	Text         string          `json:"text"`
	FontFamily   string          `json:"fontFamily"`
	FontSize     float64         `json:"fontSize"`
	Source       string          `json:"src"`
	Selectable   *bool           `json:"selectable"`
	HasControls  *bool           `json:"hasControls"`
	LockRotation bool            `json:"lockRotation"`
	Data         map[string]any  `json:"data"`
	Objects      []legacyObject  `json:"objects"`
}

type legacyDocument struct {
	Objects []legacyObject `json:"objects"`
}

// decodeLegacy migrates a version 1 document. Identities are derived from the
// authoring order so repeated migrations of the same row yield the same ids.
// Object types the current model cannot represent make the whole document
// corrupt rather than being guessed at.
func decodeLegacy(payload []byte) (Elements, error) {
	var document legacyDocument
	if err := json.Unmarshal(payload, &document); err != nil {
		return Elements{}, fmt.Errorf("%w: %v", ErrCorruptTemplateDocument, err)
	}
	objects := make([]canvas.Object, 0, len(document.Objects))
	for index, item := range document.Objects {
		id := canvas.ObjectID(fmt.Sprintf("%s%d", legacyIDPrefix, index+1))
		object, err := migrateLegacyObject(id, item)
		if err != nil {
			return Elements{}, fmt.Errorf("%w: object %d: %w", ErrCorruptTemplateDocument, index, err)
		}
		objects = append(objects, object)
	}
	return Elements{FormatVersion: CurrentFormatVersion, Objects: objects}, nil
}

func migrateLegacyObject(id canvas.ObjectID, item legacyObject) (canvas.Object, error) {
	transform := canvas.Transform{X: item.Left, Y: item.Top, Rotation: item.Angle, ScaleX: item.ScaleX, ScaleY: item.ScaleY}

	var (
		object canvas.Object
		err    error
	)
	if slotType, tagged := legacyPlaceholderTag(item.Data); tagged {
		shape, label := legacyPlaceholderParts(item)
		object, err = canvas.NewPlaceholder(id, transform, slotType, shape, label)
	} else {
		switch strings.ToLower(item.Type) {
		case "text", "i-text", "textbox":
			object, err = canvas.NewText(id, transform, legacyText(item))
		case "rect":
			object, err = canvas.NewRectangle(id, transform, legacyShape(item))
		case "circle":
			object, err = canvas.NewCircle(id, transform, legacyShape(item))
		case "image":
			object, err = canvas.NewImage(id, transform, canvas.ImageSpec{
				Source:        item.Source,
				NaturalWidth:  int(item.Width),
				NaturalHeight: int(item.Height),
			})
		default:
			return canvas.Object{}, fmt.Errorf("%w: unsupported legacy type %q", canvas.ErrInvalidObject, item.Type)
		}
	}
	if err != nil {
		return canvas.Object{}, err
	}

	object.Capabilities = canvas.Capabilities{
		Selectable: item.Selectable == nil || *item.Selectable,
		Resizable:  item.HasControls == nil || *item.HasControls,
		Rotatable:  !item.LockRotation && (item.HasControls == nil || *item.HasControls),
	}
	return object, nil
}

// legacyPlaceholderTag reads the free-form data bag. A bag that claims to be a
// placeholder always yields a tag so that a bad slot type surfaces as
// ErrInvalidPlaceholderKind instead of the object silently losing its role.
func legacyPlaceholderTag(data map[string]any) (canvas.SlotType, bool) {
	if data == nil {
		return "", false
	}
	isPlaceholder, _ := data["isPlaceholder"].(bool)
	if !isPlaceholder {
		return "", false
	}
	slotType, _ := data["type"].(string)
	return canvas.SlotType(strings.ToLower(strings.TrimSpace(slotType))), true
}

func legacyPlaceholderParts(item legacyObject) (canvas.ShapeSpec, canvas.TextSpec) {
	shape := legacyShape(item)
	var label canvas.TextSpec
	shapeFound := false
	for _, child := range item.Objects {
		switch strings.ToLower(child.Type) {
		case "rect", "circle":
			if !shapeFound {
				shape = legacyShape(child)
				shapeFound = true
			}
		case "text", "i-text", "textbox":
			if label.Content == "" {
				label = legacyText(child)
			}
		}
	}
	return shape, label
}

func legacyText(item legacyObject) canvas.TextSpec {
	return canvas.TextSpec{
		Content:    item.Text,
		FontFamily: item.FontFamily,
		FontSize:   item.FontSize,
		Fill:       legacyColour(item.Fill),
	}
}

func legacyShape(item legacyObject) canvas.ShapeSpec {
	shape := canvas.ShapeSpec{
		Width:       item.Width,
		Height:      item.Height,
		Radius:      item.Radius,
		StrokeWidth: item.StrokeWidth,
		Fill:        legacyColour(item.Fill),
	}
	if item.Stroke != nil {
		shape.Stroke = *item.Stroke
	}
	return shape
}

// legacyColour accepts the colour string form; gradients and patterns, which
// the exporter wrote as objects, and explicit nulls become "none".
func legacyColour(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var colour string
	if err := json.Unmarshal(raw, &colour); err != nil {
		return canvas.FillNone
	}
	if colour == "" || colour == "transparent" {
		return canvas.FillNone
	}
	return colour
}
