package templates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
)

// Format versions of the persisted elements document. Version 1 is the legacy
// editor export: objects without identities, tagged through a free-form data
// bag, sometimes stored as a JSON string. Version 2 is the current format.
const (
	FormatVersionLegacy  = 1
	CurrentFormatVersion = 2
)

var (
	// ErrCorruptTemplateDocument indicates elements that cannot be parsed into a document.
	ErrCorruptTemplateDocument = errors.New("templates: corrupt template document")
	// ErrUnsupportedFormatVersion indicates elements written by a newer format.
	ErrUnsupportedFormatVersion = errors.New("templates: unsupported format version")
)

// Elements is the portable object list of a template. Order is z-order.
type Elements struct {
	FormatVersion int
	Objects       []canvas.Object
}

// Document is one admin-authored design.
type Document struct {
	ID         string
	Name       string
	CategoryID string
	Elements   Elements
	Preview    string
}

type wireElements struct {
	FormatVersion int          `json:"formatVersion"`
	Objects       []wireObject `json:"objects"`
}

type wireObject struct {
	ID         string      `json:"id"`
	Kind       canvas.Kind `json:"kind"`
	X          float64     `json:"x"`
	Y          float64     `json:"y"`
	Rotation   float64     `json:"rotation"`
	ScaleX     float64     `json:"scaleX"`
	ScaleY     float64     `json:"scaleY"`
	Selectable bool        `json:"selectable"`
	Resizable  bool        `json:"resizable"`
	Rotatable  bool        `json:"rotatable"`
	Text       *wireText   `json:"text,omitempty"`
	Shape      *wireShape  `json:"shape,omitempty"`
	Image      *wireImage  `json:"image,omitempty"`
	Label      *wireText   `json:"label,omitempty"`
	Data       *wireTag    `json:"data,omitempty"`
}

type wireText struct {
	Content    string  `json:"content"`
	FontFamily string  `json:"fontFamily,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	Fill       string  `json:"fill,omitempty"`
}

type wireShape struct {
	Width       float64 `json:"width,omitempty"`
	Height      float64 `json:"height,omitempty"`
	Radius      float64 `json:"radius,omitempty"`
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Fill        string  `json:"fill,omitempty"`
}

type wireImage struct {
	Source        string `json:"src"`
	NaturalWidth  int    `json:"naturalWidth,omitempty"`
	NaturalHeight int    `json:"naturalHeight,omitempty"`
}

type wireTag struct {
	Type          string `json:"type"`
	IsPlaceholder bool   `json:"isPlaceholder"`
}

type versionHeader struct {
	FormatVersion *int `json:"formatVersion"`
}

// EncodeElements renders elements in the current format.
func EncodeElements(elements Elements) ([]byte, error) {
	wire := wireElements{
		FormatVersion: CurrentFormatVersion,
		Objects:       make([]wireObject, 0, len(elements.Objects)),
	}
	for index, object := range elements.Objects {
		if err := object.Validate(); err != nil {
			return nil, fmt.Errorf("templates: object %d: %w", index, err)
		}
		wire.Objects = append(wire.Objects, toWire(object))
	}
	return json.Marshal(wire)
}

// DecodeElements parses persisted elements. A JSON string holding the document
// is accepted for legacy rows; anything unparseable is ErrCorruptTemplateDocument
// and no partial result is returned.
func DecodeElements(raw []byte) (Elements, error) {
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return Elements{}, fmt.Errorf("%w: empty document", ErrCorruptTemplateDocument)
	}
	if payload[0] == '"' {
		var encoded string
		if err := json.Unmarshal(payload, &encoded); err != nil {
			return Elements{}, fmt.Errorf("%w: %v", ErrCorruptTemplateDocument, err)
		}
		payload = bytes.TrimSpace([]byte(encoded))
		if len(payload) == 0 || payload[0] != '{' {
			return Elements{}, fmt.Errorf("%w: string does not contain a document", ErrCorruptTemplateDocument)
		}
	}
	if payload[0] != '{' {
		return Elements{}, fmt.Errorf("%w: expected a JSON object", ErrCorruptTemplateDocument)
	}

	var header versionHeader
	if err := json.Unmarshal(payload, &header); err != nil {
		return Elements{}, fmt.Errorf("%w: %v", ErrCorruptTemplateDocument, err)
	}

	switch {
	case header.FormatVersion == nil:
		return decodeLegacy(payload)
	case *header.FormatVersion == CurrentFormatVersion:
		return decodeCurrent(payload)
	case *header.FormatVersion == FormatVersionLegacy:
		return decodeLegacy(payload)
	case *header.FormatVersion > CurrentFormatVersion:
		return Elements{}, fmt.Errorf("%w: %d", ErrUnsupportedFormatVersion, *header.FormatVersion)
	default:
		return Elements{}, fmt.Errorf("%w: format version %d", ErrCorruptTemplateDocument, *header.FormatVersion)
	}
}

func decodeCurrent(payload []byte) (Elements, error) {
	var wire wireElements
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Elements{}, fmt.Errorf("%w: %v", ErrCorruptTemplateDocument, err)
	}
	objects := make([]canvas.Object, 0, len(wire.Objects))
	seen := make(map[string]struct{}, len(wire.Objects))
	for index, item := range wire.Objects {
		if _, duplicate := seen[item.ID]; duplicate {
			return Elements{}, fmt.Errorf("%w: object %d: duplicate id %q", ErrCorruptTemplateDocument, index, item.ID)
		}
		seen[item.ID] = struct{}{}
		object, err := fromWire(item)
		if err != nil {
			return Elements{}, fmt.Errorf("%w: object %d: %w", ErrCorruptTemplateDocument, index, err)
		}
		objects = append(objects, object)
	}
	return Elements{FormatVersion: CurrentFormatVersion, Objects: objects}, nil
}

func toWire(object canvas.Object) wireObject {
	wire := wireObject{
		ID:         object.ID().String(),
		Kind:       object.Kind(),
		X:          object.Transform.X,
		Y:          object.Transform.Y,
		Rotation:   object.Transform.Rotation,
		ScaleX:     object.Transform.ScaleX,
		ScaleY:     object.Transform.ScaleY,
		Selectable: object.Capabilities.Selectable,
		Resizable:  object.Capabilities.Resizable,
		Rotatable:  object.Capabilities.Rotatable,
	}
	switch object.Kind() {
	case canvas.KindText:
		text, _ := object.Text()
		wire.Text = textToWire(text)
	case canvas.KindRectangle, canvas.KindCircle:
		shape, _ := object.Shape()
		wire.Shape = shapeToWire(shape)
	case canvas.KindImage:
		image, _ := object.Image()
		wire.Image = &wireImage{Source: image.Source, NaturalWidth: image.NaturalWidth, NaturalHeight: image.NaturalHeight}
	case canvas.KindPlaceholderGroup:
		placeholder, _ := object.Placeholder()
		tag := placeholder.Tag()
		wire.Shape = shapeToWire(placeholder.Shape)
		wire.Label = textToWire(placeholder.Label)
		wire.Data = &wireTag{Type: string(tag.SlotType), IsPlaceholder: tag.IsPlaceholder}
	}
	return wire
}

func fromWire(wire wireObject) (canvas.Object, error) {
	id, err := canvas.NewObjectID(wire.ID)
	if err != nil {
		return canvas.Object{}, err
	}
	transform := canvas.Transform{X: wire.X, Y: wire.Y, Rotation: wire.Rotation, ScaleX: wire.ScaleX, ScaleY: wire.ScaleY}

	var object canvas.Object
	switch wire.Kind {
	case canvas.KindText:
		if wire.Text == nil {
			return canvas.Object{}, fmt.Errorf("%w: text payload missing", canvas.ErrInvalidObject)
		}
		object, err = canvas.NewText(id, transform, textFromWire(wire.Text))
	case canvas.KindRectangle:
		if wire.Shape == nil {
			return canvas.Object{}, fmt.Errorf("%w: shape payload missing", canvas.ErrInvalidObject)
		}
		object, err = canvas.NewRectangle(id, transform, shapeFromWire(wire.Shape))
	case canvas.KindCircle:
		if wire.Shape == nil {
			return canvas.Object{}, fmt.Errorf("%w: shape payload missing", canvas.ErrInvalidObject)
		}
		object, err = canvas.NewCircle(id, transform, shapeFromWire(wire.Shape))
	case canvas.KindImage:
		if wire.Image == nil {
			return canvas.Object{}, fmt.Errorf("%w: image payload missing", canvas.ErrInvalidObject)
		}
		object, err = canvas.NewImage(id, transform, canvas.ImageSpec{
			Source:        wire.Image.Source,
			NaturalWidth:  wire.Image.NaturalWidth,
			NaturalHeight: wire.Image.NaturalHeight,
		})
	case canvas.KindPlaceholderGroup:
		if wire.Data == nil || !wire.Data.IsPlaceholder {
			return canvas.Object{}, fmt.Errorf("%w: placeholder tag missing", canvas.ErrInvalidPlaceholderKind)
		}
		object, err = canvas.NewPlaceholder(id, transform, canvas.SlotType(wire.Data.Type), shapeFromWire(wire.Shape), textFromWire(wire.Label))
	default:
		return canvas.Object{}, fmt.Errorf("%w: unknown kind %q", canvas.ErrInvalidObject, wire.Kind)
	}
	if err != nil {
		return canvas.Object{}, err
	}
	object.Capabilities = canvas.Capabilities{
		Selectable: wire.Selectable,
		Resizable:  wire.Resizable,
		Rotatable:  wire.Rotatable,
	}
	return object, nil
}

func textToWire(spec canvas.TextSpec) *wireText {
	return &wireText{Content: spec.Content, FontFamily: spec.FontFamily, FontSize: spec.FontSize, Fill: spec.Fill}
}

func textFromWire(wire *wireText) canvas.TextSpec {
	if wire == nil {
		return canvas.TextSpec{}
	}
	return canvas.TextSpec{Content: wire.Content, FontFamily: wire.FontFamily, FontSize: wire.FontSize, Fill: wire.Fill}
}

func shapeToWire(spec canvas.ShapeSpec) *wireShape {
	return &wireShape{
		Width:       spec.Width,
		Height:      spec.Height,
		Radius:      spec.Radius,
		Stroke:      spec.Stroke,
		StrokeWidth: spec.StrokeWidth,
		Fill:        spec.Fill,
	}
}

func shapeFromWire(wire *wireShape) canvas.ShapeSpec {
	if wire == nil {
		return canvas.ShapeSpec{}
	}
	return canvas.ShapeSpec{
		Width:       wire.Width,
		Height:      wire.Height,
		Radius:      wire.Radius,
		Stroke:      wire.Stroke,
		StrokeWidth: wire.StrokeWidth,
		Fill:        wire.Fill,
	}
}

// Validate checks document metadata and every object.
func (d Document) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidTemplate)
	}
	if strings.TrimSpace(d.CategoryID) == "" {
		return fmt.Errorf("%w: category required", ErrInvalidTemplate)
	}
	seen := make(map[canvas.ObjectID]struct{}, len(d.Elements.Objects))
	for index, object := range d.Elements.Objects {
		if err := object.Validate(); err != nil {
			return fmt.Errorf("%w: object %d: %w", ErrInvalidTemplate, index, err)
		}
		if _, ok := seen[object.ID()]; ok {
			return fmt.Errorf("%w: object %d: duplicate id %s", ErrInvalidTemplate, index, object.ID())
		}
		seen[object.ID()] = struct{}{}
	}
	return nil
}
