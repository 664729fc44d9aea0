package canvas

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates the visual element types a template can contain.
type Kind string

const (
	// KindText is a single run of text.
	KindText Kind = "text"
	// KindRectangle is an axis-aligned rectangle before transform.
	KindRectangle Kind = "rectangle"
	// KindCircle is a circle described by its radius.
	KindCircle Kind = "circle"
	// KindImage is a raster image referenced by data URI or URL.
	KindImage Kind = "image"
	// KindPlaceholderGroup marks a slot the customer must fill.
	KindPlaceholderGroup Kind = "placeholder-group"
)

// SlotType enumerates the content a placeholder slot accepts.
type SlotType string

const (
	SlotTypeImage SlotType = "image"
	SlotTypeLogo  SlotType = "logo"
)

// FillNone disables filling a shape.
const FillNone = "none"

const maxObjectIDLength = 190

var (
	// ErrInvalidPlaceholderKind indicates that a placeholder was constructed without a usable slot type.
	ErrInvalidPlaceholderKind = errors.New("canvas: invalid placeholder kind")
	// ErrInvalidObject indicates that an object is missing required data for its kind.
	ErrInvalidObject = errors.New("canvas: invalid object")
	// ErrInvalidObjectID indicates that an object identifier is empty or exceeds storage bounds.
	ErrInvalidObjectID = errors.New("canvas: invalid object id")
)

// ObjectID is the stable identity of an object across edits and round-trips.
type ObjectID string

// NewObjectID validates raw input and returns an ObjectID.
func NewObjectID(rawInput string) (ObjectID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidObjectID)
	}
	if len(trimmed) > maxObjectIDLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidObjectID, maxObjectIDLength)
	}
	return ObjectID(trimmed), nil
}

// String returns the underlying identifier.
func (id ObjectID) String() string {
	return string(id)
}

// ParseSlotType validates a raw slot type.
func ParseSlotType(rawInput string) (SlotType, error) {
	switch SlotType(strings.ToLower(strings.TrimSpace(rawInput))) {
	case SlotTypeImage:
		return SlotTypeImage, nil
	case SlotTypeLogo:
		return SlotTypeLogo, nil
	case "":
		return "", fmt.Errorf("%w: slot type required", ErrInvalidPlaceholderKind)
	default:
		return "", fmt.Errorf("%w: unknown slot type %q", ErrInvalidPlaceholderKind, rawInput)
	}
}

// Transform positions an object on the canvas.
type Transform struct {
	X        float64
	Y        float64
	Rotation float64
	ScaleX   float64
	ScaleY   float64
}

// At returns an unrotated, unscaled transform at the given position.
func At(x, y float64) Transform {
	return Transform{X: x, Y: y, ScaleX: 1, ScaleY: 1}
}

func (t Transform) normalized() Transform {
	if t.ScaleX == 0 {
		t.ScaleX = 1
	}
	if t.ScaleY == 0 {
		t.ScaleY = 1
	}
	return t
}

// Capabilities describes what an editor may do with an object.
type Capabilities struct {
	Selectable bool
	Resizable  bool
	Rotatable  bool
}

// Editable grants every editing capability.
func Editable() Capabilities {
	return Capabilities{Selectable: true, Resizable: true, Rotatable: true}
}

// Locked is used while a snapshot is rendered for a preview.
func Locked() Capabilities {
	return Capabilities{}
}

// TextSpec holds the text variant payload.
type TextSpec struct {
	Content    string
	FontFamily string
	FontSize   float64
	Fill       string
}

// ShapeSpec holds the rectangle and circle payload. Width and Height apply to
// rectangles, Radius to circles.
type ShapeSpec struct {
	Width       float64
	Height      float64
	Radius      float64
	Stroke      string
	StrokeWidth float64
	Fill        string
}

// ImageSpec holds the image payload.
type ImageSpec struct {
	Source        string
	NaturalWidth  int
	NaturalHeight int
}

// PlaceholderTag is the data tag that marks a placeholder-group. It is the only
// part of a placeholder that survives round-trips verbatim.
type PlaceholderTag struct {
	SlotType      SlotType
	IsPlaceholder bool
}

// PlaceholderSpec holds the placeholder-group payload. Shape and Label are the
// visual sub-parts and may be re-derived.
type PlaceholderSpec struct {
	tag   PlaceholderTag
	Shape ShapeSpec
	Label TextSpec
}

// Tag returns a copy of the placeholder data tag.
func (spec PlaceholderSpec) Tag() PlaceholderTag {
	return spec.tag
}

// Object is a single visual element. Exactly one variant payload is set and it
// always agrees with Kind.
type Object struct {
	id           ObjectID
	kind         Kind
	Transform    Transform
	Capabilities Capabilities

	text        *TextSpec
	shape       *ShapeSpec
	image       *ImageSpec
	placeholder *PlaceholderSpec
}

// NewText constructs a text object.
func NewText(id ObjectID, transform Transform, spec TextSpec) (Object, error) {
	id, err := requireID(id)
	if err != nil {
		return Object{}, err
	}
	if spec.FontSize < 0 {
		return Object{}, fmt.Errorf("%w: negative font size", ErrInvalidObject)
	}
	payload := spec
	return Object{id: id, kind: KindText, Transform: transform.normalized(), Capabilities: Editable(), text: &payload}, nil
}

// NewRectangle constructs a rectangle.
func NewRectangle(id ObjectID, transform Transform, spec ShapeSpec) (Object, error) {
	id, err := requireID(id)
	if err != nil {
		return Object{}, err
	}
	if spec.Width < 0 || spec.Height < 0 || spec.StrokeWidth < 0 {
		return Object{}, fmt.Errorf("%w: negative rectangle dimensions", ErrInvalidObject)
	}
	payload := spec
	return Object{id: id, kind: KindRectangle, Transform: transform.normalized(), Capabilities: Editable(), shape: &payload}, nil
}

// NewCircle constructs a circle.
func NewCircle(id ObjectID, transform Transform, spec ShapeSpec) (Object, error) {
	id, err := requireID(id)
	if err != nil {
		return Object{}, err
	}
	if spec.Radius < 0 || spec.StrokeWidth < 0 {
		return Object{}, fmt.Errorf("%w: negative circle dimensions", ErrInvalidObject)
	}
	payload := spec
	return Object{id: id, kind: KindCircle, Transform: transform.normalized(), Capabilities: Editable(), shape: &payload}, nil
}

// NewImage constructs an image object.
func NewImage(id ObjectID, transform Transform, spec ImageSpec) (Object, error) {
	id, err := requireID(id)
	if err != nil {
		return Object{}, err
	}
	if strings.TrimSpace(spec.Source) == "" {
		return Object{}, fmt.Errorf("%w: image source required", ErrInvalidObject)
	}
	if spec.NaturalWidth < 0 || spec.NaturalHeight < 0 {
		return Object{}, fmt.Errorf("%w: negative natural size", ErrInvalidObject)
	}
	payload := spec
	return Object{id: id, kind: KindImage, Transform: transform.normalized(), Capabilities: Editable(), image: &payload}, nil
}

// NewPlaceholder constructs a placeholder-group. The slot type is mandatory.
func NewPlaceholder(id ObjectID, transform Transform, slotType SlotType, shape ShapeSpec, label TextSpec) (Object, error) {
	id, err := requireID(id)
	if err != nil {
		return Object{}, err
	}
	parsed, err := ParseSlotType(string(slotType))
	if err != nil {
		return Object{}, err
	}
	payload := PlaceholderSpec{
		tag:   PlaceholderTag{SlotType: parsed, IsPlaceholder: true},
		Shape: shape,
		Label: label,
	}
	return Object{id: id, kind: KindPlaceholderGroup, Transform: transform.normalized(), Capabilities: Editable(), placeholder: &payload}, nil
}

func requireID(id ObjectID) (ObjectID, error) {
	return NewObjectID(id.String())
}

// ID returns the stable object identity.
func (o Object) ID() ObjectID {
	return o.id
}

// Kind returns the variant discriminator.
func (o Object) Kind() Kind {
	return o.kind
}

// IsPlaceholder reports whether the object defines a required field.
func (o Object) IsPlaceholder() bool {
	return o.kind == KindPlaceholderGroup && o.placeholder != nil && o.placeholder.tag.IsPlaceholder
}

// Text returns the text payload.
func (o Object) Text() (TextSpec, bool) {
	if o.text == nil {
		return TextSpec{}, false
	}
	return *o.text, true
}

// Shape returns the rectangle or circle payload.
func (o Object) Shape() (ShapeSpec, bool) {
	if o.shape == nil {
		return ShapeSpec{}, false
	}
	return *o.shape, true
}

// Image returns the image payload.
func (o Object) Image() (ImageSpec, bool) {
	if o.image == nil {
		return ImageSpec{}, false
	}
	return *o.image, true
}

// Placeholder returns the placeholder payload.
func (o Object) Placeholder() (PlaceholderSpec, bool) {
	if o.placeholder == nil {
		return PlaceholderSpec{}, false
	}
	return *o.placeholder, true
}

// WithImage returns a copy carrying the given image payload. The kind must be image.
func (o Object) WithImage(spec ImageSpec) (Object, error) {
	if o.kind != KindImage {
		return Object{}, fmt.Errorf("%w: %s object has no image payload", ErrInvalidObject, o.kind)
	}
	payload := spec
	o.image = &payload
	return o, nil
}

// WithText returns a copy carrying the given text payload. The kind must be text.
func (o Object) WithText(spec TextSpec) (Object, error) {
	if o.kind != KindText {
		return Object{}, fmt.Errorf("%w: %s object has no text payload", ErrInvalidObject, o.kind)
	}
	payload := spec
	o.text = &payload
	return o, nil
}

// Validate checks that the kind and its payload agree.
func (o Object) Validate() error {
	if _, err := requireID(o.id); err != nil {
		return err
	}
	set := 0
	for _, present := range []bool{o.text != nil, o.shape != nil, o.image != nil, o.placeholder != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: %s object carries %d payloads", ErrInvalidObject, o.kind, set)
	}
	switch o.kind {
	case KindText:
		if o.text == nil {
			return fmt.Errorf("%w: text payload missing", ErrInvalidObject)
		}
	case KindRectangle, KindCircle:
		if o.shape == nil {
			return fmt.Errorf("%w: shape payload missing", ErrInvalidObject)
		}
	case KindImage:
		if o.image == nil {
			return fmt.Errorf("%w: image payload missing", ErrInvalidObject)
		}
	case KindPlaceholderGroup:
		if o.placeholder == nil || !o.placeholder.tag.IsPlaceholder {
			return fmt.Errorf("%w: placeholder tag missing", ErrInvalidPlaceholderKind)
		}
		if _, err := ParseSlotType(string(o.placeholder.tag.SlotType)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidObject, o.kind)
	}
	return nil
}
