package preview

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/assets"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customization"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/templates"
)

const (
	defaultWidth     = 800
	defaultHeight    = 800
	mediaTypeSVG     = "image/svg+xml"
	mediaTypePNG     = "image/png"
	brokenImageFill  = "#e0e0e0"
	brokenImageMark  = "#9e9e9e"
	placeholderFill  = "#f4f4f4"
	placeholderColor = "#8a8a8a"
)

// ErrNothingToRender indicates a missing or disposed graph.
var ErrNothingToRender = errors.New("preview: nothing to render")

// Image is a rendered preview.
type Image struct {
	Bytes       []byte
	ContentType string
}

// DataURI embeds the preview for storage on a customization record.
func (i Image) DataURI() string {
	return assets.EncodeDataURI(i.ContentType, i.Bytes)
}

// Renderer turns a graph and the customer's answers into a preview image.
type Renderer interface {
	Render(ctx context.Context, graph *canvas.Graph, record customization.Record) (Image, error)
}

// SVGComposer draws a graph as an SVG document. Answered placeholders show the
// customer's image inside the slot bounds; custom fields are drawn on top.
type SVGComposer struct {
	width  float64
	height float64
}

// NewSVGComposer constructs a composer for the given artboard size. Non-positive
// dimensions fall back to 800x800.
func NewSVGComposer(width, height int) *SVGComposer {
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	return &SVGComposer{width: float64(width), height: float64(height)}
}

// Size reports the artboard dimensions.
func (c *SVGComposer) Size() (int, int) {
	return int(c.width), int(c.height)
}

// Render implements Renderer.
func (c *SVGComposer) Render(ctx context.Context, graph *canvas.Graph, record customization.Record) (Image, error) {
	document, err := c.Compose(ctx, graph, record)
	if err != nil {
		return Image{}, err
	}
	return Image{Bytes: document, ContentType: mediaTypeSVG}, nil
}

// Compose returns the SVG document bytes.
func (c *SVGComposer) Compose(ctx context.Context, graph *canvas.Graph, record customization.Record) ([]byte, error) {
	if graph == nil || graph.Disposed() {
		return nil, ErrNothingToRender
	}
	objects, err := graph.Objects()
	if err != nil {
		return nil, err
	}
	answers := make(map[string]string, len(record.RequiredFields))
	for _, field := range record.RequiredFields {
		answers[field.FieldID] = strings.TrimSpace(field.Value)
	}

	var elements []string
	for _, object := range objects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		elements = append(elements, c.renderObject(graph, object, answers))
	}
	for _, field := range record.CustomFields {
		elements = append(elements, renderCustomField(field))
	}

	var builder strings.Builder
	builder.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	builder.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		formatFloat(c.width), formatFloat(c.height), formatFloat(c.width), formatFloat(c.height)))
	builder.WriteString("\n")
	for _, element := range elements {
		if element == "" {
			continue
		}
		builder.WriteString("  ")
		builder.WriteString(element)
		builder.WriteString("\n")
	}
	builder.WriteString(`</svg>`)
	return []byte(builder.String()), nil
}

func (c *SVGComposer) renderObject(graph *canvas.Graph, object canvas.Object, answers map[string]string) string {
	transform := transformAttr(object.Transform)
	switch object.Kind() {
	case canvas.KindText:
		text, _ := object.Text()
		return fmt.Sprintf(`<g id="%s" transform="%s">%s</g>`, attr(object.ID().String()), transform, renderText(text))
	case canvas.KindRectangle:
		shape, _ := object.Shape()
		return fmt.Sprintf(`<g id="%s" transform="%s">%s</g>`, attr(object.ID().String()), transform, renderRect(shape))
	case canvas.KindCircle:
		shape, _ := object.Shape()
		return fmt.Sprintf(`<g id="%s" transform="%s">%s</g>`, attr(object.ID().String()), transform, renderCircle(shape))
	case canvas.KindImage:
		spec, _ := object.Image()
		return fmt.Sprintf(`<g id="%s" transform="%s">%s</g>`, attr(object.ID().String()), transform, renderImage(graph, object.ID(), spec))
	case canvas.KindPlaceholderGroup:
		placeholder, _ := object.Placeholder()
		answer := answers[templates.FieldID(object.ID())]
		return fmt.Sprintf(`<g id="%s" data-slot="%s" transform="%s">%s</g>`,
			attr(object.ID().String()), attr(string(placeholder.Tag().SlotType)), transform, renderPlaceholder(placeholder, answer))
	default:
		return ""
	}
}

func renderText(text canvas.TextSpec) string {
	var attrs []string
	if text.FontFamily != "" {
		attrs = append(attrs, fmt.Sprintf(`font-family="%s"`, attr(text.FontFamily)))
	}
	if text.FontSize > 0 {
		attrs = append(attrs, fmt.Sprintf(`font-size="%s"`, formatFloat(text.FontSize)))
	}
	attrs = append(attrs, fmt.Sprintf(`fill="%s"`, attr(colourOr(text.Fill, "#000000"))))
	return fmt.Sprintf(`<text dominant-baseline="hanging" %s>%s</text>`, strings.Join(attrs, " "), html.EscapeString(text.Content))
}

func renderRect(shape canvas.ShapeSpec) string {
	return fmt.Sprintf(`<rect width="%s" height="%s" %s/>`, formatFloat(shape.Width), formatFloat(shape.Height), paintAttrs(shape))
}

func renderCircle(shape canvas.ShapeSpec) string {
	return fmt.Sprintf(`<circle cx="%s" cy="%s" r="%s" %s/>`,
		formatFloat(shape.Radius), formatFloat(shape.Radius), formatFloat(shape.Radius), paintAttrs(shape))
}

func renderImage(graph *canvas.Graph, id canvas.ObjectID, spec canvas.ImageSpec) string {
	width, height := float64(spec.NaturalWidth), float64(spec.NaturalHeight)
	data, attached := graph.ImageData(id)
	if attached && data.Broken {
		return brokenMarker(width, height)
	}
	href := spec.Source
	if attached && len(data.Bytes) > 0 {
		href = assets.EncodeDataURI(data.ContentType, data.Bytes)
		if width == 0 && height == 0 {
			width, height = float64(data.Width), float64(data.Height)
		}
	}
	if width == 0 || height == 0 {
		return fmt.Sprintf(`<image href="%s"/>`, attr(href))
	}
	return fmt.Sprintf(`<image href="%s" width="%s" height="%s"/>`, attr(href), formatFloat(width), formatFloat(height))
}

func brokenMarker(width, height float64) string {
	if width == 0 || height == 0 {
		width, height = 64, 64
	}
	return fmt.Sprintf(`<g class="broken-image"><rect width="%s" height="%s" fill="%s"/><path d="M0 0L%s %sM%s 0L0 %s" stroke="%s" stroke-width="2"/></g>`,
		formatFloat(width), formatFloat(height), brokenImageFill,
		formatFloat(width), formatFloat(height), formatFloat(width), formatFloat(height), brokenImageMark)
}

func renderPlaceholder(placeholder canvas.PlaceholderSpec, answer string) string {
	width, height := slotBounds(placeholder.Shape)
	if answer != "" {
		return fmt.Sprintf(`<image href="%s" width="%s" height="%s" preserveAspectRatio="xMidYMid meet"/>`,
			attr(answer), formatFloat(width), formatFloat(height))
	}

	shape := placeholder.Shape
	if shape.Fill == "" {
		shape.Fill = placeholderFill
	}
	if shape.Stroke == "" {
		shape.Stroke = placeholderColor
		shape.StrokeWidth = 1
	}
	var outline string
	if shape.Radius > 0 && shape.Width == 0 {
		outline = renderCircle(shape)
	} else {
		outline = renderRect(shape)
	}
	label := placeholder.Label
	if label.Content == "" {
		label.Content = strings.ToUpper(string(placeholder.Tag().SlotType))
	}
	if label.Fill == "" {
		label.Fill = placeholderColor
	}
	return outline + renderText(label)
}

func slotBounds(shape canvas.ShapeSpec) (float64, float64) {
	if shape.Radius > 0 && shape.Width == 0 {
		return shape.Radius * 2, shape.Radius * 2
	}
	return shape.Width, shape.Height
}

func renderCustomField(field customization.CustomField) string {
	props := field.Properties
	transform := transformAttr(canvas.Transform{X: props.X, Y: props.Y, Rotation: props.Rotation, ScaleX: props.ScaleX, ScaleY: props.ScaleY})
	switch field.Type {
	case customization.FieldTypeText:
		text := canvas.TextSpec{Content: field.Content, FontFamily: props.Font, FontSize: props.FontSize, Fill: props.Fill}
		return fmt.Sprintf(`<g data-field="%s" transform="%s">%s</g>`, attr(field.FieldID), transform, renderText(text))
	case customization.FieldTypeImage:
		return fmt.Sprintf(`<g data-field="%s" transform="%s"><image href="%s"/></g>`, attr(field.FieldID), transform, attr(field.Content))
	default:
		return ""
	}
}

func paintAttrs(shape canvas.ShapeSpec) string {
	attrs := []string{fmt.Sprintf(`fill="%s"`, attr(colourOr(shape.Fill, canvas.FillNone)))}
	if shape.Stroke != "" && shape.StrokeWidth > 0 {
		attrs = append(attrs,
			fmt.Sprintf(`stroke="%s"`, attr(shape.Stroke)),
			fmt.Sprintf(`stroke-width="%s"`, formatFloat(shape.StrokeWidth)))
	}
	return strings.Join(attrs, " ")
}

func transformAttr(transform canvas.Transform) string {
	scaleX, scaleY := transform.ScaleX, transform.ScaleY
	if scaleX == 0 {
		scaleX = 1
	}
	if scaleY == 0 {
		scaleY = 1
	}
	return fmt.Sprintf("translate(%s %s) rotate(%s) scale(%s %s)",
		formatFloat(transform.X), formatFloat(transform.Y), formatFloat(transform.Rotation),
		formatFloat(scaleX), formatFloat(scaleY))
}

func colourOr(colour, fallback string) string {
	if strings.TrimSpace(colour) == "" {
		return fallback
	}
	return colour
}

func attr(value string) string {
	return html.EscapeString(value)
}

func formatFloat(val float64) string {
	return strconv.FormatFloat(val, 'f', -1, 64)
}
