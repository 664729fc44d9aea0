package templates

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customization"
)

const legacyDocumentJSON = `{"version":"5.3.0","objects":[
	{"type":"rect","left":0,"top":0,"width":400,"height":300,"fill":"#ffffff","stroke":null,"strokeWidth":1},
	{"type":"group","left":40,"top":60,"angle":0,"scaleX":1,"scaleY":1,"hasControls":false,"lockRotation":true,
	 "data":{"type":"logo","isPlaceholder":true},
	 "objects":[
		{"type":"rect","width":120,"height":80,"fill":"transparent","stroke":"#888888","strokeWidth":2},
		{"type":"text","text":"Logo","fontSize":14,"fill":"#888888"}
	 ]},
	{"type":"textbox","left":20,"top":250,"text":"Fresh Roast","fontFamily":"Georgia","fontSize":28,"fill":"#3a2a1a"}
]}`

type stubLoader struct {
	load func(ctx context.Context, source string) (canvas.ImageData, error)
}

func (l stubLoader) Load(ctx context.Context, source string) (canvas.ImageData, error) {
	return l.load(ctx, source)
}

func sizedLoader(width, height int) stubLoader {
	return stubLoader{load: func(context.Context, string) (canvas.ImageData, error) {
		return canvas.ImageData{Bytes: []byte{1}, ContentType: "image/png", Width: width, Height: height}, nil
	}}
}

func newTestDeserializer(t *testing.T, loader ImageLoader, logger *zap.Logger) *Deserializer {
	t.Helper()
	deserializer, err := NewDeserializer(DeserializerConfig{Loader: loader, Logger: logger})
	require.NoError(t, err)
	return deserializer
}

func mustObject(t *testing.T) func(canvas.Object, error) canvas.Object {
	return func(object canvas.Object, err error) canvas.Object {
		t.Helper()
		require.NoError(t, err)
		return object
	}
}

func sampleElements(t *testing.T) Elements {
	t.Helper()
	imageSlot := mustObject(t)(canvas.NewPlaceholder("slot-photo", canvas.At(100, 100), canvas.SlotTypeImage,
		canvas.ShapeSpec{Width: 200, Height: 150, Stroke: "#999999", StrokeWidth: 1, Fill: canvas.FillNone},
		canvas.TextSpec{Content: "Your photo", FontSize: 12}))
	imageSlot.Capabilities = canvas.Locked()
	return Elements{
		FormatVersion: CurrentFormatVersion,
		Objects: []canvas.Object{
			mustObject(t)(canvas.NewRectangle("background", canvas.At(0, 0), canvas.ShapeSpec{Width: 400, Height: 300, Fill: "#f5efe6"})),
			mustObject(t)(canvas.NewImage("pattern", canvas.At(5, 5), canvas.ImageSpec{Source: "https://cdn.example.com/pattern.png"})),
			imageSlot,
			mustObject(t)(canvas.NewPlaceholder("slot-logo", canvas.Transform{X: 300, Y: 20, Rotation: 15, ScaleX: 0.5, ScaleY: 0.5}, canvas.SlotTypeLogo,
				canvas.ShapeSpec{Radius: 40, Fill: canvas.FillNone}, canvas.TextSpec{Content: "Logo"})),
			mustObject(t)(canvas.NewText("headline", canvas.At(20, 250), canvas.TextSpec{Content: "Fresh Roast", FontFamily: "Georgia", FontSize: 28, Fill: "#3a2a1a"})),
			mustObject(t)(canvas.NewCircle("seal", canvas.At(350, 250), canvas.ShapeSpec{Radius: 30, Stroke: "#000000", StrokeWidth: 2, Fill: "#c0392b"})),
		},
	}
}

func placeholderTags(t *testing.T, objects []canvas.Object) []canvas.PlaceholderTag {
	t.Helper()
	var tags []canvas.PlaceholderTag
	for _, object := range objects {
		if placeholder, ok := object.Placeholder(); ok {
			tags = append(tags, placeholder.Tag())
		}
	}
	return tags
}

func objectIDs(objects []canvas.Object) []canvas.ObjectID {
	ids := make([]canvas.ObjectID, 0, len(objects))
	for _, object := range objects {
		ids = append(ids, object.ID())
	}
	return ids
}

func TestResolveImageAndLogoPlaceholders(t *testing.T) {
	fields := ResolveRequiredFields(sampleElements(t))

	require.Len(t, fields, 2)
	assert.Equal(t, customization.SlotTypeImage, fields[0].SlotType)
	assert.Equal(t, customization.SlotTypeLogo, fields[1].SlotType)
	assert.Equal(t, "field-slot-photo", fields[0].FieldID)
	assert.Empty(t, fields[0].Value)

	id, ok := ObjectIDFromFieldID(fields[1].FieldID)
	require.True(t, ok)
	assert.Equal(t, canvas.ObjectID("slot-logo"), id)
}

func TestResolveEmptyTemplateYieldsNoFields(t *testing.T) {
	fields := ResolveRequiredFields(Elements{FormatVersion: CurrentFormatVersion})
	assert.NotNil(t, fields)
	assert.Empty(t, fields)
}

func TestResolutionIsStableAcrossCallsAndEncoding(t *testing.T) {
	elements := sampleElements(t)
	first := ResolveRequiredFields(elements)
	second := ResolveRequiredFields(elements)
	assert.Equal(t, first, second)

	encoded, err := EncodeElements(elements)
	require.NoError(t, err)
	decoded, err := DecodeElements(encoded)
	require.NoError(t, err)
	assert.Equal(t, first, ResolveRequiredFields(decoded))
}

func TestRoundTripPreservesTagsOrderAndStyle(t *testing.T) {
	deserializer := newTestDeserializer(t, sizedLoader(64, 32), nil)
	original := sampleElements(t)
	encoded, err := EncodeElements(original)
	require.NoError(t, err)

	graph, err := deserializer.Deserialize(context.Background(), encoded)
	require.NoError(t, err)
	defer graph.Dispose()
	serialized, err := Serialize(graph)
	require.NoError(t, err)
	assert.Equal(t, CurrentFormatVersion, serialized.FormatVersion)

	reencoded, err := EncodeElements(serialized)
	require.NoError(t, err)
	again, err := deserializer.Deserialize(context.Background(), reencoded)
	require.NoError(t, err)
	defer again.Dispose()
	roundTripped, err := again.Objects()
	require.NoError(t, err)

	assert.Equal(t, objectIDs(original.Objects), objectIDs(roundTripped))
	assert.Equal(t, placeholderTags(t, original.Objects), placeholderTags(t, roundTripped))

	headline, err := again.Lookup("headline")
	require.NoError(t, err)
	text, ok := headline.Text()
	require.True(t, ok)
	assert.Equal(t, "Georgia", text.FontFamily)
	assert.InDelta(t, 28.0, text.FontSize, 0)

	logo, err := again.Lookup("slot-logo")
	require.NoError(t, err)
	assert.InDelta(t, 15.0, logo.Transform.Rotation, 0)
	assert.InDelta(t, 0.5, logo.Transform.ScaleX, 0)

	final, err := EncodeElements(Elements{Objects: roundTripped})
	require.NoError(t, err)
	assert.JSONEq(t, string(reencoded), string(final))
}

func TestDeserializeRestoresPlaceholderEditability(t *testing.T) {
	deserializer := newTestDeserializer(t, sizedLoader(1, 1), nil)
	encoded, err := EncodeElements(sampleElements(t))
	require.NoError(t, err)

	graph, err := deserializer.Deserialize(context.Background(), encoded)
	require.NoError(t, err)
	defer graph.Dispose()

	slot, err := graph.Lookup("slot-photo")
	require.NoError(t, err)
	assert.Equal(t, canvas.Editable(), slot.Capabilities)
}

func TestDeserializeMalformedStringIsCorrupt(t *testing.T) {
	deserializer := newTestDeserializer(t, sizedLoader(1, 1), nil)
	tests := map[string]string{
		"malformed-string": `"{\"objects\": [ {\"type\": "`,
		"string-of-text":   `"not a document"`,
		"array":            `[1,2,3]`,
		"empty":            ``,
		"broken-json":      `{"formatVersion": 2, "objects": [`,
		"unknown-kind":     `{"formatVersion":2,"objects":[{"id":"a","kind":"polygon"}]}`,
		"duplicate-ids":    `{"formatVersion":2,"objects":[{"id":"a","kind":"text","text":{"content":"x"}},{"id":"a","kind":"text","text":{"content":"y"}}]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			graph, err := deserializer.Deserialize(context.Background(), []byte(raw))
			require.ErrorIs(t, err, ErrCorruptTemplateDocument)
			assert.Nil(t, graph)
		})
	}
}

func TestDecodeRejectsPlaceholderWithoutSlotType(t *testing.T) {
	raw := `{"formatVersion":2,"objects":[{"id":"p","kind":"placeholder-group","data":{"type":"","isPlaceholder":true}}]}`
	_, err := DecodeElements([]byte(raw))
	require.ErrorIs(t, err, ErrCorruptTemplateDocument)
	require.ErrorIs(t, err, canvas.ErrInvalidPlaceholderKind)
}

func TestDecodeRejectsFutureFormatVersions(t *testing.T) {
	_, err := DecodeElements([]byte(`{"formatVersion":9,"objects":[]}`))
	require.ErrorIs(t, err, ErrUnsupportedFormatVersion)
}

func TestDecodeMigratesLegacyStringDocument(t *testing.T) {
	wrapped, err := json.Marshal(legacyDocumentJSON)
	require.NoError(t, err)

	elements, err := DecodeElements(wrapped)
	require.NoError(t, err)
	assert.Equal(t, CurrentFormatVersion, elements.FormatVersion)
	require.Len(t, elements.Objects, 3)
	assert.Equal(t, []canvas.ObjectID{"obj-1", "obj-2", "obj-3"}, objectIDs(elements.Objects))

	background, ok := elements.Objects[0].Shape()
	require.True(t, ok)
	assert.Equal(t, "#ffffff", background.Fill)
	assert.Empty(t, background.Stroke)

	slot := elements.Objects[1]
	require.True(t, slot.IsPlaceholder())
	placeholder, _ := slot.Placeholder()
	assert.Equal(t, canvas.SlotTypeLogo, placeholder.Tag().SlotType)
	assert.InDelta(t, 120.0, placeholder.Shape.Width, 0)
	assert.Equal(t, canvas.FillNone, placeholder.Shape.Fill)
	assert.Equal(t, "Logo", placeholder.Label.Content)
	assert.False(t, slot.Capabilities.Resizable)
	assert.False(t, slot.Capabilities.Rotatable)

	text, ok := elements.Objects[2].Text()
	require.True(t, ok)
	assert.Equal(t, "Fresh Roast", text.Content)

	again, err := DecodeElements([]byte(legacyDocumentJSON))
	require.NoError(t, err)
	assert.Equal(t, ResolveRequiredFields(elements), ResolveRequiredFields(again))
}

func TestDecodeLegacyRejectsUnknownTypes(t *testing.T) {
	_, err := DecodeElements([]byte(`{"objects":[{"type":"path","path":[]}]}`))
	require.ErrorIs(t, err, ErrCorruptTemplateDocument)
}

func TestDeserializeKeepsStoredOrderWhenImagesCompleteOutOfOrder(t *testing.T) {
	secondLoaded := make(chan struct{})
	loader := stubLoader{load: func(ctx context.Context, source string) (canvas.ImageData, error) {
		switch source {
		case "https://cdn.example.com/first.png":
			select {
			case <-secondLoaded:
			case <-ctx.Done():
				return canvas.ImageData{}, ctx.Err()
			}
			return canvas.ImageData{ContentType: "image/png", Width: 10, Height: 10}, nil
		default:
			defer close(secondLoaded)
			return canvas.ImageData{ContentType: "image/png", Width: 20, Height: 20}, nil
		}
	}}
	deserializer := newTestDeserializer(t, loader, nil)
	elements := Elements{Objects: []canvas.Object{
		mustObject(t)(canvas.NewImage("first", canvas.At(0, 0), canvas.ImageSpec{Source: "https://cdn.example.com/first.png"})),
		mustObject(t)(canvas.NewImage("second", canvas.At(0, 0), canvas.ImageSpec{Source: "https://cdn.example.com/second.png"})),
	}}

	graph, err := deserializer.Build(context.Background(), elements)
	require.NoError(t, err)
	defer graph.Dispose()

	objects, err := graph.Objects()
	require.NoError(t, err)
	assert.Equal(t, []canvas.ObjectID{"first", "second"}, objectIDs(objects))
	first, ok := graph.ImageData("first")
	require.True(t, ok)
	assert.Equal(t, 10, first.Width)
	second, ok := graph.ImageData("second")
	require.True(t, ok)
	assert.Equal(t, 20, second.Width)

	spec, _ := objects[1].Image()
	assert.Equal(t, 20, spec.NaturalWidth)
}

func TestDeserializeMarksBrokenImagesWithoutFailing(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	loader := stubLoader{load: func(context.Context, string) (canvas.ImageData, error) {
		return canvas.ImageData{}, errors.New("connection reset")
	}}
	deserializer := newTestDeserializer(t, loader, zap.New(core))

	encoded, err := EncodeElements(sampleElements(t))
	require.NoError(t, err)
	graph, err := deserializer.Deserialize(context.Background(), encoded)
	require.NoError(t, err)
	defer graph.Dispose()

	assert.Equal(t, len(sampleElements(t).Objects), graph.Len())
	data, ok := graph.ImageData("pattern")
	require.True(t, ok)
	assert.True(t, data.Broken)
	assert.Contains(t, data.Reason, "connection reset")
	assert.Equal(t, 1, logs.FilterMessage("image load failed").Len())
}

func TestDeserializeCancellationYieldsNoGraph(t *testing.T) {
	entered := make(chan struct{})
	var once sync.Once
	loader := stubLoader{load: func(ctx context.Context, _ string) (canvas.ImageData, error) {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		return canvas.ImageData{}, ctx.Err()
	}}
	deserializer := newTestDeserializer(t, loader, nil)
	encoded, err := EncodeElements(sampleElements(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		graph *canvas.Graph
		err   error
	}
	done := make(chan result, 1)
	go func() {
		graph, err := deserializer.Deserialize(ctx, encoded)
		done <- result{graph: graph, err: err}
	}()
	<-entered
	cancel()

	outcome := <-done
	require.ErrorIs(t, outcome.err, context.Canceled)
	assert.Nil(t, outcome.graph)
}

func TestNewDeserializerRequiresLoader(t *testing.T) {
	_, err := NewDeserializer(DeserializerConfig{})
	require.Error(t, err)
}
