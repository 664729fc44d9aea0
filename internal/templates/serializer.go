package templates

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
)

const defaultImageConcurrency = 8

var errMissingImageLoader = errors.New("templates: image loader is required")

// ImageLoader resolves an image reference to bytes.
type ImageLoader interface {
	Load(ctx context.Context, source string) (canvas.ImageData, error)
}

// Serialize walks the graph in z-order and returns the portable elements.
func Serialize(graph *canvas.Graph) (Elements, error) {
	if graph == nil {
		return Elements{}, canvas.ErrGraphDisposed
	}
	objects, err := graph.Objects()
	if err != nil {
		return Elements{}, err
	}
	for index, object := range objects {
		if err := object.Validate(); err != nil {
			return Elements{}, fmt.Errorf("templates: object %d: %w", index, err)
		}
	}
	return Elements{FormatVersion: CurrentFormatVersion, Objects: objects}, nil
}

// DeserializerConfig wires a Deserializer.
type DeserializerConfig struct {
	Loader ImageLoader
	// IDs issues identities for objects added after loading.
	IDs canvas.IDProvider
	// Concurrency bounds simultaneous image loads.
	Concurrency int
	Logger      *zap.Logger
}

// Deserializer rebuilds live graphs from persisted elements.
type Deserializer struct {
	loader      ImageLoader
	ids         canvas.IDProvider
	concurrency int
	logger      *zap.Logger
}

// NewDeserializer validates configuration and constructs a Deserializer.
func NewDeserializer(cfg DeserializerConfig) (*Deserializer, error) {
	if cfg.Loader == nil {
		return nil, errMissingImageLoader
	}
	ids := cfg.IDs
	if ids == nil {
		ids = canvas.NewUUIDProvider()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultImageConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deserializer{loader: cfg.Loader, ids: ids, concurrency: concurrency, logger: logger}, nil
}

// Deserialize decodes raw elements and builds a graph. The result is
// all-or-nothing: a decode failure or a cancelled context yields no graph.
func (d *Deserializer) Deserialize(ctx context.Context, raw []byte) (*canvas.Graph, error) {
	elements, err := DecodeElements(raw)
	if err != nil {
		return nil, err
	}
	return d.Build(ctx, elements)
}

// Build places every object in stored order and waits for all image loads.
// Placeholders come back fully editable even if they were stored locked.
// A failed image keeps its object with a broken marker.
func (d *Deserializer) Build(ctx context.Context, elements Elements) (*canvas.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	graph := canvas.NewGraph(d.ids)
	for index, object := range elements.Objects {
		if object.IsPlaceholder() {
			object.Capabilities = canvas.Editable()
		}
		if err := graph.Append(object); err != nil {
			graph.Dispose()
			return nil, fmt.Errorf("%w: object %d: %w", ErrCorruptTemplateDocument, index, err)
		}
	}

	objects, err := graph.Objects()
	if err != nil {
		return nil, err
	}
	loaded := make([]canvas.ImageData, len(objects))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.concurrency)
	for index, object := range objects {
		spec, isImage := object.Image()
		if !isImage {
			continue
		}
		group.Go(func() error {
			data, loadErr := d.loader.Load(groupCtx, spec.Source)
			if loadErr != nil {
				if ctxErr := groupCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				d.logger.Warn("image load failed",
					zap.String("object_id", object.ID().String()),
					zap.Error(loadErr))
				loaded[index] = canvas.ImageData{Broken: true, Reason: loadErr.Error()}
				return nil
			}
			loaded[index] = data
			return nil
		})
	}
	waitErr := group.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		waitErr = ctxErr
	}
	if waitErr != nil {
		clear(loaded)
		graph.Dispose()
		return nil, waitErr
	}

	for index, object := range objects {
		spec, isImage := object.Image()
		if !isImage {
			continue
		}
		data := loaded[index]
		if !data.Broken && spec.NaturalWidth == 0 && spec.NaturalHeight == 0 && data.Width > 0 {
			spec.NaturalWidth = data.Width
			spec.NaturalHeight = data.Height
			sized, sizeErr := object.WithImage(spec)
			if sizeErr == nil {
				sizeErr = graph.Replace(sized)
			}
			if sizeErr != nil {
				graph.Dispose()
				return nil, sizeErr
			}
		}
		if err := graph.AttachImage(object.ID(), data); err != nil {
			graph.Dispose()
			return nil, err
		}
	}
	return graph, nil
}
