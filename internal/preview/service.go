package preview

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customization"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/templates"
)

var (
	errMissingTemplates    = errors.New("preview: template source is required")
	errMissingDeserializer = errors.New("preview: deserializer is required")
	errMissingRenderer     = errors.New("preview: renderer is required")
)

// TemplateSource loads the current version of a template.
type TemplateSource interface {
	GetTemplate(ctx context.Context, id string) (templates.Document, error)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Templates    TemplateSource
	Deserializer *templates.Deserializer
	Renderer     Renderer
	Logger       *zap.Logger
}

// Service renders customer previews of a template with partial answers.
type Service struct {
	templates    TemplateSource
	deserializer *templates.Deserializer
	renderer     Renderer
	logger       *zap.Logger
}

// NewService validates configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Templates == nil:
		return nil, errMissingTemplates
	case cfg.Deserializer == nil:
		return nil, errMissingDeserializer
	case cfg.Renderer == nil:
		return nil, errMissingRenderer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		templates:    cfg.Templates,
		deserializer: cfg.Deserializer,
		renderer:     cfg.Renderer,
		logger:       logger,
	}, nil
}

// Render composes a draft record from input and draws it. Answers are checked
// against the template's current required fields; missing answers are allowed.
func (s *Service) Render(ctx context.Context, input customization.Input) (Image, error) {
	elements := templates.Elements{FormatVersion: templates.CurrentFormatVersion}
	input.TemplateID = strings.TrimSpace(input.TemplateID)
	input.Resolved = nil
	if input.TemplateID != "" {
		document, err := s.templates.GetTemplate(ctx, input.TemplateID)
		if err != nil {
			return Image{}, err
		}
		elements = document.Elements
		input.Resolved = templates.ResolveRequiredFields(elements)
	}
	record, err := customization.ComposeDraft(input)
	if err != nil {
		return Image{}, err
	}

	session := templates.NewSession(s.deserializer)
	defer session.Close()
	if err := session.LoadElements(ctx, elements); err != nil {
		return Image{}, err
	}

	var contentType string
	payload, err := session.RenderPreview(ctx, func(ctx context.Context, graph *canvas.Graph) ([]byte, error) {
		image, renderErr := s.renderer.Render(ctx, graph, record)
		if renderErr != nil {
			return nil, renderErr
		}
		contentType = image.ContentType
		return image.Bytes, nil
	})
	if err != nil {
		s.logger.Warn("preview render failed",
			zap.String("template_id", input.TemplateID),
			zap.Error(err))
		return Image{}, err
	}
	return Image{Bytes: payload, ContentType: contentType}, nil
}

// RenderDataURI draws a stored draft record and returns it as a data URI.
func (s *Service) RenderDataURI(ctx context.Context, record customization.Record) (string, error) {
	image, err := s.Render(ctx, customization.Input{
		TemplateID:   record.TemplateID,
		Answers:      record.RequiredFields,
		CustomFields: record.CustomFields,
		Description:  record.Description,
	})
	if err != nil {
		return "", err
	}
	return image.DataURI(), nil
}
