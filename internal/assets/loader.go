package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultMaxBytes     = 10 << 20
	mediaTypeSVG        = "image/svg+xml"
)

var (
	// ErrUnsupportedSource indicates a reference that is neither a data URI nor an http(s) URL.
	ErrUnsupportedSource = errors.New("assets: unsupported image source")
	// ErrImageFetch indicates that remote bytes could not be retrieved.
	ErrImageFetch = errors.New("assets: image fetch failed")
	// ErrImageDecode indicates bytes that are not a decodable image.
	ErrImageDecode = errors.New("assets: image decode failed")
	// ErrImageTooLarge indicates a payload above the configured byte limit.
	ErrImageTooLarge = errors.New("assets: image too large")
)

// LoaderConfig configures image loading.
type LoaderConfig struct {
	HTTPClient   *http.Client
	FetchTimeout time.Duration
	MaxBytes     int64
	Logger       *zap.Logger
}

// Loader resolves image references to decoded bytes. It never retries; retry
// policy belongs to the HTTP client supplied by the caller.
type Loader struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *zap.Logger
}

// NewLoader constructs a Loader with defaults for missing configuration.
func NewLoader(cfg LoaderConfig) *Loader {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{httpClient: client, maxBytes: maxBytes, logger: logger}
}

// Load fetches and decodes the referenced image.
func (l *Loader) Load(ctx context.Context, source string) (canvas.ImageData, error) {
	reference := strings.TrimSpace(source)
	var (
		mediaType string
		payload   []byte
		err       error
	)
	switch {
	case IsDataURI(reference):
		mediaType, payload, err = DecodeDataURI(reference)
	case isHTTPURL(reference):
		mediaType, payload, err = l.fetch(ctx, reference)
	default:
		return canvas.ImageData{}, fmt.Errorf("%w: %q", ErrUnsupportedSource, truncate(reference))
	}
	if err != nil {
		return canvas.ImageData{}, err
	}
	if int64(len(payload)) > l.maxBytes {
		return canvas.ImageData{}, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(payload))
	}
	return decodeImage(mediaType, payload)
}

func (l *Loader) fetch(ctx context.Context, reference string) (string, []byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, reference, http.NoBody)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	response, err := l.httpClient.Do(request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", nil, ctxErr
		}
		return "", nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		l.logger.Debug("image fetch returned non-200 status",
			zap.String("url", reference),
			zap.Int("status", response.StatusCode))
		return "", nil, fmt.Errorf("%w: status %d", ErrImageFetch, response.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(response.Body, l.maxBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(response.Header.Get("Content-Type"), ";")[0]))
	return mediaType, payload, nil
}

func decodeImage(mediaType string, payload []byte) (canvas.ImageData, error) {
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(payload)
	}
	if mediaType == mediaTypeSVG || looksLikeSVG(payload) {
		return canvas.ImageData{Bytes: payload, ContentType: mediaTypeSVG}, nil
	}
	decoded, err := imaging.Decode(bytes.NewReader(payload))
	if err != nil {
		return canvas.ImageData{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	bounds := decoded.Bounds()
	return canvas.ImageData{
		Bytes:       payload,
		ContentType: mediaType,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}

func looksLikeSVG(payload []byte) bool {
	head := payload
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

func isHTTPURL(reference string) bool {
	parsed, err := url.Parse(reference)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func truncate(reference string) string {
	const limit = 64
	if len(reference) <= limit {
		return reference
	}
	return reference[:limit] + "..."
}
