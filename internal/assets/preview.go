package assets

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

const defaultPreviewMaxDimension = 1024

// ErrInvalidPreview indicates a preview reference that is neither a raster data URI nor a URL.
var ErrInvalidPreview = errors.New("assets: invalid preview")

// PreviewNormalizer turns a submitted preview into a displayable raster
// reference: embedded rasters are fitted and re-encoded as PNG, URLs pass through.
type PreviewNormalizer struct {
	maxDimension int
}

// NewPreviewNormalizer constructs a normalizer. A non-positive maxDimension uses the default.
func NewPreviewNormalizer(maxDimension int) *PreviewNormalizer {
	if maxDimension <= 0 {
		maxDimension = defaultPreviewMaxDimension
	}
	return &PreviewNormalizer{maxDimension: maxDimension}
}

// Normalize returns the reference to persist. An empty reference stays empty.
func (n *PreviewNormalizer) Normalize(reference string) (string, error) {
	trimmed := strings.TrimSpace(reference)
	switch {
	case trimmed == "":
		return "", nil
	case isHTTPURL(trimmed):
		return trimmed, nil
	case !IsDataURI(trimmed):
		return "", fmt.Errorf("%w: expected data uri or http(s) url", ErrInvalidPreview)
	}

	mediaType, payload, err := DecodeDataURI(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPreview, err)
	}
	if mediaType == mediaTypeSVG {
		return trimmed, nil
	}

	decoded, err := imaging.Decode(bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPreview, err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() > n.maxDimension || bounds.Dy() > n.maxDimension {
		decoded = imaging.Fit(decoded, n.maxDimension, n.maxDimension, imaging.Lanczos)
	} else if mediaType == "image/png" {
		return trimmed, nil
	}

	var buffer bytes.Buffer
	if err := imaging.Encode(&buffer, decoded, imaging.PNG); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPreview, err)
	}
	return EncodeDataURI("image/png", buffer.Bytes()), nil
}
