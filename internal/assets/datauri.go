package assets

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const dataURIPrefix = "data:"

// ErrInvalidDataURI indicates a data URI that cannot be decoded.
var ErrInvalidDataURI = errors.New("assets: invalid data uri")

// IsDataURI reports whether the reference embeds its bytes.
func IsDataURI(reference string) bool {
	return strings.HasPrefix(strings.TrimSpace(reference), dataURIPrefix)
}

// DecodeDataURI returns the media type and payload of a data URI.
func DecodeDataURI(reference string) (string, []byte, error) {
	trimmed := strings.TrimSpace(reference)
	if !strings.HasPrefix(trimmed, dataURIPrefix) {
		return "", nil, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	header, payload, found := strings.Cut(trimmed[len(dataURIPrefix):], ",")
	if !found {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}

	mediaType := "text/plain"
	isBase64 := false
	parts := strings.Split(header, ";")
	if parts[0] != "" {
		mediaType = strings.ToLower(parts[0])
	}
	for _, parameter := range parts[1:] {
		if strings.EqualFold(parameter, "base64") {
			isBase64 = true
		}
	}

	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(payload)
		}
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
		}
		return mediaType, decoded, nil
	}

	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return mediaType, []byte(unescaped), nil
}

// EncodeDataURI renders bytes as a base64 data URI.
func EncodeDataURI(mediaType string, payload []byte) string {
	return dataURIPrefix + mediaType + ";base64," + base64.StdEncoding.EncodeToString(payload)
}
