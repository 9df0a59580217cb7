package upload

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const DefaultMaxImageBytes = 5 << 20

var (
	ErrInvalidImage     = errors.New("invalid image encoding")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrImageTooLarge    = errors.New("image too large")
)

var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type Image struct {
	ContentType string
	Data        []byte
}

func (img Image) Extension() string {
	return allowedTypes[img.ContentType]
}

// DecodeDataURL accepts either a base64 data URL ("data:image/png;base64,...")
// or bare base64 and returns the decoded image. The content type is sniffed
// from the bytes; a declared type is only used to reject non-images early.
func DecodeDataURL(encoded string, maxBytes int) (Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}

	payload := strings.TrimSpace(encoded)

	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found {
			return Image{}, ErrInvalidImage
		}

		mediaType, params, _ := strings.Cut(header, ";")
		if !strings.Contains(params, "base64") {
			return Image{}, ErrInvalidImage
		}
		if mediaType != "" && !strings.HasPrefix(strings.ToLower(mediaType), "image/") {
			return Image{}, ErrUnsupportedImage
		}

		payload = data
	}

	if payload == "" {
		return Image{}, ErrInvalidImage
	}

	// cheap bound before allocating the decoded buffer
	if base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+3 {
		return Image{}, ErrImageTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return Image{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}

	if len(data) == 0 {
		return Image{}, ErrInvalidImage
	}
	if len(data) > maxBytes {
		return Image{}, ErrImageTooLarge
	}

	mime := mimetype.Detect(data)
	contentType, _, _ := strings.Cut(mime.String(), ";")
	if _, ok := allowedTypes[contentType]; !ok {
		return Image{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, contentType)
	}

	return Image{ContentType: contentType, Data: data}, nil
}
