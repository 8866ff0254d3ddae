// Package imaging turns camera frames into the still images sent for enrollment.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// DefaultJPEGQuality matches a browser canvas export at 0.8.
const DefaultJPEGQuality = 80

// MimeJPEG is the content type of encoded frames.
const MimeJPEG = "image/jpeg"

// ErrInvalidDataURI is returned when a data URI cannot be parsed.
var ErrInvalidDataURI = errors.New("invalid data URI")

// Decode decodes JPEG, PNG, GIF or BMP bytes.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Fit scales img down so it fits within maxWidth x maxHeight, keeping the aspect ratio.
// Images already within bounds are returned unchanged. Non-positive bounds disable scaling.
func Fit(img image.Image, maxWidth, maxHeight int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if maxWidth <= 0 || maxHeight <= 0 || (width <= maxWidth && height <= maxHeight) {
		return img
	}

	scale := min(float64(maxWidth)/float64(width), float64(maxHeight)/float64(height))
	newWidth := max(int(math.Round(float64(width)*scale)), 1)
	newHeight := max(int(math.Round(float64(height)*scale)), 1)

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}

// EncodeJPEG encodes img as JPEG. Quality outside 1-100 falls back to DefaultJPEGQuality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeFrame fits a frame to the capture size and returns it as a JPEG data URI.
func EncodeFrame(img image.Image, maxWidth, maxHeight, quality int) (string, error) {
	if img == nil {
		return "", errors.New("no frame to encode")
	}
	data, err := EncodeJPEG(Fit(img, maxWidth, maxHeight), quality)
	if err != nil {
		return "", err
	}
	return DataURI(MimeJPEG, data), nil
}

// DataURI wraps data in a base64 data URI.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURI extracts the media type and payload of a base64 data URI.
func ParseDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload", ErrInvalidDataURI)
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURI)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return mime, data, nil
}

// DecodeUpload decodes a frame uploaded either as raw image bytes or as a data URI.
func DecodeUpload(body []byte) (image.Image, error) {
	trimmed := bytes.TrimSpace(body)
	if bytes.HasPrefix(trimmed, []byte("data:")) {
		mime, data, err := ParseDataURI(string(trimmed))
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(mime, "image/") {
			return nil, fmt.Errorf("unsupported media type %q", mime)
		}
		return Decode(data)
	}
	if ct := http.DetectContentType(trimmed); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("unsupported media type %q", ct)
	}
	return Decode(trimmed)
}
