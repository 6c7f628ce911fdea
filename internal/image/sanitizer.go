// Package image strips identifying metadata from spot photos before upload.
package image

import (
	"errors"
	"fmt"

	"github.com/h2non/bimg"
)

// ErrEmptyImage is returned when there are no bytes to process.
var ErrEmptyImage = errors.New("image is empty")

// Config holds configuration for photo sanitization.
type Config struct {
	// Quality for JPEG/WebP encoding (1-100, default: 85)
	Quality int
	// MaxWidth limits image width (0 = no limit)
	MaxWidth int
	// MaxHeight limits image height (0 = no limit)
	MaxHeight int
}

// DefaultConfig returns sensible defaults for spot photos.
func DefaultConfig() Config {
	return Config{
		Quality:   85,
		MaxWidth:  2048,
		MaxHeight: 2048,
	}
}

// Sanitizer re-encodes a photo without EXIF metadata.
// It returns the new bytes and their content type.
type Sanitizer interface {
	Sanitize(data []byte) ([]byte, string, error)
}

// VipsSanitizer sanitizes photos with libvips through bimg.
type VipsSanitizer struct {
	config Config
}

var _ Sanitizer = (*VipsSanitizer)(nil)

// NewVipsSanitizer creates a sanitizer with the given config.
func NewVipsSanitizer(config Config) *VipsSanitizer {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = DefaultConfig().Quality
	}
	return &VipsSanitizer{config: config}
}

// Sanitize strips EXIF metadata (GPS, camera details, timestamps), applies
// the EXIF orientation and re-encodes in the original format. Formats bimg
// cannot write, such as HEIC, are re-encoded as JPEG.
func (s *VipsSanitizer) Sanitize(data []byte) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}

	img := bimg.NewImage(data)
	metadata, err := img.Metadata()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image metadata: %w", err)
	}

	outType, contentType := outputType(metadata.Type)
	options := bimg.Options{
		Quality:       s.config.Quality,
		StripMetadata: true,
		// Orientation is applied before the EXIF block is dropped.
		Rotate: bimg.Angle(0),
		Type:   outType,
	}

	if s.config.MaxWidth > 0 && metadata.Size.Width > s.config.MaxWidth {
		options.Width = s.config.MaxWidth
	}
	if s.config.MaxHeight > 0 && metadata.Size.Height > s.config.MaxHeight {
		options.Height = s.config.MaxHeight
	}

	out, err := img.Process(options)
	if err != nil {
		return nil, "", fmt.Errorf("failed to process image: %w", err)
	}

	return out, contentType, nil
}

// outputType maps bimg's type name to the encoder and its content type.
func outputType(typeStr string) (bimg.ImageType, string) {
	switch typeStr {
	case "png":
		return bimg.PNG, "image/png"
	case "webp":
		return bimg.WEBP, "image/webp"
	default:
		return bimg.JPEG, "image/jpeg"
	}
}
