package validate

import (
	"errors"
	"fmt"
	"strings"
)

// File validation errors
var (
	ErrInvalidMIMEType = errors.New("invalid MIME type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrFileTooSmall    = errors.New("file too small")
	ErrFileEmpty       = errors.New("file is empty")
)

// Common MIME types accepted for spot media.
const (
	MIMEImageJPEG = "image/jpeg"
	MIMEImagePNG  = "image/png"
	MIMEImageWebP = "image/webp"
	MIMEImageHEIC = "image/heic"
	MIMEAudioMPEG = "audio/mpeg"
	MIMEAudioMP3  = "audio/mp3"
	MIMEAudioWAV  = "audio/wav"
	MIMEAudioXWAV = "audio/x-wav"
	MIMEAudioOGG  = "audio/ogg"
	MIMEAudioWebM = "audio/webm"
	MIMEAudioMP4  = "audio/mp4"
	MIMEAudioM4A  = "audio/x-m4a"
	MIMEAudioAAC  = "audio/aac"
)

// Default size limits for spot media.
const (
	DefaultMaxImageBytes = 10 * 1024 * 1024 // 10MB
	DefaultMaxAudioBytes = 50 * 1024 * 1024 // 50MB
)

// AllowedImageTypes defines allowed image MIME types.
var AllowedImageTypes = []string{
	MIMEImageJPEG,
	MIMEImagePNG,
	MIMEImageWebP,
	MIMEImageHEIC,
}

// AllowedAudioTypes defines allowed audio MIME types.
var AllowedAudioTypes = []string{
	MIMEAudioMPEG,
	MIMEAudioMP3,
	MIMEAudioWAV,
	MIMEAudioXWAV,
	MIMEAudioOGG,
	MIMEAudioWebM,
	MIMEAudioMP4,
	MIMEAudioM4A,
	MIMEAudioAAC,
}

// FileConstraints defines validation constraints for file uploads.
type FileConstraints struct {
	AllowedTypes []string // Allowed MIME types
	MaxSizeBytes int64    // Maximum file size in bytes
	MinSizeBytes int64    // Minimum file size in bytes (0 = no minimum)
}

// MIMEType validates a MIME type against allowed types.
// Parameters such as "; codecs=opus" are ignored.
// Returns the normalized MIME type (lowercased) and an error if invalid.
func MIMEType(mimeType string, allowedTypes []string) (string, error) {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	if mimeType == "" {
		return "", ErrEmpty
	}

	for _, allowed := range allowedTypes {
		if mimeType == strings.ToLower(allowed) {
			return mimeType, nil
		}
	}

	return "", fmt.Errorf("%w: %q not in allowed types", ErrInvalidMIMEType, mimeType)
}

// FileSize validates a file size against constraints.
func FileSize(sizeBytes int64, constraints FileConstraints) error {
	if sizeBytes <= 0 {
		return ErrFileEmpty
	}

	if constraints.MinSizeBytes > 0 && sizeBytes < constraints.MinSizeBytes {
		return fmt.Errorf("%w: got %d bytes, minimum is %d", ErrFileTooSmall, sizeBytes, constraints.MinSizeBytes)
	}

	if constraints.MaxSizeBytes > 0 && sizeBytes > constraints.MaxSizeBytes {
		return fmt.Errorf("%w: got %d bytes, maximum is %d", ErrFileTooLarge, sizeBytes, constraints.MaxSizeBytes)
	}

	return nil
}

// File validates both MIME type and file size.
func File(mimeType string, sizeBytes int64, constraints FileConstraints) (string, error) {
	validatedType, err := MIMEType(mimeType, constraints.AllowedTypes)
	if err != nil {
		return "", err
	}

	if err := FileSize(sizeBytes, constraints); err != nil {
		return "", err
	}

	return validatedType, nil
}

// ImageFile validates a spot photo. maxBytes <= 0 uses DefaultMaxImageBytes.
func ImageFile(mimeType string, sizeBytes, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return File(mimeType, sizeBytes, FileConstraints{
		AllowedTypes: AllowedImageTypes,
		MaxSizeBytes: maxBytes,
	})
}

// AudioFile validates a spot narration. maxBytes <= 0 uses DefaultMaxAudioBytes.
func AudioFile(mimeType string, sizeBytes, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAudioBytes
	}
	return File(mimeType, sizeBytes, FileConstraints{
		AllowedTypes: AllowedAudioTypes,
		MaxSizeBytes: maxBytes,
	})
}
