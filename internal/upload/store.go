// Package upload stores spot media in object storage and resolves the public
// URLs persisted on each spot.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default bucket names for spot media.
const (
	DefaultAudioBucket = "audiofiles"
	DefaultImageBucket = "spotimages"
)

// Key prefixes within the media buckets.
const (
	AudioPrefix = "audio"
	ImagePrefix = "images"
)

var (
	// ErrObjectNotFound is returned by MemoryStore.Get for unknown keys.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidBucket is returned when a bucket name is empty.
	ErrInvalidBucket = errors.New("bucket name is required")
)

// Store writes objects and resolves their public URLs.
type Store interface {
	// Put uploads data under bucket/key with the given content type.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	// PublicURL returns the URL a client can use to fetch bucket/key.
	PublicURL(bucket, key string) string
}

// extensions maps accepted media types to object key extensions.
var extensions = map[string]string{
	"image/jpeg":  ".jpg",
	"image/png":   ".png",
	"image/webp":  ".webp",
	"image/heic":  ".heic",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/ogg":   ".ogg",
	"audio/webm":  ".webm",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
	"audio/aac":   ".aac",
}

// Extension returns the object key extension for a content type, or "" when
// the type is unknown.
func Extension(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return extensions[strings.ToLower(strings.TrimSpace(contentType))]
}

// ObjectKey creates a unique object key.
// Pattern: {prefix}/{unix millis}_{uuid}{ext}
func ObjectKey(prefix, contentType string, now time.Time) string {
	return fmt.Sprintf("%s/%d_%s%s", sanitizePathComponent(prefix), now.UnixMilli(), uuid.NewString(), Extension(contentType))
}

// sanitizePathComponent removes potentially dangerous characters from path components.
func sanitizePathComponent(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
