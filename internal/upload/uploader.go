package upload

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Uploader stores an image with an external hosting service and returns a
// durable URL for it.
type Uploader interface {
	Upload(ctx context.Context, img Image) (string, error)
}

// objectKey builds a unique, date-partitioned key for a new avatar.
func objectKey(prefix string, img Image, now time.Time) string {
	return fmt.Sprintf("%s/%d/%02d/%s%s", keyPrefix(prefix), now.Year(), now.Month(), uuid.NewString(), img.Extension())
}

func keyPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return "avatars"
	}
	return prefix
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
