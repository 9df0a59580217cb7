package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

// BlobUploader writes avatars to a gocloud.dev bucket (file://, mem://, ...)
// and serves them from publicBaseURL.
type BlobUploader struct {
	bucket  *blob.Bucket
	prefix  string
	baseURL string
	now     func() time.Time
}

func NewBlobUploader(bucket *blob.Bucket, prefix, publicBaseURL string) *BlobUploader {
	return &BlobUploader{
		bucket:  bucket,
		prefix:  prefix,
		baseURL: publicBaseURL,
		now:     time.Now,
	}
}

// OpenBlobUploader opens the bucket named by bucketURL.
func OpenBlobUploader(ctx context.Context, bucketURL, prefix, publicBaseURL string) (*BlobUploader, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", bucketURL, err)
	}

	return NewBlobUploader(bucket, prefix, publicBaseURL), nil
}

func (u *BlobUploader) Upload(ctx context.Context, img Image) (string, error) {
	key := objectKey(u.prefix, img, u.now().UTC())

	err := u.bucket.WriteAll(ctx, key, img.Data, &blob.WriterOptions{
		ContentType:  img.ContentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}

	return publicURL(u.baseURL, key), nil
}

var ErrObjectNotFound = errors.New("object not found")

// Open streams a stored avatar back out. Only keys under the uploader's
// prefix are served.
func (u *BlobUploader) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	key = strings.TrimLeft(key, "/")
	if !strings.HasPrefix(key, keyPrefix(u.prefix)+"/") || strings.Contains(key, "..") {
		return nil, "", ErrObjectNotFound
	}

	r, err := u.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, "", ErrObjectNotFound
		}
		return nil, "", fmt.Errorf("read %s: %w", key, err)
	}

	return r, r.ContentType(), nil
}

func (u *BlobUploader) Close() error {
	return u.bucket.Close()
}
