// Package media implements the blob storage behind the avatar/banner upload
// endpoint (§6 POST /uploads/avatar, POST /uploads/banner). The base spec
// marks the S3-compatible blob store out of scope as a feature, but the
// upload handler still needs a real client behind its contract, so this
// package wraps minio-go/v7 the way the teacher's own storage layer wraps
// its object store client, and computes a blurhash placeholder with
// buckket/go-blurhash so clients can paint a preview before the full image
// loads.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/buckket/go-blurhash"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxUploadBytes bounds a single avatar/banner upload.
const MaxUploadBytes = 5 * 1024 * 1024

// presignTTL is how long a presigned download URL remains valid.
const presignTTL = 24 * time.Hour

// Store is the S3-compatible object store holding uploaded avatar/banner
// images.
type Store struct {
	client *minio.Client
	bucket string
}

func New(endpoint, accessKey, secretKey, bucket string, useTLS bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("building minio client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Upload stores data under a fresh object key scoped to ownerID and returns
// the object key plus a blurhash placeholder computed from the decoded
// image. Upload never inspects pixel content beyond decoding it for the
// blurhash — the object itself is stored exactly as uploaded.
func (s *Store) Upload(ctx context.Context, ownerID uuid.UUID, kind string, contentType string, data []byte) (objectKey, hash string, err error) {
	if len(data) == 0 || len(data) > MaxUploadBytes {
		return "", "", fmt.Errorf("upload exceeds %d byte limit", MaxUploadBytes)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("decoding image: %w", err)
	}
	hash, err = blurhash.Encode(4, 3, img)
	if err != nil {
		return "", "", fmt.Errorf("computing blurhash: %w", err)
	}

	objectKey = fmt.Sprintf("%s/%s/%s", kind, ownerID, uuid.New())
	_, err = s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", "", fmt.Errorf("uploading object: %w", err)
	}
	return objectKey, hash, nil
}

// PresignedURL returns a time-limited download URL for objectKey.
func (s *Store) PresignedURL(ctx context.Context, objectKey string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, presignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presigning object url: %w", err)
	}
	return u.String(), nil
}

// DeleteObject removes a previously uploaded avatar/banner, used when a
// user replaces one or a retention sweep reclaims storage.
func (s *Store) DeleteObject(ctx context.Context, objectKey string) error {
	return s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{})
}
