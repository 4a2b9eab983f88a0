package anchor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"
)

// MinIOAnchor stores each envelope as an object named after the hash. An
// object that already exists is never overwritten; its receipt is reused.
type MinIOAnchor struct {
	client *minio.Client
	bucket string
}

func NewMinIOAnchor(client *minio.Client, bucket string) *MinIOAnchor {
	return &MinIOAnchor{client: client, bucket: bucket}
}

func (a *MinIOAnchor) Name() string { return "minio" }

// EnsureBucket creates the bucket when it does not exist yet.
func (a *MinIOAnchor) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

func ObjectKey(hash string) string {
	return "anchors/" + hash + ".cbor"
}

func (a *MinIOAnchor) Anchor(ctx context.Context, env Envelope) (string, error) {
	body, err := env.Encode()
	if err != nil {
		return "", err
	}
	key := ObjectKey(env.Hash)

	info, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	switch {
	case err == nil:
		return a.receipt(key, info.ETag), nil
	case minio.ToErrorResponse(err).StatusCode != http.StatusNotFound:
		return "", fmt.Errorf("stat %s: %w", key, err)
	}

	up, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/cbor",
		UserMetadata: map[string]string{
			"transaction-number": fmt.Sprint(env.TransactionNumber),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return a.receipt(key, up.ETag), nil
}

func (a *MinIOAnchor) receipt(key, etag string) string {
	return a.bucket + "/" + key + "@" + etag
}
