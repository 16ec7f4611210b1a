package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "whiteboard-backend/internal/config"
)

// S3Service uploads rendered board previews. Optional: when S3 is not
// configured the thumbnail data-URL is stored inline on the board row.
type S3Service struct {
	client *s3.Client
	bucket string
	region string
}

// NewS3Service builds the client from static credentials.
func NewS3Service(cfg *appconfig.S3Config) (*S3Service, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Service{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.BucketName,
		region: cfg.Region,
	}, nil
}

// UploadThumbnail decodes a data-URL preview, uploads it under the board's
// key, and returns the object URL. Re-uploads overwrite: one preview per
// board, last write wins like the canvas itself.
func (s *S3Service) UploadThumbnail(ctx context.Context, boardID, dataURL string) (string, error) {
	contentType, raw, err := decodeDataURL(dataURL)
	if err != nil {
		return "", err
	}

	ext := "png"
	if parts := strings.SplitN(contentType, "/", 2); len(parts) == 2 && parts[1] != "" {
		ext = parts[1]
	}
	key := fmt.Sprintf("thumbnails/%s.%s", boardID, ext)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(raw),
		ContentType: &contentType,
	})
	if err != nil {
		log.Printf("[S3] Thumbnail upload failed for board %s: %v", boardID, err)
		return "", err
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

func decodeDataURL(dataURL string) (contentType string, raw []byte, err error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, payload, found := strings.Cut(dataURL[len("data:"):], ",")
	if !found {
		return "", nil, fmt.Errorf("malformed data URL")
	}
	contentType = strings.TrimSuffix(meta, ";base64")
	if contentType == "" {
		contentType = "image/png"
	}
	raw, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URL payload: %w", err)
	}
	return contentType, raw, nil
}
