package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	appConfig "github.com/priya-sharma/stitchbook-api/config"
	"github.com/priya-sharma/stitchbook-api/pkg/logger"
	"github.com/priya-sharma/stitchbook-api/pkg/retry"
)

// S3Backend implements RemoteBackend on a single S3 bucket: binary blobs at
// their deterministic paths, order documents as JSON objects under
// <collection>/<id>.json. Network calls are bounded by a timeout and a small
// retry budget here at the adapter boundary; a call that still fails surfaces
// as an ordinary upload error to the sync pass.
type S3Backend struct {
	client *s3.Client
	bucket string
	region string
	log    logger.Logger
}

const s3CallTimeout = 30 * time.Second

// NewS3Backend initializes the S3 backend with AWS credentials.
func NewS3Backend(cfg *appConfig.Config, log logger.Logger) (*S3Backend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = false
	})

	return &S3Backend{
		client: client,
		bucket: cfg.AWSS3Bucket,
		region: cfg.AWSRegion,
		log:    log,
	}, nil
}

// Available reports true: a constructed S3Backend is configured.
func (s *S3Backend) Available() bool {
	return true
}

// PutObject uploads a blob and returns its object URL.
func (s *S3Backend) PutObject(ctx context.Context, path string, blob []byte, contentType string) (string, error) {
	err := s.withRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, s3CallTimeout)
		defer cancel()

		_, putErr := s.client.PutObject(callCtx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(path),
			Body:        bytes.NewReader(blob),
			ContentType: aws.String(contentType),
		})
		return putErr
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", path, err)
	}

	return s.objectURL(path), nil
}

// DeleteObject deletes a blob.
func (s *S3Backend) DeleteObject(ctx context.Context, path string) error {
	callCtx, cancel := context.WithTimeout(ctx, s3CallTimeout)
	defer cancel()

	_, err := s.client.DeleteObject(callCtx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", path, err)
	}
	return nil
}

// Upload creates or merge-updates a JSON document. Merging reads the current
// remote document and overlays only the keys present in payload, so an
// absent local field never nulls out a remote one.
func (s *S3Backend) Upload(ctx context.Context, collection string, payload map[string]interface{}, existingID string) (string, error) {
	id := existingID
	merged := payload

	if id == "" {
		id = uuid.NewString()
	} else {
		current, err := s.getDocument(ctx, collection, id)
		if err != nil {
			return "", err
		}
		if current != nil {
			for key, value := range payload {
				current[key] = value
			}
			merged = current
		}
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}

	if _, err := s.PutObject(ctx, s.documentKey(collection, id), raw, "application/json"); err != nil {
		return "", err
	}
	return id, nil
}

// QueryByOwner lists every document in collection owned by userID.
func (s *S3Backend) QueryByOwner(ctx context.Context, collection, userID string) ([]map[string]interface{}, error) {
	callCtx, cancel := context.WithTimeout(ctx, s3CallTimeout)
	defer cancel()

	prefix := collection + "/"
	var docs []map[string]interface{}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(callCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", collection, err)
		}
		for _, obj := range page.Contents {
			doc, err := s.getObjectJSON(ctx, aws.ToString(obj.Key))
			if err != nil {
				s.log.Warn("Skipping unreadable remote document", "key", aws.ToString(obj.Key), "error", err)
				continue
			}
			if owner, ok := doc["ownerId"].(string); ok && owner == userID {
				docs = append(docs, doc)
			}
		}
	}
	return docs, nil
}

func (s *S3Backend) getDocument(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	doc, err := s.getObjectJSON(ctx, s.documentKey(collection, id))
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		// First write under a pre-assigned id.
		return nil, nil
	}
	return doc, err
}

func (s *S3Backend) getObjectJSON(ctx context.Context, key string) (map[string]interface{}, error) {
	callCtx, cancel := context.WithTimeout(ctx, s3CallTimeout)
	defer cancel()

	out, err := s.client.GetObject(callCtx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := out.Body.Close(); closeErr != nil {
			s.log.Warn("Failed to close object body", "key", key, "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("malformed remote document %s: %w", key, err)
	}
	return doc, nil
}

func (s *S3Backend) documentKey(collection, id string) string {
	return fmt.Sprintf("%s/%s.json", collection, id)
}

func (s *S3Backend) objectURL(path string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, path)
}

func (s *S3Backend) withRetry(ctx context.Context, fn retry.RetryableFunc) error {
	return retry.Do(ctx, fn, &retry.Config{
		MaxAttempts: 3,
		Backoff: &retry.ExponentialBackoff{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
			JitterFactor:    0.2,
		},
		Logger: s.log,
	})
}
