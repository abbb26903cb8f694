// Package storage archives aged audit entries to S3-compatible object
// storage before they are pruned from the database.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/omnihub/backend/internal/domain/security"
	infraconfig "github.com/omnihub/backend/internal/infrastructure/config"
)

// s3API is the subset of the S3 client the archiver uses, extracted so
// tests can substitute a fake.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// AuditArchiver writes batches of audit entries to object storage as
// newline-delimited JSON, one object per batch.
type AuditArchiver struct {
	client s3API
	bucket string
	logger *zap.Logger
}

// NewAuditArchiver creates an archiver from configuration. It is
// compatible with any S3-compatible storage backend (AWS S3, MinIO, etc.)
func NewAuditArchiver(cfg *infraconfig.StorageConfig, logger *zap.Logger) (*AuditArchiver, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("storage credentials are required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				endpoint = "https://" + endpoint
			}
			if _, err := url.Parse(endpoint); err == nil {
				o.BaseEndpoint = aws.String(endpoint)
			}
		}
	})

	return &AuditArchiver{
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// NewAuditArchiverWithClient wires an existing client, for tests.
func NewAuditArchiverWithClient(client s3API, bucket string, logger *zap.Logger) *AuditArchiver {
	return &AuditArchiver{client: client, bucket: bucket, logger: logger}
}

// Archive writes one batch of entries as an NDJSON object keyed by the
// batch's time range. Empty batches are a no-op.
func (a *AuditArchiver) Archive(ctx context.Context, entries []*security.AuditEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return "", fmt.Errorf("failed to encode audit entry %s: %w", e.ID, err)
		}
	}

	key := archiveKey(entries[0].Timestamp, entries[len(entries)-1].Timestamp)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive audit batch: %w", err)
	}

	a.logger.Info("archived audit batch",
		zap.String("key", key),
		zap.Int("entries", len(entries)))
	return key, nil
}

func archiveKey(from, to time.Time) string {
	return fmt.Sprintf("audit/%s/%s_%s.ndjson",
		from.UTC().Format("2006/01"),
		from.UTC().Format("20060102T150405Z"),
		to.UTC().Format("20060102T150405Z"))
}
