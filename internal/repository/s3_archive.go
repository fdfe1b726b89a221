package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appConfig "github.com/groeimetai/billing/internal/config"
	"github.com/groeimetai/billing/internal/domain"
)

// S3ArchiveRepository stores batch sync-run reports in an S3-compatible
// bucket (SeaweedFS/MinIO in self-hosted deployments) for audit.
type S3ArchiveRepository struct {
	client *s3.Client
	bucket string
}

// NewS3ArchiveRepository creates a new archive repository.
// Static "any" credentials satisfy the signature requirement of
// S3-compatible stores that ignore the key material.
func NewS3ArchiveRepository(ctx context.Context, cfg appConfig.S3Config) (*S3ArchiveRepository, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("any", "any", "")),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true // Required for many S3-compatible stores
	})

	repo := &S3ArchiveRepository{
		client: client,
		bucket: cfg.Bucket,
	}

	if err := repo.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// ArchiveSyncRun writes the run report as a JSON object keyed by run id
func (r *S3ArchiveRepository) ArchiveSyncRun(ctx context.Context, run *domain.SyncRun) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sync run: %w", err)
	}

	key := fmt.Sprintf("sync-runs/%s/%s.json", run.LastSyncAt.UTC().Format("2006/01"), run.ID)
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive sync run: %w", err)
	}
	return nil
}

// ensureBucket checks if the bucket exists, creating it if necessary
func (r *S3ArchiveRepository) ensureBucket(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.bucket),
	})
	if err != nil {
		_, err = r.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(r.bucket),
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", r.bucket, err)
		}
	}
	return nil
}
