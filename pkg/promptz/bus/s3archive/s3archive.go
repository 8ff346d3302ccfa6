// Package s3archive keeps every domain event as one CloudEvents JSON object in
// an S3 bucket. Keys sort by emission time, so a listing is a replay.
package s3archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/cremich/promptz-sub001/pkg/promptz/bus"
	"github.com/cremich/promptz-sub001/pkg/promptz/internal/awsconf"
)

// DefaultPrefix is the key prefix when Config.Prefix is empty.
const DefaultPrefix = "events"

// keyTimeLayout sorts lexicographically in time order.
const keyTimeLayout = "2006/01/02/15/20060102T150405.000000000Z"

// Client is the subset of the S3 API the archive uses.
type Client interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Config options for the S3 archive
type Config struct {
	awsconf.Config
	Bucket       string // S3 bucket name
	Prefix       string // Key prefix (default "events")
	UsePathStyle bool   // Use path-style addressing (MinIO)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// Archive is a promptz.Publisher and bus.Replayer backed by S3.
type Archive struct {
	client   Client
	uploader *manager.Uploader
	config   Config
}

var (
	_ promptz.Publisher = (*Archive)(nil)
	_ bus.Replayer      = (*Archive)(nil)
)

// New creates an archive with a client built from config.
func New(ctx context.Context, config Config) (*Archive, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	awsCfg, err := awsconf.Load(ctx, config.Config)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if ep := config.BaseEndpoint(); ep != nil {
			o.BaseEndpoint = ep
			o.UsePathStyle = config.UsePathStyle
		}
	})
	return NewWithClient(ctx, client, config)
}

// NewWithClient creates an archive over an existing client.
func NewWithClient(ctx context.Context, client Client, config Config) (*Archive, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	config.Prefix = strings.Trim(config.Prefix, "/")
	if config.Region == "" {
		config.Region = awsconf.DefaultRegion
	}

	a := &Archive{
		client:   client,
		uploader: manager.NewUploader(client),
		config:   config,
	}

	if config.CreateBucketIfNotExist {
		if err := a.createBucketIfNotExists(ctx); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return a, nil
}

// Key returns the object key of e.
func (a *Archive) Key(e *promptz.Event) string {
	return a.config.Prefix + "/" + e.Time.UTC().Format(keyTimeLayout) + "-" + e.ID + ".json"
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func (a *Archive) createBucketIfNotExists(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.config.Bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(a.config.Bucket),
	}
	if a.config.Region != awsconf.DefaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(a.config.Region),
		}
	}

	if _, err := a.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return err
	}
	return nil
}

// Publish uploads the event envelope.
func (a *Archive) Publish(ctx context.Context, event *promptz.Event) error {
	data, err := bus.Marshal(event)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(a.Key(event)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/cloudevents+json"),
		Metadata: map[string]string{
			"detail-type": event.DetailType,
			"source":      event.Source,
		},
	}

	if a.config.EnableSSE {
		switch a.config.SSEAlgorithm {
		case "AES256":
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		case "aws:kms":
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			if a.config.SSEKMSKeyID != "" {
				input.SSEKMSKeyId = aws.String(a.config.SSEKMSKeyID)
			}
		}
	}

	if _, err := a.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to archive event %s: %w", event.ID, err)
	}
	return nil
}

// Replay lists the archive in key order and calls fn for every matching
// event. Listing starts at filter.Since and stops at filter.Until.
func (a *Archive) Replay(ctx context.Context, filter bus.Filter, fn func(*promptz.Event) error) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.config.Bucket),
		Prefix: aws.String(a.config.Prefix + "/"),
	}
	if !filter.Since.IsZero() {
		input.StartAfter = aws.String(a.config.Prefix + "/" + filter.Since.UTC().Format(keyTimeLayout))
	}

	paginator := s3.NewListObjectsV2Paginator(a.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list archive: %w", err)
		}

		for _, obj := range page.Contents {
			event, err := a.get(ctx, aws.ToString(obj.Key))
			if err != nil {
				return err
			}
			if !filter.Until.IsZero() && !event.Time.Before(filter.Until) {
				return nil
			}
			if !filter.Match(event) {
				continue
			}
			if err := fn(event); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Archive) get(ctx context.Context, key string) (*promptz.Event, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	event, err := bus.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return event, nil
}
