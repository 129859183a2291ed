// Package s3backend implements backend.ObjectStore on top of aws-sdk-go-v2.
package s3backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/piwi3910/bucketshift/internal/httputil"
	"github.com/piwi3910/bucketshift/internal/storage/backend"
	"github.com/piwi3910/bucketshift/pkg/s3errors"
)

const (
	defaultRegion  = "us-east-1"
	defaultMaxKeys = 1000
)

// API is the subset of the S3 client used by the backend.
type API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ API = (*s3.Client)(nil)

// Config holds connection settings for one side of a migration.
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UsePathStyle    bool
	Checksum        backend.ChecksumMode
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// Backend is an S3 object store.
type Backend struct {
	client API
}

var _ backend.ObjectStore = (*Backend)(nil)

// New builds an S3 client from cfg. Static credentials are used when both
// the key id and the secret are set, the SDK default chain otherwise.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	// The SDK applies AWS_CA_BUNDLE through WithTransportOptions, so the
	// client must be buildable rather than a plain *http.Client.
	httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
		httputil.ConfigureTransport(tr, &httputil.ClientConfig{SkipTLSVerify: cfg.InsecureSkipVerify})
	})

	loadOpts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}

	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if awsCfg.Region == "" {
		awsCfg.Region = defaultRegion
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, clientOptions(cfg))), nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client API) *Backend {
	return &Backend{client: client}
}

// clientOptions applies endpoint, addressing and checksum settings.
func clientOptions(cfg Config) func(*s3.Options) {
	return func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}

		o.UsePathStyle = cfg.UsePathStyle

		switch cfg.Checksum {
		case backend.ChecksumWhenRequired:
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		default:
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenSupported
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenSupported
		}
	}
}

// List implements backend.ObjectStore.
func (b *Backend) List(ctx context.Context, bucket string, opts backend.ListOptions) (*backend.ListPage, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(maxKeys),
	}

	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}

	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	out, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, wrapErr("list", bucket, "", err)
	}

	page := &backend.ListPage{
		Objects: make([]backend.ObjectInfo, 0, len(out.Contents)),
	}

	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}

		page.Objects = append(page.Objects, backend.ObjectInfo{
			Key:          *obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
	}

	if out.IsTruncated == nil || *out.IsTruncated {
		page.NextContinuationToken = aws.ToString(out.NextContinuationToken)
	}

	return page, nil
}

// Get implements backend.ObjectStore.
func (b *Backend) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapErr("get", bucket, key, err)
	}

	return out.Body, nil
}

// Put implements backend.ObjectStore.
func (b *Backend) Put(ctx context.Context, bucket, key string, body io.Reader, size int64) (*backend.PutResult, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}

	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	out, err := b.client.PutObject(ctx, input)
	if err != nil {
		return nil, wrapErr("put", bucket, key, err)
	}

	res := &backend.PutResult{
		ETag: aws.ToString(out.ETag),
		Size: size,
	}
	if out.Size != nil {
		res.Size = *out.Size
	}

	return res, nil
}

// wrapErr adds the operation, location and API error code, and maps missing
// buckets and objects onto the backend sentinels.
func wrapErr(op, bucket, key string, err error) error {
	loc := bucket
	if key != "" {
		loc = bucket + "/" + key
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("s3 %s %s: %w", op, loc, err)
	}

	code := apiErr.ErrorCode()

	switch kind := s3errors.Classify(code); kind {
	case s3errors.KindObjectMissing:
		return fmt.Errorf("s3 %s %s: %w: %w", op, loc, backend.ErrObjectNotFound, err)
	case s3errors.KindBucketMissing:
		return fmt.Errorf("s3 %s %s: %w: %w", op, loc, backend.ErrBucketNotFound, err)
	case s3errors.KindUnknown:
		return fmt.Errorf("s3 %s %s (%s): %w", op, loc, code, err)
	default:
		return fmt.Errorf("s3 %s %s (%s, %s): %w", op, loc, code, kind, err)
	}
}
