package listsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Options configures the S3 backend. Endpoint is optional and enables
// S3-compatible stores such as MinIO.
type S3Options struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3API is the subset of the S3 client used by S3Repository.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Repository stores each list as one JSON object.
type S3Repository struct {
	client S3API
	bucket string
	prefix string
}

// s3Object is the stored form of a Record.
type s3Object struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	SecretHash  string          `json:"secretHash"`
	Subjects    json.RawMessage `json:"subjects"`
	Items       json.RawMessage `json:"items"`
	UpdatedAt   int64           `json:"updatedAt"`
}

// NewS3Client builds an S3 client from static credentials.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	}), nil
}

// NewS3Repository creates a repository in bucket under prefix.
func NewS3Repository(client S3API, bucket, prefix string) *S3Repository {
	return &S3Repository{client: client, bucket: bucket, prefix: prefix}
}

func (r *S3Repository) key(id string) string {
	return path.Join(r.prefix, "lists", id+".json")
}

// Close is a no-op; the S3 client holds no resources.
func (r *S3Repository) Close() error {
	return nil
}

// Create writes rec only if no object exists for its id.
func (r *S3Repository) Create(ctx context.Context, rec Record) error {
	err := r.put(ctx, rec, aws.String("*"))
	if isPreconditionFailed(err) {
		return ErrExists
	}
	return err
}

// Get reads the list with id.
func (r *S3Repository) Get(ctx context.Context, id string) (Record, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key(id)),
	})
	if isNotFound(err) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get list %s: %w", id, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return Record{}, fmt.Errorf("failed to read list %s: %w", id, err)
	}
	var obj s3Object
	if err := json.Unmarshal(body, &obj); err != nil {
		return Record{}, fmt.Errorf("failed to decode list %s: %w", id, err)
	}
	return Record(obj), nil
}

// Update overwrites an existing list.
func (r *S3Repository) Update(ctx context.Context, rec Record) error {
	if _, err := r.Get(ctx, rec.ID); err != nil {
		return err
	}
	return r.put(ctx, rec, nil)
}

func (r *S3Repository) put(ctx context.Context, rec Record, ifNoneMatch *string) error {
	body, err := json.Marshal(s3Object(rec))
	if err != nil {
		return fmt.Errorf("failed to encode list %s: %w", rec.ID, err)
	}
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.key(rec.ID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: ifNoneMatch,
	})
	if err != nil {
		return fmt.Errorf("failed to put list %s: %w", rec.ID, err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound")
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}
