// Package s3 implements storage.Backend on S3-compatible object storage.
// ConditionalReplace is a CopyObject of the object onto itself with
// MetadataDirective=REPLACE guarded by CopySourceIfMatch, which is the only
// transactional primitive the store offers: the copy fails with 412 when
// another writer changed the object since it was read.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/vanishedbrands/download-service/internal/storage"
)

// Config controls the S3 backend.
type Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	// EncryptAtRest enables AES256 server-side encryption on writes.
	EncryptAtRest bool
}

// Store implements storage.Backend, storage.URLSigner and storage.Pinger over
// a single bucket.
type Store struct {
	client  *awss3.Client
	presign *awss3.PresignClient
	cfg     Config
}

var _ storage.Backend = (*Store)(nil)
var _ storage.URLSigner = (*Store)(nil)
var _ storage.Pinger = (*Store)(nil)

// New builds the S3 client. Static credentials are optional; when absent the
// default provider chain applies. Endpoint and path-style addressing cover
// MinIO and R2 deployments.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket required")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}
	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &Store{
		client:  client,
		presign: awss3.NewPresignClient(client),
		cfg:     cfg,
	}, nil
}

// Get returns the object body at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: read %s: %w", key, err)
	}
	return body, nil
}

// Put unconditionally writes the object at key.
func (s *Store) Put(ctx context.Context, key string, body []byte, opts storage.PutOptions) error {
	input := &awss3.PutObjectInput{
		Bucket:   aws.String(s.cfg.Bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(body),
		Metadata: opts.Metadata,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if s.cfg.EncryptAtRest {
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return mapError(err)
	}
	return nil
}

// Head returns the object's version tag (ETag, quotes stripped) and user
// metadata without fetching the body.
func (s *Store) Head(ctx context.Context, key string) (storage.HeadResult, error) {
	out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return storage.HeadResult{}, mapError(err)
	}
	return storage.HeadResult{
		VersionTag: trimETag(aws.ToString(out.ETag)),
		Metadata:   out.Metadata,
	}, nil
}

// ConditionalReplace rewrites the object's metadata guarded by expectedTag.
func (s *Store) ConditionalReplace(ctx context.Context, key string, newMetadata map[string]string, expectedTag string) (string, error) {
	out, err := s.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:            aws.String(s.cfg.Bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(s.cfg.Bucket + "/" + url.PathEscape(key)),
		MetadataDirective: types.MetadataDirectiveReplace,
		Metadata:          newMetadata,
		CopySourceIfMatch: aws.String(expectedTag),
	})
	if err != nil {
		return "", mapError(err)
	}
	if out.CopyObjectResult != nil && out.CopyObjectResult.ETag != nil {
		return trimETag(aws.ToString(out.CopyObjectResult.ETag)), nil
	}
	return "", nil
}

// SignURL presigns a GET for the object with an attachment disposition so
// browsers download instead of rendering inline.
func (s *Store) SignURL(ctx context.Context, req storage.SignRequest) (string, error) {
	input := &awss3.GetObjectInput{
		Bucket:               aws.String(s.cfg.Bucket),
		Key:                  aws.String(req.Key),
		ResponseCacheControl: aws.String("no-store"),
	}
	if req.Filename != "" {
		input.ResponseContentDisposition = aws.String(fmt.Sprintf("attachment; filename=%q", req.Filename))
	}
	if req.ContentType != "" {
		input.ResponseContentType = aws.String(req.ContentType)
	}
	signed, err := s.presign.PresignGetObject(ctx, input, awss3.WithPresignExpires(req.TTL))
	if err != nil {
		return "", mapError(err)
	}
	return signed.URL, nil
}

// Ping probes the bucket for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(s.cfg.Bucket),
	})
	return mapError(err)
}

func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

// mapError folds the SDK's failure modes onto the storage sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return storage.ErrNotFound
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return storage.ErrNotFound
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusPreconditionFailed:
			return storage.ErrCASMismatch
		case http.StatusNotFound:
			return storage.ErrNotFound
		case http.StatusForbidden:
			return storage.ErrAccessDenied
		}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed":
			return storage.ErrCASMismatch
		case "NoSuchKey", "NotFound":
			return storage.ErrNotFound
		case "AccessDenied":
			return storage.ErrAccessDenied
		}
	}
	return err
}
