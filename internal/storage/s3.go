package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ErrNotConfigured is returned when no bucket is set.
var ErrNotConfigured = errors.New("s3 source not configured")

// ObjectAPI is the subset of *s3.Client used here.
type ObjectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Client reads source media from a single bucket.
type S3Client struct {
	client     ObjectAPI
	bucketName string
}

type Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client creates a new S3 client. Static credentials are used when both
// key parts are set; otherwise the default AWS chain applies.
func NewS3Client(ctx context.Context, opts Options) (*S3Client, error) {
	if opts.Bucket == "" {
		return nil, ErrNotConfigured
	}
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3ClientWithAPI(s3.NewFromConfig(cfg), opts.Bucket), nil
}

func NewS3ClientWithAPI(api ObjectAPI, bucket string) *S3Client {
	return &S3Client{client: api, bucketName: bucket}
}

func (s *S3Client) Bucket() string { return s.bucketName }

// Ping checks that the bucket is reachable.
func (s *S3Client) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	return err
}

// Open stats an object without downloading it. The returned Object reads
// the body lazily, so size and type can be validated first.
func (s *S3Client) Open(ctx context.Context, key string) (*Object, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return nil, errors.New("empty object key")
	}
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stat S3 object: %w", err)
	}

	obj := &Object{s: s, key: key, name: path.Base(key)}
	if head.ContentLength != nil {
		obj.size = *head.ContentLength
	}
	if head.ContentType != nil {
		obj.mimeType = strings.TrimSpace(strings.SplitN(*head.ContentType, ";", 2)[0])
	}
	// x-amz-meta-name carries the uploader's original filename
	if name, ok := head.Metadata["name"]; ok && name != "" {
		obj.name = name
	} else if name, ok := head.Metadata["Name"]; ok && name != "" {
		obj.name = name
	}
	log.Debug().Str("key", key).Int64("size", obj.size).Str("mime", obj.mimeType).Msg("stat S3 object")
	return obj, nil
}

// Object is a media file backed by an S3 object.
type Object struct {
	s        *S3Client
	key      string
	name     string
	size     int64
	mimeType string
}

func (o *Object) Key() string      { return o.key }
func (o *Object) Name() string     { return o.name }
func (o *Object) Size() int64      { return o.size }
func (o *Object) MIMEType() string { return o.mimeType }

// SetMIMEType overrides the stored content type, e.g. after sniffing.
func (o *Object) SetMIMEType(t string) { o.mimeType = t }

// ReadAll downloads the object body. At most one byte beyond the stat size
// is read so a grown object is still detectable by the caller.
func (o *Object) ReadAll(ctx context.Context) ([]byte, error) {
	return o.read(ctx, o.size+1, "")
}

// Head returns the first n bytes of the object.
func (o *Object) Head(ctx context.Context, n int64) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	return o.read(ctx, n, fmt.Sprintf("bytes=0-%d", n-1))
}

func (o *Object) read(ctx context.Context, limit int64, byteRange string) ([]byte, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(o.s.bucketName),
		Key:    aws.String(o.key),
	}
	if byteRange != "" {
		in.Range = aws.String(byteRange)
	}
	result, err := o.s.client.GetObject(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(io.LimitReader(result.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	return data, nil
}
