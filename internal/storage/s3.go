package storage

import (
	"bytes"   // Buffering non seekable bodies
	"context" // Context for S3 calls
	"errors"  // Error matching
	"fmt"     // Error wrapping
	"io"      // Readers

	"github.com/aws/aws-sdk-go-v2/aws"              // AWS helpers
	"github.com/aws/aws-sdk-go-v2/config"           // SDK config loader
	"github.com/aws/aws-sdk-go-v2/credentials"      // Static credentials
	"github.com/aws/aws-sdk-go-v2/service/s3"       // S3 client
	"github.com/aws/aws-sdk-go-v2/service/s3/types" // S3 error types
)

// S3Options configures an S3 compatible bucket (AWS or MinIO)
type S3Options struct {
	Region    string // Region, required by the SDK even for MinIO
	Endpoint  string // Base endpoint, empty for AWS
	AccessKey string // Access key id
	SecretKey string // Secret access key
	Bucket    string // Bucket holding the videos
}

// objectAPI is the subset of the S3 client the storage uses
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage stores files as objects in a bucket
type S3Storage struct {
	client objectAPI
	bucket string
}

// NewS3Storage builds a client from static credentials
func NewS3Storage(ctx context.Context, opts S3Options) (*S3Storage, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true // MinIO addressing
		}
	})
	return &S3Storage{client: client, bucket: opts.Bucket}, nil
}

// Save uploads r under key
func (s *S3Storage) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	body, size, err := sizedBody(r)
	if err != nil {
		return 0, fmt.Errorf("read upload: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return 0, fmt.Errorf("put object: %w", err)
	}
	return size, nil
}

// Open streams the object body
func (s *S3Storage) Open(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return &Object{ReadCloser: out.Body, Size: aws.ToInt64(out.ContentLength)}, nil
}

// Delete removes the object
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// sizedBody returns a seekable body and its length.
// Multipart uploads are already seekable; anything else is buffered.
func sizedBody(r io.Reader) (io.ReadSeeker, int64, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		start, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, 0, err
		}
		end, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, err
		}
		if _, err := rs.Seek(start, io.SeekStart); err != nil {
			return nil, 0, err
		}
		return rs, end - start, nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(b), int64(len(b)), nil
}
