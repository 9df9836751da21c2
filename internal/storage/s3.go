package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectAPI is the part of *s3.Client the bucket uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds settings for an S3-compatible bucket.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for S3-compatible hosts
	PublicURL string // optional base for object URLs
}

// S3Bucket stores objects in S3 or an S3-compatible service.
type S3Bucket struct {
	client    objectAPI
	bucket    string
	publicURL string
}

// NewS3Bucket creates a bucket using the default AWS credential chain.
func NewS3Bucket(ctx context.Context, cfg S3Config) (*S3Bucket, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Bucket(client, cfg), nil
}

func newS3Bucket(client objectAPI, cfg S3Config) *S3Bucket {
	public := strings.TrimSuffix(cfg.PublicURL, "/")
	if public == "" {
		if cfg.Endpoint != "" {
			public = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			public = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return &S3Bucket{client: client, bucket: cfg.Bucket, publicURL: public}
}

// Put uploads the object and returns its public URL.
func (b *S3Bucket) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}

	// The SDK signs the payload, so it needs a seekable body.
	data, err := readLimited(r)
	if err != nil {
		return "", err
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}

	return b.publicURL + "/" + key, nil
}

// Delete removes the object.
func (b *S3Bucket) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}
