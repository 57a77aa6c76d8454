// internal/objectstore/s3.go
// Package objectstore provides the S3-compatible storage client used for
// validation probes and array-store introspection. It handles existence
// checks, prefix listing, and object reads against AWS S3 or compatible
// services.
package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Object describes one listed object.
type Object struct {
	Key  string // Full object key
	Size int64  // Object size in bytes
}

// Client wraps the AWS S3 client for read-only catalog source inspection.
type Client struct {
	client *s3.Client // AWS S3 client
}

// NewClient creates a new S3 client for source inspection.
// It supports both AWS S3 and S3-compatible services like MinIO.
// Parameters:
//   - endpoint: S3 service endpoint URL (empty for AWS default)
//   - region: AWS region (or equivalent for S3-compatible services)
//   - accessKey: Access key for authentication (empty for ambient credentials)
//   - secretKey: Secret key for authentication
// Returns:
//   - *Client: Initialized S3 client
//   - error: Any error that occurred during initialization
func NewClient(endpoint, region, accessKey, secretKey string) (*Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}
	if accessKey != "" {
		// Configure static credentials
		opts = append(opts, config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     accessKey,
					SecretAccessKey: secretKey,
				}, nil
			})))
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client with path-style addressing for compatibility
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true // Required for MinIO and other S3-compatible services
	})

	return &Client{client: client}, nil
}

// Head checks that an object exists and returns its size.
func (c *Client) Head(ctx context.Context, bucket, key string) (int64, error) {
	result, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to head s3://%s/%s: %w", bucket, key, err)
	}

	var size int64
	if result.ContentLength != nil {
		size = *result.ContentLength
	}
	return size, nil
}

// List returns up to max objects under a bucket/prefix.
func (c *Client) List(ctx context.Context, bucket, prefix string, max int32) ([]Object, error) {
	result, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(max),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list s3://%s/%s: %w", bucket, prefix, err)
	}

	objects := make([]Object, 0, len(result.Contents))
	for _, obj := range result.Contents {
		var o Object
		if obj.Key != nil {
			o.Key = *obj.Key
		}
		if obj.Size != nil {
			o.Size = *obj.Size
		}
		objects = append(objects, o)
	}
	return objects, nil
}

// Get reads a whole object into memory.
func (c *Client) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}
