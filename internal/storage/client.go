// Package storage builds and caches tenant object-storage clients.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/smallbiznis/tenantgate/pkg/tenantctx"
)

var ErrIncompleteCredentials = errors.New("incomplete_storage_credentials")

// bucketAPI is the subset of *s3.Client used here.
type bucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Client is a tenant-scoped S3 client bound to one bucket.
type Client struct {
	api    bucketAPI
	bucket string
}

// NewClient builds an S3 client from static tenant credentials. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func NewClient(ctx context.Context, creds tenantctx.StorageCredentials) (*Client, error) {
	if strings.TrimSpace(creds.Bucket) == "" ||
		strings.TrimSpace(creds.AccessKeyID) == "" ||
		strings.TrimSpace(creds.SecretAccessKey) == "" {
		return nil, ErrIncompleteCredentials
	}
	region := strings.TrimSpace(creds.Region)
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID,
			creds.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(creds.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{api: api, bucket: creds.Bucket}, nil
}

func (c *Client) Bucket() string { return c.bucket }

// Ping checks that the bucket is reachable with the tenant's credentials.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", c.bucket, err)
	}
	return nil
}
