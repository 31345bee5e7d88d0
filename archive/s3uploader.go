package archive

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Uploader is the only concrete Uploader: it PUTs to a bucket using the
// AWS SDK's default credential chain, optionally overridden by static
// credentials sourced from config.Config.
type S3Uploader struct {
	client *s3.Client
	bucket string
}

// NewS3Uploader builds an S3Uploader for bucket in region. If accessKeyID
// is non-empty, static credentials are used; otherwise the SDK's default
// chain (environment, shared config, EC2/ECS role) applies.
func NewS3Uploader(ctx context.Context, bucket, region, accessKeyID, secretAccessKey string) (*S3Uploader, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &S3Uploader{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// Put uploads body as key with the given storage class and metadata,
// satisfying archive.Uploader.
func (u *S3Uploader) Put(ctx context.Context, key string, body io.Reader, size int64, storageClass string, metadata map[string]string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		StorageClass:  types.StorageClass(storageClass),
		Metadata:      metadata,
	})
	return err
}
