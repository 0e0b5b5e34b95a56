package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Fetcher is the reference Fetcher: pulls a previously-uploaded
// PCM/WAV blob out of a bucket by object key.
type S3Fetcher struct {
	client *s3.Client
	bucket string
}

// NewS3Fetcher loads the default AWS config (environment, shared config
// file, or instance role, in that order) and returns a Fetcher bound to
// bucket in region.
func NewS3Fetcher(ctx context.Context, region, bucket string) (*S3Fetcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &S3Fetcher{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// Fetch downloads the object at ref (the S3 key) and returns its bytes.
func (f *S3Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching s3 object %s: %w", ref, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3 object %s: %w", ref, err)
	}
	return data, nil
}
