package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/udovin/robojudge/internal/config"
)

const defaultS3Region = "us-east-1"

// S3Storage stores objects in S3-compatible bucket.
type S3Storage struct {
	client     *s3.Client
	bucket     string
	pathPrefix string
}

// NewS3Storage creates storage for specified bucket.
func NewS3Storage(options config.S3StorageOptions) *S3Storage {
	region := options.Region
	if region == "" {
		region = defaultS3Region
	}
	s3Options := s3.Options{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			options.AccessKeyID, options.SecretAccessKey, "",
		),
		UsePathStyle: options.UsePathStyle,
	}
	if options.Endpoint != "" {
		s3Options.EndpointResolver = s3.EndpointResolverFromURL(options.Endpoint)
	}
	return &S3Storage{
		client:     s3.New(s3Options),
		bucket:     options.Bucket,
		pathPrefix: options.PathPrefix,
	}
}

func (s *S3Storage) Put(ctx context.Context, key string, r io.Reader) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	// Request signing over plain HTTP requires seekable body.
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.pathPrefix + clean),
		Body:   body,
	})
	return err
}

func (s *S3Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.pathPrefix + clean),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, notExistError{key: key}
		}
		return nil, err
	}
	return output.Body, nil
}

var _ Storage = (*S3Storage)(nil)
