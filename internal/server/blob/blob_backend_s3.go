package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Backend stores objects in an S3 compatible bucket (AWS, MinIO).
type S3Backend struct {
	s3Client *s3.Client
	config   *S3Config
}

func NewS3Backend(s3Client *s3.Client, config *S3Config) *S3Backend {
	return &S3Backend{
		s3Client: s3Client,
		config:   config,
	}
}

func NewS3BackendWithConfig(ctx context.Context, cfg *S3Config) (*S3Backend, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          200,
			MaxIdleConnsPerHost:   100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 30 * time.Second,
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	awsClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UseAccelerate {
			o.UseAccelerate = true
		}
	})

	return NewS3Backend(awsClient, cfg), nil
}

func (s *S3Backend) objectKey(key string) string {
	if s.config.Prefix == "" {
		return key
	}
	return path.Join(s.config.Prefix, key)
}

func (s *S3Backend) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:       &s.config.BucketName,
		Key:          aws.String(s.objectKey(key)),
		ChecksumMode: types.ChecksumModeEnabled,
	})
	if err != nil {
		return nil, mapS3Error(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}

	return &GetObjectResponse{
		Body:         body,
		Size:         aws.ToInt64(resp.ContentLength),
		ETag:         cleanETag(resp.ETag),
		LastModified: aws.ToTime(resp.LastModified),
	}, nil
}

func (s *S3Backend) HeadObject(ctx context.Context, key string) (*BlobInfo, error) {
	resp, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.config.BucketName,
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, mapS3Error(err)
	}

	return &BlobInfo{
		Key:          key,
		ETag:         cleanETag(resp.ETag),
		Size:         aws.ToInt64(resp.ContentLength),
		LastModified: aws.ToTime(resp.LastModified).Format(time.RFC3339),
	}, nil
}

func (s *S3Backend) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	if !ValidateKey(params.Key) {
		return nil, ErrInvalidKey
	}

	input := &s3.PutObjectInput{
		Bucket:        &s.config.BucketName,
		Key:           aws.String(s.objectKey(params.Key)),
		Body:          bytes.NewReader(params.Body),
		ContentLength: aws.Int64(int64(len(params.Body))),
	}
	if params.ContentType != "" {
		input.ContentType = aws.String(params.ContentType)
	}

	resp, err := s.s3Client.PutObject(ctx, input)
	if err != nil {
		return nil, err
	}

	// s3.PutObjectOutput does not have LastModified
	return &PutObjectResponse{
		Key:          params.Key,
		ETag:         cleanETag(resp.ETag),
		Size:         int64(len(params.Body)),
		LastModified: time.Now().UTC(),
	}, nil
}

func (s *S3Backend) DeleteObject(ctx context.Context, key string) (bool, error) {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.config.BucketName,
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *S3Backend) ListObjects(ctx context.Context) ([]*BlobInfo, error) {
	var objects []*BlobInfo

	input := &s3.ListObjectsV2Input{Bucket: &s.config.BucketName}
	if s.config.Prefix != "" {
		input.Prefix = aws.String(s.config.Prefix + "/")
	}

	paginator := s3.NewListObjectsV2Paginator(s.s3Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.config.Prefix != "" {
				key = strings.TrimPrefix(key, s.config.Prefix+"/")
			}
			objects = append(objects, &BlobInfo{
				Key:          key,
				ETag:         cleanETag(obj.ETag),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified).Format(time.RFC3339),
			})
		}
	}

	return objects, nil
}

func cleanETag(etag *string) string {
	return strings.ReplaceAll(aws.ToString(etag), "\"", "")
}

func mapS3Error(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	}
	return err
}

var _ BlobBackend = (*S3Backend)(nil)
