package remote

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/securedrive/internal/common"
	"github.com/dmitrijs2005/securedrive/internal/logging"
)

// metaNameKey is the object metadata key holding the container file name.
const metaNameKey = "securedrive-name"

// Config holds the S3 connection settings. BaseEndpoint is set for
// MinIO-style deployments and left empty for AWS itself.
type Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
}

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, in, optFns...)
	}
	headObject = func(c *s3.Client, ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
		return c.HeadObject(ctx, in, optFns...)
	}
	listObjectsV2 = func(c *s3.Client, ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
		return c.ListObjectsV2(ctx, in, optFns...)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in, optFns...)
	}
	headBucket = func(c *s3.Client, ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
		return c.HeadBucket(ctx, in, optFns...)
	}
)

// StorageKey returns a date-sharded key for a new upload.
func StorageKey() string {
	d := time.Now()
	return fmt.Sprintf("uploads/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

// S3Client stores containers in a single bucket under date-sharded keys,
// keeping the original container name in object metadata.
type S3Client struct {
	client *s3.Client
	bucket string
	log    logging.Logger
}

// NewS3Client builds the backend from cfg using static credentials.
func NewS3Client(ctx context.Context, cfg Config, log logging.Logger) (*S3Client, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", common.ErrTransport, err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
	})

	return &S3Client{client: client, bucket: cfg.Bucket, log: log}, nil
}

func (c *S3Client) Upload(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	key := StorageKey()

	_, err := putObject(c.client, ctx, &s3.PutObjectInput{
		Bucket:        &c.bucket,
		Key:           &key,
		Body:          r,
		ContentLength: aws.Int64(size),
		Metadata:      map[string]string{metaNameKey: name},
	})
	if err != nil {
		return "", fmt.Errorf("%w: put object: %v", common.ErrTransport, err)
	}

	c.log.Debug(ctx, "object stored", "key", key, "bytes", size)
	return key, nil
}

func (c *S3Client) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	out, err := getObject(c.client, ctx, &s3.GetObjectInput{Bucket: &c.bucket, Key: &key})
	if err != nil {
		return 0, fmt.Errorf("%w: get object %s: %v", common.ErrTransport, key, err)
	}
	defer out.Body.Close()

	n, err := io.Copy(w, out.Body)
	if err != nil {
		return n, fmt.Errorf("%w: copy object %s: %v", common.ErrIO, key, err)
	}
	return n, nil
}

// List walks the whole bucket page by page. Object names come from metadata,
// so each page costs one HeadObject per key; a failed head degrades to an
// empty name rather than failing the listing.
func (c *S3Client) List(ctx context.Context) ([]Object, error) {
	var result []Object

	var token *string
	for {
		out, err := listObjectsV2(c.client, ctx, &s3.ListObjectsV2Input{
			Bucket:            &c.bucket,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: list objects: %v", common.ErrTransport, err)
		}

		for _, it := range out.Contents {
			o := Object{Key: aws.ToString(it.Key), Size: aws.ToInt64(it.Size)}
			if it.LastModified != nil {
				o.LastModified = *it.LastModified
			}
			head, err := headObject(c.client, ctx, &s3.HeadObjectInput{Bucket: &c.bucket, Key: it.Key})
			if err != nil {
				c.log.Warn(ctx, "could not read object metadata", "key", o.Key, "error", err)
			} else {
				o.Name = head.Metadata[metaNameKey]
			}
			result = append(result, o)
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastModified.After(result[j].LastModified)
	})
	return result, nil
}

func (c *S3Client) Delete(ctx context.Context, key string) error {
	_, err := deleteObject(c.client, ctx, &s3.DeleteObjectInput{Bucket: &c.bucket, Key: &key})
	if err != nil {
		return fmt.Errorf("%w: delete object %s: %v", common.ErrTransport, key, err)
	}
	c.log.Info(ctx, "object deleted", "key", key)
	return nil
}

func (c *S3Client) Verify(ctx context.Context) error {
	_, err := headBucket(c.client, ctx, &s3.HeadBucketInput{Bucket: &c.bucket})
	if err != nil {
		return fmt.Errorf("%w: bucket %s not reachable: %v", common.ErrTransport, c.bucket, err)
	}
	return nil
}
