package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/parth-sh/backend-api/internal/config"
)

// objectPutter is the slice of the S3 client the outbox uses.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Outbox writes each notification as a JSON object under
// <prefix>/<purpose>/<date>/<uuid>.json for an external mail worker to
// pick up.
type S3Outbox struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Outbox creates an outbox backed by an S3-compatible bucket
func NewS3Outbox(ctx context.Context, cfg config.S3Config) (*S3Outbox, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("notify.s3.bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, oops.Code("S3_CONFIG_FAILED").Wrap(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Outbox(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Outbox(client objectPutter, bucket, prefix string) *S3Outbox {
	if prefix == "" {
		prefix = "outbox"
	}
	return &S3Outbox{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

func (o *S3Outbox) key(n Notification) string {
	return path.Join(o.prefix, n.Purpose, o.now().UTC().Format("2006-01-02"), uuid.NewString()+".json")
}

func (o *S3Outbox) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	key := o.key(n)
	_, err = o.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return oops.Code("OUTBOX_PUT_FAILED").With("bucket", o.bucket).With("key", key).Wrap(err)
	}
	return nil
}
