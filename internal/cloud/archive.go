package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"

	"github.com/FairForge/warmstandby/internal/ha"
)

// S3API is the subset of the S3 client used here
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive implements ha.RunArchiver as gzip JSON objects
type S3Archive struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Archive(client S3API, bucket, prefix string) *S3Archive {
	if prefix == "" {
		prefix = "failover-runs"
	}
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key for a run
func (a *S3Archive) Key(run *ha.Run) string {
	return path.Join(a.prefix, run.Domain, run.StartedAt.UTC().Format("2006/01/02"), run.ID+".json.gz")
}

// Archive uploads the run record
func (a *S3Archive) Archive(ctx context.Context, run *ha.Run) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(run); err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress run %s: %w", run.ID, err)
	}

	key := a.Key(run)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
		Metadata: map[string]string{
			"domain": run.Domain,
			"status": string(run.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", a.bucket, key, err)
	}
	return nil
}
