// Package snapshot captures periodic diagnostic snapshots of the executor
// and cache and exports them to S3-compatible object storage.
package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// ExporterConfig contains configuration for the object storage exporter
type ExporterConfig struct {
	Endpoint   string
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	PathPrefix string
}

// NewExporterConfigFromEnv creates an exporter config from environment
// variables.
func NewExporterConfigFromEnv() ExporterConfig {
	return ExporterConfig{
		Endpoint:   os.Getenv("SNAPSHOT_S3_ENDPOINT"),
		Region:     getEnvOrDefault("SNAPSHOT_S3_REGION", "us-east-1"),
		Bucket:     getEnvOrDefault("SNAPSHOT_S3_BUCKET", "talon-snapshots"),
		AccessKey:  os.Getenv("SNAPSHOT_S3_ACCESS_KEY"),
		SecretKey:  os.Getenv("SNAPSHOT_S3_SECRET_KEY"),
		PathPrefix: getEnvOrDefault("SNAPSHOT_S3_PREFIX", "diagnostics/"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Exporter uploads snapshots to an S3-compatible bucket.
type Exporter struct {
	client     *s3.S3
	bucket     string
	pathPrefix string
	now        func() time.Time
}

// NewExporter creates a new object storage exporter
func NewExporter(cfg ExporterConfig) (*Exporter, error) {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:    aws.String(cfg.Endpoint),
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Exporter{
		client:     s3.New(sess),
		bucket:     cfg.Bucket,
		pathPrefix: cfg.PathPrefix,
		now:        time.Now,
	}, nil
}

// objectKey builds a date-partitioned object key for a snapshot.
func (e *Exporter) objectKey(service string, now time.Time) string {
	return fmt.Sprintf("%s%s/%s-%s.json",
		e.pathPrefix, now.Format("2006-01-02"), service, now.UTC().Format("150405"))
}

// Upload stores a snapshot payload and returns the object key.
func (e *Exporter) Upload(service string, data io.Reader) (string, error) {
	key := e.objectKey(service, e.now())

	// AWS SDK requires io.ReadSeeker
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", fmt.Errorf("failed to read snapshot data: %w", err)
	}

	_, err := e.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
		Metadata: map[string]*string{
			"service":       aws.String(service),
			"snapshot-time": aws.String(e.now().UTC().Format(time.RFC3339)),
		},
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}

	return key, nil
}

// Get retrieves a stored snapshot by object key.
func (e *Exporter) Get(key string) (io.ReadCloser, error) {
	result, err := e.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	return result.Body, nil
}

// List lists the snapshots stored for a specific date.
func (e *Exporter) List(date time.Time) ([]*s3.Object, error) {
	prefix := fmt.Sprintf("%s%s/", e.pathPrefix, date.Format("2006-01-02"))

	result, err := e.client.ListObjectsV2(&s3.ListObjectsV2Input{
		Bucket: aws.String(e.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	return result.Contents, nil
}

// Delete removes a stored snapshot.
func (e *Exporter) Delete(key string) error {
	_, err := e.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	return nil
}
