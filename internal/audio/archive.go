package audio

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// Archiver keeps a copy of each transcribed chunk.
type Archiver interface {
	Archive(ctx context.Context, key, path string) (string, error)
}

// S3Archiver uploads chunk files to a bucket.
type S3Archiver struct {
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

func NewS3Archiver(region, bucket, prefix string) (*S3Archiver, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("audio: aws session: %w", err)
	}
	return &S3Archiver{uploader: s3manager.NewUploader(sess), bucket: bucket, prefix: prefix}, nil
}

// Archive uploads path under prefix+key and returns the object location.
func (a *S3Archiver) Archive(ctx context.Context, key, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	result, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.prefix + key),
		Body:        file,
		ContentType: aws.String("audio/wav"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return result.Location, nil
}
