package uploader

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader archives rotated transcript files to S3.
type Uploader struct {
	s3Client    *s3.Client
	bucket      string
	deleteAfter bool
	maxRetries  int
}

// New creates an uploader. When accessKeyID is empty the default AWS
// credential chain is used.
func New(ctx context.Context, bucket, region, accessKeyID, secretAccessKey string, deleteAfter bool, maxRetries int) (*Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Uploader{
		s3Client:    s3.NewFromConfig(cfg),
		bucket:      bucket,
		deleteAfter: deleteAfter,
		maxRetries:  maxRetries,
	}, nil
}

// ScanAndUploadExisting queues transcripts left over from a previous run.
func (u *Uploader) ScanAndUploadExisting(ctx context.Context, outputDir string) error {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read directory: %w", err)
	}

	var found int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		found++
		go u.uploadWithRetry(ctx, filepath.Join(outputDir, entry.Name()))
	}

	if found > 0 {
		log.Printf("Found %d leftover transcript(s) to upload", found)
	}
	return nil
}

// Start uploads files arriving on fileChan until ctx is cancelled.
func (u *Uploader) Start(ctx context.Context, fileChan <-chan string) error {
	for {
		select {
		case localPath := <-fileChan:
			// Upload in a goroutine so a slow transfer does not block
			// the next rotation.
			go u.uploadWithRetry(ctx, localPath)

		case <-ctx.Done():
			log.Println("Uploader shutting down...")
			return ctx.Err()
		}
	}
}

// uploadWithRetry uploads a file with exponential backoff.
func (u *Uploader) uploadWithRetry(ctx context.Context, localPath string) {
	filename := filepath.Base(localPath)
	key := archiveKey(filename, time.Now().UTC())

	for attempt := 0; attempt <= u.maxRetries; attempt++ {
		err := u.uploadFile(ctx, localPath, key)
		if err == nil {
			log.Printf("Uploaded %s to s3://%s/%s", filename, u.bucket, key)
			if u.deleteAfter {
				if err := os.Remove(localPath); err != nil {
					log.Printf("Error deleting local transcript %s: %v", localPath, err)
				}
			}
			return
		}

		if attempt < u.maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			log.Printf("Upload attempt %d/%d failed for %s: %v. Retrying in %v",
				attempt+1, u.maxRetries, filename, err, backoff)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
		}
	}

	log.Printf("Failed to upload %s after %d attempts", filename, u.maxRetries)
}

func (u *Uploader) uploadFile(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	_, err = u.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// archiveKey derives the S3 key for a transcript. Filenames carry their
// creation time (relay_YYYYMMDD_HHMM.jsonl); when that fails to parse the
// upload time is used instead.
func archiveKey(filename string, fallback time.Time) string {
	t := fallback
	name := strings.TrimSuffix(strings.TrimPrefix(filename, "relay_"), ".jsonl")
	if parsed, err := time.Parse("20060102_1504", name); err == nil {
		t = parsed
	}
	return fmt.Sprintf("transcripts/%04d/%02d/%02d/%s", t.Year(), t.Month(), t.Day(), filename)
}
