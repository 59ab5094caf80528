package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Entry is one line of the relay transcript: a message that crossed the
// bridge in either direction.
type Entry struct {
	Direction string `json:"direction"` // "discord" or "game"
	Timestamp string `json:"timestamp"` // RFC3339, UTC
	Username  string `json:"username"`
	Content   string `json:"content"`
}

// Recorder writes relayed messages to rotating JSONL transcript files and
// hands completed files to the uploader.
type Recorder struct {
	outputDir       string
	rotateMinutes   int
	rotateMegabytes int64

	file         *os.File
	writer       *bufio.Writer
	filename     string
	createdAt    time.Time
	bytesWritten int64
}

// New creates a new recorder
func New(outputDir string, rotateMinutes, rotateMegabytes int) *Recorder {
	return &Recorder{
		outputDir:       outputDir,
		rotateMinutes:   rotateMinutes,
		rotateMegabytes: int64(rotateMegabytes) * 1024 * 1024,
	}
}

// Start consumes transcript entries until ctx is cancelled, rotating the
// transcript on age or size and queueing rotated files on fileChan.
func (r *Recorder) Start(ctx context.Context, entries <-chan Entry, fileChan chan<- string) error {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case entry := <-entries:
			if err := r.write(entry); err != nil {
				log.Printf("Error recording transcript entry: %v", err)
			}

		case <-ticker.C:
			if r.file != nil && r.needsRotation() {
				r.rotate(fileChan)
			}

		case <-ctx.Done():
			log.Println("Recorder shutting down, closing transcript...")
			r.close(fileChan)
			return ctx.Err()
		}
	}
}

// write appends one entry to the current transcript, opening a new file if
// none is active.
func (r *Recorder) write(entry Entry) error {
	if r.file == nil {
		if err := r.open(); err != nil {
			return fmt.Errorf("open transcript: %w", err)
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	n, err := r.writer.Write(data)
	if err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	r.bytesWritten += int64(n)

	if err := r.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	r.bytesWritten++

	return r.writer.Flush()
}

func (r *Recorder) open() error {
	timestamp := time.Now().UTC().Format("20060102_1504")
	r.filename = fmt.Sprintf("relay_%s.jsonl", timestamp)

	file, err := os.Create(filepath.Join(r.outputDir, r.filename))
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	log.Printf("Created new transcript file: %s", r.filename)

	r.file = file
	r.writer = bufio.NewWriter(file)
	r.createdAt = time.Now()
	r.bytesWritten = 0
	return nil
}

func (r *Recorder) needsRotation() bool {
	if time.Since(r.createdAt).Minutes() >= float64(r.rotateMinutes) {
		log.Printf("Rotating transcript %s (time limit)", r.filename)
		return true
	}
	if r.bytesWritten >= r.rotateMegabytes {
		log.Printf("Rotating transcript %s (size limit)", r.filename)
		return true
	}
	return false
}

// rotate closes the current transcript and queues it for upload. The next
// write opens a fresh file.
func (r *Recorder) rotate(fileChan chan<- string) {
	r.close(fileChan)
}

func (r *Recorder) close(fileChan chan<- string) {
	if r.file == nil {
		return
	}

	if err := r.writer.Flush(); err != nil {
		log.Printf("Error flushing transcript: %v", err)
	}
	if err := r.file.Close(); err != nil {
		log.Printf("Error closing transcript: %v", err)
	}

	path := filepath.Join(r.outputDir, r.filename)
	select {
	case fileChan <- path:
		log.Printf("Queued transcript for upload: %s", r.filename)
	default:
		log.Printf("Warning: upload queue full, transcript will be uploaded later: %s", r.filename)
	}

	r.file = nil
	r.writer = nil
}
