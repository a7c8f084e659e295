package journal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"opsflow/logger"
)

// Config parameterizes the raw frame journal.
type Config struct {
	Dir             string
	MaxSegmentBytes int64
	RotateInterval  time.Duration

	S3Enabled       bool
	S3Bucket        string
	S3Region        string
	S3Prefix        string
	AccessKeyID     string
	SecretAccessKey string
}

func (c *Config) applyDefaults() {
	if c.MaxSegmentBytes <= 0 {
		c.MaxSegmentBytes = 16 << 20
	}
	if c.RotateInterval <= 0 {
		c.RotateInterval = 5 * time.Minute
	}
	if c.S3Prefix == "" {
		c.S3Prefix = "opsflow/journal"
	}
}

// Journal appends raw stream frames to JSONL segment files and rotates them
// by size and age. Sealed segments are optionally uploaded to S3 and removed
// locally on success. Append never blocks on the upload path.
type Journal struct {
	cfg      Config
	log      *logger.Log
	s3Client *s3.Client

	mu       sync.Mutex
	file     *os.File
	size     int64
	openedAt time.Time
	closed   bool

	uploadWG sync.WaitGroup
}

// NewJournal opens the journal directory and the first segment.
func NewJournal(cfg Config) (*Journal, error) {
	cfg.applyDefaults()
	if cfg.Dir == "" {
		return nil, fmt.Errorf("journal directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	j := &Journal{
		cfg: cfg,
		log: logger.GetLogger(),
	}

	if cfg.S3Enabled {
		client, err := newS3Client(cfg)
		if err != nil {
			return nil, err
		}
		j.s3Client = client
	}

	if err := j.openSegmentLocked(); err != nil {
		return nil, err
	}
	return j, nil
}

func newS3Client(cfg Config) (*s3.Client, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required for journal upload")
	}

	ctx := context.Background()
	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.S3Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.S3Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// Append records one raw frame as a JSONL line. Frames arriving after Close
// are dropped.
func (j *Journal) Append(frame []byte) {
	line := bytes.TrimSpace(frame)
	if len(line) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || j.file == nil {
		return
	}

	if j.size+int64(len(line))+1 > j.cfg.MaxSegmentBytes || time.Since(j.openedAt) >= j.cfg.RotateInterval {
		j.rotateLocked()
	}

	// line aliases the caller's frame; build the record in a fresh buffer.
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	n, err := j.file.Write(buf)
	if err != nil {
		j.log.WithComponent("journal").WithError(err).Warn("failed to append frame")
		return
	}
	j.size += int64(n)
}

// Rotate seals the active segment and opens a fresh one.
func (j *Journal) Rotate() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	j.rotateLocked()
}

func (j *Journal) rotateLocked() {
	sealed := j.sealLocked()
	if err := j.openSegmentLocked(); err != nil {
		j.log.WithComponent("journal").WithError(err).Warn("failed to open new segment")
	}
	if sealed != "" {
		j.dispatchUpload(sealed)
	}
}

// sealLocked closes the active segment and returns its path, or "" when the
// segment holds no data.
func (j *Journal) sealLocked() string {
	if j.file == nil {
		return ""
	}
	path := j.file.Name()
	if err := j.file.Close(); err != nil {
		j.log.WithComponent("journal").WithError(err).Warn("failed to close segment")
	}
	j.file = nil

	if j.size == 0 {
		os.Remove(path)
		return ""
	}
	return path
}

func (j *Journal) openSegmentLocked() error {
	now := time.Now().UTC()
	name := fmt.Sprintf("events-%s-%d.jsonl", now.Format("20060102T150405"), now.UnixMilli()%1000)

	f, err := os.OpenFile(filepath.Join(j.cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal segment: %w", err)
	}
	j.file = f
	j.size = 0
	j.openedAt = time.Now()
	return nil
}

func (j *Journal) dispatchUpload(path string) {
	if j.s3Client == nil {
		return
	}
	j.uploadWG.Add(1)
	go func() {
		defer j.uploadWG.Done()
		if err := j.upload(path); err != nil {
			j.log.WithComponent("journal").WithError(err).WithFields(logger.Fields{"segment": path}).Warn("failed to upload segment")
			return
		}
		os.Remove(path)
		j.log.WithComponent("journal").WithFields(logger.Fields{"segment": path}).Debug("uploaded journal segment")
	}()
}

func (j *Journal) upload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%s/%s/%s",
		strings.TrimSuffix(j.cfg.S3Prefix, "/"),
		time.Now().UTC().Format("2006-01-02"),
		filepath.Base(path),
	)

	_, err = j.s3Client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(j.cfg.S3Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

// Close seals the active segment, uploads it and waits for pending uploads.
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	sealed := j.sealLocked()
	if sealed != "" {
		j.dispatchUpload(sealed)
	}
	j.mu.Unlock()

	j.uploadWG.Wait()
}
