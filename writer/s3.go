package writer

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "hyperflow/config"
	"hyperflow/logger"
	"hyperflow/models"
)

// fillRecord is the parquet row schema for archived fills.
type fillRecord struct {
	Account       string  `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Coin          string  `parquet:"name=coin, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side          string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price         float64 `parquet:"name=price, type=DOUBLE"`
	Size          float64 `parquet:"name=size, type=DOUBLE"`
	Fee           float64 `parquet:"name=fee, type=DOUBLE"`
	ClosedPnl     float64 `parquet:"name=closed_pnl, type=DOUBLE"`
	Dir           string  `parquet:"name=dir, type=BYTE_ARRAY, convertedtype=UTF8"`
	Crossed       bool    `parquet:"name=crossed, type=BOOLEAN"`
	StartPosition float64 `parquet:"name=start_position, type=DOUBLE"`
	OrderID       int64   `parquet:"name=order_id, type=INT64"`
	Timestamp     int64   `parquet:"name=timestamp, type=INT64"`
	Hash          string  `parquet:"name=hash, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)   { return mfw, nil }
func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}
func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// S3Sink buffers fills per account and periodically flushes each buffer
// to S3 as a parquet object. Persist only buffers, so it never fails;
// upload errors are logged by the flush worker.
type S3Sink struct {
	config      *appconfig.Config
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.Mutex
	running     bool
	log         *logger.Log
	buffer      map[string][]models.UserFill
	flushTicker *time.Ticker
}

const s3FlushInterval = 60 * time.Second

func NewS3Sink(cfg *appconfig.Config) (*S3Sink, error) {
	log := logger.GetLogger()

	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_sink").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	sink := &S3Sink{
		config:   cfg,
		s3Client: s3Client,
		wg:       &sync.WaitGroup{},
		log:      log,
		buffer:   make(map[string][]models.UserFill),
	}

	log.WithComponent("s3_sink").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("s3 sink initialized")

	return sink, nil
}

func (s *S3Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("s3 sink already running")
	}
	s.running = true
	s.ctx = ctx
	s.flushTicker = time.NewTicker(s3FlushInterval)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.flushWorker()

	s.log.WithComponent("s3_sink").Info("s3 sink started")
	return nil
}

func (s *S3Sink) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}

	s.log.WithComponent("s3_sink").Info("stopping s3 sink")
	s.wg.Wait()
	s.log.WithComponent("s3_sink").Info("s3 sink stopped")
}

// Persist buffers fills for the next flush.
func (s *S3Sink) Persist(fills []models.UserFill, account string) error {
	if len(fills) == 0 {
		return nil
	}
	s.mu.Lock()
	s.buffer[account] = append(s.buffer[account], fills...)
	s.mu.Unlock()
	return nil
}

func (s *S3Sink) flushWorker() {
	defer s.wg.Done()

	log := s.log.WithComponent("s3_sink").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-s.ctx.Done():
			s.flushBuffers("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-s.flushTicker.C:
			s.flushBuffers("interval")
		}
	}
}

func (s *S3Sink) flushBuffers(reason string) {
	s.mu.Lock()
	buffers := s.buffer
	s.buffer = make(map[string][]models.UserFill)
	s.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	s.log.WithComponent("s3_sink").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing fill buffers")

	for account, fills := range buffers {
		if len(fills) == 0 {
			continue
		}
		s.uploadBatch(account, fills)
	}
}

func (s *S3Sink) uploadBatch(account string, fills []models.UserFill) {
	batchID := uuid.New().String()
	log := s.log.WithComponent("s3_sink").WithFields(logger.Fields{
		"batch_id": batchID,
		"account":  account,
		"count":    len(fills),
	})

	data, err := s.createParquetFile(account, fills)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	key := s.objectKey(account, batchID)
	if err := s.uploadToS3(key, data); err != nil {
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": s.config.Storage.S3.Bucket, "s3_key": key}).
			Error("failed to upload to S3")
		return
	}

	log.WithFields(logger.Fields{
		"s3_key":    key,
		"file_size": len(data),
	}).Info("fill batch uploaded")
	logger.IncrementSinkWrite(len(fills))
}

func (s *S3Sink) objectKey(account, batchID string) string {
	now := time.Now().UTC()
	prefix := s.config.Storage.S3.Prefix
	if prefix == "" {
		prefix = "fills"
	}
	return fmt.Sprintf("%s/account=%s/date=%s/%s_%s.parquet",
		prefix,
		account,
		now.Format("2006-01-02"),
		now.Format("20060102150405"),
		batchID,
	)
}

func (s *S3Sink) createParquetFile(account string, fills []models.UserFill) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := parquetwriter.NewParquetWriter(fw, new(fillRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch s.config.Storage.S3.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, fill := range fills {
		record := fillRecord{
			Account:       account,
			Coin:          fill.Coin,
			Side:          fill.Side,
			Price:         fill.Price,
			Size:          fill.Size,
			Fee:           fill.Fee,
			ClosedPnl:     fill.ClosedPnl,
			Dir:           fill.Dir,
			Crossed:       fill.Crossed,
			StartPosition: fill.StartPosition,
			OrderID:       int64(fill.OrderID),
			Timestamp:     fill.Timestamp,
			Hash:          fill.Hash,
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}

func (s *S3Sink) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":      "parquet",
			"compression":       s.config.Storage.S3.Compression,
			"hyperflow-version": s.config.Hyperflow.Version,
		},
	}

	ctx := context.WithoutCancel(s.ctx)
	_, err := s.s3Client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", s.config.Storage.S3.Bucket, err)
	}
	return nil
}
