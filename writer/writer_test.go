package writer

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	appconfig "hyperflow/config"
	"hyperflow/models"
)

func TestFileSinkAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	account := "0xabc123"
	first := []models.UserFill{
		{Coin: "BTC", Side: "B", Price: 50000, Size: 0.1, Hash: "0x1"},
	}
	second := []models.UserFill{
		{Coin: "ETH", Side: "A", Price: 3000, Size: 1, Hash: "0x2"},
		{Coin: "ETH", Side: "A", Price: 3001, Size: 2, Hash: "0x3"},
	}

	if err := sink.Persist(first, account); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sink.Persist(second, account); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	file, err := os.Open(filepath.Join(dir, account+"_fills.log"))
	if err != nil {
		t.Fatalf("expected per-account fills file: %v", err)
	}
	defer file.Close()

	var fills []models.UserFill
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var fill models.UserFill
		if err := json.Unmarshal(scanner.Bytes(), &fill); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		fills = append(fills, fill)
	}

	if len(fills) != 3 {
		t.Fatalf("expected 3 appended fills, got %d", len(fills))
	}
	if fills[0].Hash != "0x1" || fills[2].Hash != "0x3" {
		t.Errorf("fills written out of order: %+v", fills)
	}
}

func TestFileSinkEmptyBatch(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	if err := sink.Persist(nil, "0xabc"); err != nil {
		t.Fatalf("empty batch must be a no-op, got: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "0xabc_fills.log")); !os.IsNotExist(err) {
		t.Error("empty batch must not create a file")
	}
}

func TestFileNameForAccount(t *testing.T) {
	if got := fileNameForAccount("0xDeadBeef"); got != "0xDeadBeef_fills.log" {
		t.Errorf("unexpected file name: %s", got)
	}
	if got := fileNameForAccount(""); got != "unknown_fills.log" {
		t.Errorf("expected fallback name for empty account, got: %s", got)
	}
	if got := fileNameForAccount("../../etc/passwd"); strings.ContainsAny(got, "/\\") {
		t.Errorf("file name must not contain path separators: %s", got)
	}
}

func TestS3SinkParquetEncoding(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Storage.S3.Compression = "snappy"
	sink := &S3Sink{config: cfg}

	fills := []models.UserFill{
		{Coin: "BTC", Side: "B", Price: 50000, Size: 0.5, Fee: 0.0001, OrderID: 42, Timestamp: 1700000000000, Hash: "0xaa"},
		{Coin: "BTC", Side: "A", Price: 50100, Size: 0.5, Fee: 2.5, OrderID: 43, Timestamp: 1700000001000, Hash: "0xbb"},
	}

	data, err := sink.createParquetFile("0xabc", fills)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty parquet payload")
	}
	// parquet files start and end with the PAR1 magic
	if string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Error("payload is not a parquet file")
	}
}

func TestS3SinkObjectKey(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Storage.S3.Prefix = "archive"
	sink := &S3Sink{config: cfg}

	key := sink.objectKey("0xabc", "batch-1")
	if !strings.HasPrefix(key, "archive/account=0xabc/date=") {
		t.Errorf("unexpected key layout: %s", key)
	}
	if !strings.HasSuffix(key, "_batch-1.parquet") {
		t.Errorf("expected batch id suffix: %s", key)
	}
}
