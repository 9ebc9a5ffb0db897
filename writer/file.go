package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hyperflow/logger"
	"hyperflow/models"
)

// FileSink is the fallback sink when no database or object store is
// configured. It appends one JSON object per line to one file per
// account.
type FileSink struct {
	dir string
	log *logger.Entry
}

func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{
		dir: dir,
		log: logger.GetLogger().WithComponent("file_sink"),
	}
}

func (s *FileSink) Persist(fills []models.UserFill, account string) error {
	if len(fills) == 0 {
		return nil
	}

	path := filepath.Join(s.dir, fileNameForAccount(account))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open fills file %s: %w", path, err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, fill := range fills {
		if err := enc.Encode(fill); err != nil {
			return fmt.Errorf("failed to write fill to %s: %w", path, err)
		}
	}

	logger.LogDataFlowEntry(s.log, "dispatcher", path, len(fills), "user_fills")
	logger.IncrementSinkWrite(len(fills))
	return nil
}

func fileNameForAccount(account string) string {
	if account == "" {
		account = "unknown"
	}
	// account addresses are hex strings; strip path separators anyway
	account = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, account)
	return account + "_fills.log"
}
