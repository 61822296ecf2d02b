// Package ledger appends failed targets to a CSV log.
package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
	"github.com/JakeFAU/storefront-review-crawler/internal/metrics"
)

// Header is the first row of every ledger file.
var Header = []string{"url", "error_type", "error_message"}

// Ledger implements crawler.FailureLedger on a CSV file.
type Ledger struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// New returns a ledger writing to path. The file is created on first Record.
func New(path string, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{path: path, logger: logger}
}

// Record appends one row. Write failures are logged and never returned.
func (l *Ledger) Record(_ context.Context, record crawler.FailureRecord) {
	metrics.ObserveFailure(string(record.ErrorKind))

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.append(record); err != nil {
		l.logger.Error("failure ledger write failed",
			zap.String("path", l.path),
			zap.String("url", record.URL),
			zap.String("error_type", string(record.ErrorKind)),
			zap.String("error_message", record.ErrorMessage),
			zap.Error(err),
		)
	}
}

func (l *Ledger) append(record crawler.FailureRecord) (err error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close ledger: %w", closeErr)
		}
	}()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("write ledger header: %w", err)
		}
	}
	if err := w.Write([]string{record.URL, string(record.ErrorKind), record.ErrorMessage}); err != nil {
		return fmt.Errorf("write ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	return nil
}
