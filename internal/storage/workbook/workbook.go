// Package workbook persists application and comment records to a two-sheet
// .xlsx file, appending below existing rows.
package workbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
	"github.com/JakeFAU/storefront-review-crawler/internal/metrics"
)

// Sheet names.
const (
	AppsSheet     = "Apps"
	CommentsSheet = "Comments"
)

// Header rows, in column order.
var (
	AppsHeader = []string{
		"app_id", "app_name", "description_content", "installation_counts",
		"app_score", "app_category", "app_size", "app_last_update", "app_images",
	}
	CommentsHeader = []string{
		"comment_id", "app_id", "username", "account_id", "rating", "comment", "comment_date",
	}
)

// Store is a single-writer append store. All methods serialize on one mutex,
// so concurrent pipelines may share a Store for the same path.
type Store struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// New returns a store for path. The file is not touched until first use.
func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the workbook location.
func (s *Store) Path() string {
	return s.path
}

// EnsureInitialized creates the workbook with both header rows if it does not exist.
func (s *Store) EnsureInitialized(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked()
}

// Append writes one app row and its comment rows below the rows currently in
// each sheet. Row positions are read from the file on every call.
func (s *Store) Append(ctx context.Context, app crawler.ApplicationMetadata, comments []crawler.Comment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(); err != nil {
		return err
	}
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer s.closeFile(f)

	appRows, err := occupiedRows(f, AppsSheet)
	if err != nil {
		return err
	}
	row, err := appRow(app)
	if err != nil {
		return err
	}
	if err := setRow(f, AppsSheet, appRows+1, row); err != nil {
		return err
	}

	commentRows, err := occupiedRows(f, CommentsSheet)
	if err != nil {
		return err
	}
	for i, c := range comments {
		if err := setRow(f, CommentsSheet, commentRows+1+i, commentRow(c)); err != nil {
			return err
		}
	}

	if err := s.save(f); err != nil {
		return err
	}
	metrics.SetWorkbookRows(AppsSheet, appRows)
	metrics.SetWorkbookRows(CommentsSheet, commentRows-1+len(comments))
	s.logger.Debug("workbook rows appended",
		zap.String("app_id", app.AppID),
		zap.Int("apps_row", appRows+1),
		zap.Int("comments", len(comments)),
	)
	return nil
}

// RowCounts returns the number of data rows, excluding headers, in each sheet.
func (s *Store) RowCounts(ctx context.Context) (apps int, comments int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return 0, 0, fmt.Errorf("open workbook: %w", err)
	}
	defer s.closeFile(f)

	if apps, err = occupiedRows(f, AppsSheet); err != nil {
		return 0, 0, err
	}
	if comments, err = occupiedRows(f, CommentsSheet); err != nil {
		return 0, 0, err
	}
	return max(apps-1, 0), max(comments-1, 0), nil
}

func (s *Store) ensureLocked() error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat workbook: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create workbook dir: %w", err)
	}

	f := excelize.NewFile()
	defer s.closeFile(f)
	if err := f.SetSheetName(f.GetSheetName(0), AppsSheet); err != nil {
		return fmt.Errorf("name apps sheet: %w", err)
	}
	if _, err := f.NewSheet(CommentsSheet); err != nil {
		return fmt.Errorf("create comments sheet: %w", err)
	}
	if err := setRow(f, AppsSheet, 1, toCells(AppsHeader)); err != nil {
		return err
	}
	if err := setRow(f, CommentsSheet, 1, toCells(CommentsHeader)); err != nil {
		return err
	}
	if err := s.save(f); err != nil {
		return err
	}
	s.logger.Info("workbook created", zap.String("path", s.path))
	return nil
}

// save writes to a sibling temp file and renames it over the workbook so a
// failed write leaves the previous file intact.
func (s *Store) save(f *excelize.File) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	tmpName := tmp.Name()
	if err := f.Write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp workbook: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}

func (s *Store) closeFile(f *excelize.File) {
	if err := f.Close(); err != nil {
		s.logger.Warn("close workbook", zap.Error(err))
	}
}

func occupiedRows(f *excelize.File, sheet string) (int, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("read %s rows: %w", sheet, err)
	}
	return len(rows), nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("locate %s row %d: %w", sheet, row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func appRow(app crawler.ApplicationMetadata) ([]any, error) {
	images := app.AppImages
	if images == nil {
		images = []string{}
	}
	encoded, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("encode app images: %w", err)
	}
	return []any{
		app.AppID,
		clip(app.AppName),
		clip(app.DescriptionContent),
		clip(app.InstallationCounts),
		clip(app.AppScore),
		clip(app.AppCategory),
		clip(app.AppSize),
		clip(app.AppLastUpdate),
		clip(string(encoded)),
	}, nil
}

func commentRow(c crawler.Comment) []any {
	return []any{
		c.CommentID,
		c.AppID,
		clip(c.Username),
		c.AccountID,
		c.Rating,
		clip(c.Comment),
		clip(c.CommentDate),
	}
}

func toCells(header []string) []any {
	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	return cells
}

// clip truncates s to the per-cell character limit of the format.
func clip(s string) string {
	if utf8.RuneCountInString(s) <= excelize.TotalCellChars {
		return s
	}
	return string([]rune(s)[:excelize.TotalCellChars])
}
