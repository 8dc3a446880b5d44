package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/garyjia/guide-audit/internal/application/port"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"go.uber.org/zap"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// LocalReportArchive implements port.ReportArchive on the local filesystem
type LocalReportArchive struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalReportArchive creates a new LocalReportArchive rooted at baseDir
func NewLocalReportArchive(baseDir string, logger *zap.Logger) port.ReportArchive {
	return &LocalReportArchive{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Save writes content under the sanitized name and returns the full path
func (s *LocalReportArchive) Save(ctx context.Context, name string, content []byte) (string, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		s.logger.Error("Failed to create archive directory",
			zap.String("path", s.baseDir),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	// write to a temp file first so readers never see a partial workbook
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		s.logger.Error("Failed to write report",
			zap.String("path", tmp),
			zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to move report into place: %w", err)
	}

	s.logger.Debug("Report archived",
		zap.String("path", fullPath),
		zap.Int("size", len(content)))

	return fullPath, nil
}

// Read returns the content of an archived report
func (s *LocalReportArchive) Read(ctx context.Context, name string) ([]byte, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, entity.NewNotFound("report", name)
	}
	if err != nil {
		s.logger.Error("Failed to read report",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// List returns archived reports, newest first
func (s *LocalReportArchive) List(ctx context.Context) ([]port.ArchivedReport, error) {
	dirEntries, err := os.ReadDir(s.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return []port.ArchivedReport{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}

	out := make([]port.ArchivedReport, 0, len(dirEntries))
	for _, d := range dirEntries {
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		out = append(out, port.ArchivedReport{
			Name:       d.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModifiedAt.Equal(out[j].ModifiedAt) {
			return out[i].ModifiedAt.After(out[j].ModifiedAt)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Delete removes an archived report. Missing reports are not an error.
func (s *LocalReportArchive) Delete(ctx context.Context, name string) error {
	fullPath, err := s.resolve(name)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("Failed to delete report",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// SanitizeName returns a filesystem-safe, flat version of name
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "\\", "")
	return unsafeChars.ReplaceAllString(name, "")
}

// resolve sanitizes name and checks the result stays inside baseDir
func (s *LocalReportArchive) resolve(name string) (string, error) {
	safe := SanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("invalid report name: %q", name)
	}
	fullPath := filepath.Join(s.baseDir, safe)

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", fullPath)
	}
	return fullPath, nil
}
