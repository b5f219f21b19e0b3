package storage

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itsupport/helpdesk/internal/config"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

// allowedExtensions is the upload extension allow-list.
var allowedExtensions = map[string]struct{}{
	".jpeg": {}, ".jpg": {}, ".png": {}, ".gif": {}, ".bmp": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".txt": {},
}

const (
	stagingMaxAge   = time.Hour
	legacyTmpMaxAge = 24 * time.Hour
)

// Upload is one inbound file, decoupled from the HTTP framework.
type Upload struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// StagedFile is an upload written to the staging area, not yet bound to a
// ticket.
type StagedFile struct {
	OriginalName string
	StorageName  string
	Size         int64
}

// Manager moves uploads from staging into the per-ticket storage tree and
// enforces count, size and extension limits.
type Manager struct {
	stagingDir string
	ticketsDir string
	legacyDir  string
	maxFiles   int
	maxBatch   int64
	logger     *zap.Logger
}

// NewManager creates the storage directories and returns the manager.
func NewManager(cfg config.UploadsConfig, logger *zap.Logger) (*Manager, error) {
	for _, dir := range []string{cfg.StagingDir, cfg.TicketsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
		}
	}
	return &Manager{
		stagingDir: cfg.StagingDir,
		ticketsDir: cfg.TicketsDir,
		legacyDir:  cfg.LegacyTmpDir,
		maxFiles:   cfg.MaxFiles,
		maxBatch:   cfg.MaxBatchSize,
		logger:     logger,
	}, nil
}

// MaxFiles returns the per-ticket attachment cap.
func (m *Manager) MaxFiles() int {
	return m.maxFiles
}

// Stage validates a batch of uploads and writes them into the staging area.
// Any violation rejects the whole batch; nothing is left behind on error.
func (m *Manager) Stage(uploads []Upload) ([]StagedFile, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if len(uploads) > m.maxFiles {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("at most %d files may be uploaded", m.maxFiles),
			map[string]any{"max_files": m.maxFiles})
	}

	var total int64
	for _, upload := range uploads {
		ext := strings.ToLower(filepath.Ext(upload.Name))
		if _, ok := allowedExtensions[ext]; !ok {
			return nil, apperrors.NewValidationError(
				"file type not allowed: images, PDF and office documents only",
				map[string]any{"file": upload.Name})
		}
		total += upload.Size
	}
	if total > m.maxBatch {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("total upload size exceeds %d MB", m.maxBatch/(1024*1024)),
			map[string]any{"max_bytes": m.maxBatch})
	}

	staged := make([]StagedFile, 0, len(uploads))
	for _, upload := range uploads {
		file, err := m.writeStaged(upload)
		if err != nil {
			m.Discard(staged)
			return nil, apperrors.NewInternalError(err)
		}
		staged = append(staged, file)
	}
	return staged, nil
}

func (m *Manager) writeStaged(upload Upload) (StagedFile, error) {
	name := storageName(upload.Name)
	src, err := upload.Open()
	if err != nil {
		return StagedFile{}, err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(m.stagingDir, name))
	if err != nil {
		return StagedFile{}, err
	}
	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(m.stagingDir, name))
		return StagedFile{}, err
	}
	return StagedFile{OriginalName: upload.Name, StorageName: name, Size: written}, nil
}

// Commit moves staged files into tickets/{YYYY-MM-DD}/{id}/ using the ticket's
// creation date, and returns the relative paths to persist. A failed move
// rolls the whole batch back so no partial attachment set is recorded.
func (m *Manager) Commit(ticketID int64, createdAt time.Time, staged []StagedFile) ([]string, error) {
	if len(staged) == 0 {
		return nil, nil
	}
	dateFolder := createdAt.Format("2006-01-02")
	targetDir := filepath.Join(m.ticketsDir, dateFolder, fmt.Sprintf("%d", ticketID))
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		m.Discard(staged)
		return nil, apperrors.NewInternalError(err)
	}

	paths := make([]string, 0, len(staged))
	for i, file := range staged {
		oldPath := filepath.Join(m.stagingDir, file.StorageName)
		newPath := filepath.Join(targetDir, file.StorageName)
		if err := os.Rename(oldPath, newPath); err != nil {
			for _, committed := range paths {
				_ = os.Remove(m.fullPath(committed))
			}
			m.Discard(staged[i:])
			return nil, apperrors.NewInternalError(err)
		}
		paths = append(paths, path.Join("tickets", dateFolder, fmt.Sprintf("%d", ticketID), file.StorageName))
	}
	return paths, nil
}

// Discard removes staged files, used on every failed batch.
func (m *Manager) Discard(staged []StagedFile) {
	for _, file := range staged {
		path := filepath.Join(m.stagingDir, file.StorageName)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to discard staged file",
				zap.String("file", file.StorageName), zap.Error(err))
		}
	}
}

// Remove deletes one committed attachment by its stored relative path. A file
// already missing from disk is not an error; the list entry is authoritative.
func (m *Manager) Remove(relPath string) error {
	if err := os.Remove(m.fullPath(relPath)); err != nil && !os.IsNotExist(err) {
		return apperrors.NewInternalError(err)
	}
	return nil
}

// fullPath resolves a stored relative path against the tickets directory.
// Stored paths keep the "tickets/" URL segment; the physical tree root is
// ticketsDir wherever the config puts it.
func (m *Manager) fullPath(relPath string) string {
	rel := strings.TrimPrefix(relPath, "/")
	rel = strings.TrimPrefix(rel, "tickets/")
	return filepath.Join(m.ticketsDir, filepath.FromSlash(rel))
}

// Sweep deletes stale staged files (older than one hour) and legacy temp
// uploads (older than a day). Best-effort; errors are logged and skipped.
func (m *Manager) Sweep(now time.Time) int {
	removed := m.sweepDir(m.stagingDir, now, stagingMaxAge)
	removed += m.sweepDir(m.legacyDir, now, legacyTmpMaxAge)
	return removed
}

func (m *Manager) sweepDir(dir string, now time.Time, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > maxAge {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				m.logger.Warn("failed to sweep stale upload",
					zap.String("file", entry.Name()), zap.Error(err))
				continue
			}
			removed++
		}
	}
	return removed
}

// storageName builds a collision-free, filesystem-safe name preserving the
// original extension.
func storageName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	safe := make([]rune, 0, len(base))
	for _, r := range strings.ToLower(base) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			safe = append(safe, r)
		} else {
			safe = append(safe, '_')
		}
	}
	if len(safe) > 50 {
		safe = safe[:50]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s_%s%s", string(safe), suffix, ext)
}
