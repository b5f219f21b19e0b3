package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/itsupport/helpdesk/internal/config"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

func testManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.UploadsConfig{
		PublicDir:    root,
		StagingDir:   filepath.Join(root, "staging"),
		TicketsDir:   filepath.Join(root, "tickets"),
		LegacyTmpDir: filepath.Join(root, "temp_uploads"),
		MaxFiles:     7,
		MaxBatchSize: 1 << 20,
	}
	manager, err := NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	return manager, root
}

func upload(name, content string) Upload {
	return Upload{
		Name: name,
		Size: int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader([]byte(content))), nil
		},
	}
}

func TestStageAndCommit(t *testing.T) {
	manager, root := testManager(t)

	staged, err := manager.Stage([]Upload{
		upload("Отчёт 2024.pdf", "pdf-bytes"),
		upload("screen shot.PNG", "png-bytes"),
	})
	require.NoError(t, err)
	require.Len(t, staged, 2)

	for _, file := range staged {
		assert.FileExists(t, filepath.Join(root, "staging", file.StorageName))
	}
	assert.True(t, strings.HasSuffix(staged[0].StorageName, ".pdf"))
	assert.True(t, strings.HasSuffix(staged[1].StorageName, ".png"), "extension is lowercased")

	createdAt := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	paths, err := manager.Commit(42, createdAt, staged)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	for i, relPath := range paths {
		assert.True(t, strings.HasPrefix(relPath, "tickets/2026-03-14/42/"), "got %q", relPath)
		assert.FileExists(t, filepath.Join(root, filepath.FromSlash(relPath)))
		assert.NoFileExists(t, filepath.Join(root, "staging", staged[i].StorageName))
	}
}

func TestStageRejectsTooManyFiles(t *testing.T) {
	manager, root := testManager(t)

	uploads := make([]Upload, 8)
	for i := range uploads {
		uploads[i] = upload(fmt.Sprintf("file%d.txt", i), "data")
	}
	_, err := manager.Stage(uploads)
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	entries, readErr := os.ReadDir(filepath.Join(root, "staging"))
	require.NoError(t, readErr)
	assert.Empty(t, entries, "nothing staged on rejection")
}

func TestStageRejectsBadExtension(t *testing.T) {
	manager, _ := testManager(t)

	_, err := manager.Stage([]Upload{upload("malware.exe", "MZ")})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	_, err = manager.Stage([]Upload{upload("noextension", "data")})
	assert.Error(t, err)
}

func TestStageRejectsOversizedBatch(t *testing.T) {
	manager, _ := testManager(t)

	big := Upload{Name: "big.txt", Size: 2 << 20, Open: func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}}
	_, err := manager.Stage([]Upload{big})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}

func TestStageEmptyBatch(t *testing.T) {
	manager, _ := testManager(t)

	staged, err := manager.Stage(nil)
	require.NoError(t, err)
	assert.Nil(t, staged)
}

func TestDiscard(t *testing.T) {
	manager, root := testManager(t)

	staged, err := manager.Stage([]Upload{upload("a.txt", "a"), upload("b.txt", "b")})
	require.NoError(t, err)

	manager.Discard(staged)
	entries, err := os.ReadDir(filepath.Join(root, "staging"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemove(t *testing.T) {
	manager, root := testManager(t)

	staged, err := manager.Stage([]Upload{upload("a.txt", "a")})
	require.NoError(t, err)
	paths, err := manager.Commit(1, time.Now(), staged)
	require.NoError(t, err)

	require.NoError(t, manager.Remove(paths[0]))
	assert.NoFileExists(t, filepath.Join(root, filepath.FromSlash(paths[0])))

	// second removal of the same path is not an error
	assert.NoError(t, manager.Remove(paths[0]))
}

func TestRemoveWithRelocatedTicketsDir(t *testing.T) {
	// the tickets tree does not have to live under the public dir
	root := t.TempDir()
	ticketsDir := filepath.Join(t.TempDir(), "archive")
	manager, err := NewManager(config.UploadsConfig{
		PublicDir:    root,
		StagingDir:   filepath.Join(root, "staging"),
		TicketsDir:   ticketsDir,
		LegacyTmpDir: filepath.Join(root, "temp_uploads"),
		MaxFiles:     7,
		MaxBatchSize: 1 << 20,
	}, zap.NewNop())
	require.NoError(t, err)

	staged, err := manager.Stage([]Upload{upload("a.txt", "a")})
	require.NoError(t, err)
	paths, err := manager.Commit(9, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), staged)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	physical := filepath.Join(ticketsDir, "2026-04-01", "9", staged[0].StorageName)
	require.FileExists(t, physical)
	require.NoError(t, manager.Remove(paths[0]))
	assert.NoFileExists(t, physical)
}

func TestSweep(t *testing.T) {
	manager, root := testManager(t)

	legacyDir := filepath.Join(root, "temp_uploads")
	require.NoError(t, os.MkdirAll(legacyDir, 0o755))

	stale := filepath.Join(root, "staging", "stale.txt")
	fresh := filepath.Join(root, "staging", "fresh.txt")
	legacyStale := filepath.Join(legacyDir, "old.txt")
	legacyFresh := filepath.Join(legacyDir, "recent.txt")
	for _, path := range []string{stale, fresh, legacyStale, legacyFresh} {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	now := time.Now()
	require.NoError(t, os.Chtimes(stale, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))
	require.NoError(t, os.Chtimes(legacyStale, now.Add(-25*time.Hour), now.Add(-25*time.Hour)))
	require.NoError(t, os.Chtimes(legacyFresh, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))

	removed := manager.Sweep(now)
	assert.Equal(t, 2, removed)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.NoFileExists(t, legacyStale)
	assert.FileExists(t, legacyFresh, "legacy files live a full day")
}

func TestStorageNameSanitizes(t *testing.T) {
	name := storageName("Отчёт о работе (итог).PDF")
	assert.True(t, strings.HasSuffix(name, ".pdf"))
	assert.NotContains(t, name, " ")
	assert.NotContains(t, name, "(")

	first := storageName("report.txt")
	second := storageName("report.txt")
	assert.NotEqual(t, first, second, "names carry a unique suffix")
}
