package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"energy-desk/internal/regime"
)

func TestFileStoreRoundTripPreservesOtherSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	original := `# desk settings
app:
  name: energydesk
market:
  primary_symbol: NG=F
volatility_thresholds:
  noise: 1
  high: 2
  critical: 3
`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o600))

	store := NewFileStore(path)
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rec := RecordFromResult("NG=F", regime.Result{
		Thresholds:    regime.Thresholds{Noise: 3.27, High: 5.5, Critical: 7.94},
		HistoryPoints: 1250,
		RecentPoints:  124,
	}, at)
	require.NoError(t, store.Save(context.Background(), "NG=F", rec))

	got, err := store.Load(context.Background(), "NG=F")
	require.NoError(t, err)
	assert.Equal(t, rec.Thresholds, got.Thresholds)
	assert.Equal(t, 1250, got.HistoryPoints)
	assert.Equal(t, 124, got.RecentPoints)
	assert.Equal(t, at, got.CalibratedAt)
	assert.False(t, got.Degraded)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# desk settings")

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	assert.Equal(t, map[string]any{"name": "energydesk"}, doc["app"])
	assert.Equal(t, map[string]any{"primary_symbol": "NG=F"}, doc["market"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "thresholds.yaml")
	store := NewFileStore(path)

	_, err := store.Load(context.Background(), "NG=F")
	require.ErrorIs(t, err, ErrNoThresholds)

	rec := Record{Thresholds: regime.Thresholds{Noise: 1.5, High: 2.5, Critical: 3.5}, Degraded: true}
	require.NoError(t, store.Save(context.Background(), "NG=F", rec))

	got, err := store.Load(context.Background(), "NG=F")
	require.NoError(t, err)
	assert.Equal(t, rec.Thresholds, got.Thresholds)
	assert.True(t, got.Degraded)
	assert.Equal(t, "NG=F", got.Symbol)
}

func TestFileStoreSymbolMismatch(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "config.yaml"))
	rec := Record{Thresholds: regime.Thresholds{Noise: 1, High: 2, Critical: 3}}
	require.NoError(t, store.Save(context.Background(), "NG=F", rec))

	_, err := store.Load(context.Background(), "CL=F")
	require.ErrorIs(t, err, ErrNoThresholds)
}

func TestFileStoreHandWrittenSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("volatility_thresholds:\n  noise: 3.1\n  high: 5.2\n  critical: 7.4\n"), 0o600))

	got, err := NewFileStore(path).Load(context.Background(), "NG=F")
	require.NoError(t, err)
	assert.Equal(t, regime.Thresholds{Noise: 3.1, High: 5.2, Critical: 7.4}, got.Thresholds)
	assert.True(t, got.CalibratedAt.IsZero())
}

func TestFileStoreZeroSectionIsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("volatility_thresholds:\n  noise: 0\n  high: 0\n  critical: 0\n"), 0o600))

	_, err := NewFileStore(path).Load(context.Background(), "NG=F")
	require.ErrorIs(t, err, ErrNoThresholds)
}

func TestFileStoreRejectsInvalid(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "config.yaml"))
	err := store.Save(context.Background(), "NG=F", Record{Thresholds: regime.Thresholds{Noise: -1}})
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "list.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o600))
	_, err = NewFileStore(path).Load(context.Background(), "NG=F")
	require.Error(t, err)
}

func TestStoreNotConfigured(t *testing.T) {
	var s *Store
	_, err := s.Load(context.Background(), "NG=F")
	require.ErrorIs(t, err, ErrNotConfigured)
	require.ErrorIs(t, s.Save(context.Background(), "NG=F", Record{}), ErrNotConfigured)
	_, _, err = s.TryAdvisoryLock(context.Background(), 1)
	require.ErrorIs(t, err, ErrNotConfigured)

	var f *FileStore
	_, err = f.Load(context.Background(), "NG=F")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestNumericAndParse(t *testing.T) {
	assert.Equal(t, "3.27", numeric(3.27))
	assert.Equal(t, "7.00", numeric(7))

	got, err := parseThresholds("3.27", "5.50", "7.94")
	require.NoError(t, err)
	assert.Equal(t, regime.Thresholds{Noise: 3.27, High: 5.5, Critical: 7.94}, got)

	_, err = parseThresholds("x", "1", "2")
	require.Error(t, err)
}

func TestMigrationFilesOrdered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600))
	}
	files, err := migrationFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "001_a.sql", filepath.Base(files[0]))
	assert.Equal(t, "002_b.sql", filepath.Base(files[1]))

	_, err = migrationFiles(t.TempDir())
	require.Error(t, err)
}
