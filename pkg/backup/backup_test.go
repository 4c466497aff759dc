package backup

import (
	"os"
	"path/filepath"
	"testing"

	"HibiscusGuard/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestExecuteBackupCopiesDBAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "guard.db")
	snap := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(db, []byte("db"), 0o644))
	require.NoError(t, os.WriteFile(snap, []byte("{}"), 0o644))

	config.GlobalConfig = &config.Config{
		DBDriver:     "sqlite",
		DSN:          db,
		SnapshotPath: snap,
		BackupPath:   filepath.Join(dir, "backups"),
	}

	require.NoError(t, ExecuteBackup())

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestStartBackupSchedulerRegistersJob(t *testing.T) {
	dir := t.TempDir()
	config.GlobalConfig = &config.Config{
		BackupSchedule: "@every 1h",
		BackupPath:     filepath.Join(dir, "backups"),
		SnapshotPath:   filepath.Join(dir, "missing.json"),
	}

	cr := StartBackupScheduler()
	defer cr.Stop()
	require.Len(t, cr.Entries(), 1)
}
