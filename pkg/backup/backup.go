package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"HibiscusGuard/pkg/config"
	"HibiscusGuard/pkg/logger"
	"HibiscusGuard/pkg/scheduler"

	"go.uber.org/zap"
)

// StartBackupScheduler 启动备份调度器
// 备份两样东西：sqlite 主库文件（如果用 sqlite）与降级存储的快照文件
func StartBackupScheduler() *scheduler.Cron {
	cr := scheduler.NewCron(nil)

	schedule := config.GlobalConfig.BackupSchedule
	_, err := cr.Add(schedule, scheduler.FuncJob(func(ctx context.Context) {
		if err := ExecuteBackup(); err != nil {
			logger.Warn("backup failed", zap.Error(err))
		} else {
			logger.Info("backup completed")
		}
	}))
	if err != nil {
		logger.Warn("invalid backup schedule", zap.String("schedule", schedule), zap.Error(err))
		return cr
	}

	cr.Start()
	return cr
}

// ExecuteBackup 执行一次备份
func ExecuteBackup() error {
	stamp := time.Now().Format("20060102_150405")

	if config.GlobalConfig.DBDriver == "sqlite" && config.GlobalConfig.DSN != "" {
		dst := filepath.Join(config.GlobalConfig.BackupPath, fmt.Sprintf("guard_db_%s.db", stamp))
		if err := copyFile(config.GlobalConfig.DSN, dst); err != nil {
			return fmt.Errorf("sqlite backup: %w", err)
		}
	}

	// 快照文件可能尚不存在（从未降级过），不算错误
	snap := config.GlobalConfig.SnapshotPath
	if _, err := os.Stat(snap); err == nil {
		dst := filepath.Join(config.GlobalConfig.BackupPath, fmt.Sprintf("guard_snapshot_%s.json", stamp))
		if err := copyFile(snap, dst); err != nil {
			return fmt.Errorf("snapshot backup: %w", err)
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create backup directory: %v", err)
	}

	sourceFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("error opening source file: %v", err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("error creating destination file: %v", err)
	}
	defer destFile.Close()

	if _, err = io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("error copying data: %v", err)
	}
	return nil
}
