package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirConfigs = "configs"
	dirStorage = "storage"
	dirDB      = "storage/db"
	dirBackups = "storage/backups"
	dirTmp     = "storage/tmp"
	dirLogs    = "logs"
)

var (
	configFilePath = filepath.Join(dirConfigs, "config.yaml")

	dbFilePath       = filepath.Join(dirDB, "leaderboard.db")
	dbBackupFilePath = filepath.Join(dirBackups, "leaderboard_backup_auto.db")

	logFilePath = filepath.Join(dirLogs, "bot.log")
	errLogPath  = filepath.Join(dirLogs, "errors.log")
)

func initAppLayout() {
	dirs := []string{dirConfigs, dirStorage, dirDB, dirBackups, dirTmp, dirLogs}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Printf("⚠️ cannot create directory %s: %v\n", dir, err)
		}
	}
	migrateLegacyFile("leaderboard.db", dbFilePath)
	migrateLegacyFile("bot.log", logFilePath)
	migrateLegacyFile("errors.log", errLogPath)
}

func migrateLegacyFile(oldPath, newPath string) {
	info, err := os.Stat(oldPath)
	if err != nil || info.IsDir() {
		return
	}
	if _, err := os.Stat(newPath); err == nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		fmt.Printf("⚠️ cannot create directory for %s: %v\n", newPath, err)
		return
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		fmt.Printf("⚠️ cannot move %s -> %s: %v\n", oldPath, newPath, err)
	}
}
