package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// LogFileName is the active log file inside the log directory.
const LogFileName = "taskbot.log"

var (
	logFileMu sync.Mutex
	logFile   *os.File
)

// InitializeLogFile rotates taskbot.log -> taskbot.log.1 ... keeping `keep`
// old files, then opens a fresh file. With tee set, lines also go to stderr.
func InitializeLogFile(dir string, keep int, tee bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	base := filepath.Join(dir, LogFileName)
	rotate(base, keep)

	f, err := os.OpenFile(base, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	logFileMu.Lock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	logFileMu.Unlock()

	if tee {
		SetOutput(io.MultiWriter(os.Stderr, f))
	} else {
		SetOutput(f)
	}
	return nil
}

func rotate(base string, keep int) {
	if keep <= 0 {
		return
	}
	_ = os.Remove(fmt.Sprintf("%s.%d", base, keep))
	for i := keep - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", base, i), fmt.Sprintf("%s.%d", base, i+1))
	}
	_ = os.Rename(base, base+".1")
}

// CloseLogFile restores stderr output and closes the file opened by InitializeLogFile.
func CloseLogFile() error {
	SetOutput(nil)
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}
