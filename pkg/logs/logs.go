package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// formatter adds default fields to each log entry.
type formatter struct {
	owner string
	lf    log.Formatter
}

// Format satisfies the log.Formatter interface.
func (f *formatter) Format(e *log.Entry) ([]byte, error) {
	e.Message = fmt.Sprintf("[%s] %s", f.owner, e.Message)
	return f.lf.Format(e)
}

// LogConfig controls every logger handed out by NewLogger.
type LogConfig struct {
	// Level is a logrus level name. Empty keeps "info".
	Level string
	// Folder, when set, sends output to a rotating file in that folder.
	Folder     string
	FileName   string
	MaxSizeMB  int
	MaxBackups int
}

var (
	mu     sync.RWMutex
	level  = log.InfoLevel
	output io.Writer = os.Stderr
)

// Configure applies conf to loggers created afterwards.
func Configure(conf LogConfig) error {
	lvl := log.InfoLevel
	if conf.Level != "" {
		parsed, err := log.ParseLevel(conf.Level)
		if err != nil {
			return err
		}
		lvl = parsed
	}

	var out io.Writer = os.Stderr
	if conf.Folder != "" {
		if err := os.MkdirAll(conf.Folder, 0o755); err != nil {
			return err
		}
		name := conf.FileName
		if name == "" {
			name = "tempest.log"
		}
		out = &lumberjack.Logger{
			Filename:   filepath.Join(conf.Folder, name),
			MaxSize:    conf.MaxSizeMB,
			MaxBackups: conf.MaxBackups,
		}
	}

	mu.Lock()
	level = lvl
	output = out
	mu.Unlock()
	return nil
}

func NewLogger(owner string) *log.Logger {
	mu.RLock()
	defer mu.RUnlock()

	logger := log.New()
	logger.SetLevel(level)
	logger.SetOutput(output)
	logger.SetFormatter(&formatter{
		owner: owner,
		lf: &log.TextFormatter{
			ForceColors:     output == os.Stderr,
			FullTimestamp:   true,
			TimestampFormat: time.StampMilli,
		},
	})
	return logger
}
