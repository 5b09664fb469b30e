// Package logging configures the standard logger.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"cineai/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup points the standard logger at stdout and, when cfg.File is set, at a
// size-rotated log file as well. The returned closer releases the file.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if cfg.File == "" {
		log.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("could not create log directory: %w", err)
	}

	fileWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
	log.Printf("Logging to file: %s", cfg.File)

	return fileWriter, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
