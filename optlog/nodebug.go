// +build !debug

package optlog

import (
	"log"

	"github.com/fatih/color"
	"go.uber.org/zap"
)

// NewDefault returns a new logger with default options.
func NewDefault(module string) *Logger {
	color.NoColor = true
	l, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Cannot create new logger:", err)
	}
	return &Logger{SugaredLogger: l.Sugar(), module: module}
}

// NewFileLogger returns a new logger and also writes the log output to files.
func NewFileLogger(module string, files ...string) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = append(cfg.OutputPaths, files...)
	l, err := cfg.Build()
	if err != nil {
		log.Fatal("Cannot create new logger:", err)
	}
	return &Logger{SugaredLogger: l.Sugar(), module: module}
}
