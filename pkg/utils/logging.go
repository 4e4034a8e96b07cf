/*
 * stream-share is a project to efficiently share the use of an IPTV service.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents logging levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// LogOptions configures the package logger.
type LogOptions struct {
	Level        string
	Debug        bool
	FilePath     string
	MaxSizeMB    int
	MaxBackups   int
	MaxAgeDays   int
	CompressLogs bool
}

// Config holds the active logging configuration
var Config = struct {
	sync.Mutex
	DebugLoggingEnabled bool
	LogLevel            LogLevel
	LogToFile           bool
	LogFilePath         string
	rotator             *lumberjack.Logger
}{
	LogLevel: LevelInfo,
}

func init() {
	Configure(LogOptions{
		Level:    os.Getenv("LOG_LEVEL"),
		Debug:    os.Getenv("DEBUG_LOGGING") == "true",
		FilePath: os.Getenv("LOG_FILE"),
	})
}

// Configure applies logging options. It can be called again once the
// configuration file has been loaded.
func Configure(opts LogOptions) {
	Config.Lock()
	defer Config.Unlock()

	Config.DebugLoggingEnabled = opts.Debug
	Config.LogLevel = ParseLogLevel(opts.Level, opts.Debug)
	if Config.LogLevel == LevelDebug {
		Config.DebugLoggingEnabled = true
	}

	if Config.rotator != nil {
		Config.rotator.Close()
		Config.rotator = nil
	}
	Config.LogToFile = false
	Config.LogFilePath = ""
	log.SetOutput(os.Stderr)

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			log.Printf("Error creating log directory: %v", err)
		} else {
			Config.rotator = &lumberjack.Logger{
				Filename:   opts.FilePath,
				MaxSize:    defaultInt(opts.MaxSizeMB, 50),
				MaxBackups: defaultInt(opts.MaxBackups, 5),
				MaxAge:     defaultInt(opts.MaxAgeDays, 14),
				Compress:   opts.CompressLogs,
			}
			Config.LogToFile = true
			Config.LogFilePath = opts.FilePath
			log.SetOutput(io.MultiWriter(os.Stderr, Config.rotator))
		}
	}
	log.SetFlags(0)
}

// ParseLogLevel maps a level name to a LogLevel. Unknown names fall back to
// info, or debug when debug is set.
func ParseLogLevel(name string, debug bool) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	if debug {
		return LevelDebug
	}
	return LevelInfo
}

// Close closes any open log files
func Close() {
	Config.Lock()
	defer Config.Unlock()
	if Config.rotator != nil {
		Config.rotator.Close()
		Config.rotator = nil
	}
}

// InfoLog logs an info message
func InfoLog(format string, v ...interface{}) {
	if Config.LogLevel <= LevelInfo {
		logWithCaller(LevelInfo, format, v...)
	}
}

// WarnLog logs a warning message
func WarnLog(format string, v ...interface{}) {
	if Config.LogLevel <= LevelWarn {
		logWithCaller(LevelWarn, format, v...)
	}
}

// DebugLog logs a debug message if debug logging is enabled
func DebugLog(format string, v ...interface{}) {
	if Config.DebugLoggingEnabled {
		logWithCaller(LevelDebug, format, v...)
	}
}

// ErrorLog logs an error message
func ErrorLog(format string, v ...interface{}) {
	if Config.LogLevel <= LevelError {
		logWithCaller(LevelError, format, v...)
	}
}

func logWithCaller(level LogLevel, format string, v ...interface{}) {
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	message := fmt.Sprintf(format, v...)
	log.Println(fmt.Sprintf("%s [%s] (%s) %s", timestamp, levelToString(level), caller, message))
}

func levelToString(level LogLevel) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
