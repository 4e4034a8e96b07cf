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
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
)

// ErrorDetailLevel represents the level of error detail to display
type ErrorDetailLevel int

const (
	// ErrorDetailNone suppresses all additional error information
	ErrorDetailNone ErrorDetailLevel = iota
	// ErrorDetailSimple shows basic file, line and function information (default)
	ErrorDetailSimple
	// ErrorDetailFull shows complete error information including stack traces
	ErrorDetailFull
)

var configuredDetailLevel atomic.Value

// SetErrorDetailLevel overrides the ERROR_DETAIL_LEVEL environment variable.
func SetErrorDetailLevel(level string) {
	configuredDetailLevel.Store(level)
}

func getErrorDetailLevel() ErrorDetailLevel {
	level, _ := configuredDetailLevel.Load().(string)
	if level == "" {
		level = os.Getenv("ERROR_DETAIL_LEVEL")
	}
	switch strings.ToLower(level) {
	case "none":
		return ErrorDetailNone
	case "full":
		return ErrorDetailFull
	default:
		return ErrorDetailSimple
	}
}

// locatedError keeps the wrapped error reachable through errors.Is/As.
type locatedError struct {
	location string
	err      error
}

func (e *locatedError) Error() string { return e.location + e.err.Error() }
func (e *locatedError) Unwrap() error { return e.err }

func formatError(err error, skip int) error {
	if err == nil {
		return nil
	}

	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return &locatedError{location: "error occurred: ", err: err}
	}
	fnName := runtime.FuncForPC(pc).Name()

	if getErrorDetailLevel() == ErrorDetailFull {
		buffer := make([]byte, 4096)
		n := runtime.Stack(buffer, false)
		stackLines := strings.Split(string(buffer[:n]), "\n")
		if len(stackLines) > 0 {
			stackLines = stackLines[1:]
		}

		return &locatedError{
			location: fmt.Sprintf(`
Error Location:
  Full Path: %s
  File: %s
  Line: %d
  Function: %s
Stack Trace:
%s
Error Details:
  `, file, filepath.Base(file), line, fnName, strings.Join(stackLines, "\n")),
			err: err,
		}
	}

	return &locatedError{
		location: fmt.Sprintf("%s:%d [%s]: ", filepath.Base(file), line, filepath.Base(fnName)),
		err:      err,
	}
}

// ErrorWithLocation wraps an error with the caller's location based on detail level
func ErrorWithLocation(err error) error {
	return formatError(err, 2)
}

// PrintErrorAndReturn prints the error to stderr (if detail level is not None) and returns it
func PrintErrorAndReturn(err error) error {
	if err == nil {
		return nil
	}

	wrappedErr := formatError(err, 2)
	if getErrorDetailLevel() != ErrorDetailNone {
		fmt.Fprintln(os.Stderr, wrappedErr)
	}
	return wrappedErr
}
