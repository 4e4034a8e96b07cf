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
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetErrorDetailLevel(t *testing.T) {
	tests := []struct {
		env      string
		override string
		want     ErrorDetailLevel
	}{
		{env: "none", want: ErrorDetailNone},
		{env: "FULL", want: ErrorDetailFull},
		{env: "", want: ErrorDetailSimple},
		{env: "bogus", want: ErrorDetailSimple},
		{env: "none", override: "full", want: ErrorDetailFull},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.env, tt.override), func(t *testing.T) {
			t.Setenv("ERROR_DETAIL_LEVEL", tt.env)
			SetErrorDetailLevel(tt.override)
			t.Cleanup(func() { SetErrorDetailLevel("") })

			assert.Equal(t, tt.want, getErrorDetailLevel())
		})
	}
}

func TestErrorWithLocation(t *testing.T) {
	assert.Nil(t, ErrorWithLocation(nil))

	t.Run("simple", func(t *testing.T) {
		t.Setenv("ERROR_DETAIL_LEVEL", "simple")
		err := ErrorWithLocation(errors.New("boom"))
		require.Error(t, err)
		assert.Regexp(t, `^error_utils_test\.go:\d+ \[utils\.TestErrorWithLocation[^\]]*\]: boom$`, err.Error())
	})

	t.Run("full", func(t *testing.T) {
		t.Setenv("ERROR_DETAIL_LEVEL", "full")
		msg := ErrorWithLocation(errors.New("boom")).Error()
		for _, part := range []string{"Error Location:", "File: error_utils_test.go", "Stack Trace:", "Error Details:", "boom"} {
			assert.Contains(t, msg, part)
		}
	})
}

func TestErrorWithLocationKeepsCause(t *testing.T) {
	sentinel := errors.New("not linked")
	err := ErrorWithLocation(fmt.Errorf("lookup: %w", sentinel))
	assert.ErrorIs(t, err, sentinel)
}

func TestPrintErrorAndReturn(t *testing.T) {
	assert.Nil(t, PrintErrorAndReturn(nil))

	for _, level := range []string{"none", "simple"} {
		t.Run(level, func(t *testing.T) {
			t.Setenv("ERROR_DETAIL_LEVEL", level)

			out := captureStderr(t, func() {
				err := PrintErrorAndReturn(errors.New("bad config"))
				assert.Contains(t, err.Error(), "bad config")
			})
			if level == "none" {
				assert.Empty(t, out)
			} else {
				assert.Contains(t, out, "bad config")
			}
		})
	}
}

func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	old := os.Stderr
	os.Stderr = w
	fn()
	os.Stderr = old
	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}
