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

package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLinked means no upstream account is bound to the user.
	ErrNotLinked = errors.New("no upstream account linked")
	// ErrUpstreamUnreachable means every candidate URL failed the probe.
	ErrUpstreamUnreachable = errors.New("no reachable upstream source")
	// ErrNoManifest is the HLS flavour of ErrUpstreamUnreachable.
	ErrNoManifest = fmt.Errorf("%w: no reachable manifest", ErrUpstreamUnreachable)
	// ErrForbiddenHost means a proxied URL does not target the user's panel.
	ErrForbiddenHost = errors.New("target host does not match the linked upstream")
	ErrEpisodeNotFound  = errors.New("episode not found")
	ErrStreamIDNotFound = errors.New("no matching stream id")
	ErrBadRequest       = errors.New("bad request")
	ErrUnauthorized     = errors.New("unauthorized")
	// ErrProviderUnavailable covers metadata provider failures and a missing API key.
	ErrProviderUnavailable = errors.New("metadata provider unavailable")
)

// UpstreamError is a failed or malformed upstream response. Body is a
// snippet kept for server logs only.
type UpstreamError struct {
	URL    string
	Status int
	Body   string
	Reason string
}

func (e *UpstreamError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("upstream %s: status %d: %s", e.URL, e.Status, e.Reason)
	}
	return fmt.Sprintf("upstream %s: status %d", e.URL, e.Status)
}

// NewUpstreamError builds an UpstreamError, keeping at most 512 bytes of body.
func NewUpstreamError(maskedURL string, status int, body []byte, reason string) *UpstreamError {
	const max = 512
	if len(body) > max {
		body = body[:max]
	}
	return &UpstreamError{URL: maskedURL, Status: status, Body: string(body), Reason: reason}
}

// IsUpstreamError reports whether err wraps an *UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
