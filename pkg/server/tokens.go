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

package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var errBadToken = errors.New("invalid playback token")

// tokenSigner issues playback tokens: base64(user|expiry).base64(hmac).
// Players fetch segments without our auth headers, so rewritten URLs carry
// one of these instead.
type tokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func newTokenSigner(secret []byte, ttl time.Duration) *tokenSigner {
	return &tokenSigner{secret: secret, ttl: ttl, now: time.Now}
}

func (s *tokenSigner) issue(userID string) string {
	payload := userID + "|" + strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." +
		base64.RawURLEncoding.EncodeToString(s.sign(payload))
}

// verify returns the user a token was issued to.
func (s *tokenSigner) verify(token string) (string, error) {
	encPayload, encSig, ok := strings.Cut(token, ".")
	if !ok {
		return "", errBadToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(encPayload)
	if err != nil {
		return "", errBadToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil || !hmac.Equal(sig, s.sign(string(payload))) {
		return "", errBadToken
	}

	i := strings.LastIndexByte(string(payload), '|')
	if i <= 0 {
		return "", errBadToken
	}
	exp, err := strconv.ParseInt(string(payload[i+1:]), 10, 64)
	if err != nil || s.now().Unix() > exp {
		return "", errBadToken
	}
	return string(payload[:i]), nil
}

func (s *tokenSigner) sign(payload string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
