// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"net/http"
	"time"
)

// RefreshCookieName carries the refresh token.
const RefreshCookieName = "refresh_token"

// AccessCookieName carries the access token when it is restricted.
const AccessCookieName = "access_token"

// refreshCookiePath scopes the cookie to the auth routes.
const refreshCookiePath = "/auth"

type cookieJar struct {
	secure bool
	domain string
}

func (j cookieJar) refresh(value string, expires time.Time) *http.Cookie {
	return j.credential(RefreshCookieName, refreshCookiePath, value, expires)
}

func (j cookieJar) access(value string, expires time.Time) *http.Cookie {
	return j.credential(AccessCookieName, "/", value, expires)
}

func (j cookieJar) credential(name, path, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   j.domain,
		Expires:  expires,
		MaxAge:   max(int(time.Until(expires).Seconds()), 1),
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (j cookieJar) expired() *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Domain:   j.domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
