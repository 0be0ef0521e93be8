// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

/*
Package identity resolves the acting user for every request.

It isolates the authentication mechanism (static API keys mapped to users)
from the domain logic, which only ever sees a resolved [User] value. The
core services never resolve identity themselves; the middleware attaches a
User to the request context and handlers pass it down explicitly.
*/
package identity

import (
	"fmt"
	"strings"

	"github.com/egregore/egregore/internal/platform/apperr"
)

// # Roles

const (
	// RoleAdmin grants unrestricted access.
	RoleAdmin = "admin"

	// RoleEditor may create and mutate tags.
	RoleEditor = "editor"

	// RoleViewer may only read the catalog, history, audit, and metrics.
	RoleViewer = "viewer"
)

// KeyPrefix marks well-formed Egregore API keys.
const KeyPrefix = "egg_"

// minKeyLength is the shortest accepted key (prefix plus 22 random chars).
const minKeyLength = len(KeyPrefix) + 22

// User is the resolved acting identity attached to a request.
//
// It is the value stamped into audit entries and editor/author metadata, so
// it must be fully resolved before any core service is invoked.
type User struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the user carries the given role. Admins implicitly
// satisfy every role check.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

// # Keyring

// Keyring maps API keys to their resolved users.
//
// It is immutable after construction and safe for concurrent reads.
type Keyring struct {
	users map[string]User
}

// ParseKeyring builds a Keyring from the API_KEYS configuration value.
//
// # Format
//
// Semicolon-separated entries of "key:username:role[|role]...", e.g.
//
//	egg_4fz81kd0s2m7qh3vx9wballot:mkowalski:editor|viewer;egg_...:svc-hunt:admin
func ParseKeyring(raw string) (*Keyring, error) {
	ring := &Keyring{users: make(map[string]User)}

	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("identity: malformed API_KEYS entry (want key:username:roles)")
		}

		key, username, roles := parts[0], parts[1], strings.Split(parts[2], "|")
		if !WellFormedKey(key) {
			return nil, fmt.Errorf("identity: API key for %q is not a well-formed egg_ key", username)
		}
		if username == "" || len(roles) == 0 {
			return nil, fmt.Errorf("identity: API_KEYS entry is missing a username or roles")
		}

		ring.users[key] = User{Username: username, Roles: roles}
	}

	if len(ring.users) == 0 {
		return nil, fmt.Errorf("identity: API_KEYS contains no usable entries")
	}

	return ring, nil
}

// Size returns the number of keys in the ring.
func (k *Keyring) Size() int { return len(k.users) }

// Resolve maps a raw X-API-Key header value to its user.
//
// # Errors
//
//   - missing key: 401 "aye-aye"
//   - key not of the egg_ form: 401 "markhor"
//   - well-formed but unknown key: 403 "platypus"
func (k *Keyring) Resolve(rawKey string) (*User, error) {
	if rawKey == "" {
		return nil, apperr.MissingAPIKey()
	}
	if !WellFormedKey(rawKey) {
		return nil, apperr.MalformedAPIKey()
	}

	user, ok := k.users[rawKey]
	if !ok {
		return nil, apperr.Forbidden("Unrecognized API key")
	}

	// Copy so callers can never mutate ring state through the pointer.
	resolved := user
	return &resolved, nil
}

// WellFormedKey reports whether a raw key has the expected shape, without
// consulting the ring.
func WellFormedKey(key string) bool {
	if !strings.HasPrefix(key, KeyPrefix) || len(key) < minKeyLength {
		return false
	}
	for _, c := range key[len(KeyPrefix):] {
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		if !isLower && !isDigit {
			return false
		}
	}
	return true
}
