// Package credstore resolves login credentials for crawl targets.
// Credentials never enter recorded paths; the navigator substitutes
// them at execution time via placeholders.
package credstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/vishnualpha/sensuQ-sub001/internal/navigator"
)

// Store looks up credentials for a target URL. The second return is
// false when no credentials are configured for the target, in which
// case login forms are catalogued but not submitted.
type Store interface {
	Lookup(targetURL string) (navigator.Credentials, bool)
}

// Static serves one fixed credential pair for every target.
type Static struct {
	creds navigator.Credentials
}

// NewStatic wraps a single username/password pair.
func NewStatic(username, password string) *Static {
	return &Static{creds: navigator.Credentials{Username: username, Password: password}}
}

// Lookup returns the fixed pair when it is non-empty.
func (s *Static) Lookup(targetURL string) (navigator.Credentials, bool) {
	if s.creds.Username == "" && s.creds.Password == "" {
		return navigator.Credentials{}, false
	}
	return s.creds, true
}

// entry is one stored credential record.
type entry struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// JSONStore maps hostnames to credential pairs, loaded from a JSON
// document or its base64 encoding. A "*" key serves as the default.
type JSONStore struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewJSONStore creates an empty store.
func NewJSONStore() *JSONStore {
	return &JSONStore{entries: make(map[string]entry)}
}

// LoadFile reads a JSON credential map from disk.
func LoadFile(path string) (*JSONStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	return Decode(string(data))
}

// Decode parses a credential map from JSON, accepting either the raw
// document or its base64 encoding.
func Decode(blob string) (*JSONStore, error) {
	blob = strings.TrimSpace(blob)

	data := []byte(blob)
	if !strings.HasPrefix(blob, "{") {
		decoded, err := base64.StdEncoding.DecodeString(blob)
		if err != nil {
			return nil, fmt.Errorf("credential blob is neither JSON nor base64: %w", err)
		}
		data = decoded
	}

	var entries map[string]entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode credential map: %w", err)
	}

	s := NewJSONStore()
	for host, e := range entries {
		s.entries[strings.ToLower(host)] = e
	}
	return s, nil
}

// Encode serializes the store to a base64 blob suitable for config files.
func (s *JSONStore) Encode() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.Marshal(s.entries)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Set stores a credential pair for a hostname ("*" for the default).
func (s *JSONStore) Set(host, username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[strings.ToLower(host)] = entry{Username: username, Password: password}
}

// Lookup resolves the target's hostname, falling back to the "*" entry.
func (s *JSONStore) Lookup(targetURL string) (navigator.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	host := ""
	if u, err := url.Parse(targetURL); err == nil {
		host = strings.ToLower(u.Hostname())
	}

	if e, ok := s.entries[host]; ok {
		return navigator.Credentials{Username: e.Username, Password: e.Password}, true
	}
	if e, ok := s.entries["*"]; ok {
		return navigator.Credentials{Username: e.Username, Password: e.Password}, true
	}
	return navigator.Credentials{}, false
}

var (
	_ Store = (*Static)(nil)
	_ Store = (*JSONStore)(nil)
)
