package credstore

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func TestStaticLookup(t *testing.T) {
	s := NewStatic("alice", "s3cret")
	creds, ok := s.Lookup("https://anything.example.com")
	if !ok {
		t.Fatal("Lookup = false with configured credentials")
	}
	if creds.Username != "alice" || creds.Password != "s3cret" {
		t.Errorf("creds = %+v", creds)
	}

	empty := NewStatic("", "")
	if _, ok := empty.Lookup("https://anything.example.com"); ok {
		t.Error("empty static store reported credentials")
	}
}

func TestJSONStoreLookupByHost(t *testing.T) {
	s := NewJSONStore()
	s.Set("App.Example.com", "alice", "pw-a")
	s.Set("*", "fallback", "pw-f")

	creds, ok := s.Lookup("https://app.example.com/login?next=/")
	if !ok || creds.Username != "alice" {
		t.Errorf("host lookup = %+v %t, want alice", creds, ok)
	}

	creds, ok = s.Lookup("https://other.example.com/")
	if !ok || creds.Username != "fallback" {
		t.Errorf("wildcard lookup = %+v %t, want fallback", creds, ok)
	}
}

func TestJSONStoreNoMatch(t *testing.T) {
	s := NewJSONStore()
	s.Set("app.example.com", "alice", "pw")
	if _, ok := s.Lookup("https://unknown.example.com"); ok {
		t.Error("lookup matched an unconfigured host")
	}
}

func TestDecodeRawJSON(t *testing.T) {
	s, err := Decode(`{"app.example.com": {"username": "alice", "password": "pw"}}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if creds, ok := s.Lookup("https://app.example.com"); !ok || creds.Password != "pw" {
		t.Errorf("lookup after decode = %+v %t", creds, ok)
	}
}

func TestDecodeBase64RoundTrip(t *testing.T) {
	s := NewJSONStore()
	s.Set("app.example.com", "alice", "pw")

	blob, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(blob); err != nil {
		t.Fatalf("Encode output is not base64: %v", err)
	}

	restored, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if creds, ok := restored.Lookup("https://app.example.com"); !ok || creds.Username != "alice" {
		t.Errorf("round trip lost credentials: %+v %t", creds, ok)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode("!!not-base64-or-json!!"); err == nil {
		t.Error("Decode accepted garbage")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, []byte(`{"*": {"username": "u", "password": "p"}}`), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if creds, ok := s.Lookup("https://any.example.com"); !ok || creds.Username != "u" {
		t.Errorf("lookup = %+v %t", creds, ok)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadFile accepted a missing file")
	}
}
