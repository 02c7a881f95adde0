package id

import (
	"encoding/base32"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewIDEncodesRandomUUID(t *testing.T) {
	value, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(value) != 26 || value != strings.ToLower(value) {
		t.Fatalf("expected 26 lowercase characters, got %q", value)
	}
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(value))
	if err != nil {
		t.Fatalf("decode id: %v", err)
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		t.Fatalf("uuid from bytes: %v", err)
	}
	if u.Version() != 4 || u.Variant() != uuid.RFC4122 {
		t.Fatalf("expected random RFC 4122 uuid, got version %d variant %v", u.Version(), u.Variant())
	}
}

func TestNewIDIsUnique(t *testing.T) {
	seen := make(map[string]struct{}, 500)
	for i := 0; i < 500; i++ {
		value, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if _, dup := seen[value]; dup {
			t.Fatalf("duplicate id %q", value)
		}
		seen[value] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	value, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if !Valid(value) {
		t.Fatalf("expected %q to be valid", value)
	}
	bad := []string{
		"",
		"missing",
		strings.Repeat("1", 26),
		value + "a",
		"../" + value[3:],
	}
	for _, v := range bad {
		if Valid(v) {
			t.Fatalf("expected %q to be invalid", v)
		}
	}
}
