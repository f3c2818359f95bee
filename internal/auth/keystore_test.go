package auth

import (
	"errors"
	"testing"
)

func TestNewKeyStoreRejectsEmptySet(t *testing.T) {
	if _, err := NewKeyStore(nil); !errors.Is(err, ErrNoKeys) {
		t.Fatalf("NewKeyStore(nil) error = %v, want ErrNoKeys", err)
	}
	if _, err := NewKeyStore([]string{"", ""}); !errors.Is(err, ErrNoKeys) {
		t.Fatalf("NewKeyStore(blank keys) error = %v, want ErrNoKeys", err)
	}
}

func TestIsValid(t *testing.T) {
	ks, err := NewKeyStore([]string{"alpha-key-1234", "beta-key-5678"})
	if err != nil {
		t.Fatalf("NewKeyStore() error = %v", err)
	}

	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"first key", "alpha-key-1234", true},
		{"second key", "beta-key-5678", true},
		{"wrong key same length", "alpha-key-0000", false},
		{"wrong key different length", "nope", false},
		{"prefix of a key", "alpha-key", false},
		{"key plus suffix", "alpha-key-1234x", false},
		{"empty", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ks.IsValid(tc.candidate); got != tc.want {
				t.Errorf("IsValid(%q) = %v, want %v", tc.candidate, got, tc.want)
			}
		})
	}
}

func TestIsValidIgnoresBlankConfiguredKeys(t *testing.T) {
	ks, err := NewKeyStore([]string{"real-key", ""})
	if err != nil {
		t.Fatalf("NewKeyStore() error = %v", err)
	}
	if ks.IsValid("") {
		t.Error("IsValid(\"\") = true, empty candidate must never match")
	}
	if !ks.IsValid("real-key") {
		t.Error("IsValid(real-key) = false, want true")
	}
}
