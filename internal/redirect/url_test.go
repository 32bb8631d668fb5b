package redirect

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "https", raw: "https://example.com/path"},
		{name: "http uppercase scheme", raw: "HTTP://example.com"},
		{name: "not a url", raw: "not-a-url", wantErr: true},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "ftp", raw: "ftp://example.com", wantErr: true},
		{name: "missing host", raw: "https://", wantErr: true},
		{name: "bad escape", raw: "http://%zz", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateSeed(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("ValidateSeed(%q) error = %v, want ErrInvalidInput", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateSeed(%q) unexpected error: %v", tt.raw, err)
			}
		})
	}
}

func TestSafeFilename(t *testing.T) {
	t.Parallel()

	if got := SafeFilename("https://example.com/a/b?c=d"); got != "https_example.com_a_b_c_d" {
		t.Fatalf("unexpected safe name %q", got)
	}
	if got := SafeFilename("example.com"); got != "example.com" {
		t.Fatalf("domain should be unchanged, got %q", got)
	}
	if got := SafeFilename("://"); got != "root" {
		t.Fatalf("expected root fallback, got %q", got)
	}

	long := "https://example.com/" + strings.Repeat("segment/", 60)
	got := SafeFilename(long)
	if len(got) != maxFilenameLen+17 {
		t.Fatalf("expected truncated name with digest, got len %d", len(got))
	}
	other := SafeFilename(long + "x")
	if got == other {
		t.Fatalf("expected digest to disambiguate long names")
	}
}

func TestHostname(t *testing.T) {
	t.Parallel()

	if got := Hostname("https://Sub.Example.COM:8443/x"); got != "sub.example.com" {
		t.Fatalf("unexpected host %q", got)
	}
	if got := Hostname("http://%zz"); got != "" {
		t.Fatalf("expected empty host for bad url, got %q", got)
	}
}
