package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseCursor(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
	}{
		{"RFC3339", "2026-03-01T12:30:45Z"},
		{"RFC3339オフセット付き", "2026-03-01T21:30:45+09:00"},
		{"RFC1123", "Sun, 01 Mar 2026 12:30:45 GMT"},
		{"RFC1123Z", "Sun, 01 Mar 2026 12:30:45 +0000"},
		{"前後の空白", "  2026-03-01T12:30:45Z "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCursor(tt.raw)
			if err != nil {
				t.Fatalf("ParseCursor(%q) returned error: %v", tt.raw, err)
			}
			if !got.Equal(want) {
				t.Errorf("ParseCursor(%q) = %v, want %v", tt.raw, got, want)
			}
		})
	}
}

func TestParseCursor_Empty(t *testing.T) {
	got, err := ParseCursor("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !got.IsZero() {
		t.Errorf("expected zero time, got %v", got)
	}
}

func TestParseCursor_Invalid(t *testing.T) {
	for _, raw := range []string{"yesterday", "2026-13-01", "1700000000"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseCursor(raw)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.Code != ErrCodeInvalidCursor {
				t.Errorf("code = %q, want %q", apiErr.Code, ErrCodeInvalidCursor)
			}
			if apiErr.Message != "Invalid date format" {
				t.Errorf("message = %q, want %q", apiErr.Message, "Invalid date format")
			}
		})
	}
}

func TestFormatCursor_RoundTripKeepsNanoseconds(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	orig := time.Date(2026, 3, 1, 21, 30, 45, 123456789, jst)

	s := FormatCursor(orig)
	if s != "2026-03-01T12:30:45.123456789Z" {
		t.Errorf("FormatCursor = %q", s)
	}
	back, err := ParseCursor(s)
	if err != nil {
		t.Fatalf("ParseCursor returned error: %v", err)
	}
	if !back.Equal(orig) {
		t.Errorf("round trip = %v, want %v", back, orig)
	}
}

func TestFormatCursor_Zero(t *testing.T) {
	if got := FormatCursor(time.Time{}); got != "" {
		t.Errorf("FormatCursor(zero) = %q, want empty", got)
	}
}
