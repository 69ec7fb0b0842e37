package janitor

import (
	"testing"
	"time"
)

// --- Cron Tests ---

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"every ten minutes", "*/10 * * * *", false},
		{"hourly", "0 * * * *", false},
		{"nightly", "30 2 * * *", false},
		{"empty", "", true},
		{"garbage", "not a cron", true},
		{"six fields", "0 0 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchedule(tt.expr)
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	from := time.Date(2026, 3, 15, 14, 23, 0, 0, time.UTC)

	next, err := NextRun("*/10 * * * *", from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextRun_InvalidExpr(t *testing.T) {
	if _, err := NextRun("bogus", time.Now()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestValidateSchedule(t *testing.T) {
	if err := ValidateSchedule("*/5 * * * *"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateSchedule("61 * * * *"); err == nil {
		t.Fatal("expected error, got nil")
	}
}
