package telegraph

import (
	"testing"
	"time"
)

func TestNextCronDuration(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC) // a Monday
	tests := []struct {
		expr string
		want time.Duration
	}{
		{"0 9 * * *", 30 * time.Minute},
		{"* * * * *", time.Minute},
		{"0 9 * * 6", 5*24*time.Hour + 30*time.Minute},
		{"not a cron expr", 0},
	}
	for _, tt := range tests {
		if got := nextCronDuration(tt.expr, now); got != tt.want {
			t.Errorf("nextCronDuration(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestValidateCron(t *testing.T) {
	if err := ValidateCron("0 9 * * 1-5"); err != nil {
		t.Errorf("ValidateCron: %v", err)
	}
	if err := ValidateCron("0 9 * *"); err == nil {
		t.Error("expected error for a 4-field expression")
	}
}
