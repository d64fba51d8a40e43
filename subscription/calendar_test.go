package subscription

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		n    int
		want time.Time
	}{
		{"plain", date(2026, 1, 15), 1, date(2026, 2, 15)},
		{"clamp to february", date(2026, 1, 31), 1, date(2026, 2, 28)},
		{"clamp to leap february", date(2028, 1, 31), 1, date(2028, 2, 29)},
		{"clamp to 30 day month", date(2026, 3, 31), 1, date(2026, 4, 30)},
		{"year rollover", date(2026, 11, 30), 3, date(2027, 2, 28)},
		{"zero", date(2026, 5, 5), 0, date(2026, 5, 5)},
		{"twelve", date(2026, 2, 28), 12, date(2027, 2, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AddMonths(tt.in, tt.n); !got.Equal(tt.want) {
				t.Errorf("AddMonths(%v, %d) = %v, want %v", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestMonthsBetween(t *testing.T) {
	tests := []struct {
		name string
		a, b time.Time
		want int
	}{
		{"same instant", date(2026, 1, 10), date(2026, 1, 10), 0},
		{"just under a month", date(2026, 1, 10), date(2026, 2, 9), 0},
		{"exactly a month", date(2026, 1, 10), date(2026, 2, 10), 1},
		{"clamped end of month", date(2026, 1, 31), date(2026, 2, 28), 1},
		{"three months", date(2026, 1, 10), date(2026, 4, 20), 3},
		{"reversed", date(2026, 4, 10), date(2026, 1, 10), -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MonthsBetween(tt.a, tt.b); got != tt.want {
				t.Errorf("MonthsBetween = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	a := date(2026, 1, 10)
	if got := DaysBetween(a, a.Add(23*time.Hour)); got != 0 {
		t.Errorf("23h: got %d, want 0", got)
	}
	if got := DaysBetween(a, a.AddDate(0, 0, 5).Add(time.Hour)); got != 5 {
		t.Errorf("5 days: got %d, want 5", got)
	}
}

func TestDayBefore(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)

	a := time.Date(2026, 1, 10, 1, 0, 0, 0, time.UTC) // Jan 9 22:00 BRT
	b := time.Date(2026, 1, 10, 5, 0, 0, 0, time.UTC) // Jan 10 02:00 BRT

	if !DayBefore(a, b, loc) {
		t.Error("expected a to fall on an earlier BRT date")
	}
	if DayBefore(a, b, time.UTC) {
		t.Error("same UTC date must not be before")
	}
}
