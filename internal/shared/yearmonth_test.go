package shared

import (
	"testing"
	"time"
)

func TestValidYearMonth(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"2024-01", true},
		{"2024-12", true},
		{"2024-13", false},
		{"2024-1", false},
		{"202401", false},
		{"2024/01", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidYearMonth(tc.in); got != tc.want {
			t.Errorf("ValidYearMonth(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestYearMonthOrderingIsLexical(t *testing.T) {
	// The whole engine relies on string comparison matching chronology.
	if !("2024-02" < "2024-10") {
		t.Fatal("expected 2024-02 < 2024-10")
	}
	if !("2024-12" < "2025-01") {
		t.Fatal("expected 2024-12 < 2025-01")
	}
}

func TestFirstDayOf(t *testing.T) {
	got, err := FirstDayOf("2024-06")
	if err != nil {
		t.Fatalf("FirstDayOf: %v", err)
	}
	want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("FirstDayOf = %v, want %v", got, want)
	}
}

func TestYearMonthOf(t *testing.T) {
	if got := YearMonthOf(time.Date(2024, 3, 17, 12, 0, 0, 0, time.UTC)); got != "2024-03" {
		t.Fatalf("YearMonthOf = %q", got)
	}
}
