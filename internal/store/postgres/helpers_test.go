package postgres

import (
	"fmt"
	"testing"
	"time"
)

func TestDayOfUsesLocalMidnight(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 23:30 UTC on Jan 11 is already Jan 12 in Jakarta (UTC+7).
	instant := time.Date(2026, 1, 11, 23, 30, 0, 0, time.UTC)
	day := dayOf(instant, jakarta)
	if day.Year() != 2026 || day.Month() != time.January || day.Day() != 12 {
		t.Fatalf("expected local day 2026-01-12, got %v", day)
	}

	// 16:59 UTC is still 23:59 the same day in Jakarta.
	instant = time.Date(2026, 1, 11, 16, 59, 0, 0, time.UTC)
	day = dayOf(instant, jakarta)
	if day.Day() != 11 {
		t.Fatalf("expected local day 2026-01-11, got %v", day)
	}
}

func TestStartOfDayMillis(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	instant := time.Date(2026, 1, 12, 10, 0, 0, 0, jakarta)
	got := startOfDayMillis(instant, jakarta)
	want := time.Date(2026, 1, 12, 0, 0, 0, 0, jakarta).UnixMilli()
	if got != want {
		t.Fatalf("startOfDayMillis = %d, want %d", got, want)
	}

	if before := instant.Add(-11 * time.Hour); startOfDayMillis(before, jakarta) == want {
		t.Fatalf("expected previous day boundary for %v", before)
	}
}

func TestQueueNumberFormat(t *testing.T) {
	cases := []struct {
		prefix string
		seq    int64
		want   string
	}{
		{"A", 1, "A-001"},
		{"B", 42, "B-042"},
		{"C", 999, "C-999"},
		{"A", 1000, "A-1000"},
	}
	for _, tc := range cases {
		got := fmt.Sprintf("%s-%0*d", tc.prefix, queueNumberPad, tc.seq)
		if got != tc.want {
			t.Errorf("format(%s, %d) = %q, want %q", tc.prefix, tc.seq, got, tc.want)
		}
	}
}

func TestHashPhone(t *testing.T) {
	if hashPhone("") != nil {
		t.Fatal("empty phone should hash to NULL")
	}
	if hashPhone("   ") != nil {
		t.Fatal("blank phone should hash to NULL")
	}

	first, ok := hashPhone("081234567890").(string)
	if !ok || len(first) != 64 {
		t.Fatalf("expected hex sha256, got %v", first)
	}
	second := hashPhone("081234567890").(string)
	if first != second {
		t.Fatal("hash must be deterministic")
	}
	if hashPhone("081234567891").(string) == first {
		t.Fatal("distinct phones must not collide")
	}
	if hashPhone(" 081234567890 ").(string) != first {
		t.Fatal("surrounding whitespace must not change the hash")
	}
}

func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Fatal("empty string should map to NULL")
	}
	if nullIfEmpty("123/Pdt.G/2026") != "123/Pdt.G/2026" {
		t.Fatal("non-empty string should pass through")
	}
}
