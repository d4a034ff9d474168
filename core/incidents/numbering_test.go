package incidents

import (
	"errors"
	"regexp"
	"testing"
	"time"
)

var numberPattern = regexp.MustCompile(`^INC-\d{4}-\d{6}$`)

func TestGenerateIncidentNumber(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		count int64
		want  string
	}{
		{0, "INC-2024-000001"},
		{41, "INC-2024-000042"},
		{999998, "INC-2024-999999"},
	}
	for _, tc := range cases {
		got, err := GenerateIncidentNumber(tc.count, now)
		if err != nil {
			t.Fatalf("count %d: %v", tc.count, err)
		}
		if got != tc.want || !numberPattern.MatchString(got) {
			t.Fatalf("count %d: got %s want %s", tc.count, got, tc.want)
		}
	}
}

func TestGenerateIncidentNumberOverflow(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, count := range []int64{999999, 5000000, -1} {
		if _, err := GenerateIncidentNumber(count, now); !errors.Is(err, ErrSequenceOverflow) {
			t.Fatalf("count %d: expected ErrSequenceOverflow, got %v", count, err)
		}
	}
}

func TestGenerateIncidentNumberUsesClockYear(t *testing.T) {
	got, _ := GenerateIncidentNumber(0, time.Date(1999, 12, 31, 23, 59, 0, 0, time.UTC))
	if got != "INC-1999-000001" {
		t.Fatalf("got %s", got)
	}
}
