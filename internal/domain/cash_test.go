package domain

import (
	"testing"
	"time"
)

func TestCashSessionWindowIsHalfOpenOnceClosed(t *testing.T) {
	opened := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	closedAt := opened.Add(time.Hour)
	now := closedAt.Add(time.Hour)

	closed := CashSession{OpeningTime: opened, ClosingTime: &closedAt, Status: CashSessionClosed}
	cases := []struct {
		at   time.Time
		want bool
	}{
		{opened.Add(-time.Second), false},
		{opened, true},
		{closedAt.Add(-time.Nanosecond), true},
		{closedAt, false},
	}
	for _, tc := range cases {
		if got := closed.Contains(tc.at, now); got != tc.want {
			t.Fatalf("closed session Contains(%v) = %v, want %v", tc.at, got, tc.want)
		}
	}

	open := CashSession{OpeningTime: closedAt, Status: CashSessionOpen}
	if !open.Contains(closedAt, now) || !open.Contains(now, now) {
		t.Fatalf("expected open session to cover its opening instant and now")
	}
	if open.Contains(now.Add(time.Second), now) {
		t.Fatalf("expected open session to end at now")
	}
}
