package schedule

import (
	"testing"
	"time"
)

// A Thursday midday UTC, so "tomorrow" starts on a Friday and the first
// bookable days are the following Mon/Tue/Wed.
var baseNow = time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)

func TestGenerateSlotsWeekdaysAndClocks(t *testing.T) {
	slots := GenerateSlots(baseNow, LayoutNinety)
	if len(slots) == 0 {
		t.Fatal("expected slots, got none")
	}

	for _, s := range slots {
		local := s.In(Zone)
		if wd := local.Weekday(); wd < time.Monday || wd > time.Wednesday {
			t.Fatalf("slot %v falls on %v", s, wd)
		}
		hm := local.Format("15:04")
		if hm != "11:00" && hm != "13:30" {
			t.Fatalf("unexpected time of day %s for slot %v", hm, s)
		}
	}
}

func TestGenerateSlotsHourlyLayout(t *testing.T) {
	slots := GenerateSlots(baseNow, LayoutHourly)

	seen := map[string]bool{}
	for _, s := range slots {
		hm := s.In(Zone).Format("15:04")
		seen[hm] = true
		if hm != "11:00" && hm != "12:00" && hm != "13:00" {
			t.Fatalf("unexpected time of day %s for slot %v", hm, s)
		}
	}
	for _, want := range []string{"11:00", "12:00", "13:00"} {
		if !seen[want] {
			t.Fatalf("layout never produced a %s slot", want)
		}
	}
}

func TestGenerateSlotsStrictBounds(t *testing.T) {
	windowEnd := baseNow.Add(WindowDays * 24 * time.Hour)
	for _, s := range GenerateSlots(baseNow, LayoutNinety) {
		if !s.After(baseNow) {
			t.Fatalf("slot %v is not strictly in the future", s)
		}
		if !s.Before(windowEnd) {
			t.Fatalf("slot %v is not strictly inside the window ending %v", s, windowEnd)
		}
	}
}

func TestGenerateSlotsOrderedAndDeterministic(t *testing.T) {
	first := GenerateSlots(baseNow, LayoutNinety)
	second := GenerateSlots(baseNow, LayoutNinety)

	if len(first) != len(second) {
		t.Fatalf("non-deterministic slot count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Fatalf("non-deterministic slot at %d: %v vs %v", i, first[i], second[i])
		}
		if i > 0 && !first[i].After(first[i-1]) {
			t.Fatalf("slots out of order at %d: %v then %v", i, first[i-1], first[i])
		}
	}
}

func TestGenerateSlotsSkipsSameDayPastTimes(t *testing.T) {
	// 12:00 CT on a Monday: generation starts tomorrow, so no Monday
	// slot from today may appear even though 13:30 is still ahead.
	now := time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)
	for _, s := range GenerateSlots(now, LayoutNinety) {
		if s.In(Zone).Format("2006-01-02") == now.In(Zone).Format("2006-01-02") {
			t.Fatalf("slot %v generated for today", s)
		}
	}
}

func TestFilterAvailableSlotExact(t *testing.T) {
	slots := GenerateSlots(baseNow, LayoutNinety)
	booked := []time.Time{slots[0], slots[3]}

	got := FilterAvailable(slots, PolicySlotExact, booked, nil)
	if len(got) != len(slots)-2 {
		t.Fatalf("expected %d slots, got %d", len(slots)-2, len(got))
	}
	for _, s := range got {
		for _, b := range booked {
			if s.Equal(b) {
				t.Fatalf("booked slot %v survived filtering", s)
			}
		}
	}
}

func TestFilterAvailableDayExclusive(t *testing.T) {
	slots := GenerateSlots(baseNow, LayoutNinety)
	booked := []time.Time{slots[0]}
	blockedDay := DayKey(slots[0])

	got := FilterAvailable(slots, PolicyDayExclusive, booked, nil)
	for _, s := range got {
		if DayKey(s) == blockedDay {
			t.Fatalf("slot %v shares a day with a booking", s)
		}
	}

	// The same booking under the exact policy removes only itself.
	exact := FilterAvailable(slots, PolicySlotExact, booked, nil)
	if len(exact) != len(slots)-1 {
		t.Fatalf("exact policy removed %d slots, want 1", len(slots)-len(exact))
	}
}

func TestFilterAvailableBlackouts(t *testing.T) {
	slots := GenerateSlots(baseNow, LayoutNinety)
	blocked := map[string]bool{DayKey(slots[0]): true}

	got := FilterAvailable(slots, PolicySlotExact, nil, blocked)
	for _, s := range got {
		if blocked[DayKey(s)] {
			t.Fatalf("slot %v on blacked-out day survived", s)
		}
	}
	if len(got) == len(slots) {
		t.Fatal("blackout removed nothing")
	}
}

func TestFilterAvailablePreservesOrder(t *testing.T) {
	slots := GenerateSlots(baseNow, LayoutHourly)
	got := FilterAvailable(slots, PolicySlotExact, []time.Time{slots[2]}, nil)
	for i := 1; i < len(got); i++ {
		if !got[i].After(got[i-1]) {
			t.Fatalf("order broken at %d: %v then %v", i, got[i-1], got[i])
		}
	}
}
