package schedule

import "time"

// Consultations run in a fixed Central offset regardless of DST, so a
// published 11:00 slot is always 17:00 UTC.
var Zone = time.FixedZone("CT", -6*60*60)

// WindowDays is the rolling booking horizon, starting tomorrow.
const WindowDays = 28

const (
	// LayoutNinety offers two 90-minute sessions per bookable day.
	LayoutNinety = "ninety"
	// LayoutHourly offers three one-hour sessions on the hour.
	LayoutHourly = "hourly"
)

const (
	// PolicySlotExact blocks a candidate only when its exact timestamp
	// is already held by a live appointment.
	PolicySlotExact = "slot"
	// PolicyDayExclusive blocks the whole calendar day (UTC) once any
	// live appointment lands on it.
	PolicyDayExclusive = "day"
)

type clock struct {
	hour   int
	minute int
}

func layoutClocks(layout string) []clock {
	if layout == LayoutHourly {
		return []clock{{11, 0}, {12, 0}, {13, 0}}
	}
	return []clock{{11, 0}, {13, 30}}
}

func bookableWeekday(d time.Weekday) bool {
	return d >= time.Monday && d <= time.Wednesday
}

// GenerateSlots returns every candidate start time between tomorrow and
// now+28d: Monday through Wednesday only, at the layout's times of day,
// strictly in the future and strictly inside the window, in increasing
// order. The sequence is deterministic for a given now.
func GenerateSlots(now time.Time, layout string) []time.Time {
	windowEnd := now.Add(WindowDays * 24 * time.Hour)
	clocks := layoutClocks(layout)

	local := now.In(Zone)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Zone).AddDate(0, 0, 1)

	slots := make([]time.Time, 0, WindowDays*len(clocks))
	for !day.After(windowEnd) {
		if bookableWeekday(day.Weekday()) {
			for _, c := range clocks {
				slot := time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, 0, 0, Zone)
				if slot.After(now) && slot.Before(windowEnd) {
					slots = append(slots, slot)
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return slots
}

// DayKey collapses a timestamp to its UTC calendar day, the unit used
// by the day-exclusive policy and by blackout dates.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// FilterAvailable removes candidates consumed by existing bookings or
// blacked-out days, preserving order. booked carries every governing
// time value of live appointments; blackoutDays is keyed by DayKey.
func FilterAvailable(slots []time.Time, policy string, booked []time.Time, blackoutDays map[string]bool) []time.Time {
	bookedExact := make(map[int64]bool, len(booked))
	bookedDays := make(map[string]bool, len(booked))
	for _, t := range booked {
		bookedExact[t.Unix()] = true
		bookedDays[DayKey(t)] = true
	}

	available := make([]time.Time, 0, len(slots))
	for _, slot := range slots {
		if blackoutDays[DayKey(slot)] {
			continue
		}
		if policy == PolicyDayExclusive {
			if bookedDays[DayKey(slot)] {
				continue
			}
		} else if bookedExact[slot.Unix()] {
			continue
		}
		available = append(available, slot)
	}
	return available
}
