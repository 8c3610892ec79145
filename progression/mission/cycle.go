package mission

import (
	"time"

	"github.com/kasuganosora/progression/model"
)

// achievementCycle is the fixed cycle_start of missions that never reset.
var achievementCycle = time.Unix(0, 0).UTC()

// CycleStart returns the start of the cycle containing now, in UTC. Daily
// cycles start at 00:00 and weekly cycles on Monday 00:00, both in loc.
func CycleStart(typ model.MissionType, now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	switch typ {
	case model.MissionDaily:
		return time.Date(y, m, d, 0, 0, 0, 0, loc).UTC()
	case model.MissionWeekly:
		sinceMonday := (int(local.Weekday()) + 6) % 7
		return time.Date(y, m, d-sinceMonday, 0, 0, 0, 0, loc).UTC()
	default:
		return achievementCycle
	}
}

// NextReset returns when the cycle containing now ends, or nil for
// missions that never reset.
func NextReset(typ model.MissionType, now time.Time, loc *time.Location) *time.Time {
	start := CycleStart(typ, now, loc).In(loc)
	var next time.Time
	switch typ {
	case model.MissionDaily:
		next = time.Date(start.Year(), start.Month(), start.Day()+1, 0, 0, 0, 0, loc)
	case model.MissionWeekly:
		next = time.Date(start.Year(), start.Month(), start.Day()+7, 0, 0, 0, 0, loc)
	default:
		return nil
	}
	next = next.UTC()
	return &next
}

// Resets reports whether missions of typ have cycles.
func Resets(typ model.MissionType) bool {
	return typ == model.MissionDaily || typ == model.MissionWeekly
}
