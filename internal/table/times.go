package table

import (
	"slices"
	"time"

	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
)

// DefaultFinalDuration is used for the last interval of a group when no
// spacing between dates can be estimated.
const DefaultFinalDuration = 24*time.Hour - time.Second

// TimeIntervals returns an availability interval per row, or nil entries for
// rows without a parseable time. A row lasts until the next later date in
// its row group; the last date of a group lasts for the average spacing of
// the group's dates. An end-time column or a display duration overrides the
// derived finish.
func TimeIntervals(cols []Column, s Style, rows int) []*mapitem.TimeInterval {
	tc, ok := Find(cols, s.TimeColumn)
	if !ok {
		return nil
	}
	starts, valid := tc.Times()
	var ends []time.Time
	var endValid []bool
	if ec, ok := Find(cols, s.EndTimeColumn); ok {
		ends, endValid = ec.Times()
	}

	finish := make([]time.Time, rows)
	if ends == nil && s.DisplayDuration <= 0 {
		groupBy := s.IDColumns
		if len(groupBy) == 0 {
			groupBy = []string{s.LatitudeColumn, s.LongitudeColumn}
		}
		groups := RowGroups(cols, groupBy, rows)
		fallback := DefaultFinalDuration
		for _, g := range groups {
			if d, ok := averageSpacing(sortedUnique(pick(starts, valid, g))); ok {
				fallback = d
				break
			}
		}
		for _, g := range groups {
			assignFinish(finish, starts, valid, g, fallback)
		}
	}

	out := make([]*mapitem.TimeInterval, rows)
	for r := range rows {
		if r >= len(starts) || !valid[r] {
			continue
		}
		iv := mapitem.TimeInterval{Start: starts[r], Stop: finish[r]}
		switch {
		case s.DisplayDuration > 0:
			iv.Stop = starts[r].Add(time.Duration(s.DisplayDuration * float64(time.Minute)))
		case ends != nil:
			if r < len(ends) && endValid[r] {
				iv.Stop = ends[r]
			} else {
				iv.Stop = starts[r]
			}
		}
		out[r] = &iv
	}
	return out
}

func pick(ts []time.Time, ok []bool, rows []int) []time.Time {
	var out []time.Time
	for _, r := range rows {
		if r < len(ts) && ok[r] {
			out = append(out, ts[r])
		}
	}
	return out
}

func sortedUnique(ts []time.Time) []time.Time {
	out := slices.Clone(ts)
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(out, func(a, b time.Time) bool { return a.Equal(b) })
}

func averageSpacing(sorted []time.Time) (time.Duration, bool) {
	n := len(sorted)
	if n < 2 {
		return 0, false
	}
	return sorted[n-1].Sub(sorted[0]) / time.Duration(n-1), true
}

func assignFinish(finish, starts []time.Time, valid []bool, group []int, fallback time.Duration) {
	sorted := sortedUnique(pick(starts, valid, group))
	if len(sorted) == 0 {
		return
	}
	last := fallback
	if d, ok := averageSpacing(sorted); ok {
		last = d
	}
	for _, r := range group {
		if r >= len(starts) || !valid[r] {
			continue
		}
		i, _ := slices.BinarySearchFunc(sorted, starts[r], func(a, b time.Time) int { return a.Compare(b) })
		if i+1 < len(sorted) {
			finish[r] = sorted[i+1]
		} else {
			finish[r] = sorted[len(sorted)-1].Add(last)
		}
	}
}

// DiscreteTimes returns the distinct times of the time column in ascending
// order.
func DiscreteTimes(cols []Column, timeColumn string) []time.Time {
	tc, ok := Find(cols, timeColumn)
	if !ok {
		return nil
	}
	ts, valid := tc.Times()
	all := make([]int, len(ts))
	for i := range all {
		all[i] = i
	}
	return sortedUnique(pick(ts, valid, all))
}

// Clock returns a looping clock spanning the given intervals.
func Clock(intervals []*mapitem.TimeInterval) *mapitem.Clock {
	var c *mapitem.Clock
	for _, iv := range intervals {
		if iv == nil {
			continue
		}
		if c == nil {
			c = &mapitem.Clock{Start: iv.Start, Stop: iv.Stop, Multiplier: 1, ClockRange: "LOOP_STOP"}
			continue
		}
		if iv.Start.Before(c.Start) {
			c.Start = iv.Start
		}
		if iv.Stop.After(c.Stop) {
			c.Stop = iv.Stop
		}
	}
	if c != nil {
		c.Current = c.Start
	}
	return c
}
