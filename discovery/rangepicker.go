package discovery

import "time"

// RangePicker is the two-field date range dialog as one state machine. The
// spinner-style and overlay-style presentations both drive it the same way:
// Open, any number of SetStart/SetEnd/Preset* edits, then Apply or Cancel.
// Edits never produce an inverted range; they clamp instead of rejecting.
type RangePicker struct {
	committed DateRange
	start     *time.Time
	end       *time.Time
	open      bool
}

func NewRangePicker(committed DateRange) *RangePicker {
	return &RangePicker{committed: committed}
}

// Open seeds the working fields from the committed range, defaulting the
// start to today when nothing is committed yet.
func (p *RangePicker) Open(now time.Time) {
	p.open = true
	if p.committed.Start != nil {
		s := *p.committed.Start
		p.start = &s
	} else {
		s := now
		p.start = &s
	}
	p.end = nil
	if p.committed.End != nil {
		e := *p.committed.End
		p.end = &e
	}
}

func (p *RangePicker) IsOpen() bool {
	return p.open
}

// SetStart picks the start day. A start past the current end drags the end
// forward with it, collapsing to a single-day range.
func (p *RangePicker) SetStart(d time.Time) {
	if !p.open {
		return
	}
	s := d
	p.start = &s
	if p.end != nil && p.end.Before(d) {
		e := d
		p.end = &e
	}
}

// SetEnd picks the end day. An end before the current start moves the start
// back to the picked day, so the result is a valid same-day range.
func (p *RangePicker) SetEnd(d time.Time) {
	if !p.open {
		return
	}
	if p.start != nil && d.Before(*p.start) {
		s := d
		p.start = &s
	}
	e := d
	p.end = &e
}

// PresetWeek overwrites both fields with the current ISO week, Monday first.
func (p *RangePicker) PresetWeek(now time.Time) {
	if !p.open {
		return
	}
	wd := int(now.Weekday())
	if wd == 0 {
		wd = 7
	}
	start := now.AddDate(0, 0, -(wd - 1))
	end := start.AddDate(0, 0, 6)
	p.start, p.end = &start, &end
}

// PresetMonth overwrites both fields with the current calendar month.
func (p *RangePicker) PresetMonth(now time.Time) {
	if !p.open {
		return
	}
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, -1)
	p.start, p.end = &start, &end
}

// PresetYear overwrites both fields with the current calendar year.
func (p *RangePicker) PresetYear(now time.Time) {
	if !p.open {
		return
	}
	start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	end := time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, now.Location())
	p.start, p.end = &start, &end
}

// Apply commits the working range, normalized to whole days, and closes the
// picker. Without a start nothing is committed; a missing end defaults to
// the start day.
func (p *RangePicker) Apply() (DateRange, bool) {
	if !p.open || p.start == nil {
		return p.committed, false
	}
	end := p.end
	if end == nil {
		end = p.start
	}
	s := StartOfDay(*p.start)
	e := EndOfDay(*end)
	p.committed = DateRange{Start: &s, End: &e}
	p.open = false
	p.start, p.end = nil, nil
	return p.committed, true
}

// Cancel discards in-progress edits; the previously committed range stands.
func (p *RangePicker) Cancel() {
	p.open = false
	p.start, p.end = nil, nil
}

func (p *RangePicker) Committed() DateRange {
	return p.committed
}

// Start and End expose the working fields for rendering while the picker is
// open.
func (p *RangePicker) Start() *time.Time { return p.start }
func (p *RangePicker) End() *time.Time   { return p.end }

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay is the last represented instant of the day at millisecond
// precision, matching the inclusive upper bound of the range filter.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}
