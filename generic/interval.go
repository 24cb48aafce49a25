package generic

// =============================================================================
// INTERVAL - The time-bound shape shared by leave requests and assignments
// =============================================================================

// Interval is a closed range of calendar days [Start, End]. A nil End means
// the interval is open-ended and runs forever.
type Interval struct {
	Start Date
	End   *Date
}

// Bounded builds an interval with both ends set.
func Bounded(start, end Date) Interval {
	return Interval{Start: start, End: &end}
}

// OpenEnded builds an interval with no end date.
func OpenEnded(start Date) Interval {
	return Interval{Start: start}
}

func (iv Interval) IsOpenEnded() bool { return iv.End == nil }

// EndOrFarFuture returns End, or FarFuture when the interval is open-ended.
func (iv Interval) EndOrFarFuture() Date {
	if iv.End == nil {
		return FarFuture
	}
	return *iv.End
}

// Validate checks that Start is set and Start <= End.
func (iv Interval) Validate() error {
	if iv.Start.IsZero() {
		return &ValidationError{Field: "start_date", Reason: "start date is required"}
	}
	if iv.End != nil && iv.End.IsZero() {
		return &ValidationError{Field: "end_date", Reason: "end date is malformed"}
	}
	if iv.End != nil && iv.End.Before(iv.Start) {
		return &ValidationError{
			Field:  "end_date",
			Reason: "start date " + iv.Start.String() + " is after end date " + iv.End.String(),
		}
	}
	return nil
}

// Overlaps reports whether two closed intervals share at least one day.
// Open ends are treated as +infinity.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.BeforeOrEqual(o.EndOrFarFuture()) && iv.EndOrFarFuture().AfterOrEqual(o.Start)
}

// Contains reports whether d falls inside the interval, both ends inclusive.
func (iv Interval) Contains(d Date) bool {
	return iv.Start.BeforeOrEqual(d) && d.BeforeOrEqual(iv.EndOrFarFuture())
}

// CalendarDays is the inclusive day count of a bounded interval, 0 if open-ended.
func (iv Interval) CalendarDays() int {
	if iv.End == nil {
		return 0
	}
	return DaysBetween(iv.Start, *iv.End) + 1
}

func (iv Interval) String() string {
	if iv.End == nil {
		return "[" + iv.Start.String() + ", ...)"
	}
	return "[" + iv.Start.String() + ", " + iv.End.String() + "]"
}
