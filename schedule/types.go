// Package schedule implements work-schedule templates and their assignment
// to users over date ranges.
package schedule

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/timekeeper/generic"
)

// =============================================================================
// WORK SCHEDULE - Company-scoped template
// =============================================================================

// WorkSchedule is a named working-hours template. At most one template per
// company has IsDefault set.
type WorkSchedule struct {
	ID        generic.RecordID
	CompanyID generic.CompanyID
	Name      string

	StandardHours     decimal.Decimal // per day
	OvertimeThreshold decimal.Decimal // hours per day after which overtime starts
	BreakMinutes      int

	IsFlexTime    bool
	FlexTimeStart string // "HH:MM", set when IsFlexTime
	FlexTimeEnd   string
	CoreTimeStart string // "HH:MM", optional
	CoreTimeEnd   string

	IsDefault bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClockTimeLayout is the wall-clock format of the flex and core time fields.
const ClockTimeLayout = "15:04"

// Validate checks the template fields. It does not check default uniqueness.
func (w WorkSchedule) Validate() error {
	if w.Name == "" {
		return &generic.ValidationError{Field: "name", Reason: "required"}
	}
	if w.CompanyID == "" {
		return &generic.ValidationError{Field: "company_id", Reason: "required"}
	}
	if !w.StandardHours.IsPositive() || w.StandardHours.GreaterThan(decimal.NewFromInt(24)) {
		return &generic.ValidationError{Field: "standard_hours", Reason: "must be within (0, 24]"}
	}
	if w.OvertimeThreshold.IsNegative() {
		return &generic.ValidationError{Field: "overtime_threshold", Reason: "must not be negative"}
	}
	if w.BreakMinutes < 0 || w.BreakMinutes > 24*60 {
		return &generic.ValidationError{Field: "break_minutes", Reason: "must be within [0, 1440]"}
	}
	if w.IsFlexTime {
		if w.FlexTimeStart == "" || w.FlexTimeEnd == "" {
			return &generic.ValidationError{Field: "flex_time", Reason: "flex-time templates need a start and an end"}
		}
	}
	if err := validateWindow("flex_time", w.FlexTimeStart, w.FlexTimeEnd); err != nil {
		return err
	}
	return validateWindow("core_time", w.CoreTimeStart, w.CoreTimeEnd)
}

// validateWindow accepts an empty window or two ordered "HH:MM" times.
func validateWindow(field, start, end string) error {
	if start == "" && end == "" {
		return nil
	}
	if start == "" || end == "" {
		return &generic.ValidationError{Field: field, Reason: "start and end go together"}
	}
	s, err := time.Parse(ClockTimeLayout, start)
	if err != nil {
		return &generic.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not HH:MM", start)}
	}
	e, err := time.Parse(ClockTimeLayout, end)
	if err != nil {
		return &generic.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not HH:MM", end)}
	}
	if !s.Before(e) {
		return &generic.ValidationError{Field: field, Reason: "start must be before end"}
	}
	return nil
}

// =============================================================================
// USER WORK SCHEDULE - Assignment of a template to a user
// =============================================================================

// UserWorkSchedule assigns a template to a user. End nil means open-ended.
// Assignments have no status: every row blocks overlapping ones, and removal
// is a hard delete.
type UserWorkSchedule struct {
	ID             generic.RecordID
	UserID         generic.UserID
	WorkScheduleID generic.RecordID
	Interval       generic.Interval

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a UserWorkSchedule) Span() generic.Span {
	return generic.Span{ID: a.ID, SubjectID: a.UserID, Interval: a.Interval}
}

// Source says where a resolved schedule came from.
type Source string

const (
	SourceAssignment     Source = "ASSIGNMENT"
	SourceCompanyDefault Source = "COMPANY_DEFAULT"
)

// Resolution is the schedule in force for a user on a date.
type Resolution struct {
	UserID     generic.UserID
	Date       generic.Date
	Source     Source
	Schedule   WorkSchedule
	Assignment *UserWorkSchedule // nil for SourceCompanyDefault
}
