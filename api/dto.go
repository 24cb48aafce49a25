/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags for shape checks (required
  fields, date formats, enums). Domain rules (day counts, overlaps, balances)
  stay in the services and come back as engine errors.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: ErrorResponse
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/schedule"
	"github.com/warp/timekeeper/timeoff"
)

// =============================================================================
// BINDING
// =============================================================================

var validate = newValidator()

// newValidator reports fields by their json name, the key clients sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindError is a malformed or invalid request body.
type bindError struct {
	Message string
	Fields  map[string]string
}

func (e *bindError) Error() string { return e.Message }

func (e *bindError) Unwrap() error { return generic.ErrValidation }

// bind decodes the JSON body into dst and validates it.
func bind(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &bindError{Message: "invalid request body: " + err.Error()}
	}
	if err := validate.Struct(dst); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return &bindError{Message: err.Error()}
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			fields[fe.Field()] = rule
		}
		return &bindError{Message: "invalid request body", Fields: fields}
	}
	return nil
}

func parseDate(field, s string) (generic.Date, error) {
	d, err := generic.ParseDate(s)
	if err != nil {
		return generic.Date{}, &generic.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not YYYY-MM-DD", s)}
	}
	return d, nil
}

func parseInterval(start string, end *string) (generic.Interval, error) {
	s, err := parseDate("start_date", start)
	if err != nil {
		return generic.Interval{}, err
	}
	if end == nil || *end == "" {
		return generic.OpenEnded(s), nil
	}
	e, err := parseDate("end_date", *end)
	if err != nil {
		return generic.Interval{}, err
	}
	return generic.Bounded(s, e), nil
}

// =============================================================================
// USERS
// =============================================================================

type UserDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role"`
	ManagerID string `json:"manager_id,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
}

type CreateUserRequest struct {
	ID        string `json:"id" validate:"required,max=64"`
	Name      string `json:"name" validate:"required,max=200"`
	Email     string `json:"email" validate:"omitempty,email"`
	Role      string `json:"role" validate:"required,oneof=MEMBER MANAGER COMPANY ADMIN"`
	ManagerID string `json:"manager_id" validate:"omitempty,max=64"`
	CompanyID string `json:"company_id" validate:"omitempty,max=64"`
}

func toUserDTO(u generic.User) UserDTO {
	return UserDTO{
		ID:        string(u.ID),
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		ManagerID: string(u.ManagerID),
		CompanyID: string(u.CompanyID),
	}
}

// =============================================================================
// LEAVE
// =============================================================================

type LeaveRequestDTO struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	LeaveType    string          `json:"leave_type"`
	StartDate    string          `json:"start_date"`
	EndDate      string          `json:"end_date"`
	Days         decimal.Decimal `json:"days"`
	Reason       string          `json:"reason,omitempty"`
	Status       string          `json:"status"`
	BalanceYear  int             `json:"balance_year"`
	ApproverID   string          `json:"approver_id,omitempty"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	RejectedAt   *time.Time      `json:"rejected_at,omitempty"`
	RejectReason string          `json:"reject_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SubmitLeaveRequest is the body of POST and PUT /api/leave-requests.
type SubmitLeaveRequest struct {
	UserID    string          `json:"user_id" validate:"omitempty,max=64"`
	LeaveType string          `json:"leave_type" validate:"required,oneof=PAID_LEAVE SICK_LEAVE PERSONAL_LEAVE MATERNITY PATERNITY SPECIAL UNPAID"`
	StartDate string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string          `json:"end_date" validate:"required,datetime=2006-01-02"`
	Days      decimal.Decimal `json:"days"`
	Reason    string          `json:"reason" validate:"max=1000"`
}

func (req SubmitLeaveRequest) toInput() (timeoff.SubmitInput, error) {
	iv, err := parseInterval(req.StartDate, &req.EndDate)
	if err != nil {
		return timeoff.SubmitInput{}, err
	}
	return timeoff.SubmitInput{
		UserID:    generic.UserID(req.UserID),
		LeaveType: timeoff.LeaveType(req.LeaveType),
		Interval:  iv,
		Days:      req.Days,
		Reason:    req.Reason,
	}, nil
}

type RejectLeaveRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

func toLeaveRequestDTO(r timeoff.LeaveRequest) LeaveRequestDTO {
	return LeaveRequestDTO{
		ID:           string(r.ID),
		UserID:       string(r.UserID),
		LeaveType:    string(r.LeaveType),
		StartDate:    r.Interval.Start.String(),
		EndDate:      r.Interval.EndOrFarFuture().String(),
		Days:         r.Days,
		Reason:       r.Reason,
		Status:       string(r.Status),
		BalanceYear:  r.BalanceYear,
		ApproverID:   string(r.ApproverID),
		ApprovedAt:   r.ApprovedAt,
		RejectedAt:   r.RejectedAt,
		RejectReason: r.RejectReason,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type BalanceDTO struct {
	UserID        string          `json:"user_id"`
	Year          int             `json:"year"`
	LeaveType     string          `json:"leave_type"`
	TotalDays     decimal.Decimal `json:"total_days"`
	UsedDays      decimal.Decimal `json:"used_days"`
	RemainingDays decimal.Decimal `json:"remaining_days"`
	ExpiryDate    string          `json:"expiry_date"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SetAllotmentRequest is the body of PUT /api/users/{id}/balances/{year}.
type SetAllotmentRequest struct {
	LeaveType string          `json:"leave_type" validate:"omitempty,oneof=PAID_LEAVE SICK_LEAVE PERSONAL_LEAVE MATERNITY PATERNITY SPECIAL UNPAID"`
	TotalDays decimal.Decimal `json:"total_days"`
}

func toBalanceDTO(b timeoff.LeaveBalance) BalanceDTO {
	return BalanceDTO{
		UserID:        string(b.Key.UserID),
		Year:          b.Key.Year,
		LeaveType:     string(b.Key.LeaveType),
		TotalDays:     b.TotalDays,
		UsedDays:      b.UsedDays,
		RemainingDays: b.RemainingDays,
		ExpiryDate:    b.ExpiryDate.String(),
		UpdatedAt:     b.UpdatedAt,
	}
}

type StatusChangeDTO struct {
	ActorID string    `json:"actor_id,omitempty"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

func toStatusChangeDTO(e generic.StatusChanged) StatusChangeDTO {
	return StatusChangeDTO{ActorID: string(e.ActorID), From: e.From, To: e.To, Reason: e.Reason, At: e.At}
}

type LeaveSummaryDTO struct {
	UserID       string                     `json:"user_id"`
	Year         int                        `json:"year"`
	ApprovedDays decimal.Decimal            `json:"approved_days"`
	PendingDays  decimal.Decimal            `json:"pending_days"`
	ByType       map[string]decimal.Decimal `json:"approved_by_type"`
	PaidBalance  *BalanceDTO                `json:"paid_balance,omitempty"`
}

func toLeaveSummaryDTO(s timeoff.UserLeaveSummary) LeaveSummaryDTO {
	dto := LeaveSummaryDTO{
		UserID:       string(s.UserID),
		Year:         s.Year,
		ApprovedDays: s.ApprovedDays,
		PendingDays:  s.PendingDays,
		ByType:       make(map[string]decimal.Decimal, len(s.ByType)),
	}
	for lt, d := range s.ByType {
		dto.ByType[string(lt)] = d
	}
	if s.PaidBalance != nil {
		b := toBalanceDTO(*s.PaidBalance)
		dto.PaidBalance = &b
	}
	return dto
}

// =============================================================================
// WORK SCHEDULES
// =============================================================================

type WorkScheduleDTO struct {
	ID                string          `json:"id"`
	CompanyID         string          `json:"company_id"`
	Name              string          `json:"name"`
	StandardHours     decimal.Decimal `json:"standard_hours"`
	OvertimeThreshold decimal.Decimal `json:"overtime_threshold"`
	BreakMinutes      int             `json:"break_minutes"`
	IsFlexTime        bool            `json:"is_flex_time"`
	FlexTimeStart     string          `json:"flex_time_start,omitempty"`
	FlexTimeEnd       string          `json:"flex_time_end,omitempty"`
	CoreTimeStart     string          `json:"core_time_start,omitempty"`
	CoreTimeEnd       string          `json:"core_time_end,omitempty"`
	IsDefault         bool            `json:"is_default"`
}

// WorkScheduleRequest is the body of POST and PUT /api/work-schedules.
type WorkScheduleRequest struct {
	CompanyID         string          `json:"company_id" validate:"omitempty,max=64"`
	Name              string          `json:"name" validate:"required,max=200"`
	StandardHours     decimal.Decimal `json:"standard_hours"`
	OvertimeThreshold decimal.Decimal `json:"overtime_threshold"`
	BreakMinutes      int             `json:"break_minutes" validate:"gte=0,lte=1440"`
	IsFlexTime        bool            `json:"is_flex_time"`
	FlexTimeStart     string          `json:"flex_time_start" validate:"omitempty,datetime=15:04"`
	FlexTimeEnd       string          `json:"flex_time_end" validate:"omitempty,datetime=15:04"`
	CoreTimeStart     string          `json:"core_time_start" validate:"omitempty,datetime=15:04"`
	CoreTimeEnd       string          `json:"core_time_end" validate:"omitempty,datetime=15:04"`
	IsDefault         bool            `json:"is_default"`
}

func (req WorkScheduleRequest) toInput() schedule.TemplateInput {
	return schedule.TemplateInput{
		CompanyID:         generic.CompanyID(req.CompanyID),
		Name:              req.Name,
		StandardHours:     req.StandardHours,
		OvertimeThreshold: req.OvertimeThreshold,
		BreakMinutes:      req.BreakMinutes,
		IsFlexTime:        req.IsFlexTime,
		FlexTimeStart:     req.FlexTimeStart,
		FlexTimeEnd:       req.FlexTimeEnd,
		CoreTimeStart:     req.CoreTimeStart,
		CoreTimeEnd:       req.CoreTimeEnd,
		IsDefault:         req.IsDefault,
	}
}

func toWorkScheduleDTO(w schedule.WorkSchedule) WorkScheduleDTO {
	return WorkScheduleDTO{
		ID:                string(w.ID),
		CompanyID:         string(w.CompanyID),
		Name:              w.Name,
		StandardHours:     w.StandardHours,
		OvertimeThreshold: w.OvertimeThreshold,
		BreakMinutes:      w.BreakMinutes,
		IsFlexTime:        w.IsFlexTime,
		FlexTimeStart:     w.FlexTimeStart,
		FlexTimeEnd:       w.FlexTimeEnd,
		CoreTimeStart:     w.CoreTimeStart,
		CoreTimeEnd:       w.CoreTimeEnd,
		IsDefault:         w.IsDefault,
	}
}

type AssignmentDTO struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	WorkScheduleID string  `json:"work_schedule_id"`
	StartDate      string  `json:"start_date"`
	EndDate        *string `json:"end_date"` // null = open-ended
}

// AssignmentRequest is the body of POST /api/users/{id}/work-schedules and
// PUT /api/user-work-schedules/{id}. A missing end_date is open-ended.
type AssignmentRequest struct {
	WorkScheduleID string  `json:"work_schedule_id" validate:"required,max=64"`
	StartDate      string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

func (req AssignmentRequest) toInput() (schedule.AssignInput, error) {
	iv, err := parseInterval(req.StartDate, req.EndDate)
	if err != nil {
		return schedule.AssignInput{}, err
	}
	return schedule.AssignInput{WorkScheduleID: generic.RecordID(req.WorkScheduleID), Interval: iv}, nil
}

func toAssignmentDTO(a schedule.UserWorkSchedule) AssignmentDTO {
	dto := AssignmentDTO{
		ID:             string(a.ID),
		UserID:         string(a.UserID),
		WorkScheduleID: string(a.WorkScheduleID),
		StartDate:      a.Interval.Start.String(),
	}
	if a.Interval.End != nil {
		end := a.Interval.End.String()
		dto.EndDate = &end
	}
	return dto
}

type ResolutionDTO struct {
	UserID     string          `json:"user_id"`
	Date       string          `json:"date"`
	Source     string          `json:"source"`
	Schedule   WorkScheduleDTO `json:"schedule"`
	Assignment *AssignmentDTO  `json:"assignment,omitempty"`
}

func toResolutionDTO(r schedule.Resolution) ResolutionDTO {
	dto := ResolutionDTO{
		UserID:   string(r.UserID),
		Date:     r.Date.String(),
		Source:   string(r.Source),
		Schedule: toWorkScheduleDTO(r.Schedule),
	}
	if r.Assignment != nil {
		a := toAssignmentDTO(*r.Assignment)
		dto.Assignment = &a
	}
	return dto
}
