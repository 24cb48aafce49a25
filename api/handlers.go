/*
handlers.go - HTTP API handlers for the timekeeper service

PURPOSE:
  Exposes the leave and work-schedule workflows via REST API. Handles HTTP
  request/response, JSON binding, and delegates to the domain services.

ENDPOINTS:
  Users:
    GET    /api/me                                   Caller's directory entry
    GET    /api/users                                Users in the caller's scope
    POST   /api/users                                Create or replace a user (admin)
    GET    /api/users/{id}                           User details

  Leave:
    GET    /api/leave-requests                       List (?user_id=&status=&year=)
    POST   /api/leave-requests                       Submit
    GET    /api/leave-requests/{id}                  Get
    PUT    /api/leave-requests/{id}                  Edit while pending
    DELETE /api/leave-requests/{id}                  Cancel while pending
    POST   /api/leave-requests/{id}/approve          Approve
    POST   /api/leave-requests/{id}/reject           Reject
    GET    /api/leave-requests/{id}/history          Status-change trail
    GET    /api/users/{id}/balances                  Balance rows (?year=)
    PUT    /api/users/{id}/balances/{year}           Initialize or adjust allotment
    GET    /api/reports/leave                        Yearly summary (?year=)

  Scenarios:
    GET    /api/scenarios                            List demo scenarios
    POST   /api/scenarios/load                       Load a demo scenario (admin)

  Work schedules:
    GET    /api/work-schedules                       List templates (?company_id=)
    POST   /api/work-schedules                       Create template
    GET    /api/work-schedules/{id}                  Get template
    PUT    /api/work-schedules/{id}                  Update template
    POST   /api/work-schedules/{id}/default          Make company default
    GET    /api/users/{id}/work-schedules            List assignments
    POST   /api/users/{id}/work-schedules            Assign
    GET    /api/users/{id}/work-schedules/current    Resolve today's schedule
    PUT    /api/user-work-schedules/{id}             Update assignment
    DELETE /api/user-work-schedules/{id}             Remove assignment

REQUEST FLOW:
  1. Identity middleware puts the actor in the context
  2. Bind and validate the body
  3. Call the service with the actor
  4. Record the outcome metric
  5. Serialize response or engine error

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error kind to status mapping
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/schedule"
	"github.com/warp/timekeeper/timeoff"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Leave       *timeoff.RequestService
	Templates   *schedule.TemplateService
	Assignments *schedule.AssignmentService
	Users       generic.UserStore
	Access      *generic.AccessScopeResolver
	Metrics     *Metrics
	Health      Pinger // optional
	Clock       generic.Clock
}

// actor returns the caller set by Identity. Routes under /api always have one.
func actor(r *http.Request) generic.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}

func (h *Handler) observe(op string, err error) {
	if h.Metrics != nil {
		h.Metrics.Observe(op, err)
	}
}

func idParam(r *http.Request) generic.RecordID {
	return generic.RecordID(chi.URLParam(r, "id"))
}

// yearQuery parses an optional year. Missing means def.
func yearQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	y, err := strconv.Atoi(raw)
	if err != nil || y < 1 || y > 9999 {
		return 0, &generic.ValidationError{Field: name, Reason: "must be a year"}
	}
	return y, nil
}

func (h *Handler) clock() generic.Clock {
	if h.Clock == nil {
		return generic.SystemClock{}
	}
	return h.Clock
}

func (h *Handler) currentYear() int {
	return h.clock().Now().Year()
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// Me returns the caller's directory entry.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.Access.RequireUser(r.Context(), actor(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// ListUsers returns the users the caller can see.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, err := h.Access.ScopeListQuery(ctx, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	dtos := []UserDTO{}
	if !scope.Unrestricted && len(scope.SubjectIDs) == 0 {
		writeJSON(w, http.StatusOK, dtos)
		return
	}
	filter := generic.UserFilter{}
	if !scope.Unrestricted {
		filter.IDs = scope.SubjectIDs
	}
	users, err := h.Users.ListUsers(ctx, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, u := range users {
		dtos = append(dtos, toUserDTO(u))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUser returns a single user in the caller's scope.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.UserID(chi.URLParam(r, "id"))
	if err := h.Access.AuthorizeView(ctx, actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.Access.RequireUser(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// CreateUser creates or replaces a directory entry. System admins only.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.createUser(r)
	h.observe("create_user", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(*u))
}

func (h *Handler) createUser(r *http.Request) (*generic.User, error) {
	ctx := r.Context()
	if err := generic.RequireRole(actor(r), generic.RoleAdmin, "create users"); err != nil {
		return nil, err
	}
	var req CreateUserRequest
	if err := bind(r, &req); err != nil {
		return nil, err
	}
	if req.ManagerID == req.ID {
		return nil, &generic.ValidationError{Field: "manager_id", Reason: "a user cannot manage themselves"}
	}
	if req.ManagerID != "" {
		m, err := h.Users.GetUser(ctx, generic.UserID(req.ManagerID))
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, &generic.ValidationError{Field: "manager_id", Reason: "unknown user " + req.ManagerID}
		}
	}
	u := generic.User{
		ID:        generic.UserID(req.ID),
		Name:      req.Name,
		Email:     req.Email,
		Role:      generic.Role(req.Role),
		ManagerID: generic.UserID(req.ManagerID),
		CompanyID: generic.CompanyID(req.CompanyID),
	}
	if err := h.Users.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return &u, nil
}

// =============================================================================
// LEAVE REQUEST HANDLERS
// =============================================================================

// ListLeaveRequests returns requests inside the caller's scope.
func (h *Handler) ListLeaveRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := yearQuery(r, "year", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := timeoff.RequestStatus(q.Get("status"))
	switch status {
	case "", timeoff.StatusPending, timeoff.StatusApproved, timeoff.StatusRejected:
	default:
		writeError(w, r, &generic.ValidationError{Field: "status", Reason: "unknown status " + string(status)})
		return
	}

	reqs, err := h.Leave.List(r.Context(), actor(r), generic.UserID(q.Get("user_id")), status, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]LeaveRequestDTO, len(reqs))
	for i, lr := range reqs {
		dtos[i] = toLeaveRequestDTO(lr)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SubmitLeaveRequest creates a PENDING request for the caller.
func (h *Handler) SubmitLeaveRequest(w http.ResponseWriter, r *http.Request) {
	lr, err := h.submit(r)
	h.observe("submit_leave", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveRequestDTO(*lr))
}

func (h *Handler) submit(r *http.Request) (*timeoff.LeaveRequest, error) {
	var req SubmitLeaveRequest
	if err := bind(r, &req); err != nil {
		return nil, err
	}
	in, err := req.toInput()
	if err != nil {
		return nil, err
	}
	return h.Leave.Submit(r.Context(), actor(r), in)
}

// GetLeaveRequest returns a request the caller may view.
func (h *Handler) GetLeaveRequest(w http.ResponseWriter, r *http.Request) {
	lr, err := h.Leave.Get(r.Context(), actor(r), idParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*lr))
}

// EditLeaveRequest replaces the mutable fields of the caller's pending request.
func (h *Handler) EditLeaveRequest(w http.ResponseWriter, r *http.Request) {
	lr, err := h.edit(r)
	h.observe("edit_leave", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*lr))
}

func (h *Handler) edit(r *http.Request) (*timeoff.LeaveRequest, error) {
	var req SubmitLeaveRequest
	if err := bind(r, &req); err != nil {
		return nil, err
	}
	in, err := req.toInput()
	if err != nil {
		return nil, err
	}
	return h.Leave.Edit(r.Context(), actor(r), idParam(r), in)
}

// DeleteLeaveRequest cancels the caller's pending request.
func (h *Handler) DeleteLeaveRequest(w http.ResponseWriter, r *http.Request) {
	err := h.Leave.Delete(r.Context(), actor(r), idParam(r))
	h.observe("delete_leave", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveLeaveRequest approves a pending request and debits the ledger.
func (h *Handler) ApproveLeaveRequest(w http.ResponseWriter, r *http.Request) {
	lr, err := h.Leave.Approve(r.Context(), actor(r), idParam(r))
	h.observe("approve_leave", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*lr))
}

// RejectLeaveRequest rejects a pending request with a reason.
func (h *Handler) RejectLeaveRequest(w http.ResponseWriter, r *http.Request) {
	lr, err := h.reject(r)
	h.observe("reject_leave", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*lr))
}

func (h *Handler) reject(r *http.Request) (*timeoff.LeaveRequest, error) {
	var req RejectLeaveRequest
	if err := bind(r, &req); err != nil {
		return nil, err
	}
	return h.Leave.Reject(r.Context(), actor(r), idParam(r), req.Reason)
}

// LeaveRequestHistory returns the status-change trail of a request.
func (h *Handler) LeaveRequestHistory(w http.ResponseWriter, r *http.Request) {
	changes, err := h.Leave.History(r.Context(), actor(r), idParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]StatusChangeDTO, len(changes))
	for i, c := range changes {
		dtos[i] = toStatusChangeDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalances returns the stored balance rows of a user. Defaults to the current year.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	year, err := yearQuery(r, "year", h.currentYear())
	if err != nil {
		writeError(w, r, err)
		return
	}
	balances, err := h.Leave.Balances(r.Context(), actor(r), generic.UserID(chi.URLParam(r, "id")), year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toBalanceDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SetAllotment initializes or adjusts a user's yearly allotment.
func (h *Handler) SetAllotment(w http.ResponseWriter, r *http.Request) {
	b, err := h.setAllotment(r)
	h.observe("set_allotment", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*b))
}

func (h *Handler) setAllotment(r *http.Request) (*timeoff.LeaveBalance, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return nil, &generic.ValidationError{Field: "year", Reason: "must be a year"}
	}
	var req SetAllotmentRequest
	if err := bind(r, &req); err != nil {
		return nil, err
	}
	key := timeoff.BalanceKey{
		UserID:    generic.UserID(chi.URLParam(r, "id")),
		Year:      year,
		LeaveType: timeoff.LeaveType(req.LeaveType),
	}
	return h.Leave.SetAllotment(r.Context(), actor(r), key, req.TotalDays)
}

// LeaveReport returns the yearly leave summary of every visible user.
func (h *Handler) LeaveReport(w http.ResponseWriter, r *http.Request) {
	year, err := yearQuery(r, "year", h.currentYear())
	if err != nil {
		writeError(w, r, err)
		return
	}
	summaries, err := h.Leave.YearSummary(r.Context(), actor(r), year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]LeaveSummaryDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toLeaveSummaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// WORK SCHEDULE TEMPLATE HANDLERS
// =============================================================================

// ListWorkSchedules returns templates, optionally for one company.
func (h *Handler) ListWorkSchedules(w http.ResponseWriter, r *http.Request) {
	company := generic.CompanyID(r.URL.Query().Get("company_id"))
	templates, err := h.Templates.List(r.Context(), actor(r), company)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]WorkScheduleDTO, len(templates))
	for i, t := range templates {
		dtos[i] = toWorkScheduleDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateWorkSchedule creates a company template.
func (h *Handler) CreateWorkSchedule(w http.ResponseWriter, r *http.Request) {
	var req WorkScheduleRequest
	err := bind(r, &req)
	var ws *schedule.WorkSchedule
	if err == nil {
		ws, err = h.Templates.Create(r.Context(), actor(r), req.toInput())
	}
	h.observe("create_schedule", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkScheduleDTO(*ws))
}

// GetWorkSchedule returns one template.
func (h *Handler) GetWorkSchedule(w http.ResponseWriter, r *http.Request) {
	ws, err := h.Templates.Get(r.Context(), actor(r), idParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkScheduleDTO(*ws))
}

// UpdateWorkSchedule replaces a template's writable fields.
func (h *Handler) UpdateWorkSchedule(w http.ResponseWriter, r *http.Request) {
	var req WorkScheduleRequest
	err := bind(r, &req)
	var ws *schedule.WorkSchedule
	if err == nil {
		ws, err = h.Templates.Update(r.Context(), actor(r), idParam(r), req.toInput())
	}
	h.observe("update_schedule", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkScheduleDTO(*ws))
}

// SetDefaultWorkSchedule makes a template its company's default.
func (h *Handler) SetDefaultWorkSchedule(w http.ResponseWriter, r *http.Request) {
	ws, err := h.Templates.SetDefault(r.Context(), actor(r), idParam(r))
	h.observe("default_schedule", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkScheduleDTO(*ws))
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// ListAssignments returns a user's schedule assignments.
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Assignments.List(r.Context(), actor(r), generic.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]AssignmentDTO, len(list))
	for i, a := range list {
		dtos[i] = toAssignmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AssignWorkSchedule assigns a template to a user over an interval.
func (h *Handler) AssignWorkSchedule(w http.ResponseWriter, r *http.Request) {
	a, err := h.assign(r)
	h.observe("assign_schedule", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentDTO(*a))
}

func (h *Handler) assign(r *http.Request) (*schedule.UserWorkSchedule, error) {
	var req AssignmentRequest
	if err := bind(r, &req); err != nil {
		return nil, err
	}
	in, err := req.toInput()
	if err != nil {
		return nil, err
	}
	return h.Assignments.Assign(r.Context(), actor(r), generic.UserID(chi.URLParam(r, "id")), in)
}

// UpdateAssignment moves an assignment or changes its template.
func (h *Handler) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.updateAssignment(r)
	h.observe("update_assignment", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*a))
}

func (h *Handler) updateAssignment(r *http.Request) (*schedule.UserWorkSchedule, error) {
	var req AssignmentRequest
	if err := bind(r, &req); err != nil {
		return nil, err
	}
	in, err := req.toInput()
	if err != nil {
		return nil, err
	}
	return h.Assignments.Update(r.Context(), actor(r), idParam(r), in)
}

// RemoveAssignment deletes an assignment.
func (h *Handler) RemoveAssignment(w http.ResponseWriter, r *http.Request) {
	err := h.Assignments.Remove(r.Context(), actor(r), idParam(r))
	h.observe("remove_assignment", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CurrentWorkSchedule resolves the schedule in effect for a user today.
func (h *Handler) CurrentWorkSchedule(w http.ResponseWriter, r *http.Request) {
	res, err := h.Assignments.ResolveCurrent(r.Context(), actor(r), generic.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResolutionDTO(*res))
}

// =============================================================================
// HEALTH
// =============================================================================

// Healthz reports whether the store answers.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Health.Ping(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
