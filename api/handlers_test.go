/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Caller identity (401 without a known X-User-ID)
- Leave workflow over HTTP: submit, approve, balances, history
- Error mapping: 400 with details, 403, 404, 409, 422
- Work schedule templates, assignments and resolve-current
- Health and metrics endpoints
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/timekeeper/api"
	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/schedule"
	"github.com/warp/timekeeper/store/sqlite"
	"github.com/warp/timekeeper/timeoff"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type server struct {
	t       *testing.T
	store   *sqlite.Store
	handler *api.Handler
	router  http.Handler
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

// newServer wires the router the way the binary does, on an in-memory
// database. acme has company admin ca, manager m with reports u1 and u2,
// and member u3 without a manager. The clock reads 2025-03-01.
func newServer(t *testing.T) *server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	for _, u := range []generic.User{
		{ID: "admin", Name: "Root", Role: generic.RoleAdmin},
		{ID: "ca", Name: "Company Admin", Role: generic.RoleCompany, CompanyID: "acme"},
		{ID: "m", Name: "Manager", Role: generic.RoleManager, CompanyID: "acme"},
		{ID: "u1", Name: "One", Role: generic.RoleMember, ManagerID: "m", CompanyID: "acme"},
		{ID: "u2", Name: "Two", Role: generic.RoleMember, ManagerID: "m", CompanyID: "acme"},
		{ID: "u3", Name: "Three", Role: generic.RoleMember, CompanyID: "acme"},
	} {
		require.NoError(t, store.SaveUser(ctx, u))
	}

	logger := zap.NewNop()
	clock := generic.FixedClock{T: time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)}
	bus := generic.NewBus(logger)
	bus.Subscribe(store.AppendStatusChange)
	access := generic.NewAccessScopeResolver(store)
	ledger := timeoff.NewBalanceLedger(timeoff.DefaultPolicies(), clock)

	leave := timeoff.NewRequestService(store.Leave(), access, ledger, bus, logger)
	leave.Audit = store

	h := &api.Handler{
		Leave:       leave,
		Templates:   schedule.NewTemplateService(store.Schedules(), clock, bus, logger),
		Assignments: schedule.NewAssignmentService(store.Schedules(), access, clock, bus, logger),
		Users:       store,
		Access:      access,
		Metrics:     api.NewMetrics(),
		Health:      store,
		Clock:       clock,
	}
	return &server{
		t:       t,
		store:   store,
		handler: h,
		router:  api.NewRouter(h, api.RouterOptions{Logger: logger}),
	}
}

// do sends a request as the given user. An empty user sends no identity.
func (s *server) do(user, method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(api.UserHeader, user)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	return decode[api.ErrorResponse](t, rec)
}

func leaveBody(start, end string, days float64) map[string]any {
	return map[string]any{
		"leave_type": "PAID_LEAVE",
		"start_date": start,
		"end_date":   end,
		"days":       days,
		"reason":     "holiday",
	}
}

func (s *server) submit(user, start, end string, days float64) api.LeaveRequestDTO {
	s.t.Helper()
	rec := s.do(user, http.MethodPost, "/api/leave-requests", leaveBody(start, end, days))
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.LeaveRequestDTO](s.t, rec)
}

func assertDays(t *testing.T, want float64, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, decimal.NewFromFloat(want).Equal(got), "%s: want %v, got %s", msg, want, got)
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestIdentity_RequiresKnownUser(t *testing.T) {
	s := newServer(t)

	rec := s.do("", http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", errorOf(t, rec).Code)

	rec = s.do("ghost", http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do("u1", http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[api.UserDTO](t, rec)
	assert.Equal(t, "u1", me.ID)
	assert.Equal(t, "m", me.ManagerID)
}

func TestListUsers_ScopedByRole(t *testing.T) {
	s := newServer(t)

	ids := func(user string) []string {
		rec := s.do(user, http.MethodGet, "/api/users", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var out []string
		for _, u := range decode[[]api.UserDTO](t, rec) {
			out = append(out, u.ID)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"u3"}, ids("u3"))
	assert.ElementsMatch(t, []string{"m", "u1", "u2"}, ids("m"))
	assert.Len(t, ids("admin"), 6)

	rec := s.do("u1", http.MethodGet, "/api/users/u2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateUser_AdminOnly(t *testing.T) {
	s := newServer(t)
	body := map[string]any{"id": "u4", "name": "Four", "role": "MEMBER", "manager_id": "m", "company_id": "acme"}

	rec := s.do("ca", http.MethodPost, "/api/users", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do("admin", http.MethodPost, "/api/users", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The new user is now a report of m
	rec = s.do("m", http.MethodGet, "/api/users/u4", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do("admin", http.MethodPost, "/api/users", map[string]any{"id": "u5", "name": "Five", "role": "OWNER"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"role": "oneof=MEMBER MANAGER COMPANY ADMIN"}, errorOf(t, rec).Details)

	rec = s.do("admin", http.MethodPost, "/api/users", map[string]any{"id": "u5", "name": "Five", "role": "MEMBER", "manager_id": "nobody"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// LEAVE WORKFLOW
// =============================================================================

func TestLeaveWorkflow_SubmitApproveDebits(t *testing.T) {
	// GIVEN: u1 submits three days of paid leave
	s := newServer(t)
	lr := s.submit("u1", "2025-04-07", "2025-04-09", 3)
	assert.Equal(t, "PENDING", lr.Status)
	assert.Equal(t, "u1", lr.UserID)
	assert.Equal(t, 2025, lr.BalanceYear)

	// WHEN: the manager approves it
	rec := s.do("m", http.MethodPost, "/api/leave-requests/"+lr.ID+"/approve", nil)

	// THEN: it is approved and the balance is debited
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[api.LeaveRequestDTO](t, rec)
	assert.Equal(t, "APPROVED", approved.Status)
	assert.Equal(t, "m", approved.ApproverID)
	require.NotNil(t, approved.ApprovedAt)

	rec = s.do("u1", http.MethodGet, "/api/users/u1/balances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balances := decode[[]api.BalanceDTO](t, rec)
	require.Len(t, balances, 1)
	assert.Equal(t, "PAID_LEAVE", balances[0].LeaveType)
	assertDays(t, 20, balances[0].TotalDays, "total")
	assertDays(t, 3, balances[0].UsedDays, "used")
	assertDays(t, 17, balances[0].RemainingDays, "remaining")

	// AND: the history shows both transitions
	rec = s.do("u1", http.MethodGet, "/api/leave-requests/"+lr.ID+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]api.StatusChangeDTO](t, rec)
	require.Len(t, history, 2)
	assert.Equal(t, "PENDING", history[0].To)
	assert.Equal(t, "APPROVED", history[1].To)

	// AND: deciding again is an invalid transition
	rec = s.do("m", http.MethodPost, "/api/leave-requests/"+lr.ID+"/reject", map[string]string{"reason": "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, generic.CodeInvalidState, errorOf(t, rec).Code)
}

func TestSubmit_OverlapIsConflict(t *testing.T) {
	s := newServer(t)
	first := s.submit("u1", "2025-04-07", "2025-04-09", 3)

	rec := s.do("u1", http.MethodPost, "/api/leave-requests", leaveBody("2025-04-09", "2025-04-10", 2))

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := errorOf(t, rec)
	assert.Equal(t, generic.CodeConflict, resp.Code)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, first.ID, details["existing_id"])
}

func TestSubmit_InsufficientBalance(t *testing.T) {
	s := newServer(t)
	rec := s.do("ca", http.MethodPut, "/api/users/u1/balances/2025", map[string]any{"total_days": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do("u1", http.MethodPost, "/api/leave-requests", leaveBody("2025-04-07", "2025-04-09", 3))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := errorOf(t, rec)
	assert.Equal(t, generic.CodeInsufficientBalance, resp.Code)
	assert.Equal(t, map[string]any{"leave_type": "PAID_LEAVE", "remaining": "2", "requested": "3"}, resp.Details)
}

func TestSubmit_Validation(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"unknown field", `{"leave_type":"PAID_LEAVE","start_date":"2025-04-07","end_date":"2025-04-07","days":1,"color":"red"}`, ""},
		{"bad date", map[string]any{"leave_type": "PAID_LEAVE", "start_date": "07/04/2025", "end_date": "2025-04-07", "days": 1}, "start_date"},
		{"unknown type", map[string]any{"leave_type": "SABBATICAL", "start_date": "2025-04-07", "end_date": "2025-04-07", "days": 1}, "leave_type"},
		{"missing end", map[string]any{"leave_type": "PAID_LEAVE", "start_date": "2025-04-07", "days": 1}, "end_date"},
		{"quarter day", leaveBody("2025-04-07", "2025-04-07", 0.25), "field"},
		{"too many days", leaveBody("2025-04-07", "2025-04-08", 3), "field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do("u1", http.MethodPost, "/api/leave-requests", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := errorOf(t, rec)
			assert.Equal(t, generic.CodeValidation, resp.Code)
			if tt.field != "" {
				details, ok := resp.Details.(map[string]any)
				require.True(t, ok, "details: %v", resp.Details)
				assert.Contains(t, details, tt.field)
			}
		})
	}
}

func TestApprove_Authorization(t *testing.T) {
	s := newServer(t)
	lr := s.submit("u1", "2025-04-07", "2025-04-07", 1)

	rec := s.do("u2", http.MethodPost, "/api/leave-requests/"+lr.ID+"/approve", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "members cannot approve")

	rec = s.do("u1", http.MethodPost, "/api/leave-requests/"+lr.ID+"/approve", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "no self approval")

	rec = s.do("m", http.MethodPost, "/api/leave-requests/missing/approve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do("m", http.MethodPost, "/api/leave-requests/"+lr.ID+"/reject", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code, "a rejection needs a reason")
	assert.Equal(t, map[string]any{"reason": "required"}, errorOf(t, rec).Details)

	rec = s.do("ca", http.MethodPost, "/api/leave-requests/"+lr.ID+"/reject", map[string]string{"reason": "busy week"})
	require.Equal(t, http.StatusOK, rec.Code)
	rejected := decode[api.LeaveRequestDTO](t, rec)
	assert.Equal(t, "REJECTED", rejected.Status)
	assert.Equal(t, "busy week", rejected.RejectReason)
}

func TestEditAndDelete(t *testing.T) {
	s := newServer(t)
	lr := s.submit("u1", "2025-04-07", "2025-04-08", 2)

	rec := s.do("u1", http.MethodPut, "/api/leave-requests/"+lr.ID, leaveBody("2025-04-14", "2025-04-16", 3))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[api.LeaveRequestDTO](t, rec)
	assert.Equal(t, "2025-04-14", edited.StartDate)
	assertDays(t, 3, edited.Days, "days")

	rec = s.do("m", http.MethodDelete, "/api/leave-requests/"+lr.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "only the subject deletes")

	rec = s.do("u1", http.MethodDelete, "/api/leave-requests/"+lr.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do("u1", http.MethodGet, "/api/leave-requests/"+lr.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListLeaveRequests_Filters(t *testing.T) {
	s := newServer(t)
	a := s.submit("u1", "2025-04-07", "2025-04-07", 1)
	s.submit("u2", "2025-04-07", "2025-04-07", 1)
	s.submit("u3", "2025-04-07", "2025-04-07", 1)
	rec := s.do("m", http.MethodPost, "/api/leave-requests/"+a.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := func(user, query string) []api.LeaveRequestDTO {
		rec := s.do(user, http.MethodGet, "/api/leave-requests"+query, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[[]api.LeaveRequestDTO](t, rec)
	}

	assert.Len(t, list("m", ""), 2, "manager sees own reports")
	assert.Len(t, list("m", "?status=PENDING"), 1)
	assert.Len(t, list("ca", "?year=2025"), 3)
	assert.Empty(t, list("ca", "?year=2026"))
	assert.Len(t, list("u3", ""), 1)

	rec = s.do("m", http.MethodGet, "/api/leave-requests?status=LOST", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do("m", http.MethodGet, "/api/leave-requests?user_id=u3", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLeaveReport(t *testing.T) {
	s := newServer(t)
	lr := s.submit("u1", "2025-04-07", "2025-04-09", 3)
	require.Equal(t, http.StatusOK, s.do("m", http.MethodPost, "/api/leave-requests/"+lr.ID+"/approve", nil).Code)

	rec := s.do("m", http.MethodGet, "/api/reports/leave", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[[]api.LeaveSummaryDTO](t, rec)
	require.Len(t, report, 3)

	var u1 *api.LeaveSummaryDTO
	for i := range report {
		if report[i].UserID == "u1" {
			u1 = &report[i]
		}
	}
	require.NotNil(t, u1)
	assertDays(t, 3, u1.ApprovedDays, "approved")
	require.NotNil(t, u1.PaidBalance)
	assertDays(t, 17, u1.PaidBalance.RemainingDays, "remaining")
}

func TestSetAllotment(t *testing.T) {
	s := newServer(t)

	rec := s.do("m", http.MethodPut, "/api/users/u1/balances/2025", map[string]any{"total_days": 25})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do("ca", http.MethodPut, "/api/users/u1/balances/twenty", map[string]any{"total_days": 25})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do("ca", http.MethodPut, "/api/users/u1/balances/2025", map[string]any{"total_days": 25})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b := decode[api.BalanceDTO](t, rec)
	assertDays(t, 25, b.TotalDays, "total")
	assert.Equal(t, "2025-12-31", b.ExpiryDate)
}

// =============================================================================
// WORK SCHEDULES
// =============================================================================

func (s *server) createTemplate(user string, body map[string]any) api.WorkScheduleDTO {
	s.t.Helper()
	rec := s.do(user, http.MethodPost, "/api/work-schedules", body)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.WorkScheduleDTO](s.t, rec)
}

func TestWorkSchedules_AssignAndResolve(t *testing.T) {
	// GIVEN: a default and a part-time template for acme
	s := newServer(t)
	def := s.createTemplate("ca", map[string]any{"name": "Standard", "standard_hours": 8, "overtime_threshold": 8, "break_minutes": 60, "is_default": true})
	part := s.createTemplate("ca", map[string]any{"name": "Part-time", "standard_hours": 4, "overtime_threshold": 4})
	assert.Equal(t, "acme", def.CompanyID)
	assert.True(t, def.IsDefault)

	// WHEN: nothing is assigned, u1 resolves to the default
	rec := s.do("u1", http.MethodGet, "/api/users/u1/work-schedules/current", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[api.ResolutionDTO](t, rec)
	assert.Equal(t, string(schedule.SourceCompanyDefault), res.Source)
	assert.Equal(t, def.ID, res.Schedule.ID)
	assert.Nil(t, res.Assignment)

	// WHEN: the manager assigns the part-time template open-ended
	rec = s.do("m", http.MethodPost, "/api/users/u1/work-schedules", map[string]any{"work_schedule_id": part.ID, "start_date": "2025-02-01"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assigned := decode[api.AssignmentDTO](t, rec)
	assert.Nil(t, assigned.EndDate)

	// THEN: it wins over the default
	rec = s.do("u1", http.MethodGet, "/api/users/u1/work-schedules/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode[api.ResolutionDTO](t, rec)
	assert.Equal(t, string(schedule.SourceAssignment), res.Source)
	assert.Equal(t, part.ID, res.Schedule.ID)
	require.NotNil(t, res.Assignment)
	assert.Equal(t, assigned.ID, res.Assignment.ID)

	// AND: an overlapping assignment is a conflict
	rec = s.do("ca", http.MethodPost, "/api/users/u1/work-schedules", map[string]any{"work_schedule_id": def.ID, "start_date": "2026-01-01", "end_date": "2026-01-31"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: closing the open row makes room
	rec = s.do("ca", http.MethodPut, "/api/user-work-schedules/"+assigned.ID, map[string]any{"work_schedule_id": part.ID, "start_date": "2025-02-01", "end_date": "2025-12-31"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do("ca", http.MethodPost, "/api/users/u1/work-schedules", map[string]any{"work_schedule_id": def.ID, "start_date": "2026-01-01", "end_date": "2026-01-31"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do("u1", http.MethodGet, "/api/users/u1/work-schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.AssignmentDTO](t, rec), 2)

	// AND: removal is a hard delete
	rec = s.do("ca", http.MethodDelete, "/api/user-work-schedules/"+assigned.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do("ca", http.MethodDelete, "/api/user-work-schedules/"+assigned.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkSchedules_DefaultMovesAndAuthorization(t *testing.T) {
	s := newServer(t)
	first := s.createTemplate("ca", map[string]any{"name": "Standard", "standard_hours": 8, "is_default": true})
	second := s.createTemplate("ca", map[string]any{"name": "Compressed", "standard_hours": 10})

	rec := s.do("ca", http.MethodPost, "/api/work-schedules/"+second.ID+"/default", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do("u1", http.MethodGet, "/api/work-schedules/"+first.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[api.WorkScheduleDTO](t, rec).IsDefault)

	rec = s.do("m", http.MethodPost, "/api/work-schedules", map[string]any{"name": "Mine", "standard_hours": 8})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do("ca", http.MethodPost, "/api/work-schedules", map[string]any{"name": "Long", "standard_hours": 30})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	details, ok := errorOf(t, rec).Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "standard_hours", details["field"])

	rec = s.do("ca", http.MethodPost, "/api/work-schedules", map[string]any{"name": "Flex", "standard_hours": 8, "flex_time_start": "7am"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"flex_time_start": "datetime=15:04"}, errorOf(t, rec).Details)

	rec = s.do("u1", http.MethodGet, "/api/work-schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.WorkScheduleDTO](t, rec), 2)
}

func TestValidationDetails_UseJSONFieldNames(t *testing.T) {
	s := newServer(t)

	// GIVEN: bodies missing an id-like field
	tests := []struct {
		name string
		user string
		path string
		body map[string]any
		want map[string]any
	}{
		{
			name: "user without id",
			user: "admin",
			path: "/api/users",
			body: map[string]any{"name": "Four", "role": "MEMBER"},
			want: map[string]any{"id": "required"},
		},
		{
			name: "assignment without template",
			user: "ca",
			path: "/api/users/u1/work-schedules",
			body: map[string]any{"start_date": "2025-03-01"},
			want: map[string]any{"work_schedule_id": "required"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// WHEN: posting it
			rec := s.do(tt.user, http.MethodPost, tt.path, tt.body)

			// THEN: details are keyed by the json field the client sends
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, errorOf(t, rec).Details)
		})
	}
}

func TestCurrentWorkSchedule_NothingResolved(t *testing.T) {
	s := newServer(t)

	rec := s.do("u1", http.MethodGet, "/api/users/u1/work-schedules/current", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do("u1", http.MethodGet, "/api/users/u2/work-schedules/current", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// HEALTH AND METRICS
// =============================================================================

func TestHealthz(t *testing.T) {
	s := newServer(t)

	rec := s.do("", http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	s.handler.Health = pinger{err: errors.New("database is locked")}
	rec = s.do("", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "UNAVAILABLE", errorOf(t, rec).Code)
}

func TestMetrics_CountWorkflowOutcomes(t *testing.T) {
	s := newServer(t)
	s.submit("u1", "2025-04-07", "2025-04-07", 1)
	s.do("u1", http.MethodPost, "/api/leave-requests", leaveBody("2025-04-07", "2025-04-07", 1))

	rec := s.do("", http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `workflow_outcomes_total{operation="submit_leave",outcome="ok"} 1`)
	assert.Contains(t, body, `workflow_outcomes_total{operation="submit_leave",outcome="conflict"} 1`)
	assert.True(t, strings.Contains(body, `http_requests_total{method="POST",path="/api/leave-requests/",status="201"}`) ||
		strings.Contains(body, `http_requests_total{method="POST",path="/api/leave-requests",status="201"}`), body)
}
