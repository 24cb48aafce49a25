/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the directory and the
	workflows with realistic data for demos. Every record is created through
	the services, so scenario data obeys the same overlap, balance and scope
	rules as client data.

AVAILABLE SCENARIOS:

	small-team:        Company admin, one manager, two members, a default
	                   and a part-time schedule, one explicit assignment
	pending-approvals: small-team plus pending, approved and rejected leave

HOW SCENARIOS WORK:
 1. Save users (upsert, safe to repeat)
 2. Create schedule templates as the system admin
 3. Assign schedules as the company admin
 4. Submit leave as the members, decide it as the manager

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-team"}

NOTE:

	Load a scenario once on a fresh database. Loading twice creates
	duplicate templates and fails on overlapping assignments.

SEE ALSO:
  - handlers.go: Handler dependencies
  - server.go: /api/scenarios routes
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/schedule"
	"github.com/warp/timekeeper/timeoff"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

const demoCompany generic.CompanyID = "acme"

var scenarios = []ScenarioDTO{
	{
		ID:          "small-team",
		Name:        "Small Team",
		Description: "Company admin, manager, two members, default and part-time schedules",
	},
	{
		ID:          "pending-approvals",
		Name:        "Pending Approvals",
		Description: "Small team with pending, approved and rejected leave requests",
	},
}

var demoUsers = []generic.User{
	{ID: "acme-admin", Name: "Ada Admin", Email: "ada@acme.test", Role: generic.RoleCompany, CompanyID: demoCompany},
	{ID: "acme-lead", Name: "Lee Lead", Email: "lee@acme.test", Role: generic.RoleManager, CompanyID: demoCompany},
	{ID: "acme-dev-1", Name: "Dana Dev", Email: "dana@acme.test", Role: generic.RoleMember, ManagerID: "acme-lead", CompanyID: demoCompany},
	{ID: "acme-dev-2", Name: "Sam Dev", Email: "sam@acme.test", Role: generic.RoleMember, ManagerID: "acme-lead", CompanyID: demoCompany},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a scenario by ID. System admins only.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	id, err := h.loadScenario(r)
	h.observe("load_scenario", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": id})
}

func (h *Handler) loadScenario(r *http.Request) (string, error) {
	if err := generic.RequireRole(actor(r), generic.RoleAdmin, "load scenarios"); err != nil {
		return "", err
	}
	var req LoadScenarioRequest
	if err := bind(r, &req); err != nil {
		return "", err
	}

	ctx := r.Context()
	switch req.ScenarioID {
	case "small-team":
		return req.ScenarioID, h.loadSmallTeamScenario(ctx, actor(r))
	case "pending-approvals":
		if err := h.loadSmallTeamScenario(ctx, actor(r)); err != nil {
			return "", err
		}
		return req.ScenarioID, h.loadPendingApprovalsScenario(ctx)
	default:
		return "", &generic.NotFoundError{Kind: "scenario", ID: req.ScenarioID}
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSmallTeamScenario(ctx context.Context, admin generic.Actor) error {
	for _, u := range demoUsers {
		if err := h.Users.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("save %s: %w", u.ID, err)
		}
	}

	_, err := h.Templates.Create(ctx, admin, schedule.TemplateInput{
		CompanyID:         demoCompany,
		Name:              "Standard 8h",
		StandardHours:     decimal.NewFromInt(8),
		OvertimeThreshold: decimal.NewFromInt(8),
		BreakMinutes:      60,
		IsFlexTime:        true,
		FlexTimeStart:     "07:00",
		FlexTimeEnd:       "19:00",
		CoreTimeStart:     "10:00",
		CoreTimeEnd:       "15:00",
		IsDefault:         true,
	})
	if err != nil {
		return fmt.Errorf("create default schedule: %w", err)
	}
	partTime, err := h.Templates.Create(ctx, admin, schedule.TemplateInput{
		CompanyID:         demoCompany,
		Name:              "Part-time 4h",
		StandardHours:     decimal.NewFromInt(4),
		OvertimeThreshold: decimal.NewFromInt(4),
		BreakMinutes:      0,
	})
	if err != nil {
		return fmt.Errorf("create part-time schedule: %w", err)
	}

	companyAdmin := generic.ActorFor(demoUsers[0])
	today := generic.Today(h.clock())
	_, err = h.Assignments.Assign(ctx, companyAdmin, "acme-dev-2", schedule.AssignInput{
		WorkScheduleID: partTime.ID,
		Interval:       generic.Bounded(today.AddDays(-30), today.AddDays(60)),
	})
	if err != nil {
		return fmt.Errorf("assign part-time schedule: %w", err)
	}
	return nil
}

func (h *Handler) loadPendingApprovalsScenario(ctx context.Context) error {
	lead := generic.ActorFor(demoUsers[1])
	dev1 := generic.ActorFor(demoUsers[2])
	dev2 := generic.ActorFor(demoUsers[3])
	today := generic.Today(h.clock())

	submit := func(a generic.Actor, lt timeoff.LeaveType, from, days int, reason string) (*timeoff.LeaveRequest, error) {
		start := today.AddDays(from)
		return h.Leave.Submit(ctx, a, timeoff.SubmitInput{
			LeaveType: lt,
			Interval:  generic.Bounded(start, start.AddDays(days-1)),
			Days:      decimal.NewFromInt(int64(days)),
			Reason:    reason,
		})
	}

	if _, err := submit(dev1, timeoff.PaidLeave, 14, 3, "Family trip"); err != nil {
		return fmt.Errorf("submit pending leave: %w", err)
	}
	approved, err := submit(dev1, timeoff.PaidLeave, 30, 2, "Long weekend")
	if err != nil {
		return fmt.Errorf("submit leave to approve: %w", err)
	}
	if _, err := h.Leave.Approve(ctx, lead, approved.ID); err != nil {
		return fmt.Errorf("approve leave: %w", err)
	}
	rejected, err := submit(dev2, timeoff.PersonalLeave, 7, 1, "Errands")
	if err != nil {
		return fmt.Errorf("submit leave to reject: %w", err)
	}
	if _, err := h.Leave.Reject(ctx, lead, rejected.ID, "Release week"); err != nil {
		return fmt.Errorf("reject leave: %w", err)
	}
	if _, err := submit(dev2, timeoff.SickLeave, 21, 1, ""); err != nil {
		return fmt.Errorf("submit sick leave: %w", err)
	}
	return nil
}
