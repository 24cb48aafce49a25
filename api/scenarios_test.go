package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timekeeper/api"
)

func TestListScenarios(t *testing.T) {
	s := newServer(t)

	rec := s.do("u1", http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]api.ScenarioDTO](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "small-team", list[0].ID)
}

func TestLoadScenario_PendingApprovals(t *testing.T) {
	// GIVEN: a fresh database
	s := newServer(t)

	// WHEN: the admin loads pending-approvals
	rec := s.do("admin", http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "pending-approvals"})

	// THEN: the demo team exists with one decision of each kind
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do("acme-lead", http.MethodGet, "/api/leave-requests", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	byStatus := map[string]int{}
	for _, lr := range decode[[]api.LeaveRequestDTO](t, rec) {
		byStatus[lr.Status]++
	}
	assert.Equal(t, map[string]int{"PENDING": 2, "APPROVED": 1, "REJECTED": 1}, byStatus)

	// AND: the part-time assignment resolves for acme-dev-2
	rec = s.do("acme-dev-2", http.MethodGet, "/api/users/acme-dev-2/work-schedules/current", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Part-time 4h", decode[api.ResolutionDTO](t, rec).Schedule.Name)

	// AND: acme-dev-1 falls back to the company default
	rec = s.do("acme-dev-1", http.MethodGet, "/api/users/acme-dev-1/work-schedules/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Standard 8h", decode[api.ResolutionDTO](t, rec).Schedule.Name)

	// AND: the approved leave is debited
	rec = s.do("acme-dev-1", http.MethodGet, "/api/users/acme-dev-1/balances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balances := decode[[]api.BalanceDTO](t, rec)
	require.Len(t, balances, 1)
	assertDays(t, 2, balances[0].UsedDays, "used")
}

func TestLoadScenario_Errors(t *testing.T) {
	s := newServer(t)

	rec := s.do("ca", http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "small-team"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do("admin", http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "big-corp"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do("admin", http.MethodPost, "/api/scenarios/load", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
