package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/schedule"
	"github.com/warp/timekeeper/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type env struct {
	store       *memory.Store
	templates   *schedule.TemplateService
	assignments *schedule.AssignmentService

	admin, company, manager, u1, u2, outsider generic.Actor
}

// newEnv: acme has company admin ca, manager m with reports u1 and u2.
// x1 works for globex. The clock reads 2025-03-01.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	users := []generic.User{
		{ID: "admin", Role: generic.RoleAdmin},
		{ID: "ca", Role: generic.RoleCompany, CompanyID: "acme"},
		{ID: "m", Role: generic.RoleManager, CompanyID: "acme"},
		{ID: "u1", Role: generic.RoleMember, ManagerID: "m", CompanyID: "acme"},
		{ID: "u2", Role: generic.RoleMember, ManagerID: "m", CompanyID: "acme"},
		{ID: "x1", Role: generic.RoleMember, CompanyID: "globex"},
	}
	for _, u := range users {
		require.NoError(t, store.SaveUser(ctx, u))
	}

	clock := generic.FixedClock{T: time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)}
	access := generic.NewAccessScopeResolver(store)
	e := &env{
		store:       store,
		templates:   schedule.NewTemplateService(store.Schedules(), clock, nil, zap.NewNop()),
		assignments: schedule.NewAssignmentService(store.Schedules(), access, clock, nil, zap.NewNop()),
	}
	e.admin = generic.ActorFor(users[0])
	e.company = generic.ActorFor(users[1])
	e.manager = generic.ActorFor(users[2])
	e.u1 = generic.ActorFor(users[3])
	e.u2 = generic.ActorFor(users[4])
	e.outsider = generic.ActorFor(users[5])
	return e
}

func standard(name string, isDefault bool) schedule.TemplateInput {
	return schedule.TemplateInput{
		Name:              name,
		StandardHours:     decimal.NewFromInt(8),
		OvertimeThreshold: decimal.NewFromInt(8),
		BreakMinutes:      60,
		IsDefault:         isDefault,
	}
}

func (e *env) template(t *testing.T, name string, isDefault bool) *schedule.WorkSchedule {
	t.Helper()
	w, err := e.templates.Create(context.Background(), e.company, standard(name, isDefault))
	require.NoError(t, err)
	return w
}

func defaults(t *testing.T, e *env, company generic.CompanyID) []generic.RecordID {
	t.Helper()
	all, err := e.store.Schedules().ListTemplates(context.Background(), company)
	require.NoError(t, err)
	var out []generic.RecordID
	for _, w := range all {
		if w.IsDefault {
			out = append(out, w.ID)
		}
	}
	return out
}

// =============================================================================
// TEMPLATES
// =============================================================================

func TestTemplate_CreateDefaultsToActorCompany(t *testing.T) {
	e := newEnv(t)

	w := e.template(t, "Standard 8h", false)

	assert.Equal(t, generic.CompanyID("acme"), w.CompanyID)
	assert.Equal(t, "Standard 8h", w.Name)
	assert.NotEmpty(t, w.ID)
}

func TestTemplate_OnlyOneDefaultPerCompany(t *testing.T) {
	// GIVEN: a default template
	e := newEnv(t)
	ctx := context.Background()
	first := e.template(t, "Standard", true)

	// WHEN: creating another default
	second := e.template(t, "Part-time", true)

	// THEN: it replaces the first
	assert.Equal(t, []generic.RecordID{second.ID}, defaults(t, e, "acme"))

	// AND: SetDefault moves it back
	_, err := e.templates.SetDefault(ctx, e.company, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []generic.RecordID{first.ID}, defaults(t, e, "acme"))

	// AND: updating the non-default into a default moves it again
	_, err = e.templates.Update(ctx, e.company, second.ID, standard("Part-time", true))
	require.NoError(t, err)
	assert.Equal(t, []generic.RecordID{second.ID}, defaults(t, e, "acme"))

	// AND: other companies are unaffected
	_, err = e.templates.Create(ctx, e.admin, schedule.TemplateInput{
		CompanyID: "globex", Name: "Globex", StandardHours: decimal.NewFromInt(7), IsDefault: true,
	})
	require.NoError(t, err)
	assert.Len(t, defaults(t, e, "acme"), 1)
	assert.Len(t, defaults(t, e, "globex"), 1)
}

func TestTemplate_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		edit  func(*schedule.TemplateInput)
		field string
	}{
		{"missing name", func(in *schedule.TemplateInput) { in.Name = " " }, "name"},
		{"zero hours", func(in *schedule.TemplateInput) { in.StandardHours = decimal.NewFromInt(0) }, "standard_hours"},
		{"more than a day", func(in *schedule.TemplateInput) { in.StandardHours = decimal.NewFromInt(25) }, "standard_hours"},
		{"negative break", func(in *schedule.TemplateInput) { in.BreakMinutes = -1 }, "break_minutes"},
		{"flex without window", func(in *schedule.TemplateInput) { in.IsFlexTime = true }, "flex_time"},
		{"flex reversed", func(in *schedule.TemplateInput) {
			in.IsFlexTime, in.FlexTimeStart, in.FlexTimeEnd = true, "18:00", "07:00"
		}, "flex_time"},
		{"core half set", func(in *schedule.TemplateInput) { in.CoreTimeStart = "10:00" }, "core_time"},
		{"core not a time", func(in *schedule.TemplateInput) { in.CoreTimeStart, in.CoreTimeEnd = "10am", "4pm" }, "core_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := standard("Standard", false)
			tt.edit(&in)
			_, err := e.templates.Create(ctx, e.company, in)
			var ve *generic.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	flex := standard("Flex", false)
	flex.IsFlexTime, flex.FlexTimeStart, flex.FlexTimeEnd = true, "07:00", "19:00"
	flex.CoreTimeStart, flex.CoreTimeEnd = "10:00", "15:00"
	_, err := e.templates.Create(ctx, e.company, flex)
	assert.NoError(t, err)
}

func TestTemplate_Authorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := e.template(t, "Standard", false)

	_, err := e.templates.Create(ctx, e.manager, standard("Manager's", false))
	assert.ErrorIs(t, err, generic.ErrForbidden)

	in := standard("Elsewhere", false)
	in.CompanyID = "globex"
	_, err = e.templates.Create(ctx, e.company, in)
	assert.ErrorIs(t, err, generic.ErrForbidden)

	_, err = e.templates.SetDefault(ctx, e.u1, w.ID)
	assert.ErrorIs(t, err, generic.ErrForbidden)

	_, err = e.templates.Get(ctx, e.outsider, w.ID)
	assert.ErrorIs(t, err, generic.ErrForbidden)
	got, err := e.templates.Get(ctx, e.u1, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)

	_, err = e.templates.Update(ctx, e.company, "missing", standard("x", false))
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestTemplate_ListScopedToCompany(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.template(t, "Standard", true)
	_, err := e.templates.Create(ctx, e.admin, schedule.TemplateInput{CompanyID: "globex", Name: "Globex", StandardHours: decimal.NewFromInt(7)})
	require.NoError(t, err)

	mine, err := e.templates.List(ctx, e.u1, "")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = e.templates.List(ctx, e.u1, "globex")
	assert.ErrorIs(t, err, generic.ErrForbidden)

	all, err := e.templates.List(ctx, e.admin, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := e.templates.List(ctx, generic.Actor{ID: "nomad", Role: generic.RoleMember}, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}
