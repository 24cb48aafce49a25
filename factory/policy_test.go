package factory_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timekeeper/factory"
	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/timeoff"
)

func TestParseLeavePolicies_OverridesDefaults(t *testing.T) {
	data := []byte(`[
		{"leave_type": "PAID_LEAVE", "ledger_tracked": true, "default_allotment": 25},
		{"leave_type": "SICK_LEAVE", "ledger_tracked": true, "default_allotment": "10.5"}
	]`)

	table, err := factory.ParseLeavePolicies(data)
	require.NoError(t, err)

	assert.True(t, table.Lookup(timeoff.PaidLeave).DefaultAllotment.Equal(decimal.NewFromInt(25)))
	assert.True(t, table.IsTracked(timeoff.SickLeave))
	assert.True(t, table.Lookup(timeoff.SickLeave).DefaultAllotment.Equal(decimal.RequireFromString("10.5")))
	assert.False(t, table.IsTracked(timeoff.Unpaid), "unlisted types keep their default")
	assert.Len(t, table, len(timeoff.AllLeaveTypes))
}

func TestParseLeavePolicies_TrackedWithoutAllotmentGetsDefault(t *testing.T) {
	table, err := factory.ParseLeavePolicies([]byte(`[{"leave_type": "SPECIAL", "ledger_tracked": true}]`))
	require.NoError(t, err)
	assert.True(t, table.Lookup(timeoff.Special).DefaultAllotment.Equal(timeoff.DefaultAllotment))
}

func TestParseLeavePolicies_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown type", `[{"leave_type": "VACATION"}]`},
		{"quarter day", `[{"leave_type": "PAID_LEAVE", "ledger_tracked": true, "default_allotment": 20.25}]`},
		{"negative", `[{"leave_type": "PAID_LEAVE", "ledger_tracked": true, "default_allotment": -5}]`},
		{"duplicate", `[{"leave_type": "PAID_LEAVE"}, {"leave_type": "PAID_LEAVE"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.ParseLeavePolicies([]byte(tt.data))
			assert.ErrorIs(t, err, generic.ErrValidation)
		})
	}

	_, err := factory.ParseLeavePolicies([]byte(`{"not": "a list"}`))
	assert.Error(t, err)
}

func TestLoadLeavePolicies(t *testing.T) {
	base := timeoff.DefaultPoliciesWithAllotment(decimal.NewFromInt(30))

	same, err := factory.LoadLeavePolicies("", base)
	require.NoError(t, err)
	assert.Equal(t, base, same)

	path := filepath.Join(t.TempDir(), "policies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"leave_type": "SICK_LEAVE", "ledger_tracked": true, "default_allotment": 5}]`), 0o600))
	table, err := factory.LoadLeavePolicies(path, base)
	require.NoError(t, err)
	assert.True(t, table.Lookup(timeoff.PaidLeave).DefaultAllotment.Equal(decimal.NewFromInt(30)), "base is kept")
	assert.True(t, table.IsTracked(timeoff.SickLeave))

	_, err = factory.LoadLeavePolicies(filepath.Join(t.TempDir(), "missing.json"), base)
	assert.Error(t, err)
}

func TestToJSON_RoundTrip(t *testing.T) {
	table := timeoff.DefaultPolicies()
	data, err := json.Marshal(factory.ToJSON(table))
	require.NoError(t, err)

	back, err := factory.ParseLeavePoliciesOver(data, timeoff.PolicyTable{})
	require.NoError(t, err)
	assert.Len(t, back, len(table))
	assert.True(t, back.IsTracked(timeoff.PaidLeave))
	assert.True(t, back.Lookup(timeoff.PaidLeave).DefaultAllotment.Equal(timeoff.DefaultAllotment))
}
