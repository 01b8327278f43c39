package rates_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reservation-engine/rates"
	"github.com/warp/reservation-engine/reservation"
)

func projectUser(projects ...string) reservation.User {
	return reservation.User{ID: "alice", Name: "alice", ActiveProjects: projects}
}

func TestCheckChargeable(t *testing.T) {
	table := rates.NewTable()
	table.AllowProjectItems("fusion", "sem-1")
	tool := &reservation.Tool{ID: "sem-1", ToolName: "SEM"}
	other := &reservation.Tool{ID: "mill", ToolName: "Mill"}
	ctx := context.Background()

	// An empty project is acceptable; billing is resolved later.
	assert.NoError(t, table.CheckChargeable(ctx, "", projectUser(), tool))

	// Member of the project, item on the allow-list.
	assert.NoError(t, table.CheckChargeable(ctx, "fusion", projectUser("fusion"), tool))

	// Not a member of the project.
	err := table.CheckChargeable(ctx, "fusion", projectUser("other"), tool)
	require.Error(t, err)
	assert.Equal(t, "You are not allowed to bill project fusion.", err.Error())

	// Member, but the item is off the project's allow-list.
	err = table.CheckChargeable(ctx, "fusion", projectUser("fusion"), other)
	require.Error(t, err)
	assert.Equal(t, "Mill is not allowed for project fusion", err.Error())

	// A project with no allow-list may charge any item.
	assert.NoError(t, table.CheckChargeable(ctx, "open", projectUser("open"), other))
}

func TestEstimate(t *testing.T) {
	table := rates.NewTable()
	table.SetHourly("sem-1", decimal.NewFromInt(120))

	assert.True(t, decimal.NewFromInt(180).Equal(table.Estimate("sem-1", 90*time.Minute)))
	assert.True(t, decimal.Zero.Equal(table.Estimate("sem-1", 0)))
	assert.True(t, decimal.Zero.Equal(table.Estimate("unpriced", time.Hour)))
}
