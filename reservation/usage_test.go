package reservation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reservation-engine/reservation"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// fakeInterlock is a hardware boundary that can be told to fail.
type fakeInterlock struct {
	engaged    bool
	failUnlock bool
	failLock   bool
}

func (f *fakeInterlock) Unlock() bool {
	if f.failUnlock {
		return false
	}
	f.engaged = false
	return true
}

func (f *fakeInterlock) Lock() bool {
	if f.failLock {
		return false
	}
	f.engaged = true
	return true
}

func newTestUsage(t *testing.T, interlocks map[reservation.ItemID]reservation.Lockable) (*reservation.UsageController, *reservation.Ledger) {
	t.Helper()
	ledger := newTestLedger(t)
	u := reservation.NewUsageController(ledger, reservation.NewOutageRegistry(ledger.Store), nil, interlocks, nil)
	u.Now = func() time.Time { return base }
	return u, ledger
}

func enable(t *testing.T, u *reservation.UsageController, tool *reservation.Tool, operator reservation.User) string {
	t.Helper()
	problem, err := u.Enable(context.Background(), tool, operator, operator, "fusion", testConfig)
	require.NoError(t, err)
	return problem
}

// =============================================================================
// ENABLE
// =============================================================================

func TestUsage_EnableOpensRecord(t *testing.T) {
	u, _ := newTestUsage(t, nil)
	tool := testTool(reservation.Limits{})

	problem := enable(t, u, tool, member("alice"))
	assert.Empty(t, problem)

	event, ok := u.CurrentUsage("mill")
	require.True(t, ok)
	assert.Equal(t, reservation.UserID("alice"), event.Operator)
	assert.True(t, event.InProgress())
}

func TestUsage_EnableWhileInUse(t *testing.T) {
	u, _ := newTestUsage(t, nil)
	tool := testTool(reservation.Limits{})
	require.Empty(t, enable(t, u, tool, member("alice")))

	problem := enable(t, u, tool, member("bob"))
	assert.Equal(t, "The tool is currently being used by alice.", problem)
}

func TestUsage_EnableNonoperational(t *testing.T) {
	u, _ := newTestUsage(t, nil)
	tool := testTool(reservation.Limits{})
	tool.Operational = false

	assert.Equal(t, "This tool is currently non-operational.", enable(t, u, tool, member("alice")))

	// Staff may run a nonoperational tool, e.g. to test a repair.
	staff := member("carol")
	staff.IsStaff = true
	assert.Empty(t, enable(t, u, tool, staff))
}

func TestUsage_EnableQualification(t *testing.T) {
	u, _ := newTestUsage(t, nil)
	tool := testTool(reservation.Limits{RequiresQualification: true})

	assert.Equal(t, "You are not qualified to use this tool.", enable(t, u, tool, member("bob")))
	assert.Empty(t, enable(t, u, tool, member("alice")))
}

func TestUsage_EnableOnBehalfRequiresStaff(t *testing.T) {
	u, _ := newTestUsage(t, nil)
	tool := testTool(reservation.Limits{})

	problem, err := u.Enable(context.Background(), tool, member("bob"), member("alice"), "fusion", testConfig)
	require.NoError(t, err)
	assert.Equal(t, "You must be a staff member to use a tool on another user's behalf.", problem)

	staff := member("carol")
	staff.IsStaff = true
	problem, err = u.Enable(context.Background(), tool, staff, member("alice"), "fusion", testConfig)
	require.NoError(t, err)
	assert.Empty(t, problem)
}

func TestUsage_EnableRequiresCoveringAreaReservation(t *testing.T) {
	// GIVEN: A tool that may only run while its operator has the cleanroom
	u, ledger := newTestUsage(t, nil)
	area := testArea(reservation.Limits{})
	area.RequiresReservation = true
	tool := testTool(reservation.Limits{})
	tool.RequiredArea = area

	problem := enable(t, u, tool, member("alice"))
	assert.Equal(t, "You must have a current reservation for the cleanroom to operate this tool.", problem)

	// A reservation covering the present moment opens the gate.
	insertBooking(t, ledger, "cleanroom", "alice", win(-1, 2))
	assert.Empty(t, enable(t, u, tool, member("alice")))
}

func TestUsage_EnableDuringOutage(t *testing.T) {
	u, ledger := newTestUsage(t, nil)
	tool := testTool(reservation.Limits{})
	registry := reservation.NewOutageRegistry(ledger.Store)
	_, problem, err := registry.Schedule(context.Background(), ledger, reservation.ScheduledOutage{
		Item:  "mill",
		Start: base.Add(-time.Hour),
		End:   base.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Empty(t, problem)

	assert.Equal(t, "A scheduled outage is in effect. You must wait for the outage to end before you can use the tool.",
		enable(t, u, tool, member("alice")))

	// Staff work through outages; that is usually who is fixing the tool.
	staff := member("carol")
	staff.IsStaff = true
	assert.Empty(t, enable(t, u, tool, staff))
}

func TestUsage_EnableInterlockFaultIsHardwareError(t *testing.T) {
	// GIVEN: An interlock that refuses to release
	lock := &fakeInterlock{engaged: true, failUnlock: true}
	u, _ := newTestUsage(t, map[reservation.ItemID]reservation.Lockable{"mill": lock})
	tool := testTool(reservation.Limits{})

	// WHEN: Every policy check passes but the hardware does not actuate
	problem, err := u.Enable(context.Background(), tool, member("alice"), member("alice"), "fusion", testConfig)

	// THEN: The fault is an error for operations, not a policy problem
	assert.Empty(t, problem)
	require.Error(t, err)
	assert.True(t, reservation.IsHardwareFault(err))
	_, inUse := u.CurrentUsage("mill")
	assert.False(t, inUse, "no usage record opens on a hardware fault")
}

// =============================================================================
// DISABLE
// =============================================================================

func TestUsage_DisableClosesRecordAndEngagesInterlock(t *testing.T) {
	lock := &fakeInterlock{engaged: true}
	u, _ := newTestUsage(t, map[reservation.ItemID]reservation.Lockable{"mill": lock})
	tool := testTool(reservation.Limits{})
	require.Empty(t, enable(t, u, tool, member("alice")))
	require.False(t, lock.engaged)

	problem, err := u.Disable(context.Background(), tool, member("alice"))
	require.NoError(t, err)
	assert.Empty(t, problem)
	assert.True(t, lock.engaged)

	_, inUse := u.CurrentUsage("mill")
	assert.False(t, inUse)
}

func TestUsage_DisableGuards(t *testing.T) {
	u, _ := newTestUsage(t, nil)
	tool := testTool(reservation.Limits{})

	problem, err := u.Disable(context.Background(), tool, member("alice"))
	require.NoError(t, err)
	assert.Equal(t, "This tool is not currently in use.", problem)

	require.Empty(t, enable(t, u, tool, member("alice")))
	problem, err = u.Disable(context.Background(), tool, member("bob"))
	require.NoError(t, err)
	assert.Equal(t, "You may not disable a tool while another user is using it unless you are a staff member.", problem)

	staff := member("carol")
	staff.IsStaff = true
	problem, err = u.Disable(context.Background(), tool, staff)
	require.NoError(t, err)
	assert.Empty(t, problem)
}

func TestUsage_DisableInterlockFault(t *testing.T) {
	lock := &fakeInterlock{failLock: true}
	u, _ := newTestUsage(t, map[reservation.ItemID]reservation.Lockable{"mill": lock})
	tool := testTool(reservation.Limits{})
	require.Empty(t, enable(t, u, tool, member("alice")))

	_, err := u.Disable(context.Background(), tool, member("alice"))
	require.Error(t, err)
	assert.True(t, reservation.IsHardwareFault(err))

	// The usage record stays open; the tool is physically still live.
	_, inUse := u.CurrentUsage("mill")
	assert.True(t, inUse)
}

// =============================================================================
// USAGE LOOKUP FOR THE MISSED SWEEP
// =============================================================================

func TestUsage_HasUsage(t *testing.T) {
	// GIVEN: Alice ran the mill during her morning booking
	u, ledger := newTestUsage(t, nil)
	tool := testTool(reservation.Limits{})
	booked := insertBooking(t, ledger, "mill", "alice", win(-1, 2))
	other := insertBooking(t, ledger, "mill", "alice", win(5, 6))

	require.Empty(t, enable(t, u, tool, member("alice")))
	later := base.Add(30 * time.Minute)
	u.Now = func() time.Time { return later }
	_, err := u.Disable(context.Background(), tool, member("alice"))
	require.NoError(t, err)

	// THEN: The covered booking has usage, the evening one does not
	used, err := u.HasUsage(context.Background(), booked)
	require.NoError(t, err)
	assert.True(t, used)

	used, err = u.HasUsage(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, used)
}
