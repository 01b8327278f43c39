package reservation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reservation-engine/reservation"
	"github.com/warp/reservation-engine/reservation/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestLedger(t *testing.T) *reservation.Ledger {
	t.Helper()
	ledger := reservation.NewLedger(store.NewMemory())
	ledger.Now = func() time.Time { return base }
	return ledger
}

func insertBooking(t *testing.T, ledger *reservation.Ledger, item reservation.ItemID, user reservation.UserID, w reservation.Window) reservation.Reservation {
	t.Helper()
	r := reservation.Reservation{
		Item:    item,
		Kind:    reservation.KindTool,
		User:    user,
		Creator: user,
		Start:   w.Start,
		End:     w.End,
	}
	id, err := ledger.Insert(context.Background(), &r)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return r
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestLedger_Insert_AssignsIDAndCreationTime(t *testing.T) {
	ledger := newTestLedger(t)

	r := insertBooking(t, ledger, "mill", "alice", win(1, 3))

	stored, err := ledger.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, stored.ID)
	assert.Equal(t, base, stored.CreationTime)
	assert.True(t, stored.Active())
}

func TestLedger_Get_Unknown(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, reservation.ErrReservationNotFound)
	assert.True(t, reservation.IsNotFound(err))
}

func TestLedger_Cancel_FirstWins(t *testing.T) {
	// GIVEN: A committed reservation
	ledger := newTestLedger(t)
	r := insertBooking(t, ledger, "mill", "alice", win(1, 3))

	// WHEN: Alice cancels it, then staff tries to cancel it again
	require.NoError(t, ledger.Cancel(context.Background(), r.ID, "alice", "changed plans", ""))
	err := ledger.Cancel(context.Background(), r.ID, "staff", "cleanup", "")

	// THEN: The second cancel fails and the first cancel's actor survives
	var already *reservation.AlreadyCancelledError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, reservation.UserID("alice"), already.CancelledBy)

	stored, err := ledger.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.True(t, stored.Cancelled)
	assert.Equal(t, reservation.UserID("alice"), stored.CancelledBy)
	assert.Equal(t, "changed plans", stored.CancelReason)
	assert.False(t, stored.Active())
}

func TestLedger_Cancel_DescendantWiredAtMostOnce(t *testing.T) {
	ledger := newTestLedger(t)
	old := insertBooking(t, ledger, "mill", "alice", win(1, 3))
	first := insertBooking(t, ledger, "mill", "alice", win(2, 4))
	second := insertBooking(t, ledger, "mill", "alice", win(3, 5))

	require.NoError(t, ledger.MarkShortened(context.Background(), old.ID, first.ID))

	// A second descendant link on the same record is refused.
	err := ledger.Cancel(context.Background(), old.ID, "alice", "move", second.ID)
	assert.ErrorIs(t, err, reservation.ErrAlreadyLinked)
	assert.True(t, reservation.IsPrecondition(err))
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func TestLedger_FindOverlapping_BackToBackIsNotConflict(t *testing.T) {
	ledger := newTestLedger(t)
	insertBooking(t, ledger, "mill", "alice", win(1, 3))

	hits, err := ledger.FindOverlapping(context.Background(), "mill", win(3, 5), "")
	require.NoError(t, err)
	assert.Empty(t, hits, "a window starting where another ends does not overlap")

	hits, err = ledger.FindOverlapping(context.Background(), "mill", win(2, 4), "")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestLedger_FindOverlapping_IgnoresCancelledAndExcluded(t *testing.T) {
	ledger := newTestLedger(t)
	gone := insertBooking(t, ledger, "mill", "alice", win(1, 3))
	kept := insertBooking(t, ledger, "mill", "bob", win(2, 4))
	require.NoError(t, ledger.Cancel(context.Background(), gone.ID, "alice", "", ""))

	hits, err := ledger.FindOverlapping(context.Background(), "mill", win(0, 6), "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, kept.ID, hits[0].ID)

	// Excluding the survivor leaves nothing: the move path of a replace
	// must never collide with the reservation being replaced.
	hits, err = ledger.FindOverlapping(context.Background(), "mill", win(0, 6), kept.ID)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLedger_ForUserOnDay_WholeDayContainmentAndMissedCount(t *testing.T) {
	// GIVEN: Bookings inside the day, one straddling midnight, one missed
	ledger := newTestLedger(t)
	inside := insertBooking(t, ledger, "mill", "alice", win(1, 3))
	insertBooking(t, ledger, "mill", "alice", win(13, 26)) // crosses midnight
	missed := insertBooking(t, ledger, "mill", "alice", win(4, 5))
	require.NoError(t, ledger.MarkMissed(context.Background(), missed.ID))
	cancelled := insertBooking(t, ledger, "mill", "alice", win(6, 7))
	require.NoError(t, ledger.Cancel(context.Background(), cancelled.ID, "alice", "", ""))

	// WHEN: Listing the user's reservations on the day containing base
	day, err := ledger.ForUserOnDay(context.Background(), "alice", "mill", base)
	require.NoError(t, err)

	// THEN: Only whole-day bookings count; the missed one still does
	ids := make(map[reservation.ReservationID]bool)
	for _, r := range day {
		ids[r.ID] = true
	}
	assert.Len(t, day, 2)
	assert.True(t, ids[inside.ID])
	assert.True(t, ids[missed.ID])
}

func TestLedger_CoveringAreaReservation(t *testing.T) {
	ledger := newTestLedger(t)
	insertBooking(t, ledger, "cleanroom", "alice", win(1, 3))

	covered, err := ledger.CoveringAreaReservation(context.Background(), "alice", "cleanroom", base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, covered)

	// The end instant is outside the half-open window.
	covered, err = ledger.CoveringAreaReservation(context.Background(), "alice", "cleanroom", base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.False(t, covered)
}

func TestLedger_MissedCandidates_RespectsThreshold(t *testing.T) {
	ledger := newTestLedger(t)
	old := insertBooking(t, ledger, "mill", "alice", win(-5, -3))
	insertBooking(t, ledger, "mill", "bob", win(-2, -0.5))

	candidates, err := ledger.MissedCandidates(context.Background(), "mill", base, time.Hour)
	require.NoError(t, err)
	require.Len(t, candidates, 1, "only bookings past the grace threshold qualify")
	assert.Equal(t, old.ID, candidates[0].ID)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, reservation.IsNotFound(reservation.ErrOutageNotFound))
	assert.True(t, reservation.IsNotFound(reservation.ErrUserNotFound))
	assert.False(t, reservation.IsNotFound(errors.New("boom")))

	fault := &reservation.HardwareFaultError{Item: "mill", Operation: "unlock"}
	assert.True(t, reservation.IsHardwareFault(fault))
	assert.False(t, reservation.IsPrecondition(fault))
}
