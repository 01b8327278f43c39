package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reservation-engine/api"
	"github.com/warp/reservation-engine/factory"
	"github.com/warp/reservation-engine/rates"
	"github.com/warp/reservation-engine/reservation"
	"github.com/warp/reservation-engine/reservation/store"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

var apiBase = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

const apiSiteJSON = `{
  "configuration": {
    "facility_name": "NanoFab",
    "site_title": "LEO",
    "missed_threshold_minutes": 15
  },
  "areas": [
    {"id": "cleanroom", "name": "cleanroom"}
  ],
  "tools": [
    {"id": "mill", "name": "Mill", "operational": true}
  ]
}`

type testServer struct {
	router http.Handler
	ledger *reservation.Ledger
	rates  *rates.Table
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	site, err := factory.ParseSite([]byte(apiSiteJSON))
	require.NoError(t, err)

	ledger := reservation.NewLedger(store.NewMemory())
	ledger.Now = func() time.Time { return apiBase }

	directory := api.NewMemoryDirectory()
	directory.Put(reservation.User{ID: "alice", Name: "alice", ActiveProjects: []string{"fusion"}})
	directory.Put(reservation.User{ID: "bob", Name: "bob", ActiveProjects: []string{"fusion"}})
	staff := reservation.User{ID: "carol", Name: "carol", IsStaff: true, ActiveProjects: []string{"ops"}}
	directory.Put(staff)

	outages := reservation.NewOutageRegistry(ledger.Store)
	capacity := &reservation.CapacityChecker{Ledger: ledger, Directory: directory}
	billing := rates.NewTable()
	evaluator := &reservation.Evaluator{
		Ledger:    ledger,
		Outages:   outages,
		Capacity:  capacity,
		Charges:   billing,
		Inventory: site,
		Now:       func() time.Time { return apiBase },
	}
	usage := reservation.NewUsageController(ledger, outages, billing, nil, nil)
	usage.Now = func() time.Time { return apiBase }
	coordinator := reservation.NewCoordinator(ledger, evaluator, site, directory, site, reservation.NopNotifier{}, nil)
	coordinator.SetClock(func() time.Time { return apiBase })

	h := api.NewHandler(site, ledger, coordinator, outages, usage, billing, directory)
	return &testServer{router: api.NewRouter(h), ledger: ledger, rates: billing}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func stamp(offsetHours float64) string {
	return apiBase.Add(time.Duration(offsetHours * float64(time.Hour))).Format(time.RFC3339)
}

func createBody(user string, fromHours, toHours float64) map[string]any {
	return map[string]any{
		"item_id": "mill",
		"user_id": user,
		"start":   stamp(fromHours),
		"end":     stamp(toHours),
		"title":   "etch run",
		"project": "fusion",
	}
}

// =============================================================================
// RESERVATION ENDPOINTS
// =============================================================================

func TestAPI_CreateAndGetReservation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/reservations", createBody("alice", 1, 3))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.ReservationDTO](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "mill", created.ItemID)
	assert.Equal(t, "alice", created.UserID)
	assert.Equal(t, stamp(1), created.Start)

	rec = s.do(t, http.MethodGet, "/api/reservations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[api.ReservationDTO](t, rec)
	assert.Equal(t, created.ID, got.ID)
}

func TestAPI_CreateConflictReturnsDecision(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/reservations", createBody("bob", 1, 3)).Code)

	rec := s.do(t, http.MethodPost, "/api/reservations", createBody("alice", 2, 4))
	require.Equal(t, http.StatusConflict, rec.Code)
	decision := decode[api.DecisionDTO](t, rec)
	require.Len(t, decision.Violations, 1)
	assert.Contains(t, decision.Violations[0], "coincides with another reservation")
	assert.False(t, decision.Overridable)
}

func TestAPI_CreateValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/reservations", map[string]any{"user_id": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reservations", createBody("nobody", 1, 3))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := createBody("alice", 1, 3)
	body["item_id"] = "ghost"
	rec = s.do(t, http.MethodPost, "/api/reservations", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_MoveKeepsLineage(t *testing.T) {
	s := newTestServer(t)
	created := decode[api.ReservationDTO](t, s.do(t, http.MethodPost, "/api/reservations", createBody("alice", 1, 3)))

	rec := s.do(t, http.MethodPost, "/api/reservations/"+created.ID+"/move", map[string]any{
		"delta_minutes": 60,
		"actor_id":      "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[api.ReservationDTO](t, rec)
	assert.Equal(t, stamp(2), moved.Start)
	assert.Equal(t, stamp(4), moved.End)

	old := decode[api.ReservationDTO](t, s.do(t, http.MethodGet, "/api/reservations/"+created.ID, nil))
	assert.True(t, old.Cancelled)
	assert.Equal(t, moved.ID, old.DescendantID)
	assert.Equal(t, "move", old.CancelReason)
}

func TestAPI_MoveByNonOwnerRejected(t *testing.T) {
	s := newTestServer(t)
	created := decode[api.ReservationDTO](t, s.do(t, http.MethodPost, "/api/reservations", createBody("alice", 1, 3)))

	rec := s.do(t, http.MethodPost, "/api/reservations/"+created.ID+"/move", map[string]any{
		"delta_minutes": 60,
		"actor_id":      "bob",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	decision := decode[api.DecisionDTO](t, rec)
	assert.Contains(t, decision.Violations, "You may not move reservations that you do not own.")
}

func TestAPI_CancelIdempotencyReportsFirstCancel(t *testing.T) {
	s := newTestServer(t)
	created := decode[api.ReservationDTO](t, s.do(t, http.MethodPost, "/api/reservations", createBody("alice", 1, 3)))
	body := map[string]any{"actor_id": "alice", "reason": "done"}

	rec := s.do(t, http.MethodPost, "/api/reservations/"+created.ID+"/cancel", body)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reservations/"+created.ID+"/cancel", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	decision := decode[api.DecisionDTO](t, rec)
	assert.Contains(t, decision.Violations[0], "already been cancelled by alice")
}

func TestAPI_Shorten(t *testing.T) {
	s := newTestServer(t)
	created := decode[api.ReservationDTO](t, s.do(t, http.MethodPost, "/api/reservations", createBody("alice", 1, 3)))

	rec := s.do(t, http.MethodPost, "/api/reservations/"+created.ID+"/shorten", map[string]any{
		"new_end":  stamp(2),
		"actor_id": "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	short := decode[api.ReservationDTO](t, rec)
	assert.Equal(t, stamp(2), short.End)

	// A new end outside the window is a bad request, not a policy matter.
	rec = s.do(t, http.MethodPost, "/api/reservations/"+short.ID+"/shorten", map[string]any{
		"new_end":  stamp(5),
		"actor_id": "alice",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ITEM ENDPOINTS
// =============================================================================

func TestAPI_ListItemsAndReservations(t *testing.T) {
	s := newTestServer(t)
	created := decode[api.ReservationDTO](t, s.do(t, http.MethodPost, "/api/reservations", createBody("alice", 1, 3)))

	rec := s.do(t, http.MethodGet, "/api/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]api.ItemDTO](t, rec)
	assert.Len(t, items, 2)

	path := fmt.Sprintf("/api/items/mill/reservations?from=%s&to=%s", stamp(0), stamp(24))
	rec = s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]api.ReservationDTO](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
}

func TestAPI_EstimateCost(t *testing.T) {
	s := newTestServer(t)
	s.rates.SetHourly("mill", decimal.NewFromInt(120))

	rec := s.do(t, http.MethodGet, "/api/items/mill/estimate?minutes=90", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	estimate := decode[api.EstimateDTO](t, rec)
	assert.Equal(t, "180.00", estimate.Estimate)

	rec = s.do(t, http.MethodGet, "/api/items/mill/estimate?minutes=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_SweepMissed(t *testing.T) {
	// GIVEN: A booking that ended well past the 15-minute grace period
	s := newTestServer(t)
	stale := reservation.Reservation{
		Item: "mill", Kind: reservation.KindTool, User: "alice", Creator: "alice",
		Start: apiBase.Add(-3 * time.Hour), End: apiBase.Add(-2 * time.Hour),
	}
	_, err := s.ledger.Insert(context.Background(), &stale)
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/items/mill/missed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	missed := decode[[]api.ReservationDTO](t, rec)
	require.Len(t, missed, 1)
	assert.True(t, missed[0].Missed)
}

// =============================================================================
// OUTAGE ENDPOINTS
// =============================================================================

func TestAPI_OutageLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/outages", map[string]any{
		"item_id":    "mill",
		"start":      stamp(1),
		"end":        stamp(3),
		"title":      "repair",
		"creator_id": "carol",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	outage := decode[api.OutageDTO](t, rec)
	assert.NotEmpty(t, outage.ID)

	// The blacked-out window now refuses reservations.
	rec = s.do(t, http.MethodPost, "/api/reservations", createBody("alice", 2, 4))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/outages/"+outage.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/outages/"+outage.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_OutageRequiresExactlyOneTarget(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/outages", map[string]any{
		"item_id":     "mill",
		"resource_id": "chilled-water",
		"start":       stamp(1),
		"end":         stamp(2),
		"creator_id":  "carol",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RecurringOutage(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/outages/recurring", map[string]any{
		"item_id":    "mill",
		"start":      stamp(1),
		"end":        stamp(2),
		"title":      "calibration",
		"creator_id": "carol",
		"frequency":  "daily",
		"until":      apiBase.AddDate(0, 0, 2).Format("2006-01-02"),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Outages []api.OutageDTO `json:"outages"`
		Skipped []string        `json:"skipped"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Outages, 3)
	assert.Empty(t, resp.Skipped)
}

// =============================================================================
// USAGE ENDPOINTS
// =============================================================================

func TestAPI_EnableDisableTool(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{"operator_id": "alice", "project": "fusion"}

	rec := s.do(t, http.MethodPost, "/api/tools/mill/enable", body)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	// A second operator is refused while the tool is live.
	rec = s.do(t, http.MethodPost, "/api/tools/mill/enable", map[string]any{"operator_id": "bob"})
	require.Equal(t, http.StatusConflict, rec.Code)
	decision := decode[api.DecisionDTO](t, rec)
	assert.Contains(t, decision.Violations[0], "currently being used by alice")

	rec = s.do(t, http.MethodPost, "/api/tools/mill/disable", body)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

func TestAPI_CreateAndListUsers(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/users", map[string]any{
		"id":              "dave",
		"name":            "Dave",
		"active_projects": []string{"fusion"},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]api.UserDTO](t, rec)
	assert.Len(t, users, 4)
}
