/*
handlers.go - HTTP API handlers for the reservation engine

PURPOSE:
  Exposes the reservation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Reservations:
    POST   /api/reservations               Create reservation
    GET    /api/reservations/{id}          Get reservation
    POST   /api/reservations/{id}/move     Shift the whole window
    POST   /api/reservations/{id}/resize   Shift the end only
    POST   /api/reservations/{id}/cancel   Cancel
    POST   /api/reservations/{id}/shorten  End early, freeing the tail

  Items:
    GET    /api/items                      List schedulable items
    GET    /api/items/{id}/reservations    Reservations in a window
    GET    /api/items/{id}/estimate        Projected cost for a duration
    POST   /api/items/{id}/missed          Run the missed sweep

  Outages:
    POST   /api/outages                    Schedule one outage
    POST   /api/outages/recurring          Schedule a recurring series
    DELETE /api/outages/{id}               Remove an outage

  Tools:
    POST   /api/tools/{id}/enable          Start usage (interlock unlock)
    POST   /api/tools/{id}/disable         End usage (interlock lock)

  Users:
    GET    /api/users                      List directory snapshots
    POST   /api/users                      Register a snapshot

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (go-playground/validator)
  3. Call domain logic (coordinator, registry, usage controller)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Policy rejection (body carries the full Decision)
  - 502: Interlock hardware fault
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/reservation-engine/factory"
	"github.com/warp/reservation-engine/rates"
	"github.com/warp/reservation-engine/reservation"
)

// Handler holds all API dependencies.
type Handler struct {
	Site        *factory.Site
	Ledger      *reservation.Ledger
	Coordinator *reservation.Coordinator
	Outages     *reservation.OutageRegistry
	Usage       *reservation.UsageController
	Rates       *rates.Table
	Directory   *MemoryDirectory

	validate *validator.Validate
}

func NewHandler(site *factory.Site, ledger *reservation.Ledger, coordinator *reservation.Coordinator, outages *reservation.OutageRegistry, usage *reservation.UsageController, table *rates.Table, directory *MemoryDirectory) *Handler {
	return &Handler{
		Site:        site,
		Ledger:      ledger,
		Coordinator: coordinator,
		Outages:     outages,
		Usage:       usage,
		Rates:       table,
		Directory:   directory,
		validate:    validator.New(),
	}
}

// decodeAndValidate parses the JSON body into dst and runs validator tags.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// CreateReservation creates a new reservation.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	item, ok := h.Site.Item(reservation.ItemID(req.ItemID))
	if !ok {
		writeError(w, http.StatusNotFound, "Item not found", nil)
		return
	}
	window, ok := parseWindow(w, req.Start, req.End)
	if !ok {
		return
	}

	beneficiary, err := h.Directory.User(r.Context(), reservation.UserID(req.UserID))
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found", err)
		return
	}
	requester := beneficiary
	if req.RequesterID != "" && req.RequesterID != req.UserID {
		requester, err = h.Directory.User(r.Context(), reservation.UserID(req.RequesterID))
		if err != nil {
			writeError(w, http.StatusNotFound, "Requester not found", err)
			return
		}
	}

	created, decision, err := h.Coordinator.Create(r.Context(), item, beneficiary, requester, window, req.Title, req.Project, req.Override)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create reservation", err)
		return
	}
	if !decision.OK() {
		writeJSON(w, http.StatusConflict, DecisionDTO{Violations: decision.Violations, Overridable: decision.Overridable})
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(created))
}

// GetReservation returns a single reservation.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id := reservation.ReservationID(chi.URLParam(r, "id"))
	rec, err := h.Ledger.Get(r.Context(), id)
	if err != nil {
		if reservation.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Reservation not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(rec))
}

// MoveReservation shifts the whole window by delta_minutes.
func (h *Handler) MoveReservation(w http.ResponseWriter, r *http.Request) {
	h.replaceReservation(w, r, func(ctx context.Context, id reservation.ReservationID, delta time.Duration, actor reservation.User, override bool) (reservation.Reservation, reservation.Decision, error) {
		return h.Coordinator.Move(ctx, id, delta, actor, override)
	})
}

// ResizeReservation shifts the end of the window by delta_minutes.
func (h *Handler) ResizeReservation(w http.ResponseWriter, r *http.Request) {
	h.replaceReservation(w, r, func(ctx context.Context, id reservation.ReservationID, delta time.Duration, actor reservation.User, override bool) (reservation.Reservation, reservation.Decision, error) {
		return h.Coordinator.Resize(ctx, id, delta, actor, override)
	})
}

func (h *Handler) replaceReservation(w http.ResponseWriter, r *http.Request, op func(context.Context, reservation.ReservationID, time.Duration, reservation.User, bool) (reservation.Reservation, reservation.Decision, error)) {
	id := reservation.ReservationID(chi.URLParam(r, "id"))
	var req MoveReservationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	actor, err := h.Directory.User(r.Context(), reservation.UserID(req.ActorID))
	if err != nil {
		writeError(w, http.StatusNotFound, "Actor not found", err)
		return
	}

	replacement, decision, err := op(r.Context(), id, time.Duration(req.DeltaMinutes)*time.Minute, actor, req.Override)
	if err != nil {
		if reservation.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Reservation not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to modify reservation", err)
		return
	}
	if !decision.OK() {
		writeJSON(w, http.StatusConflict, DecisionDTO{Violations: decision.Violations, Overridable: decision.Overridable})
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(replacement))
}

// CancelReservation retires a reservation. Repeating the call reports who
// cancelled first; the record never changes again.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := reservation.ReservationID(chi.URLParam(r, "id"))
	var req CancelReservationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	actor, err := h.Directory.User(r.Context(), reservation.UserID(req.ActorID))
	if err != nil {
		writeError(w, http.StatusNotFound, "Actor not found", err)
		return
	}

	decision, err := h.Coordinator.Cancel(r.Context(), id, actor, req.Reason)
	if err != nil {
		if reservation.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Reservation not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to cancel reservation", err)
		return
	}
	if !decision.OK() {
		writeJSON(w, http.StatusConflict, DecisionDTO{Violations: decision.Violations, Overridable: decision.Overridable})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ShortenReservation ends a reservation early, freeing the tail.
func (h *Handler) ShortenReservation(w http.ResponseWriter, r *http.Request) {
	id := reservation.ReservationID(chi.URLParam(r, "id"))
	var req ShortenReservationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	newEnd, err := time.Parse(time.RFC3339, req.NewEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid new_end (use RFC3339)", err)
		return
	}
	actor, err := h.Directory.User(r.Context(), reservation.UserID(req.ActorID))
	if err != nil {
		writeError(w, http.StatusNotFound, "Actor not found", err)
		return
	}

	replacement, decision, err := h.Coordinator.Shorten(r.Context(), id, newEnd, actor)
	if err != nil {
		switch {
		case reservation.IsNotFound(err):
			writeError(w, http.StatusNotFound, "Reservation not found", nil)
		case reservation.IsPrecondition(err):
			writeError(w, http.StatusBadRequest, "New end must fall inside the reservation window", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to shorten reservation", err)
		}
		return
	}
	if !decision.OK() {
		writeJSON(w, http.StatusConflict, DecisionDTO{Violations: decision.Violations, Overridable: decision.Overridable})
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(replacement))
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

// ListItems returns every schedulable item.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	var dtos []ItemDTO
	for _, t := range h.Site.Tools() {
		operational := t.Operational
		dtos = append(dtos, ItemDTO{
			ID:          string(t.ID),
			Kind:        string(reservation.KindTool),
			Name:        t.ToolName,
			Operational: &operational,
		})
	}
	for _, a := range h.Site.Areas() {
		dtos = append(dtos, ItemDTO{
			ID:              string(a.ID),
			Kind:            string(reservation.KindArea),
			Name:            a.AreaName,
			MaximumCapacity: a.MaximumCapacity,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListItemReservations returns reservations on the item overlapping the
// from/to query window.
func (h *Handler) ListItemReservations(w http.ResponseWriter, r *http.Request) {
	id := reservation.ItemID(chi.URLParam(r, "id"))
	if _, ok := h.Site.Item(id); !ok {
		writeError(w, http.StatusNotFound, "Item not found", nil)
		return
	}
	window, ok := parseWindow(w, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if !ok {
		return
	}

	records, err := h.Ledger.FindOverlapping(r.Context(), id, window, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reservations", err)
		return
	}
	dtos := make([]ReservationDTO, len(records))
	for i, rec := range records {
		dtos[i] = toReservationDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// EstimateCost returns the projected cost of holding the item for the
// given number of minutes.
func (h *Handler) EstimateCost(w http.ResponseWriter, r *http.Request) {
	id := reservation.ItemID(chi.URLParam(r, "id"))
	if _, ok := h.Site.Item(id); !ok {
		writeError(w, http.StatusNotFound, "Item not found", nil)
		return
	}
	minutes, err := strconv.Atoi(r.URL.Query().Get("minutes"))
	if err != nil || minutes <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid minutes parameter", err)
		return
	}
	estimate := h.Rates.Estimate(id, time.Duration(minutes)*time.Minute)
	writeJSON(w, http.StatusOK, EstimateDTO{
		ItemID:   string(id),
		Minutes:  minutes,
		Estimate: estimate.StringFixed(2),
	})
}

// SweepMissed flags the item's unused, ended reservations as missed.
func (h *Handler) SweepMissed(w http.ResponseWriter, r *http.Request) {
	id := reservation.ItemID(chi.URLParam(r, "id"))
	if _, ok := h.Site.Item(id); !ok {
		writeError(w, http.StatusNotFound, "Item not found", nil)
		return
	}
	missed, err := h.Coordinator.SweepMissed(r.Context(), id, h.Usage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to sweep missed reservations", err)
		return
	}
	dtos := make([]ReservationDTO, len(missed))
	for i, rec := range missed {
		dtos[i] = toReservationDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// OUTAGE HANDLERS
// =============================================================================

// CreateOutage schedules a single outage.
func (h *Handler) CreateOutage(w http.ResponseWriter, r *http.Request) {
	var req CreateOutageRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	outage, ok := h.outageFromRequest(w, req)
	if !ok {
		return
	}

	created, problem, err := h.Outages.Schedule(r.Context(), h.Ledger, outage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to schedule outage", err)
		return
	}
	if problem != "" {
		writeJSON(w, http.StatusConflict, DecisionDTO{Violations: []string{problem}})
		return
	}
	writeJSON(w, http.StatusCreated, toOutageDTO(created))
}

// CreateRecurringOutage schedules a recurring outage series. Occurrences
// colliding with existing reservations are skipped and reported.
func (h *Handler) CreateRecurringOutage(w http.ResponseWriter, r *http.Request) {
	var req CreateRecurringOutageRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	template, ok := h.outageFromRequest(w, req.CreateOutageRequest)
	if !ok {
		return
	}
	until, err := time.Parse(time.RFC3339, req.Until)
	if err != nil {
		// Allow a plain date for the series end.
		until, err = time.ParseInLocation("2006-01-02", req.Until, template.Start.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid until (use RFC3339 or YYYY-MM-DD)", err)
			return
		}
	}
	interval := req.Interval
	if interval == 0 {
		interval = 1
	}

	created, problems, err := h.Outages.ScheduleRecurring(r.Context(), h.Ledger, template, reservation.Frequency(req.Frequency), interval, until)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to schedule recurring outage", err)
		return
	}
	dtos := make([]OutageDTO, len(created))
	for i, o := range created {
		dtos[i] = toOutageDTO(o)
	}
	writeJSON(w, http.StatusCreated, struct {
		Outages []OutageDTO `json:"outages"`
		Skipped []string    `json:"skipped,omitempty"`
	}{Outages: dtos, Skipped: problems})
}

// DeleteOutage removes an outage.
func (h *Handler) DeleteOutage(w http.ResponseWriter, r *http.Request) {
	id := reservation.OutageID(chi.URLParam(r, "id"))
	if err := h.Outages.Remove(r.Context(), id); err != nil {
		if reservation.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Outage not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete outage", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) outageFromRequest(w http.ResponseWriter, req CreateOutageRequest) (reservation.ScheduledOutage, bool) {
	if (req.ItemID == "") == (req.ResourceID == "") {
		writeError(w, http.StatusBadRequest, "Exactly one of item_id and resource_id is required", nil)
		return reservation.ScheduledOutage{}, false
	}
	window, ok := parseWindow(w, req.Start, req.End)
	if !ok {
		return reservation.ScheduledOutage{}, false
	}
	return reservation.ScheduledOutage{
		Item:     reservation.ItemID(req.ItemID),
		Resource: reservation.ResourceID(req.ResourceID),
		Start:    window.Start,
		End:      window.End,
		Title:    req.Title,
		Category: req.Category,
		Creator:  reservation.UserID(req.CreatorID),
	}, true
}

// =============================================================================
// TOOL USAGE HANDLERS
// =============================================================================

// EnableTool runs the pre-use checks and opens a usage record.
func (h *Handler) EnableTool(w http.ResponseWriter, r *http.Request) {
	id := reservation.ItemID(chi.URLParam(r, "id"))
	tool, ok := h.Site.Tool(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Tool not found", nil)
		return
	}
	var req UsageRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	operator, err := h.Directory.User(r.Context(), reservation.UserID(req.OperatorID))
	if err != nil {
		writeError(w, http.StatusNotFound, "Operator not found", err)
		return
	}
	beneficiary := operator
	if req.UserID != "" && req.UserID != req.OperatorID {
		beneficiary, err = h.Directory.User(r.Context(), reservation.UserID(req.UserID))
		if err != nil {
			writeError(w, http.StatusNotFound, "User not found", err)
			return
		}
	}

	problem, err := h.Usage.Enable(r.Context(), tool, operator, beneficiary, req.Project, h.Site.Config())
	if err != nil {
		if reservation.IsHardwareFault(err) {
			writeError(w, http.StatusBadGateway, "Interlock hardware fault", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to enable tool", err)
		return
	}
	if problem != "" {
		writeJSON(w, http.StatusConflict, DecisionDTO{Violations: []string{problem}})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DisableTool closes the usage record and re-engages the interlock.
func (h *Handler) DisableTool(w http.ResponseWriter, r *http.Request) {
	id := reservation.ItemID(chi.URLParam(r, "id"))
	tool, ok := h.Site.Tool(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Tool not found", nil)
		return
	}
	var req UsageRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	operator, err := h.Directory.User(r.Context(), reservation.UserID(req.OperatorID))
	if err != nil {
		writeError(w, http.StatusNotFound, "Operator not found", err)
		return
	}

	problem, err := h.Usage.Disable(r.Context(), tool, operator)
	if err != nil {
		if reservation.IsHardwareFault(err) {
			writeError(w, http.StatusBadGateway, "Interlock hardware fault", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to disable tool", err)
		return
	}
	if problem != "" {
		writeJSON(w, http.StatusConflict, DecisionDTO{Violations: []string{problem}})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns every directory snapshot.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users := h.Directory.List()
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = UserDTO{
			ID:                 string(u.ID),
			Name:               u.Name,
			IsStaff:            u.IsStaff,
			IsServicePersonnel: u.IsServicePersonnel,
			ActiveProjects:     u.ActiveProjects,
			TrainingRequired:   u.TrainingRequired,
		}
		if u.AccessExpiration != nil {
			dtos[i].AccessExpiration = u.AccessExpiration.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser registers an identity snapshot with the directory.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	user := reservation.User{
		ID:                 reservation.UserID(req.ID),
		Name:               req.Name,
		IsStaff:            req.IsStaff,
		IsServicePersonnel: req.IsServicePersonnel,
		ActiveProjects:     req.ActiveProjects,
		TrainingRequired:   req.TrainingRequired,
	}
	if req.AccessExpiration != "" {
		exp, err := time.Parse(time.RFC3339, req.AccessExpiration)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid access_expiration (use RFC3339)", err)
			return
		}
		user.AccessExpiration = &exp
	}
	h.Directory.Put(user)
	w.WriteHeader(http.StatusCreated)
}

// =============================================================================
// DIRECTORY - In-memory identity provider for the demo server
// =============================================================================

// MemoryDirectory is an in-memory reservation.Directory. A production
// deployment replaces it with the facility's identity provider.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[reservation.UserID]reservation.User
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[reservation.UserID]reservation.User)}
}

func (d *MemoryDirectory) Put(u reservation.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *MemoryDirectory) User(_ context.Context, id reservation.UserID) (reservation.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return reservation.User{}, reservation.ErrUserNotFound
	}
	return u, nil
}

func (d *MemoryDirectory) List() []reservation.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]reservation.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	return out
}

// =============================================================================
// HELPERS
// =============================================================================

func parseWindow(w http.ResponseWriter, start, end string) (reservation.Window, bool) {
	from, err := time.Parse(time.RFC3339, start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start (use RFC3339)", err)
		return reservation.Window{}, false
	}
	to, err := time.Parse(time.RFC3339, end)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end (use RFC3339)", err)
		return reservation.Window{}, false
	}
	return reservation.Window{Start: from, End: to}, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
