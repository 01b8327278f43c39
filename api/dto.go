/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Defines the JSON shapes the API accepts and returns, decoupled from the
  engine's internal types. Request structs carry validator tags; handlers
  validate before touching domain logic.

VALIDATION:
  Uses go-playground/validator struct tags. Time fields travel as RFC3339
  strings and are parsed explicitly so timezone offsets survive.

SEE ALSO:
  - handlers.go: Parsing, validation, and domain delegation
*/
package api

import (
	"time"

	"github.com/warp/reservation-engine/reservation"
)

// =============================================================================
// RESERVATION DTOS
// =============================================================================

// ReservationDTO represents a reservation in API responses.
type ReservationDTO struct {
	ID           string `json:"id"`
	ItemID       string `json:"item_id"`
	ItemKind     string `json:"item_kind"`
	UserID       string `json:"user_id"`
	CreatorID    string `json:"creator_id"`
	Project      string `json:"project,omitempty"`
	Title        string `json:"title,omitempty"`
	Start        string `json:"start"`
	End          string `json:"end"`
	CreatedAt    string `json:"created_at"`
	Cancelled    bool   `json:"cancelled,omitempty"`
	CancelledBy  string `json:"cancelled_by,omitempty"`
	CancelledAt  string `json:"cancelled_at,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`
	Missed       bool   `json:"missed,omitempty"`
	Shortened    bool   `json:"shortened,omitempty"`
	DescendantID string `json:"descendant_id,omitempty"`
}

func toReservationDTO(r reservation.Reservation) ReservationDTO {
	dto := ReservationDTO{
		ID:           string(r.ID),
		ItemID:       string(r.Item),
		ItemKind:     string(r.Kind),
		UserID:       string(r.User),
		CreatorID:    string(r.Creator),
		Project:      r.Project,
		Title:        r.Title,
		Start:        r.Start.Format(time.RFC3339),
		End:          r.End.Format(time.RFC3339),
		CreatedAt:    r.CreationTime.Format(time.RFC3339),
		Cancelled:    r.Cancelled,
		CancelledBy:  string(r.CancelledBy),
		CancelReason: r.CancelReason,
		Missed:       r.Missed,
		Shortened:    r.Shortened,
		DescendantID: string(r.Descendant),
	}
	if r.CancellationTime != nil {
		dto.CancelledAt = r.CancellationTime.Format(time.RFC3339)
	}
	return dto
}

// CreateReservationRequest is the request to create a reservation.
type CreateReservationRequest struct {
	ItemID      string `json:"item_id" validate:"required"`
	UserID      string `json:"user_id" validate:"required"`
	RequesterID string `json:"requester_id,omitempty"`
	Start       string `json:"start" validate:"required"`
	End         string `json:"end" validate:"required"`
	Title       string `json:"title,omitempty"`
	Project     string `json:"project,omitempty"`
	Override    bool   `json:"override,omitempty"`
}

// MoveReservationRequest shifts a reservation window. Positive deltas move
// forward in time; Resize applies the delta to the end only.
type MoveReservationRequest struct {
	DeltaMinutes int    `json:"delta_minutes" validate:"required"`
	ActorID      string `json:"actor_id" validate:"required"`
	Override     bool   `json:"override,omitempty"`
}

// CancelReservationRequest retires a reservation.
type CancelReservationRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	Reason  string `json:"reason,omitempty"`
}

// ShortenReservationRequest ends a reservation early.
type ShortenReservationRequest struct {
	NewEnd  string `json:"new_end" validate:"required"`
	ActorID string `json:"actor_id" validate:"required"`
}

// DecisionDTO carries a policy rejection back to the caller.
type DecisionDTO struct {
	Violations  []string `json:"violations"`
	Overridable bool     `json:"overridable"`
}

// =============================================================================
// OUTAGE DTOS
// =============================================================================

// OutageDTO represents a scheduled outage.
type OutageDTO struct {
	ID         string `json:"id"`
	ItemID     string `json:"item_id,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Title      string `json:"title,omitempty"`
	Category   string `json:"category,omitempty"`
	CreatorID  string `json:"creator_id,omitempty"`
}

func toOutageDTO(o reservation.ScheduledOutage) OutageDTO {
	return OutageDTO{
		ID:         string(o.ID),
		ItemID:     string(o.Item),
		ResourceID: string(o.Resource),
		Start:      o.Start.Format(time.RFC3339),
		End:        o.End.Format(time.RFC3339),
		Title:      o.Title,
		Category:   o.Category,
		CreatorID:  string(o.Creator),
	}
}

// CreateOutageRequest schedules a single outage.
type CreateOutageRequest struct {
	ItemID     string `json:"item_id,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	Start      string `json:"start" validate:"required"`
	End        string `json:"end" validate:"required"`
	Title      string `json:"title,omitempty"`
	Category   string `json:"category,omitempty"`
	CreatorID  string `json:"creator_id" validate:"required"`
}

// CreateRecurringOutageRequest schedules a recurring outage series.
type CreateRecurringOutageRequest struct {
	CreateOutageRequest
	Frequency string `json:"frequency" validate:"required,oneof=daily weekly daily_weekdays daily_weekends"`
	Interval  int    `json:"interval" validate:"min=0"`
	Until     string `json:"until" validate:"required"`
}

// =============================================================================
// ITEM AND USER DTOS
// =============================================================================

// ItemDTO summarizes a schedulable item.
type ItemDTO struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	Name            string `json:"name"`
	MaximumCapacity int    `json:"maximum_capacity,omitempty"`
	Operational     *bool  `json:"operational,omitempty"`
}

// UserDTO represents an identity snapshot.
type UserDTO struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	IsStaff            bool     `json:"is_staff,omitempty"`
	IsServicePersonnel bool     `json:"is_service_personnel,omitempty"`
	ActiveProjects     []string `json:"active_projects,omitempty"`
	TrainingRequired   bool     `json:"training_required,omitempty"`
	AccessExpiration   string   `json:"access_expiration,omitempty"`
}

// CreateUserRequest registers an identity snapshot with the directory.
type CreateUserRequest struct {
	ID                 string   `json:"id" validate:"required"`
	Name               string   `json:"name" validate:"required"`
	IsStaff            bool     `json:"is_staff,omitempty"`
	IsServicePersonnel bool     `json:"is_service_personnel,omitempty"`
	ActiveProjects     []string `json:"active_projects,omitempty"`
	TrainingRequired   bool     `json:"training_required,omitempty"`
	AccessExpiration   string   `json:"access_expiration,omitempty"`
}

// UsageRequest enables or disables a tool.
type UsageRequest struct {
	OperatorID string `json:"operator_id" validate:"required"`
	UserID     string `json:"user_id,omitempty"`
	Project    string `json:"project,omitempty"`
}

// EstimateDTO is a projected reservation cost.
type EstimateDTO struct {
	ItemID   string `json:"item_id"`
	Minutes  int    `json:"minutes"`
	Estimate string `json:"estimate"`
}

// ErrorResponse is the standard error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
