// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/reservation-engine/reservation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	reservations map[reservation.ReservationID]reservation.Reservation
	byItem       map[reservation.ItemID][]reservation.ReservationID
	outages      map[reservation.OutageID]reservation.ScheduledOutage
}

func NewMemory() *Memory {
	return &Memory{
		reservations: make(map[reservation.ReservationID]reservation.Reservation),
		byItem:       make(map[reservation.ItemID][]reservation.ReservationID),
		outages:      make(map[reservation.OutageID]reservation.ScheduledOutage),
	}
}

// Insert persists a new reservation record. Insert-only: the window of a
// stored record is never touched again.
func (m *Memory) Insert(_ context.Context, r reservation.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[r.ID] = r
	m.byItem[r.Item] = append(m.byItem[r.Item], r.ID)
	return nil
}

func (m *Memory) Get(_ context.Context, id reservation.ReservationID) (reservation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[id]
	if !ok {
		return reservation.Reservation{}, reservation.ErrReservationNotFound
	}
	return r, nil
}

func (m *Memory) SetCancelled(_ context.Context, id reservation.ReservationID, by reservation.UserID, at time.Time, reason string, descendant reservation.ReservationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return reservation.ErrReservationNotFound
	}
	r.Cancelled = true
	r.CancelledBy = by
	cancelledAt := at
	r.CancellationTime = &cancelledAt
	r.CancelReason = reason
	if descendant != "" {
		r.Descendant = descendant
	}
	m.reservations[id] = r
	return nil
}

func (m *Memory) SetShortened(_ context.Context, id reservation.ReservationID, descendant reservation.ReservationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return reservation.ErrReservationNotFound
	}
	r.Shortened = true
	r.Descendant = descendant
	m.reservations[id] = r
	return nil
}

func (m *Memory) SetMissed(_ context.Context, id reservation.ReservationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return reservation.ErrReservationNotFound
	}
	r.Missed = true
	m.reservations[id] = r
	return nil
}

func (m *Memory) ForItems(_ context.Context, items []reservation.ItemID, window reservation.Window) ([]reservation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []reservation.Reservation
	for _, item := range items {
		for _, id := range m.byItem[item] {
			r := m.reservations[id]
			if r.Window().Overlaps(window) {
				out = append(out, r)
			}
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *Memory) ForUser(_ context.Context, user reservation.UserID, item reservation.ItemID, window reservation.Window) ([]reservation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []reservation.Reservation
	for _, id := range m.byItem[item] {
		r := m.reservations[id]
		if r.User == user && r.Window().Overlaps(window) {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *Memory) FutureForUser(_ context.Context, user reservation.UserID, item reservation.ItemID, after time.Time) ([]reservation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []reservation.Reservation
	for _, id := range m.byItem[item] {
		r := m.reservations[id]
		if r.User == user && !r.Start.Before(after) {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *Memory) EndedBefore(_ context.Context, item reservation.ItemID, cutoff time.Time) ([]reservation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []reservation.Reservation
	for _, id := range m.byItem[item] {
		r := m.reservations[id]
		if r.Active() && !r.End.After(cutoff) {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *Memory) InsertOutage(_ context.Context, o reservation.ScheduledOutage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outages[o.ID] = o
	return nil
}

func (m *Memory) OutagesFor(_ context.Context, item reservation.ItemID, resources []reservation.ResourceID, window reservation.Window) ([]reservation.ScheduledOutage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := make(map[reservation.ResourceID]bool, len(resources))
	for _, res := range resources {
		wanted[res] = true
	}
	var out []reservation.ScheduledOutage
	for _, o := range m.outages {
		if !o.Window().Overlaps(window) {
			continue
		}
		if o.Item == item || (o.Resource != "" && wanted[o.Resource]) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *Memory) DeleteOutage(_ context.Context, id reservation.OutageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.outages[id]; !ok {
		return reservation.ErrOutageNotFound
	}
	delete(m.outages, id)
	return nil
}

func sortByStart(rs []reservation.Reservation) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start.Before(rs[j].Start) })
}
