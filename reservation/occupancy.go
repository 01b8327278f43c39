/*
occupancy.go - Projected occupancy for capacity-limited areas

PURPOSE:
  Answers "if this reservation is committed, how many distinct people
  could be in the area at once?". Areas nest, so a capacity limit on a
  parent zone counts occupants of every child area too. Staff and service
  personnel may be exempt from the count per zone; a user holding several
  simultaneous bookings inside the same zone counts once.

ALGORITHM (per zone with a capacity limit, from the booked area upward):
  1. Gather active reservations overlapping the candidate across the
     zone's whole subtree, excluding the record being replaced
  2. Drop reservations of exempt users (directory lookup, cached)
  3. Merge each user's intervals so one person never counts twice
  4. Sweep for the maximum concurrency and compare to the limit

SEE ALSO:
  - interval.go: Merge and MaxConcurrent
  - policy.go: The capacity rule that invokes this checker
*/
package reservation

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// CapacityChecker computes projected occupancy for capacity-limited areas.
type CapacityChecker struct {
	Ledger    *Ledger
	Directory Directory
}

// CheckCapacity evaluates every capacity-limited zone containing the
// booked area and returns one violation per zone the candidate would
// overfill. The candidate itself is always included in the pool; exclude
// names the reservation being replaced, if any.
func (c *CapacityChecker) CheckCapacity(ctx context.Context, area *Area, candidate Reservation, beneficiary User, exclude ReservationID) ([]string, error) {
	var problems []string
	userCache := map[UserID]User{beneficiary.ID: beneficiary}

	for _, zone := range area.SelfAndAncestors() {
		if zone.MaximumCapacity <= 0 {
			continue
		}
		if !countsTowardOccupancy(beneficiary, zone) {
			// The beneficiary is exempt in this zone, so their booking
			// cannot push it over capacity.
			continue
		}
		count, at, err := c.projectedMaxOccupancy(ctx, zone, candidate, exclude, userCache)
		if err != nil {
			return nil, err
		}
		if count > zone.MaximumCapacity {
			timeDisplay := "at this time"
			if !at.IsZero() {
				timeDisplay = "at " + formatClock(at)
			}
			problems = append(problems, fmt.Sprintf(
				"The %s would be over its maximum capacity %s. Please choose a different time.",
				zone.Name(), timeDisplay))
		}
	}
	return problems, nil
}

// projectedMaxOccupancy runs steps 1-4 for one zone.
func (c *CapacityChecker) projectedMaxOccupancy(ctx context.Context, zone *Area, candidate Reservation, exclude ReservationID, userCache map[UserID]User) (int, time.Time, error) {
	pool, err := c.Ledger.FindOverlappingAny(ctx, zone.DescendantIDs(), candidate.Window(), exclude)
	if err != nil {
		return 0, time.Time{}, err
	}

	byUser := make(map[UserID][]Window)
	for _, r := range pool {
		occupant, err := c.lookup(ctx, r.User, userCache)
		if err != nil {
			return 0, time.Time{}, err
		}
		if !countsTowardOccupancy(occupant, zone) {
			continue
		}
		byUser[r.User] = append(byUser[r.User], r.Window())
	}
	// The candidate is always part of the projection.
	byUser[candidate.User] = append(byUser[candidate.User], candidate.Window())

	var merged []Window
	for _, windows := range byUser {
		SortWindows(windows)
		merged = append(merged, Merge(windows)...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Start.Before(merged[j].Start) })

	count, at := MaxConcurrent(merged)
	return count, at, nil
}

func (c *CapacityChecker) lookup(ctx context.Context, id UserID, cache map[UserID]User) (User, error) {
	if u, ok := cache[id]; ok {
		return u, nil
	}
	u, err := c.Directory.User(ctx, id)
	if err != nil {
		return User{}, err
	}
	cache[id] = u
	return u, nil
}

// countsTowardOccupancy applies the zone's staff and service-personnel
// exemptions to one occupant.
func countsTowardOccupancy(u User, zone *Area) bool {
	if u.IsStaff && !zone.CountStaff {
		return false
	}
	if u.IsServicePersonnel && !zone.CountServicePersonnel {
		return false
	}
	return true
}
