/*
Package factory provides JSON to Go site-catalog conversion.

PURPOSE:
  Converts a JSON site definition into the tools, areas, and policy limits
  the engine evaluates against. This enables site configuration without
  code changes - facility operators can define their equipment in JSON,
  and the factory creates the proper Go structs and wires the area
  hierarchy.

WHY JSON?
  - Non-developers can modify equipment and limits
  - Easy integration with admin UI
  - Version control for site definitions
  - Database storage of site configs

JSON SCHEMA:
  {
    "configuration": {
      "facility_name": "Cleanroom",
      "site_title": "LabScheduler",
      "superuser_bypass": true,
      "missed_threshold_minutes": 15
    },
    "areas": [
      {
        "id": "cleanroom",
        "name": "cleanroom",
        "maximum_capacity": 12,
        "count_staff": false,
        "children": [
          {"id": "litho-bay", "name": "lithography bay", "maximum_capacity": 4}
        ]
      }
    ],
    "tools": [
      {
        "id": "sem-1",
        "name": "scanning electron microscope",
        "operational": true,
        "required_area": "litho-bay",
        "resources": ["chilled-water"],
        "limits": {
          "horizon_days": 14,
          "min_block_minutes": 30,
          "max_block_minutes": 240,
          "max_per_day": 2,
          "min_gap_minutes": 15,
          "requires_qualification": true
        }
      }
    ]
  }

KEY FEATURES:
  - Validates references (a tool's required_area must exist)
  - Wires parent pointers through nested area definitions
  - Parses clock times for daily off bands ("18:00")
  - The resulting Site implements the engine's Catalog interface

USAGE:
  site, err := factory.ParseSite(jsonBytes)
  if err != nil {
      log.Fatal(err)
  }
  coordinator := reservation.NewCoordinator(ledger, evaluator, site, ...)

SEE ALSO:
  - reservation/types.go: Tool, Area, Limits, Configuration
  - reservation/coordinator.go: The Catalog interface Site satisfies
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warp/reservation-engine/reservation"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SiteJSON is the JSON representation of a whole site.
type SiteJSON struct {
	Configuration ConfigJSON `json:"configuration"`
	Areas         []AreaJSON `json:"areas"`
	Tools         []ToolJSON `json:"tools"`
}

// ConfigJSON represents the site-wide toggles.
type ConfigJSON struct {
	FacilityName           string `json:"facility_name"`
	SiteTitle              string `json:"site_title"`
	SuperuserBypass        bool   `json:"superuser_bypass,omitempty"`
	MissedThresholdMinutes int    `json:"missed_threshold_minutes,omitempty"`
}

// AreaJSON represents one area; children nest.
type AreaJSON struct {
	ID                    string      `json:"id"`
	Name                  string      `json:"name"`
	MaximumCapacity       int         `json:"maximum_capacity,omitempty"`
	CountStaff            bool        `json:"count_staff,omitempty"`
	CountServicePersonnel bool        `json:"count_service_personnel,omitempty"`
	RequiresReservation   bool        `json:"requires_reservation,omitempty"`
	Limits                *LimitsJSON `json:"limits,omitempty"`
	Children              []AreaJSON  `json:"children,omitempty"`
}

// ToolJSON represents one tool.
type ToolJSON struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Operational  bool        `json:"operational"`
	RequiredArea string      `json:"required_area,omitempty"`
	Resources    []string    `json:"resources,omitempty"`
	Qualified    []string    `json:"qualified,omitempty"`
	Superusers   []string    `json:"superusers,omitempty"`
	Limits       *LimitsJSON `json:"limits,omitempty"`
}

// LimitsJSON represents the per-item policy knobs. Zero disables a rule.
type LimitsJSON struct {
	HorizonDays           int    `json:"horizon_days,omitempty"`
	MinBlockMinutes       int    `json:"min_block_minutes,omitempty"`
	MaxBlockMinutes       int    `json:"max_block_minutes,omitempty"`
	MaxPerDay             int    `json:"max_per_day,omitempty"`
	MaxFuture             int    `json:"max_future,omitempty"`
	MaxFutureMinutes      int    `json:"max_future_minutes,omitempty"`
	MinGapMinutes         int    `json:"min_gap_minutes,omitempty"`
	RequiresQualification bool   `json:"requires_qualification,omitempty"`
	PolicyOffWeekend      bool   `json:"policy_off_weekend,omitempty"`
	PolicyOffStart        string `json:"policy_off_start,omitempty"` // "18:00"
	PolicyOffEnd          string `json:"policy_off_end,omitempty"`   // "06:00"
}

// =============================================================================
// SITE - The parsed catalog
// =============================================================================

// Site is the parsed catalog of schedulable items. It implements the
// engine's Catalog interface.
type Site struct {
	Configuration reservation.Configuration

	tools map[reservation.ItemID]*reservation.Tool
	areas map[reservation.ItemID]*reservation.Area
}

// Item resolves any schedulable item by ID.
func (s *Site) Item(id reservation.ItemID) (reservation.Item, bool) {
	if tool, ok := s.tools[id]; ok {
		return tool, true
	}
	if area, ok := s.areas[id]; ok {
		return area, true
	}
	return nil, false
}

// Tool resolves a tool by ID.
func (s *Site) Tool(id reservation.ItemID) (*reservation.Tool, bool) {
	tool, ok := s.tools[id]
	return tool, ok
}

// Area resolves an area by ID.
func (s *Site) Area(id reservation.ItemID) (*reservation.Area, bool) {
	area, ok := s.areas[id]
	return area, ok
}

// Tools returns every tool, in no particular order.
func (s *Site) Tools() []*reservation.Tool {
	out := make([]*reservation.Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t)
	}
	return out
}

// Areas returns every area, in no particular order.
func (s *Site) Areas() []*reservation.Area {
	out := make([]*reservation.Area, 0, len(s.areas))
	for _, a := range s.areas {
		out = append(out, a)
	}
	return out
}

// ToolsRequiringArea returns the tools whose operation depends on holding
// a reservation in the given area.
func (s *Site) ToolsRequiringArea(area reservation.ItemID) []*reservation.Tool {
	var out []*reservation.Tool
	for _, t := range s.tools {
		if t.RequiredArea != nil && t.RequiredArea.ID == area && t.RequiresAreaReservation() {
			out = append(out, t)
		}
	}
	return out
}

// Config implements reservation.ConfigSource.
func (s *Site) Config() reservation.Configuration {
	return s.Configuration
}

// =============================================================================
// PARSING
// =============================================================================

// ParseSite parses a JSON site definition.
func ParseSite(data []byte) (*Site, error) {
	var sj SiteJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return nil, fmt.Errorf("failed to parse site JSON: %w", err)
	}
	return FromJSON(sj)
}

// FromJSON converts SiteJSON into a wired Site.
func FromJSON(sj SiteJSON) (*Site, error) {
	site := &Site{
		Configuration: reservation.Configuration{
			FacilityName:    sj.Configuration.FacilityName,
			SiteTitle:       sj.Configuration.SiteTitle,
			SuperuserBypass: sj.Configuration.SuperuserBypass,
			MissedThreshold: time.Duration(sj.Configuration.MissedThresholdMinutes) * time.Minute,
		},
		tools: make(map[reservation.ItemID]*reservation.Tool),
		areas: make(map[reservation.ItemID]*reservation.Area),
	}

	for _, aj := range sj.Areas {
		if _, err := site.buildArea(aj, nil); err != nil {
			return nil, err
		}
	}

	for _, tj := range sj.Tools {
		if tj.ID == "" {
			return nil, fmt.Errorf("tool %q has no id", tj.Name)
		}
		id := reservation.ItemID(tj.ID)
		if _, dup := site.tools[id]; dup {
			return nil, fmt.Errorf("duplicate tool id %q", tj.ID)
		}
		limits, err := parseLimits(tj.Limits)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", tj.ID, err)
		}
		tool := &reservation.Tool{
			ID:          id,
			ToolName:    tj.Name,
			Policy:      limits,
			Operational: tj.Operational,
			Qualified:   idSet(tj.Qualified),
			Superusers:  idSet(tj.Superusers),
		}
		for _, res := range tj.Resources {
			tool.Resources = append(tool.Resources, reservation.ResourceID(res))
		}
		if tj.RequiredArea != "" {
			area, ok := site.areas[reservation.ItemID(tj.RequiredArea)]
			if !ok {
				return nil, fmt.Errorf("tool %q requires unknown area %q", tj.ID, tj.RequiredArea)
			}
			tool.RequiredArea = area
		}
		site.tools[id] = tool
	}

	return site, nil
}

func (s *Site) buildArea(aj AreaJSON, parent *reservation.Area) (*reservation.Area, error) {
	if aj.ID == "" {
		return nil, fmt.Errorf("area %q has no id", aj.Name)
	}
	id := reservation.ItemID(aj.ID)
	if _, dup := s.areas[id]; dup {
		return nil, fmt.Errorf("duplicate area id %q", aj.ID)
	}
	limits, err := parseLimits(aj.Limits)
	if err != nil {
		return nil, fmt.Errorf("area %q: %w", aj.ID, err)
	}
	area := &reservation.Area{
		ID:                    id,
		AreaName:              aj.Name,
		Policy:                limits,
		MaximumCapacity:       aj.MaximumCapacity,
		CountStaff:            aj.CountStaff,
		CountServicePersonnel: aj.CountServicePersonnel,
		RequiresReservation:   aj.RequiresReservation,
		Parent:                parent,
	}
	s.areas[id] = area
	for _, cj := range aj.Children {
		child, err := s.buildArea(cj, area)
		if err != nil {
			return nil, err
		}
		area.Children = append(area.Children, child)
	}
	return area, nil
}

func parseLimits(lj *LimitsJSON) (reservation.Limits, error) {
	if lj == nil {
		return reservation.Limits{}, nil
	}
	limits := reservation.Limits{
		ReservationHorizonDays:      lj.HorizonDays,
		MinBlockMinutes:             lj.MinBlockMinutes,
		MaxBlockMinutes:             lj.MaxBlockMinutes,
		MaxReservationsPerDay:       lj.MaxPerDay,
		MaxFutureReservations:       lj.MaxFuture,
		MaxFutureReservationMinutes: lj.MaxFutureMinutes,
		MinGapMinutes:               lj.MinGapMinutes,
		RequiresQualification:       lj.RequiresQualification,
		PolicyOffWeekend:            lj.PolicyOffWeekend,
	}
	if (lj.PolicyOffStart == "") != (lj.PolicyOffEnd == "") {
		return reservation.Limits{}, fmt.Errorf("policy_off_start and policy_off_end must be set together")
	}
	if lj.PolicyOffStart != "" {
		start, err := parseClock(lj.PolicyOffStart)
		if err != nil {
			return reservation.Limits{}, fmt.Errorf("policy_off_start: %w", err)
		}
		end, err := parseClock(lj.PolicyOffEnd)
		if err != nil {
			return reservation.Limits{}, fmt.Errorf("policy_off_end: %w", err)
		}
		limits.PolicyOffBetweenTimes = true
		limits.PolicyOffStart = start
		limits.PolicyOffEnd = end
	}
	return limits, nil
}

// parseClock parses "HH:MM" into a ClockTime.
func parseClock(s string) (reservation.ClockTime, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return reservation.NewClockTime(hour, minute), nil
}

func idSet(ids []string) map[reservation.UserID]bool {
	set := make(map[reservation.UserID]bool, len(ids))
	for _, id := range ids {
		set[reservation.UserID(id)] = true
	}
	return set
}
