package badge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Requirement predicate types.
const (
	TypeTotalXP           = "total_xp"
	TypeLevel             = "level"
	TypeActivity          = "activity"
	TypeMissionsCompleted = "missions_completed"
	TypeMission           = "mission"
	TypeBadges            = "badges"
)

// Requirement is the declarative predicate stored with a badge.
type Requirement struct {
	Type      string `json:"type" yaml:"type"`
	Threshold int64  `json:"threshold,omitempty" yaml:"threshold"`
	Kind      string `json:"kind,omitempty" yaml:"kind"`
	Mission   string `json:"mission,omitempty" yaml:"mission"`
}

// Stats is the snapshot a requirement is evaluated against.
type Stats struct {
	TotalXP           int64
	Level             int
	Activity          map[string]int64
	MissionsCompleted int64
	Missions          map[string]bool
	Badges            int64
}

// Parse decodes and validates a stored requirement.
func Parse(raw []byte) (Requirement, error) {
	var r Requirement
	if len(raw) == 0 {
		return r, errors.New("requirement is empty")
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("requirement: %w", err)
	}
	return r, r.Validate()
}

// Validate checks operands for the predicate type.
func (r Requirement) Validate() error {
	switch r.Type {
	case TypeTotalXP, TypeLevel, TypeMissionsCompleted, TypeBadges:
		if r.Threshold <= 0 {
			return fmt.Errorf("%s requirement needs a positive threshold", r.Type)
		}
	case TypeActivity:
		if r.Kind == "" {
			return errors.New("activity requirement needs a kind")
		}
		if r.Threshold <= 0 {
			return errors.New("activity requirement needs a positive threshold")
		}
	case TypeMission:
		if r.Mission == "" {
			return errors.New("mission requirement needs a mission id")
		}
	case "":
		return errors.New("requirement type is empty")
	default:
		return fmt.Errorf("unknown requirement type %q", r.Type)
	}
	return nil
}

// Met reports whether st satisfies r. r must be valid.
func (r Requirement) Met(st Stats) bool {
	switch r.Type {
	case TypeTotalXP:
		return st.TotalXP >= r.Threshold
	case TypeLevel:
		return int64(st.Level) >= r.Threshold
	case TypeActivity:
		return st.Activity[r.Kind] >= r.Threshold
	case TypeMissionsCompleted:
		return st.MissionsCompleted >= r.Threshold
	case TypeMission:
		return st.Missions[r.Mission]
	case TypeBadges:
		return st.Badges >= r.Threshold
	}
	return false
}
