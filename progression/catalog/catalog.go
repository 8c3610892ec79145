// Package catalog loads the level table, badge rules and missions from YAML
// and seeds the catalog tables.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gosimple/slug"
	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/progression/badge"
	"github.com/kasuganosora/progression/progression/errs"
	"github.com/kasuganosora/progression/progression/intake"
	"github.com/kasuganosora/progression/progression/level"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed default.yaml
var defaultYAML []byte

type BadgeDef struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Requirement badge.Requirement `yaml:"requirement"`
	XPReward    int64             `yaml:"xp_reward"`
}

type MissionDef struct {
	ID               string `yaml:"id"`
	Title            string `yaml:"title"`
	Description      string `yaml:"description"`
	Type             string `yaml:"type"`
	RequirementType  string `yaml:"requirement_type"`
	RequirementCount int    `yaml:"requirement_count"`
	XPReward         int64  `yaml:"xp_reward"`
	BadgeReward      string `yaml:"badge_reward"`
}

// File is the on-disk catalog document.
type File struct {
	Levels   []level.Def  `yaml:"levels"`
	Badges   []BadgeDef   `yaml:"badges"`
	Missions []MissionDef `yaml:"missions"`
}

// Catalog is a compiled catalog. Problems holds one Configuration error per
// rejected entry; the rest of the catalog is still usable.
type Catalog struct {
	Levels   *level.Table
	Badges   []model.Badge
	Missions []model.Mission
	Problems []error
}

// Load reads the catalog at path, or the built-in catalog when path is empty.
func Load(path string) (*File, error) {
	if path == "" {
		return Parse(bytes.NewReader(defaultYAML))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a catalog document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return &f, nil
}

// Compile validates every entry on its own. An invalid level table falls
// back to the default table; an invalid badge or mission is left out.
func Compile(f *File) *Catalog {
	c := &Catalog{}

	if len(f.Levels) == 0 {
		c.Levels = level.Default()
	} else if t, err := level.NewTable(f.Levels); err != nil {
		c.Problems = append(c.Problems, err)
		c.Levels = level.Default()
	} else {
		c.Levels = t
	}

	badgeIDs := make(map[string]bool, len(f.Badges))
	for i, d := range f.Badges {
		b, err := compileBadge(d)
		if err == nil && badgeIDs[b.ID] {
			err = fmt.Errorf("duplicate badge id %q", b.ID)
		}
		if err != nil {
			c.Problems = append(c.Problems, errs.Configuration("catalog", fmt.Sprintf("badges[%d]", i), err))
			continue
		}
		badgeIDs[b.ID] = true
		c.Badges = append(c.Badges, b)
	}

	missionIDs := make(map[string]bool, len(f.Missions))
	for i, d := range f.Missions {
		m, err := compileMission(d)
		if err == nil && missionIDs[m.ID] {
			err = fmt.Errorf("duplicate mission id %q", m.ID)
		}
		if err == nil && m.BadgeReward != "" && !badgeIDs[m.BadgeReward] {
			err = fmt.Errorf("badge_reward %q is not a catalog badge", m.BadgeReward)
		}
		if err != nil {
			c.Problems = append(c.Problems, errs.Configuration("catalog", fmt.Sprintf("missions[%d]", i), err))
			continue
		}
		missionIDs[m.ID] = true
		c.Missions = append(c.Missions, m)
	}
	return c
}

func compileBadge(d BadgeDef) (model.Badge, error) {
	id := d.ID
	if id == "" {
		id = slug.Make(d.Name)
	}
	if id == "" {
		return model.Badge{}, errors.New("badge needs an id or a name")
	}
	if d.XPReward < 0 {
		return model.Badge{}, errors.New("xp_reward must not be negative")
	}
	if err := d.Requirement.Validate(); err != nil {
		return model.Badge{}, err
	}
	req, err := json.Marshal(d.Requirement)
	if err != nil {
		return model.Badge{}, err
	}
	name := d.Name
	if name == "" {
		name = id
	}
	return model.Badge{
		ID:          id,
		Name:        name,
		Description: d.Description,
		Requirement: req,
		XPReward:    d.XPReward,
	}, nil
}

func compileMission(d MissionDef) (model.Mission, error) {
	id := d.ID
	if id == "" {
		id = slug.Make(d.Title)
	}
	if id == "" {
		return model.Mission{}, errors.New("mission needs an id or a title")
	}
	switch d.Type {
	case model.MissionDaily, model.MissionWeekly, model.MissionAchievement:
	default:
		return model.Mission{}, fmt.Errorf("unknown mission type %q", d.Type)
	}
	if !intake.Accepts(d.RequirementType) && d.RequirementType != intake.KindPerfectScore {
		return model.Mission{}, fmt.Errorf("unknown requirement_type %q", d.RequirementType)
	}
	if d.RequirementCount <= 0 {
		return model.Mission{}, errors.New("requirement_count must be positive")
	}
	if d.XPReward < 0 {
		return model.Mission{}, errors.New("xp_reward must not be negative")
	}
	title := d.Title
	if title == "" {
		title = id
	}
	return model.Mission{
		ID:               id,
		Title:            title,
		Description:      d.Description,
		Type:             d.Type,
		RequirementType:  d.RequirementType,
		RequirementCount: d.RequirementCount,
		XPReward:         d.XPReward,
		BadgeReward:      d.BadgeReward,
	}, nil
}

// Seed upserts every compiled badge and mission. Entries missing from the
// catalog are kept, since earned badges and completions reference them.
func Seed(ctx context.Context, db *gorm.DB, c *Catalog) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// each insert needs its own statement; a shared chain keeps the first table
		if len(c.Badges) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&c.Badges).Error; err != nil {
				return err
			}
		}
		if len(c.Missions) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&c.Missions).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return errs.Transient("catalog.seed", err)
}
