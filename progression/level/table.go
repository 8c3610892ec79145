// Package level maps cumulative XP to a level using a threshold table.
package level

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kasuganosora/progression/progression/errs"
)

// Def is one row of the threshold table.
type Def struct {
	Name      string `yaml:"name" json:"name"`
	Threshold int64  `yaml:"threshold" json:"threshold"`
}

// Level is the derived view of a total XP value.
type Level struct {
	Level           int    `json:"current_level"`
	Name            string `json:"level_name"`
	ProgressPercent int    `json:"level_progress_percent"`
	NextLevelXP     int64  `json:"next_level_xp"`
}

// Table is an immutable, validated threshold table. Level N (1-based) is
// reached at defs[N-1].Threshold.
type Table struct {
	defs []Def
}

var (
	errEmpty         = errors.New("level table is empty")
	errFirstNotZero  = errors.New("first threshold must be 0")
	errNonIncreasing = errors.New("thresholds must be strictly increasing")
)

// NewTable validates defs and returns a Table. Unnamed levels are called
// "Level N".
func NewTable(defs []Def) (*Table, error) {
	if len(defs) == 0 {
		return nil, errs.Configuration("level.table", "levels", errEmpty)
	}
	if defs[0].Threshold != 0 {
		return nil, errs.Configuration("level.table", "levels[0].threshold", errFirstNotZero)
	}
	out := make([]Def, len(defs))
	for i, d := range defs {
		if i > 0 && d.Threshold <= defs[i-1].Threshold {
			return nil, errs.Configuration("level.table",
				fmt.Sprintf("levels[%d].threshold", i), errNonIncreasing)
		}
		if d.Name == "" {
			d.Name = fmt.Sprintf("Level %d", i+1)
		}
		out[i] = d
	}
	return &Table{defs: out}, nil
}

// Default returns the stock ten-level table.
func Default() *Table {
	t, err := NewTable([]Def{
		{"Newcomer", 0},
		{"Learner", 100},
		{"Explorer", 250},
		{"Achiever", 500},
		{"Scholar", 1000},
		{"Expert", 2000},
		{"Mentor", 3500},
		{"Master", 5500},
		{"Sage", 8000},
		{"Legend", 12000},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Defs returns a copy of the table rows.
func (t *Table) Defs() []Def {
	out := make([]Def, len(t.defs))
	copy(out, t.defs)
	return out
}

// MaxLevel is the number of levels in the table.
func (t *Table) MaxLevel() int { return len(t.defs) }

// Of derives the level view for totalXP. Negative input is treated as 0.
func (t *Table) Of(totalXP int64) Level {
	if totalXP < 0 {
		totalXP = 0
	}
	// index of the first threshold above totalXP; the level is the one before it
	i := sort.Search(len(t.defs), func(i int) bool { return t.defs[i].Threshold > totalXP })
	cur := t.defs[i-1]
	if i == len(t.defs) {
		return Level{
			Level:           i,
			Name:            cur.Name,
			ProgressPercent: 100,
			NextLevelXP:     cur.Threshold,
		}
	}
	next := t.defs[i]
	pct := int(100 * (totalXP - cur.Threshold) / (next.Threshold - cur.Threshold))
	if pct > 99 {
		pct = 99
	}
	return Level{
		Level:           i,
		Name:            cur.Name,
		ProgressPercent: pct,
		NextLevelXP:     next.Threshold,
	}
}
