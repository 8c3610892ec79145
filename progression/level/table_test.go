package level

import (
	"sync"
	"testing"

	"github.com/kasuganosora/progression/progression/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf_FiftyXPIsHalfwayToLevelTwo(t *testing.T) {
	lv := Default().Of(50)
	assert.Equal(t, 1, lv.Level)
	assert.Equal(t, "Newcomer", lv.Name)
	assert.Equal(t, 50, lv.ProgressPercent)
	assert.Equal(t, int64(100), lv.NextLevelXP)
}

func TestOf_ExactThreshold(t *testing.T) {
	lv := Default().Of(100)
	assert.Equal(t, 2, lv.Level)
	assert.Equal(t, 0, lv.ProgressPercent)
	assert.Equal(t, int64(250), lv.NextLevelXP)
}

func TestOf_Floors(t *testing.T) {
	tbl, err := NewTable([]Def{{Threshold: 0}, {Threshold: 3}})
	require.NoError(t, err)
	assert.Equal(t, 33, tbl.Of(1).ProgressPercent)
	assert.Equal(t, 66, tbl.Of(2).ProgressPercent)
}

func TestOf_MaxLevelIsTerminal(t *testing.T) {
	tbl := Default()
	for _, xp := range []int64{12000, 12001, 1 << 40} {
		lv := tbl.Of(xp)
		assert.Equal(t, tbl.MaxLevel(), lv.Level)
		assert.Equal(t, 100, lv.ProgressPercent)
		assert.Equal(t, int64(12000), lv.NextLevelXP)
	}
}

func TestOf_NegativeIsZero(t *testing.T) {
	assert.Equal(t, Default().Of(0), Default().Of(-10))
}

func TestOf_PercentAlwaysInRange(t *testing.T) {
	tbl := Default()
	max := tbl.Defs()[tbl.MaxLevel()-1].Threshold
	for xp := int64(0); xp < max+50; xp++ {
		lv := tbl.Of(xp)
		if lv.Level == tbl.MaxLevel() {
			require.Equal(t, 100, lv.ProgressPercent, "xp=%d", xp)
			continue
		}
		require.GreaterOrEqual(t, lv.ProgressPercent, 0, "xp=%d", xp)
		require.Less(t, lv.ProgressPercent, 100, "xp=%d", xp)
	}
}

func TestOf_SingleLevelTable(t *testing.T) {
	tbl, err := NewTable([]Def{{Name: "Only", Threshold: 0}})
	require.NoError(t, err)
	lv := tbl.Of(500)
	assert.Equal(t, 1, lv.Level)
	assert.Equal(t, 100, lv.ProgressPercent)
	assert.Equal(t, int64(0), lv.NextLevelXP)
}

func TestNewTable_Invalid(t *testing.T) {
	cases := map[string]struct {
		defs  []Def
		field string
	}{
		"empty":          {nil, "levels"},
		"first not zero": {[]Def{{Threshold: 10}}, "levels[0].threshold"},
		"equal":          {[]Def{{Threshold: 0}, {Threshold: 100}, {Threshold: 100}}, "levels[2].threshold"},
		"decreasing":     {[]Def{{Threshold: 0}, {Threshold: 100}, {Threshold: 50}}, "levels[2].threshold"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewTable(tc.defs)
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.KindConfiguration))
			assert.Equal(t, tc.field, errs.FieldOf(err))
		})
	}
}

func TestNewTable_DefaultNames(t *testing.T) {
	tbl, err := NewTable([]Def{{Threshold: 0}, {Threshold: 10}})
	require.NoError(t, err)
	assert.Equal(t, "Level 2", tbl.Of(10).Name)
}

func TestNewTable_DoesNotAliasInput(t *testing.T) {
	defs := []Def{{Name: "a", Threshold: 0}, {Name: "b", Threshold: 10}}
	tbl, err := NewTable(defs)
	require.NoError(t, err)
	defs[1].Threshold = 1000
	assert.Equal(t, 2, tbl.Of(10).Level)
}

func TestOf_Concurrent(t *testing.T) {
	tbl := Default()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for xp := int64(0); xp < 2000; xp += int64(i + 1) {
				_ = tbl.Of(xp)
			}
		}(i)
	}
	wg.Wait()
}
