package services

import (
	"testing"

	"challenge-quest/models"

	"github.com/stretchr/testify/assert"
)

func lvl(number int, min int64) models.Level {
	return models.Level{Number: number, MinXP: min, IsActive: true}
}

func threeLevels() *LevelTable {
	return NewLevelTable([]models.Level{lvl(3, 3000), lvl(1, 0), lvl(2, 1000)}, 0)
}

func TestResolve(t *testing.T) {
	table := threeLevels()
	cases := map[int64]int{0: 1, 999: 1, 1000: 2, 2999: 2, 3000: 3, 999999: 3, -5: 1}
	for xp, want := range cases {
		assert.Equal(t, want, table.Resolve(xp), "xp=%d", xp)
	}
}

func TestResolveDegradesToLevelOne(t *testing.T) {
	assert.Equal(t, 1, NewLevelTable(nil, 0).Resolve(5000))
	assert.Equal(t, 1, NewLevelTable([]models.Level{lvl(2, 100)}, 0).Resolve(50))
}

func TestResolveSkipsInactiveLevels(t *testing.T) {
	inactive := lvl(2, 1000)
	inactive.IsActive = false
	table := NewLevelTable([]models.Level{lvl(1, 0), inactive, lvl(3, 3000)}, 0)
	assert.Equal(t, 1, table.Resolve(1500))
	assert.Equal(t, 3, table.Resolve(3000))
}

func TestProgressPercent(t *testing.T) {
	table := threeLevels()
	cases := []struct {
		xp      int64
		percent int
		toNext  int64
	}{
		{0, 0, 1000},
		{500, 50, 500},
		{1000, 0, 2000},
		{2000, 50, 1000},
		{2999, 100, 1},
		// top level extrapolates with the last span (3000 - 1000)
		{3000, 0, 2000},
		{4000, 50, 1000},
		{9000, 100, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.percent, table.ProgressPercent(tc.xp), "percent xp=%d", tc.xp)
		assert.Equal(t, tc.toNext, table.XPToNextLevel(tc.xp), "toNext xp=%d", tc.xp)
	}
}

func TestExtrapolationDefaults(t *testing.T) {
	empty := NewLevelTable(nil, 0)
	assert.Equal(t, 25, empty.ProgressPercent(250))
	assert.Equal(t, int64(750), empty.XPToNextLevel(250))

	single := NewLevelTable([]models.Level{lvl(1, 0)}, 400)
	assert.Equal(t, 50, single.ProgressPercent(200))
	assert.Equal(t, int64(200), single.XPToNextLevel(200))
}

func TestGappedTable(t *testing.T) {
	table := NewLevelTable([]models.Level{lvl(1, 0), lvl(3, 5000)}, 0)
	assert.Equal(t, 1, table.Resolve(2000))
	assert.Equal(t, 40, table.ProgressPercent(2000))
	assert.Equal(t, 3, table.Resolve(5000))
}

func TestProgressAndNames(t *testing.T) {
	table := NewLevelTable(DefaultLevels(), 0)

	p := table.Progress(1500)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, "Explorer", p.LevelName)
	assert.Equal(t, int64(1000), p.CurrentLevelXP)
	assert.Equal(t, int64(3000), p.NextLevelXP)
	assert.Equal(t, 25, p.ProgressPercent)
	assert.Equal(t, int64(1500), p.XPToNext)

	top := table.Progress(45000)
	assert.Equal(t, 10, top.Level)
	assert.Equal(t, "Transcendent", top.LevelName)
	assert.Equal(t, int64(54000), top.NextLevelXP)

	assert.Equal(t, "Level 11", table.Name(11))
}

func TestDefaultLevelsAreContiguous(t *testing.T) {
	levels := DefaultLevels()
	for i := 0; i < len(levels)-1; i++ {
		if assert.NotNil(t, levels[i].MaxXP) {
			assert.Equal(t, levels[i+1].MinXP, *levels[i].MaxXP)
		}
	}
	assert.Nil(t, levels[len(levels)-1].MaxXP)
}
