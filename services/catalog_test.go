package services

import (
	"testing"

	"challenge-quest/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryLifecycle(t *testing.T) {
	f := newFixture(t)
	svc := NewCategoryService(f.store, f.log)

	c, err := svc.CreateCategory(f.ctx, CategoryInput{Name: "Street Art", Color: "#ff0"})
	require.NoError(t, err)
	assert.Equal(t, "street-art", c.Slug)
	assert.True(t, c.IsActive)

	_, err = svc.CreateCategory(f.ctx, CategoryInput{Name: "STREET art"})
	assert.ErrorIs(t, err, ErrDuplicate, "names are unique ignoring case")

	_, err = svc.CreateCategory(f.ctx, CategoryInput{Name: "  "})
	assert.Equal(t, KindValidation, AsError(err).Kind)

	toggled, err := svc.ToggleCategoryStatus(f.ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	active, err := svc.ListCategories(f.ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	name := "Murals"
	renamed, err := svc.UpdateCategory(f.ctx, c.ID, CategoryPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "murals", renamed.Slug)

	require.NoError(t, svc.DeleteCategory(f.ctx, c.ID))
	_, err = svc.GetCategory(f.ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLevelOverlapRejected(t *testing.T) {
	f := newFixture(t)
	svc := NewLevelService(f.store, f.log, DefaultLevelSpan)

	_, err := svc.CreateLevel(f.ctx, LevelInput{Number: 11, Name: "Ascendant", MinXP: 50000})
	assert.ErrorIs(t, err, ErrLevelOverlap, "level 10 is open-ended from 45000")

	max := int64(2000)
	_, err = svc.CreateLevel(f.ctx, LevelInput{Number: 42, Name: "Wedge", MinXP: 500, MaxXP: &max})
	assert.ErrorIs(t, err, ErrLevelOverlap)

	inactive := false
	_, err = svc.CreateLevel(f.ctx, LevelInput{Number: 42, Name: "Draft", MinXP: 500, MaxXP: &max, IsActive: &inactive})
	require.NoError(t, err, "inactive levels do not take part in resolution")

	_, err = svc.CreateLevel(f.ctx, LevelInput{Number: 1, Name: "Dup", MinXP: 99999999})
	assert.Error(t, err)

	_, err = svc.CreateLevel(f.ctx, LevelInput{Number: 50, Name: "Bad", MinXP: 10, MaxXP: &[]int64{5}[0]})
	assert.Equal(t, KindValidation, AsError(err).Kind)
}

func TestLevelChangesRecalculateUsers(t *testing.T) {
	f := newFixture(t)
	svc := NewLevelService(f.store, f.log, DefaultLevelSpan)
	u := f.user(t, "ana", 1500)
	assert.Equal(t, 2, u.Level)

	levels, err := svc.ListLevels(f.ctx, false)
	require.NoError(t, err)
	var level2 models.Level
	for _, l := range levels {
		if l.Number == 2 {
			level2 = l
		}
	}

	require.NoError(t, svc.DeleteLevel(f.ctx, level2.ID))
	after, err := f.store.GetUser(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Level, "falls back to the nearest lower level")

	min := int64(1200)
	max := int64(3000)
	_, err = svc.CreateLevel(f.ctx, LevelInput{Number: 2, Name: "Scout", MinXP: min, MaxXP: &max})
	require.NoError(t, err)
	after, err = f.store.GetUser(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.Level)

	res, err := svc.RecalculateUserLevels(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, RecalcResult{Scanned: 1, Updated: 0}, res)
}

func TestSeedDefaultLevelsOnlyWhenEmpty(t *testing.T) {
	f := newFixture(t)
	svc := NewLevelService(f.store, f.log, DefaultLevelSpan)

	seeded, err := svc.SeedDefaultLevels(f.ctx)
	require.NoError(t, err)
	assert.False(t, seeded)

	levels, err := svc.ListLevels(f.ctx, false)
	require.NoError(t, err)
	for _, l := range levels {
		require.NoError(t, svc.DeleteLevel(f.ctx, l.ID))
	}
	seeded, err = svc.SeedDefaultLevels(f.ctx)
	require.NoError(t, err)
	assert.True(t, seeded)

	table, err := svc.Table(f.ctx)
	require.NoError(t, err)
	assert.Len(t, table.Levels(), 10)
	assert.Equal(t, 4, table.Resolve(6000))
}
