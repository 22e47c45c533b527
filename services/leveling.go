package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"challenge-quest/models"
	"challenge-quest/repository"
)

// DefaultLevelSpan is the extrapolation interval when fewer than two levels exist.
const DefaultLevelSpan int64 = 1000

// DefaultLevelNames names levels 1..10 when the table carries no name.
var DefaultLevelNames = []string{
	"Beginner", "Explorer", "Adventurer", "Champion", "Legend",
	"Master", "Elite", "Grandmaster", "Mythic", "Transcendent",
}

// defaultLevelXP is the start XP of levels 1..10 seeded into an empty table.
var defaultLevelXP = []int64{0, 1000, 3000, 6000, 10000, 15000, 21000, 28000, 36000, 45000}

// DefaultLevels returns the seed table. Each level ends where the next begins;
// the top one is open-ended.
func DefaultLevels() []models.Level {
	levels := make([]models.Level, len(defaultLevelXP))
	for i, min := range defaultLevelXP {
		levels[i] = models.Level{
			Number:   i + 1,
			Name:     DefaultLevelNames[i],
			MinXP:    min,
			IsActive: true,
		}
		if i+1 < len(defaultLevelXP) {
			max := defaultLevelXP[i+1]
			levels[i].MaxXP = &max
		}
	}
	return levels
}

// LevelProgress is a user's position inside their current level.
type LevelProgress struct {
	Level           int    `json:"level"`
	LevelName       string `json:"level_name"`
	CurrentLevelXP  int64  `json:"current_level_xp"`
	NextLevelXP     int64  `json:"next_level_xp"`
	ProgressPercent int    `json:"progress_percent"`
	XPToNext        int64  `json:"xp_to_next"`
}

// LevelTable resolves XP to levels. It only holds active levels, sorted by
// number, and tolerates gaps between ranges.
type LevelTable struct {
	levels []models.Level
	span   int64
}

func NewLevelTable(levels []models.Level, defaultSpan int64) *LevelTable {
	if defaultSpan <= 0 {
		defaultSpan = DefaultLevelSpan
	}
	active := make([]models.Level, 0, len(levels))
	for _, l := range levels {
		if l.IsActive {
			active = append(active, l)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Number < active[j].Number })
	return &LevelTable{levels: active, span: defaultSpan}
}

func loadLevelTable(ctx context.Context, store repository.Store, defaultSpan int64) (*LevelTable, error) {
	levels, err := store.ListLevels(ctx, true)
	if err != nil {
		return nil, Infra(err)
	}
	return NewLevelTable(levels, defaultSpan), nil
}

// match returns the index of the highest level whose MinXP <= xp, or -1.
func (t *LevelTable) match(xp int64) int {
	if xp <= 0 {
		// xp 0 is level 1 even when the first row starts above zero
		for i, l := range t.levels {
			if l.Number == 1 && l.MinXP <= 0 {
				return i
			}
		}
		return -1
	}
	for i := len(t.levels) - 1; i >= 0; i-- {
		if t.levels[i].MinXP <= xp {
			return i
		}
	}
	return -1
}

// Resolve returns the level number for xp. It never fails: an empty table or
// no matching row yields level 1.
func (t *LevelTable) Resolve(xp int64) int {
	i := t.match(xp)
	if i < 0 {
		return 1
	}
	return t.levels[i].Number
}

// lastSpan is the distance between the two highest defined levels.
func (t *LevelTable) lastSpan() int64 {
	n := len(t.levels)
	if n < 2 {
		return t.span
	}
	if d := t.levels[n-1].MinXP - t.levels[n-2].MinXP; d > 0 {
		return d
	}
	return t.span
}

// bounds returns the resolved level and the XP where it starts and where the next one starts.
func (t *LevelTable) bounds(xp int64) (level int, start, next int64) {
	i := t.match(xp)
	if i < 0 {
		if len(t.levels) > 0 && t.levels[0].MinXP > 0 {
			return 1, 0, t.levels[0].MinXP
		}
		return 1, 0, t.lastSpan()
	}
	level = t.levels[i].Number
	start = t.levels[i].MinXP
	if i+1 < len(t.levels) && t.levels[i+1].MinXP > start {
		return level, start, t.levels[i+1].MinXP
	}
	return level, start, start + t.lastSpan()
}

// ProgressPercent is how far xp is from the start of its level to the next, in [0,100].
func (t *LevelTable) ProgressPercent(xp int64) int {
	_, start, next := t.bounds(xp)
	within := xp - start
	if within < 0 {
		within = 0
	}
	span := next - start
	if span < 1 {
		span = 1
	}
	pct := int(math.Round(float64(within) * 100 / float64(span)))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// XPToNextLevel is max(0, next level start - xp).
func (t *LevelTable) XPToNextLevel(xp int64) int64 {
	_, _, next := t.bounds(xp)
	if next < xp {
		return 0
	}
	return next - xp
}

// Name returns the configured name of level n, falling back to the default names.
func (t *LevelTable) Name(n int) string {
	for _, l := range t.levels {
		if l.Number == n && l.Name != "" {
			return l.Name
		}
	}
	if n >= 1 && n <= len(DefaultLevelNames) {
		return DefaultLevelNames[n-1]
	}
	return fmt.Sprintf("Level %d", n)
}

func (t *LevelTable) Progress(xp int64) LevelProgress {
	level, start, next := t.bounds(xp)
	return LevelProgress{
		Level:           level,
		LevelName:       t.Name(level),
		CurrentLevelXP:  start,
		NextLevelXP:     next,
		ProgressPercent: t.ProgressPercent(xp),
		XPToNext:        t.XPToNextLevel(xp),
	}
}

// Levels returns a copy of the active rows in number order.
func (t *LevelTable) Levels() []models.Level {
	return append([]models.Level(nil), t.levels...)
}
