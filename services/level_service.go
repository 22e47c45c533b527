package services

import (
	"context"
	"math"
	"strings"

	"challenge-quest/models"
	"challenge-quest/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type LevelInput struct {
	Number   int
	Name     string
	MinXP    int64
	MaxXP    *int64
	IsActive *bool
}

type LevelPatch struct {
	Number   *int
	Name     *string
	MinXP    *int64
	MaxXP    *int64
	ClearMax bool
	IsActive *bool
}

// RecalcResult summarises a user level recalculation.
type RecalcResult struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
}

type LevelService struct {
	Store     repository.Store
	Log       logrus.FieldLogger
	LevelSpan int64
}

func NewLevelService(store repository.Store, log logrus.FieldLogger, levelSpan int64) *LevelService {
	return &LevelService{Store: store, Log: log, LevelSpan: levelSpan}
}

func levelEnd(l *models.Level) int64 {
	if l.MaxXP == nil {
		return math.MaxInt64
	}
	return *l.MaxXP
}

func validateLevel(l *models.Level) error {
	switch {
	case l.Number < 1:
		return Validation("level number must be at least 1")
	case strings.TrimSpace(l.Name) == "":
		return Validation("name is required")
	case l.MinXP < 0:
		return Validation("min xp must not be negative")
	case l.MaxXP != nil && *l.MaxXP <= l.MinXP:
		return Validation("max xp must be greater than min xp")
	}
	return nil
}

// checkOverlap rejects an active level whose [min, max) range intersects
// another active level. Gaps are allowed.
func checkOverlap(ctx context.Context, tx repository.Store, l *models.Level) error {
	if !l.IsActive {
		return nil
	}
	others, err := tx.ListLevels(ctx, true)
	if err != nil {
		return Infra(err)
	}
	for i := range others {
		o := &others[i]
		if o.ID == l.ID {
			continue
		}
		if l.MinXP < levelEnd(o) && o.MinXP < levelEnd(l) {
			return ErrLevelOverlap
		}
	}
	return nil
}

func (s *LevelService) CreateLevel(ctx context.Context, in LevelInput) (*models.Level, error) {
	l := &models.Level{
		ID:       uuid.NewString(),
		Number:   in.Number,
		Name:     strings.TrimSpace(in.Name),
		MinXP:    in.MinXP,
		MaxXP:    in.MaxXP,
		IsActive: in.IsActive == nil || *in.IsActive,
	}
	if err := validateLevel(l); err != nil {
		return nil, err
	}
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		if err := checkOverlap(ctx, tx, l); err != nil {
			return err
		}
		return storeErr(tx.CreateLevel(ctx, l), nil, ErrDuplicate)
	})
	if err != nil {
		return nil, err
	}
	s.Log.WithFields(logrus.Fields{"level": l.Number, "min_xp": l.MinXP}).Info("level created")
	s.recalcAfterChange(ctx)
	return l, nil
}

func (s *LevelService) UpdateLevel(ctx context.Context, id string, patch LevelPatch) (*models.Level, error) {
	var out *models.Level
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		l, err := tx.GetLevel(ctx, id)
		if err != nil {
			return storeErr(err, ErrNotFound, nil)
		}
		if patch.Number != nil {
			l.Number = *patch.Number
		}
		if patch.Name != nil {
			l.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.MinXP != nil {
			l.MinXP = *patch.MinXP
		}
		if patch.ClearMax {
			l.MaxXP = nil
		} else if patch.MaxXP != nil {
			l.MaxXP = patch.MaxXP
		}
		if patch.IsActive != nil {
			l.IsActive = *patch.IsActive
		}
		if err := validateLevel(l); err != nil {
			return err
		}
		if err := checkOverlap(ctx, tx, l); err != nil {
			return err
		}
		if err := tx.UpdateLevel(ctx, l); err != nil {
			return storeErr(err, ErrNotFound, ErrDuplicate)
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.WithField("level", out.Number).Info("level updated")
	s.recalcAfterChange(ctx)
	return out, nil
}

// DeleteLevel removes a level. Users inside its range fall back to the nearest
// lower level on the recalculation that follows.
func (s *LevelService) DeleteLevel(ctx context.Context, id string) error {
	if err := s.Store.DeleteLevel(ctx, id); err != nil {
		return storeErr(err, ErrNotFound, nil)
	}
	s.Log.WithField("level_id", id).Info("level deleted")
	s.recalcAfterChange(ctx)
	return nil
}

func (s *LevelService) ListLevels(ctx context.Context, activeOnly bool) ([]models.Level, error) {
	out, err := s.Store.ListLevels(ctx, activeOnly)
	if err != nil {
		return nil, Infra(err)
	}
	if out == nil {
		out = []models.Level{}
	}
	return out, nil
}

func (s *LevelService) GetLevel(ctx context.Context, id string) (*models.Level, error) {
	l, err := s.Store.GetLevel(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrNotFound, nil)
	}
	return l, nil
}

// Table returns the resolver over the current active levels.
func (s *LevelService) Table(ctx context.Context) (*LevelTable, error) {
	return loadLevelTable(ctx, s.Store, s.LevelSpan)
}

// SeedDefaultLevels inserts the default table when no level exists yet.
func (s *LevelService) SeedDefaultLevels(ctx context.Context) (bool, error) {
	seeded := false
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		existing, err := tx.ListLevels(ctx, false)
		if err != nil {
			return Infra(err)
		}
		if len(existing) > 0 {
			return nil
		}
		for _, l := range DefaultLevels() {
			l := l
			l.ID = uuid.NewString()
			if err := tx.CreateLevel(ctx, &l); err != nil {
				return storeErr(err, nil, ErrDuplicate)
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if seeded {
		s.Log.WithField("levels", len(defaultLevelXP)).Info("default levels seeded")
	}
	return seeded, nil
}

func (s *LevelService) recalcAfterChange(ctx context.Context) {
	if _, err := s.RecalculateUserLevels(ctx); err != nil {
		s.Log.WithError(err).Warn("user level recalculation failed")
	}
}

const recalcPageSize = 500

// RecalculateUserLevels re-resolves every user's cached level from their XP.
// Each change locks the user row so it cannot race an XP award.
func (s *LevelService) RecalculateUserLevels(ctx context.Context) (RecalcResult, error) {
	var res RecalcResult
	table, err := s.Table(ctx)
	if err != nil {
		return res, err
	}

	for offset := 0; ; offset += recalcPageSize {
		users, err := s.Store.ListUsers(ctx, recalcPageSize, offset)
		if err != nil {
			return res, Infra(err)
		}
		for i := range users {
			res.Scanned++
			if table.Resolve(users[i].XP) == users[i].Level {
				continue
			}
			changed := false
			err := s.Store.Transaction(ctx, func(tx repository.Store) error {
				u, err := tx.LockUser(ctx, users[i].ID)
				if err != nil {
					return err
				}
				level := table.Resolve(u.XP)
				if level == u.Level {
					return nil
				}
				changed = true
				return tx.UpdateUserLevel(ctx, u.ID, level)
			})
			if err != nil && !isNotFound(err) {
				return res, Infra(err)
			}
			if changed {
				res.Updated++
			}
		}
		if len(users) < recalcPageSize {
			break
		}
	}

	s.Log.WithFields(logrus.Fields{"scanned": res.Scanned, "updated": res.Updated}).Info("user levels recalculated")
	return res, nil
}
