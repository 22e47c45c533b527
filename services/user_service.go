package services

import (
	"context"

	"challenge-quest/models"
	"challenge-quest/repository"

	"github.com/sirupsen/logrus"
)

type Profile struct {
	User                *models.User  `json:"user"`
	Progress            LevelProgress `json:"progress"`
	Rank                int64         `json:"rank"`
	ActiveChallenges    int           `json:"active_challenges"`
	CompletedChallenges int           `json:"completed_challenges"`
}

type UserPage struct {
	Users  []models.User `json:"users"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type UserService struct {
	Store       repository.Store
	Leaderboard *LeaderboardService
	Log         logrus.FieldLogger
	LevelSpan   int64
}

func NewUserService(store repository.Store, leaderboard *LeaderboardService, log logrus.FieldLogger, levelSpan int64) *UserService {
	return &UserService{Store: store, Leaderboard: leaderboard, Log: log, LevelSpan: levelSpan}
}

// Profile returns the user with level progress, rank and enrollment counts.
func (s *UserService) Profile(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	table, err := loadLevelTable(ctx, s.Store, s.LevelSpan)
	if err != nil {
		return nil, err
	}
	rank, err := s.Leaderboard.GetUserRank(ctx, userID)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.Store.ListChallengeProgress(ctx, userID, nil)
	if err != nil {
		return nil, Infra(err)
	}

	p := &Profile{User: u, Progress: table.Progress(u.XP), Rank: rank}
	for _, e := range enrollments {
		if e.Status == models.ProgressCompleted {
			p.CompletedChallenges++
		} else {
			p.ActiveChallenges++
		}
	}
	return p, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.Store.GetUser(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrUserNotFound, nil)
	}
	return u, nil
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) (*UserPage, error) {
	limit, offset = clampPage(limit, offset)
	users, err := s.Store.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, Infra(err)
	}
	total, err := s.Store.CountUsers(ctx)
	if err != nil {
		return nil, Infra(err)
	}
	if users == nil {
		users = []models.User{}
	}
	return &UserPage{Users: users, Total: total, Limit: limit, Offset: offset}, nil
}

// ToggleUserStatus enables or disables an account. Disabled users cannot sign
// in or join challenges; their XP and standing are kept.
func (s *UserService) ToggleUserStatus(ctx context.Context, id string) (*models.User, error) {
	var out *models.User
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		u, err := tx.LockUser(ctx, id)
		if err != nil {
			return storeErr(err, ErrUserNotFound, nil)
		}
		u.IsActive = !u.IsActive
		if err := tx.SetUserActive(ctx, id, u.IsActive); err != nil {
			return storeErr(err, ErrUserNotFound, nil)
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.WithFields(logrus.Fields{"user_id": id, "is_active": out.IsActive}).Info("user status toggled")
	return out, nil
}
