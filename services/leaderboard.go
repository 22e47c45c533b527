package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"challenge-quest/metrics"
	"challenge-quest/models"
	"challenge-quest/repository"

	"github.com/sirupsen/logrus"
)

// PageCache is a byte cache with expiry. Leaderboard pages are stored in it
// for a short TTL; a nil cache disables caching.
type PageCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type LeaderboardEntry struct {
	Rank      int64  `json:"rank"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	XP        int64  `json:"xp"`
	Level     int    `json:"level"`
	LevelName string `json:"level_name"`
}

type LeaderboardStats struct {
	TotalUsers       int64             `json:"total_users"`
	TopUser          *LeaderboardEntry `json:"top_user"`
	TotalChallenges  int64             `json:"total_challenges"`
	TotalCompletions int64             `json:"total_completions"`
}

// LeaderboardService ranks users by xp desc, then earliest account, then id.
// Ranks are computed at read time.
type LeaderboardService struct {
	Store     repository.Store
	Cache     PageCache
	CacheTTL  time.Duration
	Log       logrus.FieldLogger
	LevelSpan int64
}

func NewLeaderboardService(store repository.Store, cache PageCache, ttl time.Duration, log logrus.FieldLogger, levelSpan int64) *LeaderboardService {
	return &LeaderboardService{Store: store, Cache: cache, CacheTTL: ttl, Log: log, LevelSpan: levelSpan}
}

func (s *LeaderboardService) entry(table *LevelTable, u *models.User, rank int64) LeaderboardEntry {
	level := table.Resolve(u.XP)
	return LeaderboardEntry{
		Rank:      rank,
		UserID:    u.ID,
		Username:  u.Username,
		XP:        u.XP,
		Level:     level,
		LevelName: table.Name(level),
	}
}

func (s *LeaderboardService) GetLeaderboard(ctx context.Context, limit, offset int) ([]LeaderboardEntry, error) {
	limit, offset = clampPage(limit, offset)
	key := fmt.Sprintf("leaderboard:%d:%d", limit, offset)

	if s.Cache != nil && s.CacheTTL > 0 {
		if raw, ok := s.Cache.Get(ctx, key); ok {
			var cached []LeaderboardEntry
			if err := json.Unmarshal(raw, &cached); err == nil {
				metrics.LeaderboardCache.WithLabelValues("hit").Inc()
				return cached, nil
			}
		}
		metrics.LeaderboardCache.WithLabelValues("miss").Inc()
	}

	table, err := loadLevelTable(ctx, s.Store, s.LevelSpan)
	if err != nil {
		return nil, err
	}
	users, err := s.Store.ListUsersRanked(ctx, limit, offset)
	if err != nil {
		return nil, Infra(err)
	}
	out := make([]LeaderboardEntry, len(users))
	for i := range users {
		out[i] = s.entry(table, &users[i], int64(offset+i+1))
	}

	if s.Cache != nil && s.CacheTTL > 0 {
		if raw, err := json.Marshal(out); err == nil {
			s.Cache.Set(ctx, key, raw, s.CacheTTL)
		}
	}
	return out, nil
}

// GetUserRank is the 1-based position of the user in the full ranking.
func (s *LeaderboardService) GetUserRank(ctx context.Context, userID string) (int64, error) {
	u, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return 0, storeErr(err, ErrUserNotFound, nil)
	}
	ahead, err := s.Store.CountUsersAhead(ctx, u)
	if err != nil {
		return 0, Infra(err)
	}
	return ahead + 1, nil
}

func (s *LeaderboardService) GetStats(ctx context.Context) (*LeaderboardStats, error) {
	var stats LeaderboardStats
	var err error

	if stats.TotalUsers, err = s.Store.CountUsers(ctx); err != nil {
		return nil, Infra(err)
	}
	if stats.TotalChallenges, err = s.Store.CountChallenges(ctx); err != nil {
		return nil, Infra(err)
	}
	done := models.ProgressCompleted
	if stats.TotalCompletions, err = s.Store.CountProgress(ctx, "", &done); err != nil {
		return nil, Infra(err)
	}

	top, err := s.Store.ListUsersRanked(ctx, 1, 0)
	if err != nil {
		return nil, Infra(err)
	}
	if len(top) > 0 {
		table, err := loadLevelTable(ctx, s.Store, s.LevelSpan)
		if err != nil {
			return nil, err
		}
		e := s.entry(table, &top[0], 1)
		stats.TopUser = &e
	}
	return &stats, nil
}
