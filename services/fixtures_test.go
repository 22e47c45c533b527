package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"challenge-quest/models"
	"challenge-quest/repository"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx      context.Context
	store    *repository.MemoryStore
	clock    *clockwork.FakeClock
	log      *logrus.Logger
	hook     *test.Hook
	progress *ProgressionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	store := repository.NewMemoryStore(clock.Now)
	log, hook := test.NewNullLogger()
	f := &fixture{
		ctx:   context.Background(),
		store: store,
		clock: clock,
		log:   log,
		hook:  hook,
	}
	f.progress = NewProgressionService(store, clock, log, DefaultLevelSpan)
	for _, l := range DefaultLevels() {
		l := l
		require.NoError(t, store.CreateLevel(f.ctx, &l))
	}
	return f
}

// user creates an active player. Each call advances the clock a second so
// creation order is observable.
func (f *fixture) user(t *testing.T, name string, xp int64) *models.User {
	t.Helper()
	u := &models.User{
		Email:    name + "@example.com",
		Username: name,
		XP:       xp,
		Level:    NewLevelTable(DefaultLevels(), 0).Resolve(xp),
		IsActive: true,
	}
	require.NoError(t, f.store.CreateUser(f.ctx, u))
	f.clock.Advance(time.Second)
	return u
}

type challengeOpts struct {
	reward   int64
	required int
	start    time.Time
	end      time.Time
	max      *int
	inactive bool
}

// challenge creates a challenge with one QR stage per code, open for a week around now.
func (f *fixture) challenge(t *testing.T, o challengeOpts, codes ...string) *models.Challenge {
	t.Helper()
	if o.reward == 0 {
		o.reward = 300
	}
	if o.required == 0 {
		o.required = 1
	}
	if o.start.IsZero() {
		o.start = f.clock.Now().Add(-24 * time.Hour)
	}
	if o.end.IsZero() {
		o.end = f.clock.Now().Add(7 * 24 * time.Hour)
	}
	c := &models.Challenge{
		Title:           "Old Town Trail",
		Category:        "City",
		Difficulty:      models.DifficultyMedium,
		XPReward:        o.reward,
		RequiredLevel:   o.required,
		StartDate:       o.start,
		EndDate:         o.end,
		IsActive:        !o.inactive,
		MaxParticipants: o.max,
	}
	for i, code := range codes {
		c.Stages = append(c.Stages, models.Stage{
			Order:     i,
			Title:     "Stage " + code,
			ProofType: models.ProofQRCode,
			QRCode:    code,
		})
	}
	require.NoError(t, f.store.CreateChallenge(f.ctx, c))
	stored, err := f.store.GetChallenge(f.ctx, c.ID)
	require.NoError(t, err)
	return stored
}

func (f *fixture) submit(userID, stageID, code string) (*SubmitResult, error) {
	return f.progress.SubmitStage(f.ctx, SubmitInput{
		UserID:         userID,
		StageID:        stageID,
		SubmissionType: models.ProofQRCode,
		Content:        code,
	})
}

func (f *fixture) eventTypes(t *testing.T) []string {
	t.Helper()
	events, err := f.store.PendingEvents(f.ctx, 0)
	require.NoError(t, err)
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

var errStoreDown = errors.New("connection refused")

// flakyStore fails the named operation, including inside transactions.
type flakyStore struct {
	repository.Store
	failOn string
}

func (s *flakyStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(&flakyStore{Store: tx, failOn: s.failOn})
	})
}

func (s *flakyStore) UpdateUserXP(ctx context.Context, id string, xp int64, level int, at *time.Time) error {
	if s.failOn == "UpdateUserXP" {
		return errStoreDown
	}
	return s.Store.UpdateUserXP(ctx, id, xp, level, at)
}

func (s *flakyStore) ListUsersRanked(ctx context.Context, limit, offset int) ([]models.User, error) {
	if s.failOn == "ListUsersRanked" {
		return nil, errStoreDown
	}
	return s.Store.ListUsersRanked(ctx, limit, offset)
}

// CreateStageProgress fails with ErrDuplicate when failOn names the stage id.
func (s *flakyStore) CreateStageProgress(ctx context.Context, sp *models.StageProgress) error {
	if s.failOn == "CreateStageProgress:"+sp.StageID {
		return repository.ErrDuplicate
	}
	return s.Store.CreateStageProgress(ctx, sp)
}

func intPtr(n int) *int { return &n }
