package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuth(f *fixture) *AuthService {
	return NewAuthService(f.store, f.clock, f.log, "test-secret", time.Hour, bcrypt.MinCost)
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	auth := newAuth(f)

	reg, err := auth.Register(f.ctx, RegisterInput{Email: " Ana@Example.com ", Username: "ana", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", reg.User.Email)
	assert.Equal(t, 1, reg.User.Level)
	assert.Equal(t, int64(0), reg.User.XP)
	assert.NotEmpty(t, reg.Token.Token)

	_, err = auth.Register(f.ctx, RegisterInput{Email: "ana@example.com", Username: "other", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrDuplicate)

	login, err := auth.Login(f.ctx, "ANA@example.com", "correct horse")
	require.NoError(t, err)
	id, err := auth.Authenticate(f.ctx, login.Token.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, id.UserID)
	assert.False(t, id.IsAdmin)

	_, err = auth.Login(f.ctx, "ana@example.com", "wrong horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(f.ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	auth := newAuth(f)
	for _, in := range []RegisterInput{
		{Email: "not-an-email", Username: "ana", Password: "longenough"},
		{Email: "a@b.c", Username: "an", Password: "longenough"},
		{Email: "a@b.c", Username: "ana", Password: "short"},
	} {
		_, err := auth.Register(f.ctx, in)
		assert.Equal(t, KindValidation, AsError(err).Kind)
	}
}

func TestDisabledUserCannotSignIn(t *testing.T) {
	f := newFixture(t)
	auth := newAuth(f)
	users := NewUserService(f.store, NewLeaderboardService(f.store, nil, 0, f.log, DefaultLevelSpan), f.log, DefaultLevelSpan)

	_, err := auth.Register(f.ctx, RegisterInput{Email: "bo@example.com", Username: "bo", Password: "password1"})
	require.ErrorIs(t, err, &Error{Code: "VALIDATION_FAILED"})
	reg, err := auth.Register(f.ctx, RegisterInput{Email: "bo@example.com", Username: "bobo", Password: "password1"})
	require.NoError(t, err)

	u, err := users.ToggleUserStatus(f.ctx, reg.User.ID)
	require.NoError(t, err)
	assert.False(t, u.IsActive)

	_, err = auth.Login(f.ctx, "bo@example.com", "password1")
	assert.ErrorIs(t, err, ErrAccountDisabled)
	_, err = auth.Authenticate(f.ctx, reg.Token.Token)
	assert.ErrorIs(t, err, ErrAccountDisabled)

	_, err = auth.Authenticate(f.ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	board := NewLeaderboardService(f.store, nil, 0, f.log, DefaultLevelSpan)
	users := NewUserService(f.store, board, f.log, DefaultLevelSpan)
	f.user(t, "leader", 5000)
	u := f.user(t, "ana", 1500)
	c := f.challenge(t, challengeOpts{}, "Q")
	_, err := f.progress.JoinChallenge(f.ctx, u.ID, c.ID)
	require.NoError(t, err)

	p, err := users.Profile(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Rank)
	assert.Equal(t, 2, p.Progress.Level)
	assert.Equal(t, 25, p.Progress.ProgressPercent)
	assert.Equal(t, 1, p.ActiveChallenges)
	assert.Equal(t, 0, p.CompletedChallenges)

	page, err := users.ListUsers(f.ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 20, page.Limit)

	_, err = users.Profile(f.ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
