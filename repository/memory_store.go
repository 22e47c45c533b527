package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"challenge-quest/models"

	"github.com/google/uuid"
)

// MemoryStore keeps all state in process. Transactions are serialised by a
// single mutex and run against a copy of the state that replaces the live one
// only when fn succeeds. Used with STORE_DRIVER=memory and in tests.
type MemoryStore struct {
	shared *memShared
	tx     *memState
	now    func() time.Time
}

type memShared struct {
	mu sync.Mutex
	st *memState
}

type memState struct {
	users         map[string]models.User
	levels        map[string]models.Level
	categories    map[string]models.Category
	challenges    map[string]models.Challenge
	stages        map[string]models.Stage
	progress      map[string]models.ChallengeProgress
	stageProgress map[string]models.StageProgress
	events        []models.Event
	nextEventID   int64
}

func newMemState() *memState {
	return &memState{
		users:         map[string]models.User{},
		levels:        map[string]models.Level{},
		categories:    map[string]models.Category{},
		challenges:    map[string]models.Challenge{},
		stages:        map[string]models.Stage{},
		progress:      map[string]models.ChallengeProgress{},
		stageProgress: map[string]models.StageProgress{},
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (st *memState) clone() *memState {
	return &memState{
		users:         cloneMap(st.users),
		levels:        cloneMap(st.levels),
		categories:    cloneMap(st.categories),
		challenges:    cloneMap(st.challenges),
		stages:        cloneMap(st.stages),
		progress:      cloneMap(st.progress),
		stageProgress: cloneMap(st.stageProgress),
		events:        append([]models.Event(nil), st.events...),
		nextEventID:   st.nextEventID,
	}
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{shared: &memShared{st: newMemState()}, now: now}
}

func (s *MemoryStore) with(fn func(st *memState) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	return fn(s.shared.st)
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	work := s.shared.st.clone()
	if err := fn(&MemoryStore{shared: s.shared, tx: work, now: s.now}); err != nil {
		return err
	}
	s.shared.st = work
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) stamp(ts *models.Timestamps) {
	now := s.now()
	if ts.CreatedAt.IsZero() {
		ts.CreatedAt = now
	}
	ts.UpdatedAt = now
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// rankedBefore is the leaderboard order: xp desc, created_at asc, id asc.
func rankedBefore(a, b *models.User) bool {
	if a.XP != b.XP {
		return a.XP > b.XP
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// --- users ---

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	return s.with(func(st *memState) error {
		for _, other := range st.users {
			if other.Email == u.Email || other.Username == u.Username || other.ID == u.ID {
				return ErrDuplicate
			}
		}
		ensureID(&u.ID)
		now := s.now()
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		u.UpdatedAt = now
		st.users[u.ID] = *u
		return nil
	})
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var out models.User
	err := s.with(func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return ErrNotFound
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var out *models.User
	err := s.with(func(st *memState) error {
		for _, u := range st.users {
			if u.Email == email {
				u := u
				out = &u
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (s *MemoryStore) LockUser(ctx context.Context, id string) (*models.User, error) {
	return s.GetUser(ctx, id)
}

func (s *MemoryStore) UpdateUserXP(ctx context.Context, id string, xp int64, level int, levelUpAt *time.Time) error {
	return s.with(func(st *memState) error {
		u, ok := st.users[id]
		if !ok || u.XP > xp {
			return ErrNotFound
		}
		u.XP = xp
		u.Level = level
		if levelUpAt != nil {
			t := *levelUpAt
			u.LastLevelUpAt = &t
		}
		u.UpdatedAt = s.now()
		st.users[id] = u
		return nil
	})
}

func (s *MemoryStore) UpdateUserLevel(ctx context.Context, id string, level int) error {
	return s.with(func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return ErrNotFound
		}
		u.Level = level
		u.UpdatedAt = s.now()
		st.users[id] = u
		return nil
	})
}

func (s *MemoryStore) SetUserActive(ctx context.Context, id string, active bool) error {
	return s.with(func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return ErrNotFound
		}
		u.IsActive = active
		u.UpdatedAt = s.now()
		st.users[id] = u
		return nil
	})
}

func (s *MemoryStore) sortedUsers(less func(a, b *models.User) bool) []models.User {
	var users []models.User
	_ = s.with(func(st *memState) error {
		users = make([]models.User, 0, len(st.users))
		for _, u := range st.users {
			users = append(users, u)
		}
		return nil
	})
	sort.Slice(users, func(i, j int) bool { return less(&users[i], &users[j]) })
	return users
}

func (s *MemoryStore) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	users := s.sortedUsers(func(a, b *models.User) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return page(users, limit, offset), nil
}

func (s *MemoryStore) ListUsersRanked(ctx context.Context, limit, offset int) ([]models.User, error) {
	return page(s.sortedUsers(rankedBefore), limit, offset), nil
}

func (s *MemoryStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	_ = s.with(func(st *memState) error {
		n = int64(len(st.users))
		return nil
	})
	return n, nil
}

func (s *MemoryStore) CountUsersAhead(ctx context.Context, u *models.User) (int64, error) {
	var n int64
	_ = s.with(func(st *memState) error {
		for _, other := range st.users {
			other := other
			if rankedBefore(&other, u) {
				n++
			}
		}
		return nil
	})
	return n, nil
}

// --- levels ---

func (s *MemoryStore) ListLevels(ctx context.Context, activeOnly bool) ([]models.Level, error) {
	var out []models.Level
	_ = s.with(func(st *memState) error {
		for _, l := range st.levels {
			if activeOnly && !l.IsActive {
				continue
			}
			out = append(out, l)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *MemoryStore) GetLevel(ctx context.Context, id string) (*models.Level, error) {
	var out models.Level
	err := s.with(func(st *memState) error {
		l, ok := st.levels[id]
		if !ok {
			return ErrNotFound
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemoryStore) CreateLevel(ctx context.Context, l *models.Level) error {
	return s.with(func(st *memState) error {
		for _, other := range st.levels {
			if other.Number == l.Number || other.ID == l.ID {
				return ErrDuplicate
			}
		}
		ensureID(&l.ID)
		s.stamp(&l.Timestamps)
		st.levels[l.ID] = *l
		return nil
	})
}

func (s *MemoryStore) UpdateLevel(ctx context.Context, l *models.Level) error {
	return s.with(func(st *memState) error {
		cur, ok := st.levels[l.ID]
		if !ok {
			return ErrNotFound
		}
		for _, other := range st.levels {
			if other.ID != l.ID && other.Number == l.Number {
				return ErrDuplicate
			}
		}
		l.CreatedAt = cur.CreatedAt
		s.stamp(&l.Timestamps)
		st.levels[l.ID] = *l
		return nil
	})
}

func (s *MemoryStore) DeleteLevel(ctx context.Context, id string) error {
	return s.with(func(st *memState) error {
		if _, ok := st.levels[id]; !ok {
			return ErrNotFound
		}
		delete(st.levels, id)
		return nil
	})
}

// --- categories ---

func (s *MemoryStore) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	var out []models.Category
	_ = s.with(func(st *memState) error {
		for _, c := range st.categories {
			if activeOnly && !c.IsActive {
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var out models.Category
	err := s.with(func(st *memState) error {
		c, ok := st.categories[id]
		if !ok {
			return ErrNotFound
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func categoryClash(st *memState, c *models.Category) bool {
	for _, other := range st.categories {
		if other.ID != c.ID && (other.Name == c.Name || other.Slug == c.Slug) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateCategory(ctx context.Context, c *models.Category) error {
	return s.with(func(st *memState) error {
		ensureID(&c.ID)
		if _, exists := st.categories[c.ID]; exists || categoryClash(st, c) {
			return ErrDuplicate
		}
		s.stamp(&c.Timestamps)
		st.categories[c.ID] = *c
		return nil
	})
}

func (s *MemoryStore) UpdateCategory(ctx context.Context, c *models.Category) error {
	return s.with(func(st *memState) error {
		cur, ok := st.categories[c.ID]
		if !ok {
			return ErrNotFound
		}
		if categoryClash(st, c) {
			return ErrDuplicate
		}
		c.CreatedAt = cur.CreatedAt
		s.stamp(&c.Timestamps)
		st.categories[c.ID] = *c
		return nil
	})
}

func (s *MemoryStore) DeleteCategory(ctx context.Context, id string) error {
	return s.with(func(st *memState) error {
		if _, ok := st.categories[id]; !ok {
			return ErrNotFound
		}
		delete(st.categories, id)
		return nil
	})
}

// --- challenges ---

func (st *memState) stagesOf(challengeID string) []models.Stage {
	var out []models.Stage
	for _, stg := range st.stages {
		if stg.ChallengeID == challengeID {
			out = append(out, stg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (s *MemoryStore) insertStages(st *memState, challengeID string, stages []models.Stage) error {
	seen := map[int]bool{}
	for _, existing := range st.stagesOf(challengeID) {
		seen[existing.Order] = true
	}
	for i := range stages {
		stg := &stages[i]
		stg.ChallengeID = challengeID
		ensureID(&stg.ID)
		if _, exists := st.stages[stg.ID]; exists || seen[stg.Order] {
			return ErrDuplicate
		}
		seen[stg.Order] = true
		s.stamp(&stg.Timestamps)
		st.stages[stg.ID] = *stg
	}
	return nil
}

func (s *MemoryStore) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	return s.with(func(st *memState) error {
		ensureID(&c.ID)
		if _, exists := st.challenges[c.ID]; exists {
			return ErrDuplicate
		}
		// validate stage uniqueness before touching state
		draft := st.clone()
		if err := s.insertStages(draft, c.ID, c.Stages); err != nil {
			return err
		}
		if err := s.insertStages(st, c.ID, c.Stages); err != nil {
			return err
		}
		s.stamp(&c.Timestamps)
		row := *c
		row.Stages = nil
		st.challenges[c.ID] = row
		return nil
	})
}

func (s *MemoryStore) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	var out models.Challenge
	err := s.with(func(st *memState) error {
		c, ok := st.challenges[id]
		if !ok {
			return ErrNotFound
		}
		c.Stages = st.stagesOf(id)
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemoryStore) LockChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	return s.GetChallenge(ctx, id)
}

func (s *MemoryStore) ListChallenges(ctx context.Context, f ChallengeFilter) ([]models.Challenge, int64, error) {
	var out []models.Challenge
	_ = s.with(func(st *memState) error {
		for _, c := range st.challenges {
			if f.Category != "" && c.Category != f.Category {
				continue
			}
			if f.Difficulty != "" && c.Difficulty != f.Difficulty {
				continue
			}
			switch f.Status {
			case "active":
				if !c.IsActive || !c.InWindow(f.Now) {
					continue
				}
			case "upcoming":
				if !c.IsActive || !c.StartDate.After(f.Now) {
					continue
				}
			case "completed":
				if !c.EndDate.Before(f.Now) {
					continue
				}
			}
			c.Stages = st.stagesOf(c.ID)
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, f.Limit, f.Offset), int64(len(out)), nil
}

func (s *MemoryStore) UpdateChallenge(ctx context.Context, c *models.Challenge) error {
	return s.with(func(st *memState) error {
		cur, ok := st.challenges[c.ID]
		if !ok {
			return ErrNotFound
		}
		row := *c
		row.Stages = nil
		row.ImageURL = cur.ImageURL
		row.CreatedAt = cur.CreatedAt
		row.UpdatedAt = s.now()
		st.challenges[c.ID] = row
		return nil
	})
}

func (s *MemoryStore) ReplaceStages(ctx context.Context, challengeID string, stages []models.Stage) error {
	return s.with(func(st *memState) error {
		draft := st.clone()
		for id, stg := range draft.stages {
			if stg.ChallengeID == challengeID {
				delete(draft.stages, id)
			}
		}
		if err := s.insertStages(draft, challengeID, stages); err != nil {
			return err
		}
		st.stages = draft.stages
		return nil
	})
}

func (s *MemoryStore) DeleteChallenge(ctx context.Context, id string) error {
	return s.with(func(st *memState) error {
		if _, ok := st.challenges[id]; !ok {
			return ErrNotFound
		}
		for pid, p := range st.progress {
			if p.ChallengeID != id {
				continue
			}
			for sid, sp := range st.stageProgress {
				if sp.ChallengeProgressID == pid {
					delete(st.stageProgress, sid)
				}
			}
			delete(st.progress, pid)
		}
		for sid, stg := range st.stages {
			if stg.ChallengeID == id {
				delete(st.stages, sid)
			}
		}
		delete(st.challenges, id)
		return nil
	})
}

func (s *MemoryStore) CountChallenges(ctx context.Context) (int64, error) {
	var n int64
	_ = s.with(func(st *memState) error {
		n = int64(len(st.challenges))
		return nil
	})
	return n, nil
}

func (s *MemoryStore) GetStage(ctx context.Context, id string) (*models.Stage, error) {
	var out models.Stage
	err := s.with(func(st *memState) error {
		stg, ok := st.stages[id]
		if !ok {
			return ErrNotFound
		}
		out = stg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemoryStore) SetStageQRImage(ctx context.Context, stageID, url string) error {
	return s.with(func(st *memState) error {
		stg, ok := st.stages[stageID]
		if !ok {
			return ErrNotFound
		}
		stg.QRImageURL = url
		stg.UpdatedAt = s.now()
		st.stages[stageID] = stg
		return nil
	})
}

func (s *MemoryStore) SetChallengeImage(ctx context.Context, challengeID, url string) error {
	return s.with(func(st *memState) error {
		c, ok := st.challenges[challengeID]
		if !ok {
			return ErrNotFound
		}
		c.ImageURL = url
		c.UpdatedAt = s.now()
		st.challenges[challengeID] = c
		return nil
	})
}

// --- progress ---

func (st *memState) withStageRows(p models.ChallengeProgress) models.ChallengeProgress {
	p.StageProgress = nil
	for _, sp := range st.stageProgress {
		if sp.ChallengeProgressID == p.ID {
			p.StageProgress = append(p.StageProgress, sp)
		}
	}
	sort.Slice(p.StageProgress, func(i, j int) bool {
		a, b := p.StageProgress[i], p.StageProgress[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return p
}

func (s *MemoryStore) CreateChallengeProgress(ctx context.Context, p *models.ChallengeProgress) error {
	return s.with(func(st *memState) error {
		for _, other := range st.progress {
			if other.ID == p.ID || (other.UserID == p.UserID && other.ChallengeID == p.ChallengeID) {
				return ErrDuplicate
			}
		}
		ensureID(&p.ID)
		s.stamp(&p.Timestamps)
		row := *p
		row.StageProgress = nil
		st.progress[p.ID] = row
		return nil
	})
}

func (s *MemoryStore) GetChallengeProgress(ctx context.Context, userID, challengeID string) (*models.ChallengeProgress, error) {
	var out *models.ChallengeProgress
	err := s.with(func(st *memState) error {
		for _, p := range st.progress {
			if p.UserID == userID && p.ChallengeID == challengeID {
				full := st.withStageRows(p)
				out = &full
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (s *MemoryStore) LockChallengeProgress(ctx context.Context, userID, challengeID string) (*models.ChallengeProgress, error) {
	return s.GetChallengeProgress(ctx, userID, challengeID)
}

func (s *MemoryStore) ListChallengeProgress(ctx context.Context, userID string, status *models.ProgressStatus) ([]models.ChallengeProgress, error) {
	var out []models.ChallengeProgress
	_ = s.with(func(st *memState) error {
		for _, p := range st.progress {
			if p.UserID != userID || (status != nil && p.Status != *status) {
				continue
			}
			out = append(out, st.withStageRows(p))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.After(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) CountProgress(ctx context.Context, challengeID string, status *models.ProgressStatus) (int64, error) {
	var n int64
	_ = s.with(func(st *memState) error {
		for _, p := range st.progress {
			if (challengeID == "" || p.ChallengeID == challengeID) && (status == nil || p.Status == *status) {
				n++
			}
		}
		return nil
	})
	return n, nil
}

func (s *MemoryStore) CompleteChallengeProgress(ctx context.Context, id string, at time.Time) (bool, error) {
	var ok bool
	err := s.with(func(st *memState) error {
		p, found := st.progress[id]
		if !found || p.Status != models.ProgressActive {
			return nil
		}
		p.Status = models.ProgressCompleted
		t := at
		p.CompletedAt = &t
		p.UpdatedAt = s.now()
		st.progress[id] = p
		ok = true
		return nil
	})
	return ok, err
}

func (s *MemoryStore) CreateStageProgress(ctx context.Context, sp *models.StageProgress) error {
	return s.with(func(st *memState) error {
		for _, other := range st.stageProgress {
			if other.ID == sp.ID || (other.ChallengeProgressID == sp.ChallengeProgressID && other.StageID == sp.StageID) {
				return ErrDuplicate
			}
		}
		ensureID(&sp.ID)
		s.stamp(&sp.Timestamps)
		st.stageProgress[sp.ID] = *sp
		return nil
	})
}

func (s *MemoryStore) TransitionStage(ctx context.Context, t StageTransition) (bool, error) {
	var ok bool
	err := s.with(func(st *memState) error {
		sp, found := st.stageProgress[t.StageProgressID]
		if !found || sp.Status != t.From {
			return nil
		}
		sp.Status = t.To
		at := t.At
		sp.SubmittedAt = &at
		typ := t.SubmissionType
		sp.SubmissionType = &typ
		sp.Content = t.Content
		sp.UpdatedAt = s.now()
		st.stageProgress[sp.ID] = sp
		ok = true
		return nil
	})
	return ok, err
}

// --- outbox ---

func (s *MemoryStore) AddEvent(ctx context.Context, e *models.Event) error {
	return s.with(func(st *memState) error {
		st.nextEventID++
		e.ID = st.nextEventID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.now()
		}
		st.events = append(st.events, *e)
		return nil
	})
}

func (s *MemoryStore) PendingEvents(ctx context.Context, limit int) ([]models.Event, error) {
	var out []models.Event
	_ = s.with(func(st *memState) error {
		for _, e := range st.events {
			if e.PublishedAt == nil && e.DeadAt == nil {
				out = append(out, e)
			}
		}
		return nil
	})
	return page(out, limit, 0), nil
}

func (s *MemoryStore) updateEvent(id int64, fn func(e *models.Event)) error {
	return s.with(func(st *memState) error {
		for i := range st.events {
			if st.events[i].ID == id {
				fn(&st.events[i])
				return nil
			}
		}
		return ErrNotFound
	})
}

func (s *MemoryStore) MarkEventPublished(ctx context.Context, id int64, at time.Time) error {
	return s.updateEvent(id, func(e *models.Event) {
		t := at
		e.PublishedAt = &t
	})
}

func (s *MemoryStore) MarkEventFailed(ctx context.Context, id int64, reason string) error {
	return s.updateEvent(id, func(e *models.Event) {
		e.Attempts++
		e.LastError = strings.TrimSpace(reason)
	})
}

func (s *MemoryStore) MarkEventDead(ctx context.Context, id int64, at time.Time) error {
	return s.updateEvent(id, func(e *models.Event) {
		t := at
		e.DeadAt = &t
	})
}

var _ Store = (*MemoryStore)(nil)
