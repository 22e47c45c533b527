package repository

import (
	"context"
	"errors"
	"time"

	"challenge-quest/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// affected maps a zero-row update or delete to ErrNotFound.
func affected(res *gorm.DB) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// paged applies limit/offset; a non-positive limit means no limit, matching MemoryStore.
func paged(limit, offset int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			db = db.Limit(limit)
		}
		if offset > 0 {
			db = db.Offset(offset)
		}
		return db
	}
}

func (s *GormStore) db(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{DB: tx})
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// --- users ---

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return translate(s.db(ctx).Create(u).Error)
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) LockUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&u, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// UpdateUserXP never lowers xp: the guard makes a stale write a no-op that surfaces as ErrNotFound.
func (s *GormStore) UpdateUserXP(ctx context.Context, id string, xp int64, level int, levelUpAt *time.Time) error {
	updates := map[string]any{"xp": xp, "level": level}
	if levelUpAt != nil {
		updates["last_level_up_at"] = *levelUpAt
	}
	return affected(s.db(ctx).
		Model(&models.User{}).
		Where("id = ? AND xp <= ?", id, xp).
		Updates(updates))
}

func (s *GormStore) UpdateUserLevel(ctx context.Context, id string, level int) error {
	return affected(s.db(ctx).Model(&models.User{}).Where("id = ?", id).Update("level", level))
}

func (s *GormStore) SetUserActive(ctx context.Context, id string, active bool) error {
	return affected(s.db(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_active", active))
}

func (s *GormStore) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	err := s.db(ctx).
		Order("created_at ASC").Order("id ASC").
		Scopes(paged(limit, offset)).
		Find(&users).Error
	return users, translate(err)
}

func (s *GormStore) ListUsersRanked(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	err := s.db(ctx).
		Order("xp DESC").Order("created_at ASC").Order("id ASC").
		Scopes(paged(limit, offset)).
		Find(&users).Error
	return users, translate(err)
}

func (s *GormStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db(ctx).Model(&models.User{}).Count(&n).Error
	return n, translate(err)
}

func (s *GormStore) CountUsersAhead(ctx context.Context, u *models.User) (int64, error) {
	var n int64
	err := s.db(ctx).Model(&models.User{}).
		Where("xp > ? OR (xp = ? AND created_at < ?) OR (xp = ? AND created_at = ? AND id < ?)",
			u.XP, u.XP, u.CreatedAt, u.XP, u.CreatedAt, u.ID).
		Count(&n).Error
	return n, translate(err)
}

// --- levels ---

func (s *GormStore) ListLevels(ctx context.Context, activeOnly bool) ([]models.Level, error) {
	var levels []models.Level
	q := s.db(ctx).Order("number ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&levels).Error
	return levels, translate(err)
}

func (s *GormStore) GetLevel(ctx context.Context, id string) (*models.Level, error) {
	var l models.Level
	if err := s.db(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

func (s *GormStore) CreateLevel(ctx context.Context, l *models.Level) error {
	return translate(s.db(ctx).Create(l).Error)
}

func (s *GormStore) UpdateLevel(ctx context.Context, l *models.Level) error {
	return affected(s.db(ctx).Model(l).
		Select("number", "name", "min_xp", "max_xp", "is_active").
		Updates(l))
}

func (s *GormStore) DeleteLevel(ctx context.Context, id string) error {
	return affected(s.db(ctx).Delete(&models.Level{}, "id = ?", id))
}

// --- categories ---

func (s *GormStore) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	var cats []models.Category
	q := s.db(ctx).Order("name ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&cats).Error
	return cats, translate(err)
}

func (s *GormStore) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var c models.Category
	if err := s.db(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *GormStore) CreateCategory(ctx context.Context, c *models.Category) error {
	return translate(s.db(ctx).Create(c).Error)
}

func (s *GormStore) UpdateCategory(ctx context.Context, c *models.Category) error {
	return affected(s.db(ctx).Model(c).
		Select("name", "slug", "description", "icon", "color", "is_active").
		Updates(c))
}

func (s *GormStore) DeleteCategory(ctx context.Context, id string) error {
	return affected(s.db(ctx).Delete(&models.Category{}, "id = ?", id))
}

// --- challenges ---

func orderedStages(db *gorm.DB) *gorm.DB {
	return db.Order("stage_order ASC")
}

func (s *GormStore) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	return translate(s.db(ctx).Create(c).Error)
}

func (s *GormStore) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	var c models.Challenge
	err := s.db(ctx).Preload("Stages", orderedStages).First(&c, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *GormStore) LockChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	var c models.Challenge
	err := s.db(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	if err := s.db(ctx).Where("challenge_id = ?", id).Order("stage_order ASC").Find(&c.Stages).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *GormStore) ListChallenges(ctx context.Context, f ChallengeFilter) ([]models.Challenge, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if f.Category != "" {
			db = db.Where("category = ?", f.Category)
		}
		if f.Difficulty != "" {
			db = db.Where("difficulty = ?", f.Difficulty)
		}
		switch f.Status {
		case "active":
			db = db.Where("is_active = ? AND start_date <= ? AND end_date >= ?", true, f.Now, f.Now)
		case "upcoming":
			db = db.Where("is_active = ? AND start_date > ?", true, f.Now)
		case "completed":
			db = db.Where("end_date < ?", f.Now)
		}
		return db
	}

	var total int64
	if err := s.db(ctx).Model(&models.Challenge{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var challenges []models.Challenge
	err := s.db(ctx).Scopes(scope).
		Preload("Stages", orderedStages).
		Order("start_date DESC").Order("id ASC").
		Scopes(paged(f.Limit, f.Offset)).
		Find(&challenges).Error
	return challenges, total, translate(err)
}

func (s *GormStore) UpdateChallenge(ctx context.Context, c *models.Challenge) error {
	return affected(s.db(ctx).Model(c).
		Select("title", "description", "category", "difficulty", "xp_reward", "required_level",
			"start_date", "end_date", "is_active", "max_participants").
		Updates(c))
}

func (s *GormStore) ReplaceStages(ctx context.Context, challengeID string, stages []models.Stage) error {
	if err := s.db(ctx).Where("challenge_id = ?", challengeID).Delete(&models.Stage{}).Error; err != nil {
		return translate(err)
	}
	if len(stages) == 0 {
		return nil
	}
	return translate(s.db(ctx).Create(&stages).Error)
}

func (s *GormStore) DeleteChallenge(ctx context.Context, id string) error {
	enrollments := s.db(ctx).Model(&models.ChallengeProgress{}).Select("id").Where("challenge_id = ?", id)
	if err := s.db(ctx).Where("challenge_progress_id IN (?)", enrollments).Delete(&models.StageProgress{}).Error; err != nil {
		return translate(err)
	}
	if err := s.db(ctx).Where("challenge_id = ?", id).Delete(&models.ChallengeProgress{}).Error; err != nil {
		return translate(err)
	}
	if err := s.db(ctx).Where("challenge_id = ?", id).Delete(&models.Stage{}).Error; err != nil {
		return translate(err)
	}
	return affected(s.db(ctx).Delete(&models.Challenge{}, "id = ?", id))
}

func (s *GormStore) CountChallenges(ctx context.Context) (int64, error) {
	var n int64
	err := s.db(ctx).Model(&models.Challenge{}).Count(&n).Error
	return n, translate(err)
}

func (s *GormStore) GetStage(ctx context.Context, id string) (*models.Stage, error) {
	var st models.Stage
	if err := s.db(ctx).First(&st, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &st, nil
}

func (s *GormStore) SetStageQRImage(ctx context.Context, stageID, url string) error {
	return affected(s.db(ctx).Model(&models.Stage{}).Where("id = ?", stageID).Update("qr_image_url", url))
}

func (s *GormStore) SetChallengeImage(ctx context.Context, challengeID, url string) error {
	return affected(s.db(ctx).Model(&models.Challenge{}).Where("id = ?", challengeID).Update("image_url", url))
}

// --- progress ---

func (s *GormStore) CreateChallengeProgress(ctx context.Context, p *models.ChallengeProgress) error {
	return translate(s.db(ctx).Omit(clause.Associations).Create(p).Error)
}

func (s *GormStore) GetChallengeProgress(ctx context.Context, userID, challengeID string) (*models.ChallengeProgress, error) {
	var p models.ChallengeProgress
	err := s.db(ctx).
		Preload("StageProgress").
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) LockChallengeProgress(ctx context.Context, userID, challengeID string) (*models.ChallengeProgress, error) {
	var p models.ChallengeProgress
	err := s.db(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	if err := s.db(ctx).Where("challenge_progress_id = ?", p.ID).Find(&p.StageProgress).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) ListChallengeProgress(ctx context.Context, userID string, status *models.ProgressStatus) ([]models.ChallengeProgress, error) {
	q := s.db(ctx).Preload("StageProgress").Where("user_id = ?", userID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var out []models.ChallengeProgress
	err := q.Order("joined_at DESC").Order("id ASC").Find(&out).Error
	return out, translate(err)
}

func (s *GormStore) CountProgress(ctx context.Context, challengeID string, status *models.ProgressStatus) (int64, error) {
	q := s.db(ctx).Model(&models.ChallengeProgress{})
	if challengeID != "" {
		q = q.Where("challenge_id = ?", challengeID)
	}
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var n int64
	err := q.Count(&n).Error
	return n, translate(err)
}

func (s *GormStore) CompleteChallengeProgress(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.db(ctx).Model(&models.ChallengeProgress{}).
		Where("id = ? AND status = ?", id, models.ProgressActive).
		Updates(map[string]any{"status": models.ProgressCompleted, "completed_at": at})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) CreateStageProgress(ctx context.Context, sp *models.StageProgress) error {
	return translate(s.db(ctx).Create(sp).Error)
}

func (s *GormStore) TransitionStage(ctx context.Context, t StageTransition) (bool, error) {
	res := s.db(ctx).Model(&models.StageProgress{}).
		Where("id = ? AND status = ?", t.StageProgressID, t.From).
		Updates(map[string]any{
			"status":          t.To,
			"submitted_at":    t.At,
			"submission_type": t.SubmissionType,
			"content":         t.Content,
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// --- outbox ---

func (s *GormStore) AddEvent(ctx context.Context, e *models.Event) error {
	return translate(s.db(ctx).Create(e).Error)
}

func (s *GormStore) PendingEvents(ctx context.Context, limit int) ([]models.Event, error) {
	var events []models.Event
	err := s.db(ctx).
		Where("published_at IS NULL AND dead_at IS NULL").
		Order("id ASC").
		Scopes(paged(limit, 0)).
		Find(&events).Error
	return events, translate(err)
}

func (s *GormStore) MarkEventPublished(ctx context.Context, id int64, at time.Time) error {
	return affected(s.db(ctx).Model(&models.Event{}).Where("id = ?", id).Update("published_at", at))
}

func (s *GormStore) MarkEventFailed(ctx context.Context, id int64, reason string) error {
	return affected(s.db(ctx).Model(&models.Event{}).Where("id = ?", id).Updates(map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": reason,
	}))
}

func (s *GormStore) MarkEventDead(ctx context.Context, id int64, at time.Time) error {
	return affected(s.db(ctx).Model(&models.Event{}).Where("id = ?", id).Update("dead_at", at))
}

var _ Store = (*GormStore)(nil)
