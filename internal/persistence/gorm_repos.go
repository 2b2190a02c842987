package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"starlinks/internal/core"
)

type gormCelebrityRepo struct {
	db *gorm.DB
}

func (r *gormCelebrityRepo) Get(ctx context.Context, id uint) (*core.Celebrity, error) {
	var c core.Celebrity
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("celebrity %d", id))
	}
	return &c, nil
}

func (r *gormCelebrityRepo) FindByName(ctx context.Context, name string) (*core.Celebrity, error) {
	var c core.Celebrity
	err := r.db.WithContext(ctx).
		Where("name_key = ?", core.NormalizeName(name)).
		Order("id").
		First(&c).Error
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("celebrity %q", name))
	}
	return &c, nil
}

func (r *gormCelebrityRepo) FindByNameAndBirthYear(ctx context.Context, name string, birthYear int) (*core.Celebrity, error) {
	var c core.Celebrity
	err := r.db.WithContext(ctx).
		Where("name_key = ? AND birth_year = ?", core.NormalizeName(name), birthYear).
		Order("id").
		First(&c).Error
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("celebrity %q (%d)", name, birthYear))
	}
	return &c, nil
}

func (r *gormCelebrityRepo) Create(ctx context.Context, celebrity *core.Celebrity) error {
	if err := r.db.WithContext(ctx).Create(celebrity).Error; err != nil {
		return fmt.Errorf("failed to create celebrity %q: %w", celebrity.Name, err)
	}
	return nil
}

func (r *gormCelebrityRepo) Update(ctx context.Context, celebrity *core.Celebrity) error {
	if err := r.db.WithContext(ctx).Save(celebrity).Error; err != nil {
		return fmt.Errorf("failed to update celebrity %d: %w", celebrity.ID, err)
	}
	return nil
}

func (r *gormCelebrityRepo) UpdatePhotoURL(ctx context.Context, id uint, photoURL string) error {
	result := r.db.WithContext(ctx).Model(&core.Celebrity{}).Where("id = ?", id).Update("photo_url", photoURL)
	if result.Error != nil {
		return fmt.Errorf("failed to update photo for celebrity %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("celebrity %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *gormCelebrityRepo) List(ctx context.Context, opts ListOptions) ([]core.Celebrity, error) {
	q := r.db.WithContext(ctx).Model(&core.Celebrity{}).Order("id")
	if len(opts.IDs) > 0 {
		q = q.Where("id IN ?", opts.IDs)
	}
	if opts.MissingPhoto {
		q = q.Where("photo_url IS NULL OR photo_url = ''")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var out []core.Celebrity
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list celebrities: %w", err)
	}
	return out, nil
}

func (r *gormCelebrityRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("celebrity_1_id = ? OR celebrity_2_id = ?", id, id).Delete(&core.CelebrityRelationship{}).Error; err != nil {
			return fmt.Errorf("failed to delete relationships of celebrity %d: %w", id, err)
		}
		result := tx.Delete(&core.Celebrity{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete celebrity %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("celebrity %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

type gormRelationshipRepo struct {
	db *gorm.DB
}

func (r *gormRelationshipRepo) CreateIfAbsent(ctx context.Context, a, b uint, citation string) (bool, error) {
	if a == b {
		return false, ErrSelfLink
	}
	rel := core.CelebrityRelationship{Celebrity1ID: a, Celebrity2ID: b, Citation: citation}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_low"}, {Name: "pair_high"}},
			DoNothing: true,
		}).
		Create(&rel)
	if result.Error != nil {
		return false, fmt.Errorf("failed to link celebrities %d and %d: %w", a, b, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRelationshipRepo) Exists(ctx context.Context, a, b uint) (bool, error) {
	lo, hi := core.OrderedPair(a, b)
	var n int64
	err := r.db.WithContext(ctx).Model(&core.CelebrityRelationship{}).
		Where("pair_low = ? AND pair_high = ?", lo, hi).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check relationship %d-%d: %w", a, b, err)
	}
	return n > 0, nil
}

func (r *gormRelationshipRepo) ListForCelebrity(ctx context.Context, id uint) ([]core.CelebrityRelationship, error) {
	var out []core.CelebrityRelationship
	err := r.db.WithContext(ctx).
		Preload("Celebrity1").
		Preload("Celebrity2").
		Where("celebrity_1_id = ? OR celebrity_2_id = ?", id, id).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships of celebrity %d: %w", id, err)
	}
	return out, nil
}

func (r *gormRelationshipRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&core.CelebrityRelationship{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count relationships: %w", err)
	}
	return n, nil
}

type gormDailyGameRepo struct {
	db *gorm.DB
}

func (r *gormDailyGameRepo) GetByDate(ctx context.Context, date string) (*core.DailyGame, error) {
	var g core.DailyGame
	if err := r.db.WithContext(ctx).Preload("Answer").Where("game_date = ?", date).First(&g).Error; err != nil {
		return nil, wrapNotFound(err, "daily game "+date)
	}
	return &g, nil
}

func (r *gormDailyGameRepo) CreateIfAbsent(ctx context.Context, game *core.DailyGame) (bool, error) {
	result := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "game_date"}},
			DoNothing: true,
		}).
		Create(game)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create daily game %s: %w", game.GameDate, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *gormDailyGameRepo) Subjects(ctx context.Context, game *core.DailyGame) ([]core.Celebrity, error) {
	ids := game.SubjectIDs()
	var found []core.Celebrity
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("failed to load subjects of %s: %w", game.GameDate, err)
	}
	byID := make(map[uint]core.Celebrity, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	out := make([]core.Celebrity, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *gormDailyGameRepo) RecentAnswers(ctx context.Context, since string) ([]core.Celebrity, error) {
	var out []core.Celebrity
	err := r.db.WithContext(ctx).
		Model(&core.Celebrity{}).
		Joins("JOIN daily_games ON daily_games.answer_id = celebrities.id").
		Where("daily_games.game_date >= ?", since).
		Order("daily_games.game_date DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent answers: %w", err)
	}
	return out, nil
}

func (r *gormDailyGameRepo) List(ctx context.Context, through string, limit int) ([]core.DailyGame, error) {
	q := r.db.WithContext(ctx).Preload("Answer").Order("game_date DESC")
	if through != "" {
		q = q.Where("game_date <= ?", through)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []core.DailyGame
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list daily games: %w", err)
	}
	return out, nil
}

type gormSettingsRepo struct {
	db *gorm.DB
}

func (r *gormSettingsRepo) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var s core.Setting
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&s).Error; err != nil {
		return nil, wrapNotFound(err, "setting "+key)
	}
	return json.RawMessage(s.Value), nil
}

func (r *gormSettingsRepo) All(ctx context.Context) (map[string]json.RawMessage, error) {
	var rows []core.Setting
	if err := r.db.WithContext(ctx).Order("key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	out := make(map[string]json.RawMessage, len(rows))
	for _, s := range rows {
		out[s.Key] = json.RawMessage(s.Value)
	}
	return out, nil
}

func (r *gormSettingsRepo) Set(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("setting %s: value is not valid JSON", key)
	}
	s := core.Setting{Key: key, Value: datatypes.JSON(value)}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&s).Error
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

func (r *gormSettingsRepo) SetIfAbsent(ctx context.Context, key string, value json.RawMessage) (bool, error) {
	if !json.Valid(value) {
		return false, fmt.Errorf("setting %s: value is not valid JSON", key)
	}
	s := core.Setting{Key: key, Value: datatypes.JSON(value)}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(&s)
	if result.Error != nil {
		return false, fmt.Errorf("failed to seed setting %s: %w", key, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// IsNotFound reports whether err stems from a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
