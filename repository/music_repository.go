package repository

import (
	"errors"
	"fmt"

	"github.com/shannn1/echolab-final/model"

	"gorm.io/gorm"
)

// MusicUpdate carries the patchable fields of a clip. Nil means "leave as is".
type MusicUpdate struct {
	Title       *string
	Description *string
	IsPublic    *bool
}

// MusicRepository defines the interface for music catalog operations.
type MusicRepository interface {
	Create(music *model.Music) error
	GetByID(id int64) (*model.Music, error)
	ListByCreator(creatorID int64) ([]model.Music, error)
	ListPublic() ([]model.MusicWithCreator, error)
	ListPlaza() ([]model.MusicWithCreator, error)
	Update(id int64, patch MusicUpdate) (*model.Music, error)
	SetPlazaShare(id int64, shared bool) (*model.Music, error)
	Delete(id int64) error
}

// gormMusicRepository implements MusicRepository on GORM.
type gormMusicRepository struct {
	db *gorm.DB
}

// NewGormMusicRepository creates a new gormMusicRepository.
func NewGormMusicRepository(db *gorm.DB) MusicRepository {
	return &gormMusicRepository{db: db}
}

// Create persists a new clip.
func (r *gormMusicRepository) Create(music *model.Music) error {
	if err := r.db.Create(music).Error; err != nil {
		return fmt.Errorf("failed to create music: %w", err)
	}
	return nil
}

// GetByID retrieves a clip. Returns ErrNotFound if the id is unknown.
func (r *gormMusicRepository) GetByID(id int64) (*model.Music, error) {
	var music model.Music
	err := r.db.First(&music, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get music %d: %w", id, err)
	}
	return &music, nil
}

// ListByCreator returns all clips owned by a user, in insertion order.
func (r *gormMusicRepository) ListByCreator(creatorID int64) ([]model.Music, error) {
	var items []model.Music
	err := r.db.Where("creator_id = ?", creatorID).Order("id").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list music for creator %d: %w", creatorID, err)
	}
	return items, nil
}

// ListPublic returns all public clips, newest first, with creator usernames.
func (r *gormMusicRepository) ListPublic() ([]model.MusicWithCreator, error) {
	var items []model.Music
	err := r.db.Where("is_public = ?", true).Order("created_at DESC").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list public music: %w", err)
	}
	return r.withCreators(items, false)
}

// ListPlaza returns all plaza-shared clips, newest first, with creator
// username and email.
func (r *gormMusicRepository) ListPlaza() ([]model.MusicWithCreator, error) {
	var items []model.Music
	err := r.db.Where("shared_to_plaza = ?", true).Order("created_at DESC").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list plaza music: %w", err)
	}
	return r.withCreators(items, true)
}

// withCreators joins creator identity onto the listed clips.
func (r *gormMusicRepository) withCreators(items []model.Music, includeEmail bool) ([]model.MusicWithCreator, error) {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]bool)
	for _, m := range items {
		if !seen[m.CreatorID] {
			seen[m.CreatorID] = true
			ids = append(ids, m.CreatorID)
		}
	}

	type creatorRow struct {
		ID       int64
		Username string
		Email    string
	}
	creators := make(map[int64]creatorRow)
	if len(ids) > 0 {
		var rows []creatorRow
		err := r.db.Table("users").Select("id, username, email").Where("id IN ?", ids).Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to resolve creators: %w", err)
		}
		for _, row := range rows {
			creators[row.ID] = row
		}
	}

	result := make([]model.MusicWithCreator, 0, len(items))
	for _, m := range items {
		entry := model.MusicWithCreator{Music: m, CreatorName: creators[m.CreatorID].Username}
		if includeEmail {
			entry.CreatorEmail = creators[m.CreatorID].Email
		}
		result = append(result, entry)
	}
	return result, nil
}

// Update applies a partial patch and returns the updated record.
func (r *gormMusicRepository) Update(id int64, patch MusicUpdate) (*model.Music, error) {
	updates := make(map[string]interface{})
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.IsPublic != nil {
		updates["is_public"] = *patch.IsPublic
	}

	// Existence is checked up front: MySQL reports zero affected rows for
	// a no-op update, so RowsAffected cannot distinguish missing from
	// unchanged.
	if _, err := r.GetByID(id); err != nil {
		return nil, err
	}

	if len(updates) > 0 {
		if err := r.db.Model(&model.Music{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update music %d: %w", id, err)
		}
	}
	return r.GetByID(id)
}

// SetPlazaShare flips the plaza-sharing flag and returns the updated record.
func (r *gormMusicRepository) SetPlazaShare(id int64, shared bool) (*model.Music, error) {
	if _, err := r.GetByID(id); err != nil {
		return nil, err
	}
	if err := r.db.Model(&model.Music{}).Where("id = ?", id).Update("shared_to_plaza", shared).Error; err != nil {
		return nil, fmt.Errorf("failed to set plaza share on music %d: %w", id, err)
	}
	return r.GetByID(id)
}

// Delete removes the record.
func (r *gormMusicRepository) Delete(id int64) error {
	res := r.db.Delete(&model.Music{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete music %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
