package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// GenerationParams records the provider parameters a clip was generated with,
// kept verbatim for provenance. Nil for plain uploads.
type GenerationParams struct {
	Prompt       string  `json:"prompt"`
	Duration     int     `json:"duration"`
	OutputFormat string  `json:"output_format"`
	Steps        int     `json:"steps"`
	CfgScale     float64 `json:"cfg_scale"`
	Strength     float64 `json:"strength"`
	Seed         string  `json:"seed,omitempty"`
}

// Scan implements sql.Scanner for a JSON column.
func (p *GenerationParams) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// Value implements driver.Valuer.
func (p GenerationParams) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Music is a generated or uploaded audio clip's metadata. The creator owns
// the record exclusively; ownership never changes after creation.
type Music struct {
	ID            int64             `json:"id" gorm:"primaryKey;autoIncrement"`
	Title         string            `json:"title" gorm:"size:255;not null"`
	Description   string            `json:"description" gorm:"type:text"`
	AudioURL      string            `json:"audioUrl" gorm:"size:767;not null"`
	CreatorID     int64             `json:"creatorId" gorm:"index;not null"`
	RoomID        string            `json:"roomId,omitempty" gorm:"size:16;index"`
	IsPublic      bool              `json:"isPublic" gorm:"default:false;index"`
	SharedToPlaza bool              `json:"sharedToPlaza" gorm:"default:false;index"`
	Params        *GenerationParams `json:"generationParams,omitempty" gorm:"type:json"`
	CreatedAt     time.Time         `json:"createdAt" gorm:"index"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// TableName pins the table name.
func (Music) TableName() string {
	return "music"
}

// MusicWithCreator joins a clip with its creator's public identity for the
// public and plaza listings. Email is only populated for the plaza view.
type MusicWithCreator struct {
	Music
	CreatorName  string `json:"creatorName"`
	CreatorEmail string `json:"creatorEmail,omitempty"`
}
