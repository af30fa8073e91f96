package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Challenge is a competition track that submissions are entered into.
// Rubric holds dimension -> {"weight": number, "description": string}.
type Challenge struct {
	ID          string            `gorm:"primaryKey;size:36" json:"id"`
	Title       string            `gorm:"size:255;not null" json:"title"`
	Description string            `gorm:"type:text" json:"description"`
	Rubric      datatypes.JSONMap `gorm:"column:rubric_json" json:"rubric_json"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// BeforeCreate assigns a UUID primary key when none was provided.
func (c *Challenge) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(c.ID) == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
