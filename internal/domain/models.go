// Package domain defines the persistence models of the service. These types
// are mapped with GORM and are shared by the repository, service and HTTP
// layers.
package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Model is embedded by every persisted entity. It provides the identifier
// and the audit columns; UpdatedAt doubles as the optimistic-concurrency
// token and is maintained by the repository rather than by GORM.
//
// Fields:
//   - ID: UUID primary key (char(36)), generated on insert when empty.
//   - CreatedAt / CreatedBy: insert timestamp and author.
//   - UpdatedAt / UpdatedBy: last modification timestamp and author.
type Model struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime:false"`
	CreatedBy string    `json:"created_by" gorm:"type:varchar(255)"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;autoUpdateTime:false"`
	UpdatedBy string    `json:"updated_by" gorm:"type:varchar(255)"`
}

// Identifier returns the primary key value.
func (m Model) Identifier() any { return m.ID }

// LastUpdated returns the concurrency token.
func (m Model) LastUpdated() time.Time { return m.UpdatedAt }

// BeforeCreate assigns a UUID when the caller did not provide one.
func (m *Model) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Project is a named container of tasks owned by a user.
//
// Fields:
//   - Name: display name (3–100 characters, validated at the HTTP edge).
//   - Description: optional free text.
//   - Owner: preferred_username of the creating user; indexed.
//   - Tasks: has-many association, eager-loaded on request ("tasks" join).
type Project struct {
	Model
	Name        string `json:"name"        gorm:"type:varchar(100);not null"`
	Description string `json:"description" gorm:"type:text"`
	Owner       string `json:"owner"       gorm:"type:varchar(255);index:idx_project_owner"`

	Tasks []Task `json:"tasks,omitempty" gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Project.
func (Project) TableName() string { return "projects" }

// Task is a unit of work inside a project.
//
// Fields:
//   - ProjectID: foreign key to the owning project (indexed).
//   - Title: short description of the work.
//   - Done: completion flag.
//   - Project: belongs-to association, joined on request ("project" join).
type Task struct {
	Model
	ProjectID string `json:"project_id" gorm:"type:char(36);not null;index:idx_project_tasks"`
	Title     string `json:"title"      gorm:"type:varchar(255);not null"`
	Done      bool   `json:"done"       gorm:"not null;default:false"`

	Project *Project `json:"project,omitempty" gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Task.
func (Task) TableName() string { return "tasks" }
