// Package domain holds the application catalog and per-tenant selections.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Application is a catalog add-on a tenant may opt into.
type Application struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"type:text;not null" json:"name"`
	Slug        string          `gorm:"type:text;not null;uniqueIndex:ux_applications_slug" json:"slug"`
	Description string          `gorm:"type:text;not null;default:''" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"price"`
	Listed      bool            `gorm:"not null" json:"listed"`
	IsActive    bool            `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}

func (Application) TableName() string { return "applications" }

// TenantApplication links a project to an application. Removal deactivates
// the row; re-adding reactivates it.
type TenantApplication struct {
	ID            snowflake.ID     `gorm:"primaryKey" json:"id"`
	ProjectID     snowflake.ID     `gorm:"not null;uniqueIndex:ux_tenant_applications_project_app,priority:1" json:"project_id"`
	ApplicationID snowflake.ID     `gorm:"not null;uniqueIndex:ux_tenant_applications_project_app,priority:2" json:"application_id"`
	CustomPrice   *decimal.Decimal `gorm:"type:numeric(20,4)" json:"custom_price,omitempty"`
	IsActive      bool             `gorm:"not null" json:"is_active"`
	CreatedAt     time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"not null" json:"updated_at"`
	Application   *Application     `gorm:"foreignKey:ApplicationID" json:"application,omitempty"`
}

func (TenantApplication) TableName() string { return "tenant_applications" }
