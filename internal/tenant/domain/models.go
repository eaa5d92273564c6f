// Package domain contains the tenant directory models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Project is a tenant organization. Secrets are stored encrypted by the vault.
type Project struct {
	ID                          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name                        string       `gorm:"type:text;not null" json:"name"`
	Slug                        string       `gorm:"type:text;not null;uniqueIndex:ux_projects_slug" json:"slug"`
	Domain                      *string      `gorm:"type:text;uniqueIndex:ux_projects_domain" json:"domain,omitempty"`
	DatabaseDSNEncrypted        string       `gorm:"column:database_dsn_encrypted;type:text;not null;default:''" json:"-"`
	StorageCredentialsEncrypted string       `gorm:"column:storage_credentials_encrypted;type:text;not null;default:''" json:"-"`
	StorageBucket               string       `gorm:"column:storage_bucket;type:text;not null;default:''" json:"storage_bucket"`
	StorageEndpoint             string       `gorm:"column:storage_endpoint;type:text;not null;default:''" json:"storage_endpoint"`
	StorageRegion               string       `gorm:"column:storage_region;type:text;not null;default:''" json:"storage_region"`
	LLMProvider                 string       `gorm:"column:llm_provider;type:text;not null;default:''" json:"llm_provider"`
	LLMAPIKeyEncrypted          string       `gorm:"column:llm_api_key_encrypted;type:text;not null;default:''" json:"-"`
	IsActive                    bool         `gorm:"not null" json:"is_active"`
	CreatedAt                   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt                   time.Time    `gorm:"not null" json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

// DomainValue returns the custom domain or "".
func (p Project) DomainValue() string {
	if p.Domain == nil {
		return ""
	}
	return *p.Domain
}

type ProjectMember struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID snowflake.ID `gorm:"not null;uniqueIndex:ux_project_members_project_user,priority:1" json:"project_id"`
	UserID    string       `gorm:"type:text;not null;uniqueIndex:ux_project_members_project_user,priority:2" json:"user_id"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (ProjectMember) TableName() string { return "project_members" }

// StorageSecret is the encrypted part of the storage credentials.
type StorageSecret struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}
