package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository reads and writes the tenant directory. Find methods return
// ErrProjectNotFound when nothing matches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateProject(ctx context.Context, project *Project) error
	UpdateProject(ctx context.Context, project *Project) error
	DeleteProject(ctx context.Context, id snowflake.ID) error
	FindByID(ctx context.Context, id snowflake.ID) (*Project, error)
	FindBySlug(ctx context.Context, slug string) (*Project, error)
	FindByDomain(ctx context.Context, domain string) (*Project, error)
	SlugExists(ctx context.Context, slug string, excludeID snowflake.ID) (bool, error)
	DomainExists(ctx context.Context, domain string, excludeID snowflake.ID) (bool, error)
	SetActive(ctx context.Context, id snowflake.ID, active bool) error

	AddMember(ctx context.Context, member *ProjectMember) error
	UpsertMember(ctx context.Context, member *ProjectMember) error
	GetMemberRole(ctx context.Context, projectID snowflake.ID, userID string) (string, error)
	ListMembers(ctx context.Context, projectID snowflake.ID) ([]ProjectMember, error)
}
