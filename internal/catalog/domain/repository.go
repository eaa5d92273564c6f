package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateApplication(ctx context.Context, app *Application) error
	FindApplication(ctx context.Context, id snowflake.ID) (*Application, error)
	ListListed(ctx context.Context) ([]Application, error)
	FindSelection(ctx context.Context, projectID, applicationID snowflake.ID) (*TenantApplication, error)
	SaveSelection(ctx context.Context, sel *TenantApplication) error
	ListSelections(ctx context.Context, projectID snowflake.ID) ([]TenantApplication, error)
}
