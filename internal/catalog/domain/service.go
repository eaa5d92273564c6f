package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Service interface {
	CreateApplication(ctx context.Context, req CreateApplicationRequest) (*Application, error)
	ListApplications(ctx context.Context) ([]Application, error)
	AddToProject(ctx context.Context, projectID, applicationID snowflake.ID, customPrice *decimal.Decimal) (*TenantApplication, error)
	RemoveFromProject(ctx context.Context, projectID, applicationID snowflake.ID) error
	ListProjectApplications(ctx context.Context, projectID snowflake.ID) ([]TenantApplication, error)
}

type CreateApplicationRequest struct {
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Unlisted    bool            `json:"unlisted"`
}
