package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Service interface {
	Onboard(ctx context.Context, req OnboardRequest) (*ProjectResponse, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (*ProjectResponse, error)
	Remove(ctx context.Context, id snowflake.ID) error
	GetByID(ctx context.Context, id snowflake.ID) (*ProjectResponse, error)
	SetMember(ctx context.Context, projectID snowflake.ID, userID string, role string) error
	MemberRole(ctx context.Context, projectID snowflake.ID, userID string) (string, error)
}

type StorageInput struct {
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

type OnboardRequest struct {
	Name             string          `json:"name"`
	Slug             string          `json:"slug"`
	Domain           string          `json:"domain"`
	DatabaseDSN      string          `json:"database_dsn"`
	Storage          StorageInput    `json:"storage"`
	LLMProvider      string          `json:"llm_provider"`
	LLMAPIKey        string          `json:"llm_api_key"`
	OwnerUserID      string          `json:"owner_user_id"`
	UserPrice        decimal.Decimal `json:"user_price"`
	ApplicationPrice decimal.Decimal `json:"application_price"`
}

// UpdateRequest carries optional changes; nil fields are left untouched.
// An empty Domain clears the custom domain.
type UpdateRequest struct {
	Name        *string       `json:"name"`
	Domain      *string       `json:"domain"`
	DatabaseDSN *string       `json:"database_dsn"`
	Storage     *StorageInput `json:"storage"`
	LLMProvider *string       `json:"llm_provider"`
	LLMAPIKey   *string       `json:"llm_api_key"`
	IsActive    *bool         `json:"is_active"`
}

type ProjectResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Domain         string    `json:"domain,omitempty"`
	StorageBucket  string    `json:"storage_bucket,omitempty"`
	LLMProvider    string    `json:"llm_provider,omitempty"`
	IsActive       bool      `json:"is_active"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
