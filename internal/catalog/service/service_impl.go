package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantgate/internal/catalog/domain"
	"github.com/smallbiznis/tenantgate/internal/clock"
	"github.com/smallbiznis/tenantgate/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(db *gorm.DB, log *zap.Logger, repo domain.Repository, genID *snowflake.Node, c clock.Clock) domain.Service {
	return &service{
		db:    db,
		log:   log.Named("catalog.service"),
		repo:  repo,
		genID: genID,
		clock: c,
	}
}

func (s *service) CreateApplication(ctx context.Context, req domain.CreateApplicationRequest) (*domain.Application, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Price.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}

	appSlug := slug.Make(strings.TrimSpace(req.Slug))
	if appSlug == "" {
		appSlug = slug.Make(name)
	}

	now := s.clock.Now().UTC()
	app := domain.Application{
		ID:          s.genID.Generate(),
		Name:        name,
		Slug:        appSlug,
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Listed:      !req.Unlisted,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateApplication(ctx, &app); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}
	return &app, nil
}

func (s *service) ListApplications(ctx context.Context) ([]domain.Application, error) {
	return s.repo.ListListed(ctx)
}

// AddToProject selects an application for a project. Selecting it again
// reactivates the existing row and replaces its custom price.
func (s *service) AddToProject(ctx context.Context, projectID, applicationID snowflake.ID, customPrice *decimal.Decimal) (*domain.TenantApplication, error) {
	if customPrice != nil && customPrice.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}

	var result *domain.TenantApplication
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		app, err := repo.FindApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if !app.IsActive {
			return domain.ErrApplicationInactive
		}

		now := s.clock.Now().UTC()
		sel, err := repo.FindSelection(ctx, projectID, applicationID)
		switch {
		case errors.Is(err, domain.ErrNotSelected):
			sel = &domain.TenantApplication{
				ID:            s.genID.Generate(),
				ProjectID:     projectID,
				ApplicationID: applicationID,
				CreatedAt:     now,
			}
		case err != nil:
			return err
		}

		sel.CustomPrice = customPrice
		sel.IsActive = true
		sel.UpdatedAt = now
		if err := repo.SaveSelection(ctx, sel); err != nil {
			return err
		}
		sel.Application = app
		result = sel
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("application added to project",
		zap.String("project_id", projectID.String()),
		zap.String("application_id", applicationID.String()),
	)
	return result, nil
}

func (s *service) RemoveFromProject(ctx context.Context, projectID, applicationID snowflake.ID) error {
	sel, err := s.repo.FindSelection(ctx, projectID, applicationID)
	if err != nil {
		return err
	}
	if !sel.IsActive {
		return domain.ErrNotSelected
	}
	sel.IsActive = false
	sel.UpdatedAt = s.clock.Now().UTC()
	return s.repo.SaveSelection(ctx, sel)
}

func (s *service) ListProjectApplications(ctx context.Context, projectID snowflake.ID) ([]domain.TenantApplication, error) {
	return s.repo.ListSelections(ctx, projectID)
}
