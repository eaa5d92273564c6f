package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantgate/internal/catalog/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateApplication(ctx context.Context, app *domain.Application) error {
	return r.db.WithContext(ctx).Create(app).Error
}

func (r *repository) FindApplication(ctx context.Context, id snowflake.ID) (*domain.Application, error) {
	var app domain.Application
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrApplicationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *repository) ListListed(ctx context.Context) ([]domain.Application, error) {
	var apps []domain.Application
	if err := r.db.WithContext(ctx).
		Where("listed = ? AND is_active = ?", true, true).
		Order("name ASC").
		Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *repository) FindSelection(ctx context.Context, projectID, applicationID snowflake.ID) (*domain.TenantApplication, error) {
	var sel domain.TenantApplication
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND application_id = ?", projectID, applicationID).
		Take(&sel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotSelected
	}
	if err != nil {
		return nil, err
	}
	return &sel, nil
}

func (r *repository) SaveSelection(ctx context.Context, sel *domain.TenantApplication) error {
	return r.db.WithContext(ctx).Omit("Application").Save(sel).Error
}

func (r *repository) ListSelections(ctx context.Context, projectID snowflake.ID) ([]domain.TenantApplication, error) {
	var rows []domain.TenantApplication
	if err := r.db.WithContext(ctx).
		Preload("Application").
		Where("project_id = ? AND is_active = ?", projectID, true).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
