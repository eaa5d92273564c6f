package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantgate/internal/tenant/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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

func (r *repository) CreateProject(ctx context.Context, project *domain.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *repository) UpdateProject(ctx context.Context, project *domain.Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}

// DeleteProject removes the project and everything it owns. Billing events
// are kept as the audit trail.
func (r *repository) DeleteProject(ctx context.Context, id snowflake.ID) error {
	db := r.db.WithContext(ctx)
	for _, stmt := range []string{
		`DELETE FROM tenant_applications WHERE project_id = ?`,
		`DELETE FROM invoices WHERE project_id = ?`,
		`DELETE FROM subscriptions WHERE project_id = ?`,
		`DELETE FROM project_members WHERE project_id = ?`,
	} {
		if err := db.Exec(stmt, id).Error; err != nil {
			return err
		}
	}

	res := db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Project, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*domain.Project, error) {
	return r.first(ctx, "slug = ?", strings.TrimSpace(slug))
}

func (r *repository) FindByDomain(ctx context.Context, host string) (*domain.Project, error) {
	return r.first(ctx, "domain = ?", host)
}

func (r *repository) first(ctx context.Context, query string, args ...any) (*domain.Project, error) {
	var project domain.Project
	err := r.db.WithContext(ctx).Where(query, args...).Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *repository) SlugExists(ctx context.Context, slug string, excludeID snowflake.ID) (bool, error) {
	return r.exists(ctx, "slug = ? AND id <> ?", slug, excludeID)
}

func (r *repository) DomainExists(ctx context.Context, host string, excludeID snowflake.ID) (bool, error) {
	return r.exists(ctx, "domain = ? AND id <> ?", host, excludeID)
}

func (r *repository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Project{}).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) SetActive(ctx context.Context, id snowflake.ID, active bool) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE projects SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		active,
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

func (r *repository) AddMember(ctx context.Context, member *domain.ProjectMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *repository) UpsertMember(ctx context.Context, member *domain.ProjectMember) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(member).Error
}

func (r *repository) GetMemberRole(ctx context.Context, projectID snowflake.ID, userID string) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := r.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM project_members
		 WHERE project_id = ? AND user_id = ?
		 LIMIT 1`,
		projectID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", domain.ErrMemberNotFound
	}
	return role, nil
}

func (r *repository) ListMembers(ctx context.Context, projectID snowflake.ID) ([]domain.ProjectMember, error) {
	var members []domain.ProjectMember
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}
