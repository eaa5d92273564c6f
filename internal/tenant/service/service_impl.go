package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	billingdomain "github.com/smallbiznis/tenantgate/internal/billing/domain"
	"github.com/smallbiznis/tenantgate/internal/billing/event"
	"github.com/smallbiznis/tenantgate/internal/clock"
	"github.com/smallbiznis/tenantgate/internal/tenant/domain"
	"github.com/smallbiznis/tenantgate/internal/tenantdb"
	"github.com/smallbiznis/tenantgate/internal/vault"
	"github.com/smallbiznis/tenantgate/pkg/db"
	"github.com/smallbiznis/tenantgate/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DatabaseEvictor drops cached tenant database handles.
type DatabaseEvictor interface {
	Evict(dsn string) error
}

// StorageEvictor drops cached tenant storage clients.
type StorageEvictor interface {
	Evict(creds tenantctx.StorageCredentials) error
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      domain.Repository
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cipher    vault.Cipher
	Billing   billingdomain.Service
	Publisher event.Publisher
	Databases DatabaseEvictor `optional:"true"`
	Storage   StorageEvictor  `optional:"true"`
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	genID     *snowflake.Node
	clock     clock.Clock
	cipher    vault.Cipher
	billing   billingdomain.Service
	publisher event.Publisher
	databases DatabaseEvictor
	storage   StorageEvictor
}

func NewService(p Params) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("tenant.service"),
		repo:      p.Repo,
		genID:     p.GenID,
		clock:     p.Clock,
		cipher:    p.Cipher,
		billing:   p.Billing,
		publisher: p.Publisher,
		databases: p.Databases,
		storage:   p.Storage,
	}
}

// Onboard creates the project, its owner membership and its subscription.
func (s *service) Onboard(ctx context.Context, req domain.OnboardRequest) (*domain.ProjectResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	owner := strings.TrimSpace(req.OwnerUserID)
	if owner == "" {
		return nil, domain.ErrInvalidUser
	}
	dsn := strings.TrimSpace(req.DatabaseDSN)
	if _, err := db.DialectFromDSN(dsn); err != nil {
		return nil, domain.ErrInvalidDSN
	}

	projectSlug := slug.Make(strings.TrimSpace(req.Slug))
	if projectSlug == "" {
		projectSlug = slug.Make(name)
	}
	if projectSlug == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now().UTC()
	project := domain.Project{
		ID:          s.genID.Generate(),
		Name:        name,
		Slug:        projectSlug,
		LLMProvider: strings.TrimSpace(req.LLMProvider),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if host := domain.NormalizeDomain(req.Domain); host != "" {
		project.Domain = &host
	}

	var err error
	if project.DatabaseDSNEncrypted, err = s.cipher.Encrypt(dsn); err != nil {
		return nil, err
	}
	if err := s.applyStorage(&project, req.Storage); err != nil {
		return nil, err
	}
	if key := strings.TrimSpace(req.LLMAPIKey); key != "" {
		if project.LLMAPIKeyEncrypted, err = s.cipher.Encrypt(key); err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.ensureUnique(ctx, repo, &project); err != nil {
			return err
		}
		if err := repo.CreateProject(ctx, &project); err != nil {
			return mapDuplicate(err)
		}
		if err := repo.AddMember(ctx, &domain.ProjectMember{
			ID:        s.genID.Generate(),
			ProjectID: project.ID,
			UserID:    owner,
			Role:      domain.RoleOwner,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return s.publisher.Publish(ctx, tx, event.Event{
			Type:      event.ProjectOnboardedTopic,
			ProjectID: project.ID,
			Payload: map[string]any{
				"slug":  project.Slug,
				"owner": owner,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	sub, err := s.billing.CreateSubscription(ctx, billingdomain.CreateSubscriptionRequest{
		ProjectID:        project.ID,
		OwnerUserID:      owner,
		UserPrice:        req.UserPrice,
		ApplicationPrice: req.ApplicationPrice,
	})
	if err != nil {
		// A project without a subscription would never be billed.
		if derr := s.repo.DeleteProject(ctx, project.ID); derr != nil {
			s.log.Error("onboarding rollback failed", zap.String("project_id", project.ID.String()), zap.Error(derr))
		}
		return nil, err
	}

	s.log.Info("project onboarded",
		zap.String("project_id", project.ID.String()),
		zap.String("slug", project.Slug),
	)
	resp := toResponse(&project)
	resp.SubscriptionID = sub.ID.String()
	return resp, nil
}

// Update applies admin changes. Rotated database or storage credentials evict
// the cached handles built from the old values.
func (s *service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.ProjectResponse, error) {
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	old, err := domain.DecryptSecrets(s.cipher, project)
	if err != nil {
		s.log.Warn("stored secrets unreadable, cached handles will not be evicted",
			zap.String("project_id", id.String()), zap.Error(err))
		old = nil
	}

	var rotateDSN, rotateStorage bool
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		project.Name = name
	}
	if req.Domain != nil {
		if host := domain.NormalizeDomain(*req.Domain); host != "" {
			project.Domain = &host
		} else {
			project.Domain = nil
		}
	}
	if req.DatabaseDSN != nil {
		dsn := strings.TrimSpace(*req.DatabaseDSN)
		if _, err := db.DialectFromDSN(dsn); err != nil {
			return nil, domain.ErrInvalidDSN
		}
		if project.DatabaseDSNEncrypted, err = s.cipher.Encrypt(dsn); err != nil {
			return nil, err
		}
		rotateDSN = old == nil || old.DatabaseDSN != dsn
	}
	if req.Storage != nil {
		if err := s.applyStorage(project, *req.Storage); err != nil {
			return nil, err
		}
		rotateStorage = true
	}
	if req.LLMProvider != nil {
		project.LLMProvider = strings.TrimSpace(*req.LLMProvider)
	}
	if req.LLMAPIKey != nil {
		project.LLMAPIKeyEncrypted = ""
		if key := strings.TrimSpace(*req.LLMAPIKey); key != "" {
			if project.LLMAPIKeyEncrypted, err = s.cipher.Encrypt(key); err != nil {
				return nil, err
			}
		}
	}
	if req.IsActive != nil {
		project.IsActive = *req.IsActive
	}
	project.UpdatedAt = s.clock.Now().UTC()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.ensureUnique(ctx, repo, project); err != nil {
			return err
		}
		return mapDuplicate(repo.UpdateProject(ctx, project))
	})
	if err != nil {
		return nil, err
	}

	if old != nil {
		if rotateDSN {
			s.evictDatabase(old.DatabaseDSN)
		}
		if rotateStorage {
			s.evictStorage(old.Storage)
		}
	}
	return toResponse(project), nil
}

// Remove deletes the project with its members, subscriptions, invoices and
// application selections, then releases its cached handles.
func (s *service) Remove(ctx context.Context, id snowflake.ID) error {
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	secrets, err := domain.DecryptSecrets(s.cipher, project)
	if err != nil {
		s.log.Warn("stored secrets unreadable during removal", zap.String("project_id", id.String()), zap.Error(err))
		secrets = nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).DeleteProject(ctx, id)
	})
	if err != nil {
		return err
	}

	if secrets != nil {
		s.evictDatabase(secrets.DatabaseDSN)
		s.evictStorage(secrets.Storage)
	}
	s.log.Info("project removed", zap.String("project_id", id.String()))
	return nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.ProjectResponse, error) {
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toResponse(project), nil
}

func (s *service) SetMember(ctx context.Context, projectID snowflake.ID, userID string, role string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrInvalidUser
	}
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case domain.RoleOwner, domain.RoleAdmin, domain.RoleMember:
	default:
		return domain.ErrInvalidRole
	}

	if _, err := s.repo.FindByID(ctx, projectID); err != nil {
		return err
	}
	return s.repo.UpsertMember(ctx, &domain.ProjectMember{
		ID:        s.genID.Generate(),
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		CreatedAt: s.clock.Now().UTC(),
	})
}

func (s *service) MemberRole(ctx context.Context, projectID snowflake.ID, userID string) (string, error) {
	return s.repo.GetMemberRole(ctx, projectID, strings.TrimSpace(userID))
}

func (s *service) applyStorage(project *domain.Project, in domain.StorageInput) error {
	project.StorageEndpoint = strings.TrimSpace(in.Endpoint)
	project.StorageRegion = strings.TrimSpace(in.Region)
	project.StorageBucket = strings.TrimSpace(in.Bucket)
	project.StorageCredentialsEncrypted = ""

	if strings.TrimSpace(in.AccessKeyID) == "" && strings.TrimSpace(in.SecretAccessKey) == "" {
		return nil
	}
	raw, err := json.Marshal(domain.StorageSecret{
		AccessKeyID:     strings.TrimSpace(in.AccessKeyID),
		SecretAccessKey: strings.TrimSpace(in.SecretAccessKey),
	})
	if err != nil {
		return err
	}
	project.StorageCredentialsEncrypted, err = s.cipher.Encrypt(string(raw))
	return err
}

func (s *service) ensureUnique(ctx context.Context, repo domain.Repository, project *domain.Project) error {
	taken, err := repo.SlugExists(ctx, project.Slug, project.ID)
	if err != nil {
		return err
	}
	if taken {
		return domain.ErrSlugTaken
	}
	if project.Domain == nil {
		return nil
	}
	taken, err = repo.DomainExists(ctx, *project.Domain, project.ID)
	if err != nil {
		return err
	}
	if taken {
		return domain.ErrDomainTaken
	}
	return nil
}

func (s *service) evictDatabase(dsn string) {
	if s.databases == nil || dsn == "" {
		return
	}
	if err := s.databases.Evict(dsn); err != nil {
		s.log.Warn("closing tenant database handle failed", zap.Error(err))
	}
}

func (s *service) evictStorage(creds tenantctx.StorageCredentials) {
	if s.storage == nil || creds.Bucket == "" {
		return
	}
	if err := s.storage.Evict(creds); err != nil {
		s.log.Warn("releasing tenant storage client failed", zap.Error(err))
	}
}

// mapDuplicate turns a unique-index violation into the matching sentinel.
func mapDuplicate(err error) error {
	if err == nil || !db.IsDuplicateKeyErr(err) {
		return err
	}
	if strings.Contains(err.Error(), "domain") {
		return domain.ErrDomainTaken
	}
	return domain.ErrSlugTaken
}

func toResponse(p *domain.Project) *domain.ProjectResponse {
	return &domain.ProjectResponse{
		ID:            p.ID.String(),
		Name:          p.Name,
		Slug:          p.Slug,
		Domain:        p.DomainValue(),
		StorageBucket: p.StorageBucket,
		LLMProvider:   p.LLMProvider,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
	}
}

type dsnLookup struct {
	repo   domain.Repository
	cipher vault.Cipher
}

// NewDSNLookup resolves a project's decrypted database DSN for usage queries.
func NewDSNLookup(repo domain.Repository, cipher vault.Cipher) tenantdb.DSNLookup {
	return &dsnLookup{repo: repo, cipher: cipher}
}

func (l *dsnLookup) TenantDSN(ctx context.Context, projectID snowflake.ID) (string, error) {
	project, err := l.repo.FindByID(ctx, projectID)
	if err != nil {
		return "", err
	}
	dsn, err := l.cipher.Decrypt(project.DatabaseDSNEncrypted)
	if err != nil {
		return "", err
	}
	if dsn == "" {
		return "", errors.New("project has no database configured")
	}
	return dsn, nil
}
