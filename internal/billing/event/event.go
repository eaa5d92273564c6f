package event

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	InvoiceGeneratedTopic    = "invoice.generated"
	InvoicePaidTopic         = "invoice.paid"
	InvoiceOverdueTopic      = "invoice.overdue"
	ProjectDeactivatedTopic  = "project.deactivated"
	ProjectReactivatedTopic  = "project.reactivated"
	ProjectOnboardedTopic    = "project.onboarded"
	SubscriptionCreatedTopic = "subscription.created"
)

var ErrMissingProject = errors.New("missing_project_id")

// Event is a billing lifecycle notification.
type Event struct {
	Type      string
	ProjectID snowflake.ID
	InvoiceID *snowflake.ID
	Payload   map[string]any
}

// Publisher records events. Publish runs inside the caller's transaction so
// the event commits or rolls back with the state change it describes.
type Publisher interface {
	Publish(ctx context.Context, tx *gorm.DB, evt Event) error
}

// BillingEvent is the outbox row.
type BillingEvent struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	ProjectID snowflake.ID   `gorm:"not null;index"`
	InvoiceID *snowflake.ID  `gorm:"column:invoice_id"`
	EventType string         `gorm:"type:text;not null"`
	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (BillingEvent) TableName() string { return "billing_events" }

type outboxPublisher struct {
	db    *gorm.DB
	genID *snowflake.Node
	log   *zap.Logger
}

func NewOutboxPublisher(db *gorm.DB, genID *snowflake.Node, log *zap.Logger) Publisher {
	return &outboxPublisher{
		db:    db,
		genID: genID,
		log:   log.Named("billing.outbox"),
	}
}

func (p *outboxPublisher) Publish(ctx context.Context, tx *gorm.DB, evt Event) error {
	if evt.ProjectID == 0 {
		return ErrMissingProject
	}
	if tx == nil {
		tx = p.db
	}

	payload := evt.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	row := BillingEvent{
		ID:        p.genID.Generate(),
		ProjectID: evt.ProjectID,
		InvoiceID: evt.InvoiceID,
		EventType: evt.Type,
		Payload:   datatypes.JSON(raw),
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}

	p.log.Info("billing event recorded",
		zap.String("event_type", evt.Type),
		zap.String("project_id", evt.ProjectID.String()),
	)
	return nil
}
