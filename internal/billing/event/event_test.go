package event_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/smallbiznis/tenantgate/internal/billing/event"
	"github.com/smallbiznis/tenantgate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestOutboxPublishRecordsRow(t *testing.T) {
	conn := testutil.ControlPlaneDB(t)
	node := testutil.Node(t)
	pub := event.NewOutboxPublisher(conn, node, zap.NewNop())

	projectID := node.Generate()
	invoiceID := node.Generate()
	require.NoError(t, pub.Publish(context.Background(), nil, event.Event{
		Type:      event.InvoicePaidTopic,
		ProjectID: projectID,
		InvoiceID: &invoiceID,
		Payload:   map[string]any{"reference": "pi_1"},
	}))

	var row event.BillingEvent
	require.NoError(t, conn.First(&row, "project_id = ?", projectID).Error)
	assert.Equal(t, event.InvoicePaidTopic, row.EventType)
	require.NotNil(t, row.InvoiceID)
	assert.Equal(t, invoiceID, *row.InvoiceID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(row.Payload, &payload))
	assert.Equal(t, "pi_1", payload["reference"])
}

func TestOutboxPublishRollsBackWithTransaction(t *testing.T) {
	conn := testutil.ControlPlaneDB(t)
	node := testutil.Node(t)
	pub := event.NewOutboxPublisher(conn, node, zap.NewNop())
	projectID := node.Generate()

	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := pub.Publish(context.Background(), tx, event.Event{Type: event.InvoiceOverdueTopic, ProjectID: projectID}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&event.BillingEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestOutboxPublishRequiresProject(t *testing.T) {
	conn := testutil.ControlPlaneDB(t)
	pub := event.NewOutboxPublisher(conn, testutil.Node(t), zap.NewNop())

	err := pub.Publish(context.Background(), nil, event.Event{Type: event.InvoicePaidTopic})
	assert.ErrorIs(t, err, event.ErrMissingProject)
}
