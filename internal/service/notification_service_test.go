package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/notify"
)

type recordingChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []notify.Message
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return c.err
}

func TestNotificationServiceForwardsCreatedNotifications(t *testing.T) {
	env := newTestEnv(t, envConfig{})
	webhook := &recordingChannel{name: "webhook", err: errors.New("receiver down")}
	email := &recordingChannel{name: "email"}
	NewNotificationService(env.dispatcher, env.store, nil, webhook, nil, email).RegisterHandlers()

	dispatcher := env.seedEngineer(t, "disp-1", domain.StaffRoleDispatcher)
	e1 := env.seedEngineer(t, "e1", domain.StaffRoleEngineer)
	ticket := env.seedTicket(t, dispatcher, e1, "network")

	_, err := env.svc.DeclineAssignment(context.Background(), ticket.ID, e1.ID, "overloaded", staff(e1))
	require.NoError(t, err)

	require.Len(t, webhook.sent, 1)
	require.Len(t, email.sent, 1)
	msg := email.sent[0]
	assert.Equal(t, "disp-1@example.com", msg.RecipientEmail)
	assert.Equal(t, "Engineer disp-1", msg.RecipientName)
	assert.Equal(t, domain.NotificationAssignmentDeclined, msg.Notification.Type)
	require.NotNil(t, msg.Notification.TicketID)
	assert.Equal(t, ticket.ID, *msg.Notification.TicketID)
}

func TestNotificationServiceWithoutChannelsIsInert(t *testing.T) {
	env := newTestEnv(t, envConfig{})
	NewNotificationService(env.dispatcher, env.store, nil).RegisterHandlers()

	dispatcher := env.seedEngineer(t, "disp-1", domain.StaffRoleDispatcher)
	e1 := env.seedEngineer(t, "e1", domain.StaffRoleEngineer)
	ticket := env.seedTicket(t, dispatcher, e1, "")

	_, err := env.svc.Escalate(context.Background(), ticket.ID, staff(dispatcher), "VIP customer")
	require.NoError(t, err)
	assert.Len(t, env.events("notification_created"), 1)
}

type sliceQueue struct {
	capacity int
	items    []domain.Notification
}

func (q *sliceQueue) Enqueue(n domain.Notification) bool {
	if len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, n)
	return true
}

func TestNotificationServiceQueuesInsteadOfSending(t *testing.T) {
	env := newTestEnv(t, envConfig{})
	email := &recordingChannel{name: "email"}
	notifications := NewNotificationService(env.dispatcher, env.store, nil, email)
	queue := &sliceQueue{capacity: 1}
	notifications.UseQueue(queue)
	notifications.RegisterHandlers()

	dispatcher := env.seedEngineer(t, "disp-1", domain.StaffRoleDispatcher)
	e1 := env.seedEngineer(t, "e1", domain.StaffRoleEngineer)
	ticket := env.seedTicket(t, dispatcher, e1, "")

	_, err := env.svc.DeclineAssignment(context.Background(), ticket.ID, e1.ID, "", staff(e1))
	require.NoError(t, err)
	_, err = env.svc.Escalate(context.Background(), ticket.ID, staff(dispatcher), "full queue drops")
	require.NoError(t, err)

	assert.Empty(t, email.sent)
	require.Len(t, queue.items, 1)
	assert.Equal(t, domain.NotificationAssignmentDeclined, queue.items[0].Type)

	notifications.Deliver(context.Background(), queue.items[0])
	require.Len(t, email.sent, 1)
	assert.Equal(t, "disp-1@example.com", email.sent[0].RecipientEmail)
}
