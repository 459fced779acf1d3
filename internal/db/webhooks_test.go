package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedWebhook(t *testing.T, store *DB, name string) *Webhook {
	t.Helper()
	hook := &Webhook{
		Name:        name,
		WebhookType: WebhookSlack,
		WebhookURL:  "https://hooks.slack.com/services/T000/B000/XXXXYYYY",
		EventTypes:  []EventType{EventTaskCompleted, EventTaskFailed},
		Enabled:     true,
	}
	require.NoError(t, store.CreateWebhook(hook))
	return hook
}

func TestWebhookRoundTrip(t *testing.T) {
	store := newTestDB(t)

	hook := seedWebhook(t, store, "ops-slack")
	got, err := store.GetWebhook(hook.ID)
	require.NoError(t, err)
	assert.Equal(t, "ops-slack", got.Name)
	assert.Equal(t, WebhookSlack, got.WebhookType)
	assert.Equal(t, []EventType{EventTaskCompleted, EventTaskFailed}, got.EventTypes)
	assert.Zero(t, got.FailureCount)
	assert.Nil(t, got.LastUsedAt)
}

func TestUpdateWebhookLeavesDeliveryCounters(t *testing.T) {
	store := newTestDB(t)
	hook := seedWebhook(t, store, "ops-slack")

	require.NoError(t, store.RecordDeliveryFailure(hook.ID))
	require.NoError(t, store.RecordDeliveryFailure(hook.ID))

	hook.Name = "ops-slack-renamed"
	hook.FailureCount = 0 // stale in-memory value must not be written back
	require.NoError(t, store.UpdateWebhook(hook))

	got, err := store.GetWebhook(hook.ID)
	require.NoError(t, err)
	assert.Equal(t, "ops-slack-renamed", got.Name)
	assert.Equal(t, 2, got.FailureCount)
}

func TestDeliveryCounters(t *testing.T) {
	store := newTestDB(t)
	hook := seedWebhook(t, store, "ops-slack")

	require.NoError(t, store.RecordDeliveryFailure(hook.ID))
	got, err := store.GetWebhook(hook.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailureCount)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordDeliverySuccess(hook.ID, at))
	got, err = store.GetWebhook(hook.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailureCount)
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, got.LastUsedAt.Equal(at))
}

func TestListWebhooksFilters(t *testing.T) {
	store := newTestDB(t)

	seedWebhook(t, store, "ops-slack")
	discord := &Webhook{
		Name:        "ops-discord",
		WebhookType: WebhookDiscord,
		WebhookURL:  "https://discord.com/api/webhooks/1/abc",
		EventTypes:  []EventType{EventTaskFailed},
		MachineID:   "m1",
		Enabled:     false,
	}
	require.NoError(t, store.CreateWebhook(discord))

	all, err := store.ListWebhooks(WebhookFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled := true
	active, err := store.ListWebhooks(WebhookFilter{Enabled: &enabled})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ops-slack", active[0].Name)

	scoped, err := store.ListWebhooks(WebhookFilter{MachineID: "m1"})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, discord.ID, scoped[0].ID)
}

func TestDeleteWebhook(t *testing.T) {
	store := newTestDB(t)
	hook := seedWebhook(t, store, "ops-slack")

	require.NoError(t, store.DeleteWebhook(hook.ID))
	require.ErrorIs(t, store.DeleteWebhook(hook.ID), ErrNotFound)
	_, err := store.GetWebhook(hook.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMachineCRUD(t *testing.T) {
	store := newTestDB(t)

	m := &Machine{Name: "builder-01", Hostname: "builder-01.local", Enabled: true}
	require.NoError(t, store.CreateMachine(m))
	require.ErrorIs(t, store.CreateMachine(&Machine{Name: "builder-01"}), ErrConflict)

	got, err := store.GetMachine(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "builder-01.local", got.Hostname)

	machines, err := store.ListMachines()
	require.NoError(t, err)
	assert.Len(t, machines, 1)

	require.NoError(t, store.DeleteMachine(m.ID))
	require.ErrorIs(t, store.DeleteMachine(m.ID), ErrNotFound)
}
