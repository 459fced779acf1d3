package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/fleet-tasks/internal/db"
)

func newTestStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestDispatcher(t *testing.T, store *db.DB) *Dispatcher {
	t.Helper()
	return NewDispatcher(store, zerolog.Nop(), 2*time.Second, 100)
}

func createHook(t *testing.T, store *db.DB, url string, events ...db.EventType) *db.Webhook {
	t.Helper()
	hook := &db.Webhook{
		Name:        "test-hook",
		WebhookType: db.WebhookGeneric,
		WebhookURL:  url,
		EventTypes:  events,
		Enabled:     true,
	}
	require.NoError(t, store.CreateWebhook(hook))
	return hook
}

func sampleEvent(kind db.EventType) Event {
	return Event{
		Event:       kind,
		Timestamp:   time.Now().UTC(),
		Source:      Source,
		TaskID:      "task-1",
		TaskName:    "Daily Analysis",
		ExecutionID: "exec-1",
		Status:      "completed",
		TriggerType: "scheduled",
		DurationMs:  1500,
		TokensSaved: 240,
		Summary:     "analyzed 2 project(s)",
	}
}

func TestNotifySuccessResetsFailureCount(t *testing.T) {
	store := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := createHook(t, store, srv.URL, db.EventTaskCompleted)
	require.NoError(t, store.RecordDeliveryFailure(hook.ID))

	d := newTestDispatcher(t, store)
	res := d.Notify(hook, sampleEvent(db.EventTaskCompleted))
	assert.True(t, res.Success)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	got, err := store.GetWebhook(hook.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailureCount)
	assert.NotNil(t, got.LastUsedAt)
}

func TestNotifyFailureIncrementsExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hook := createHook(t, store, srv.URL, db.EventTaskCompleted)
	d := newTestDispatcher(t, store)

	res := d.Notify(hook, sampleEvent(db.EventTaskCompleted))
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
	assert.NotEmpty(t, res.Error)

	got, err := store.GetWebhook(hook.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailureCount)
	assert.Nil(t, got.LastUsedAt)
}

func TestNotifyUnreachableURL(t *testing.T) {
	store := newTestStore(t)
	// Reserved TEST-NET address, nothing listens there.
	hook := createHook(t, store, "http://192.0.2.1:9/hook", db.EventTaskCompleted)
	d := NewDispatcher(store, zerolog.Nop(), 200*time.Millisecond, 100)

	res := d.Notify(hook, sampleEvent(db.EventTaskCompleted))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)

	got, err := store.GetWebhook(hook.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailureCount)
}

func TestDispatchFiltersSubscriptionAndScope(t *testing.T) {
	store := newTestStore(t)

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	subscribed := createHook(t, store, srv.URL, db.EventTaskCompleted)

	wrongEvent := createHook(t, store, srv.URL, db.EventTaskFailed)
	wrongEvent.Name = "wrong-event"
	require.NoError(t, store.UpdateWebhook(wrongEvent))

	otherMachine := &db.Webhook{
		Name:        "other-machine",
		WebhookType: db.WebhookGeneric,
		WebhookURL:  srv.URL,
		EventTypes:  []db.EventType{db.EventTaskCompleted},
		MachineID:   "machine-z",
		Enabled:     true,
	}
	require.NoError(t, store.CreateWebhook(otherMachine))

	disabled := &db.Webhook{
		Name:        "disabled",
		WebhookType: db.WebhookGeneric,
		WebhookURL:  srv.URL,
		EventTypes:  []db.EventType{db.EventTaskCompleted},
		Enabled:     false,
	}
	require.NoError(t, store.CreateWebhook(disabled))

	d := newTestDispatcher(t, store)
	event := sampleEvent(db.EventTaskCompleted)
	event.MachineID = "machine-a"

	fired := d.Dispatch(event)
	assert.Equal(t, []string{subscribed.ID}, fired)
	assert.Equal(t, 1, hits)
}

func TestDispatchUnscopedWebhookMatchesAllMachines(t *testing.T) {
	store := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := createHook(t, store, srv.URL, db.EventTaskFailed)
	d := newTestDispatcher(t, store)

	event := sampleEvent(db.EventTaskFailed)
	event.MachineID = "any-machine"
	fired := d.Dispatch(event)
	assert.Equal(t, []string{hook.ID}, fired)
}

func TestTestFiresSyntheticNotification(t *testing.T) {
	store := newTestStore(t)

	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := createHook(t, store, srv.URL, db.EventTaskCompleted)
	d := newTestDispatcher(t, store)

	res := d.Test(hook)
	assert.True(t, res.Success)
	require.NotNil(t, received)
	assert.Equal(t, "test_notification", received["event"])

	got, err := store.GetWebhook(hook.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastUsedAt)
}

func TestPayloadShapes(t *testing.T) {
	event := sampleEvent(db.EventTaskCompleted)

	slack, err := slackBuilder{}.Build(event)
	require.NoError(t, err)
	var slackBody struct {
		Attachments []struct {
			Color  string `json:"color"`
			Blocks []struct {
				Type string `json:"type"`
			} `json:"blocks"`
		} `json:"attachments"`
	}
	require.NoError(t, json.Unmarshal(slack, &slackBody))
	require.Len(t, slackBody.Attachments, 1)
	assert.Equal(t, "#00FF00", slackBody.Attachments[0].Color)
	assert.Equal(t, "header", slackBody.Attachments[0].Blocks[0].Type)

	discord, err := discordBuilder{}.Build(event)
	require.NoError(t, err)
	var discordBody struct {
		Embeds []struct {
			Title string `json:"title"`
			Color int    `json:"color"`
		} `json:"embeds"`
	}
	require.NoError(t, json.Unmarshal(discord, &discordBody))
	require.Len(t, discordBody.Embeds, 1)
	assert.Contains(t, discordBody.Embeds[0].Title, "Daily Analysis")
	assert.Equal(t, 0x00FF00, discordBody.Embeds[0].Color)

	n8n, err := n8nBuilder{}.Build(event)
	require.NoError(t, err)
	var n8nBody map[string]any
	require.NoError(t, json.Unmarshal(n8n, &n8nBody))
	assert.Equal(t, "task_completed", n8nBody["event"])
	assert.Equal(t, Source, n8nBody["source"])
	assert.Contains(t, n8nBody, "data")

	generic, err := genericBuilder{}.Build(event)
	require.NoError(t, err)
	var genericBody Event
	require.NoError(t, json.Unmarshal(generic, &genericBody))
	assert.Equal(t, event.TaskID, genericBody.TaskID)
	assert.Equal(t, event.TokensSaved, genericBody.TokensSaved)
}

func TestBuilderForUnknownType(t *testing.T) {
	_, err := builderFor(db.WebhookType("pagerduty"))
	require.Error(t, err)
}

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "********XXXXYYYY",
		MaskURL("https://hooks.slack.com/services/T000/B000/XXXXYYYY"))
	assert.Equal(t, "********", MaskURL("short"))
	assert.Equal(t, "********", MaskURL(""))
}
