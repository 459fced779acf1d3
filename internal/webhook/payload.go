package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetops/fleet-tasks/internal/db"
)

// Event is the common model every payload builder renders. One Event fans out
// to all subscribed webhooks regardless of their payload type.
type Event struct {
	Event       db.EventType `json:"event"`
	Timestamp   time.Time    `json:"timestamp"`
	Source      string       `json:"source"`
	TaskID      string       `json:"task_id,omitempty"`
	TaskName    string       `json:"task_name,omitempty"`
	MachineID   string       `json:"machine_id,omitempty"`
	ExecutionID string       `json:"execution_id,omitempty"`
	Status      string       `json:"status,omitempty"`
	TriggerType string       `json:"trigger_type,omitempty"`
	DurationMs  int64        `json:"duration_ms,omitempty"`
	TokensSaved int          `json:"tokens_saved,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// payloadBuilder produces the serialized request body for one webhook type.
// Adding a webhook type means adding a builder here, not branching in the
// dispatcher.
type payloadBuilder interface {
	Build(event Event) ([]byte, error)
}

func builderFor(t db.WebhookType) (payloadBuilder, error) {
	switch t {
	case db.WebhookSlack:
		return slackBuilder{}, nil
	case db.WebhookDiscord:
		return discordBuilder{}, nil
	case db.WebhookN8N:
		return n8nBuilder{}, nil
	case db.WebhookGeneric:
		return genericBuilder{}, nil
	default:
		return nil, fmt.Errorf("unknown webhook type %q", t)
	}
}

// ---- Slack (Block Kit) ----

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackTextObj  `json:"text,omitempty"`
	Fields   []slackTextObj `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackTextObj struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackElement struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Blocks []slackBlock `json:"blocks"`
}

type slackPayload struct {
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackBuilder struct{}

func (slackBuilder) Build(event Event) ([]byte, error) {
	color, emoji := eventTone(event)

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackTextObj{
				Type:  "plain_text",
				Text:  fmt.Sprintf("%s %s: %s", emoji, eventTitle(event.Event), event.TaskName),
				Emoji: true,
			},
		},
		{
			Type: "section",
			Fields: []slackTextObj{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Event:*\n%s", event.Event)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Status:*\n%s", orDash(event.Status))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Trigger:*\n%s", orDash(event.TriggerType))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Duration:*\n%s", formatDuration(event.DurationMs))},
			},
		},
	}

	if event.Summary != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackTextObj{Type: "mrkdwn", Text: truncate(event.Summary, 2500)},
		})
	}

	if event.Error != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackTextObj{
				Type: "mrkdwn",
				Text: fmt.Sprintf(":warning: *Error:*\n```%s```", truncate(event.Error, 500)),
			},
		})
	}

	blocks = append(blocks, slackBlock{
		Type: "context",
		Elements: []slackElement{
			{Type: "mrkdwn", Text: event.Source},
		},
	})

	return json.Marshal(slackPayload{
		Attachments: []slackAttachment{{Color: color, Blocks: blocks}},
	})
}

// ---- Discord (embed) ----

type discordEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Color       int           `json:"color"`
	Fields      []embedField  `json:"fields,omitempty"`
	Timestamp   string        `json:"timestamp,omitempty"`
	Footer      *embedFooter  `json:"footer,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordBuilder struct{}

func (discordBuilder) Build(event Event) ([]byte, error) {
	var color int
	_, emoji := eventTone(event)
	switch {
	case event.Event == db.EventTaskFailed || event.Event == db.EventHealthAlert:
		color = 0xFF0000
	case event.Event == db.EventTaskCompleted || event.Event == db.EventOptimizationApplied:
		color = 0x00FF00
	default:
		color = 0xFFFF00
	}

	embed := discordEmbed{
		Title:       fmt.Sprintf("%s %s: %s", emoji, eventTitle(event.Event), event.TaskName),
		Description: truncate(event.Summary, 3500),
		Color:       color,
		Fields: []embedField{
			{Name: "Event", Value: string(event.Event), Inline: true},
			{Name: "Status", Value: orDash(event.Status), Inline: true},
			{Name: "Duration", Value: formatDuration(event.DurationMs), Inline: true},
		},
		Timestamp: event.Timestamp.Format(time.RFC3339),
		Footer:    &embedFooter{Text: event.Source},
	}

	if event.Error != "" {
		embed.Fields = append(embed.Fields, embedField{
			Name:   "⚠️ Error",
			Value:  fmt.Sprintf("```\n%s\n```", truncate(event.Error, 500)),
			Inline: false,
		})
	}

	return json.Marshal(discordPayload{Embeds: []discordEmbed{embed}})
}

// ---- n8n (event envelope) ----

type n8nBuilder struct{}

func (n8nBuilder) Build(event Event) ([]byte, error) {
	// n8n workflows key off a flat envelope with the event name up front.
	return json.Marshal(map[string]any{
		"event":     event.Event,
		"timestamp": event.Timestamp.Format(time.RFC3339),
		"source":    event.Source,
		"data":      event,
	})
}

// ---- generic JSON ----

type genericBuilder struct{}

func (genericBuilder) Build(event Event) ([]byte, error) {
	return json.Marshal(event)
}

// ---- shared formatting helpers ----

func eventTone(event Event) (color string, emoji string) {
	switch event.Event {
	case db.EventTaskCompleted, db.EventOptimizationApplied:
		return "#00FF00", ":white_check_mark:"
	case db.EventTaskFailed, db.EventHealthAlert:
		return "#FF0000", ":x:"
	case db.EventThresholdTriggered:
		return "#FFA500", ":warning:"
	default:
		return "#FFFF00", ":hourglass:"
	}
}

func eventTitle(e db.EventType) string {
	switch e {
	case db.EventTaskStarted:
		return "Task started"
	case db.EventTaskCompleted:
		return "Task completed"
	case db.EventTaskFailed:
		return "Task failed"
	case db.EventThresholdTriggered:
		return "Threshold triggered"
	case db.EventOptimizationApplied:
		return "Optimization applied"
	case db.EventHealthAlert:
		return "Health alert"
	default:
		return string(e)
	}
}

func formatDuration(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
