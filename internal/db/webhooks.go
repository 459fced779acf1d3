package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const webhookColumns = `id, name, description, webhook_type, webhook_url, config,
	event_types, machine_id, enabled, created_at, updated_at, last_used_at,
	failure_count`

// WebhookFilter narrows ListWebhooks results.
type WebhookFilter struct {
	MachineID   string
	WebhookType WebhookType
	Enabled     *bool
}

// CreateWebhook inserts a new webhook config.
func (db *DB) CreateWebhook(w *Webhook) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now

	events, err := json.Marshal(w.EventTypes)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(`
		INSERT INTO webhooks (`+webhookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.Name, w.Description, w.WebhookType, w.WebhookURL, w.Config,
		string(events), w.MachineID, w.Enabled, w.CreatedAt, w.UpdatedAt,
		w.LastUsedAt, w.FailureCount)
	return err
}

// GetWebhook retrieves a webhook by ID.
func (db *DB) GetWebhook(id string) (*Webhook, error) {
	row := db.conn.QueryRow(`SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id)
	return scanWebhook(row)
}

// ListWebhooks retrieves webhooks matching the filter, newest first.
func (db *DB) ListWebhooks(f WebhookFilter) ([]*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE 1=1`
	var args []any
	if f.MachineID != "" {
		query += " AND machine_id = ?"
		args = append(args, f.MachineID)
	}
	if f.WebhookType != "" {
		query += " AND webhook_type = ?"
		args = append(args, f.WebhookType)
	}
	if f.Enabled != nil {
		query += " AND enabled = ?"
		args = append(args, *f.Enabled)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hooks []*Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, w)
	}
	return hooks, rows.Err()
}

// UpdateWebhook persists the mutable fields of a webhook. The delivery
// bookkeeping columns (last_used_at, failure_count) are deliberately not
// written here; only delivery attempts change them.
func (db *DB) UpdateWebhook(w *Webhook) error {
	w.UpdatedAt = time.Now().UTC()
	events, err := json.Marshal(w.EventTypes)
	if err != nil {
		return err
	}
	res, err := db.conn.Exec(`
		UPDATE webhooks SET name = ?, description = ?, webhook_type = ?,
			webhook_url = ?, config = ?, event_types = ?, machine_id = ?,
			enabled = ?, updated_at = ?
		WHERE id = ?
	`, w.Name, w.Description, w.WebhookType, w.WebhookURL, w.Config,
		string(events), w.MachineID, w.Enabled, w.UpdatedAt, w.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWebhook deletes a webhook.
func (db *DB) DeleteWebhook(id string) error {
	res, err := db.conn.Exec("DELETE FROM webhooks WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDeliverySuccess resets the failure counter and stamps last_used_at.
func (db *DB) RecordDeliverySuccess(id string, at time.Time) error {
	_, err := db.conn.Exec(`
		UPDATE webhooks SET failure_count = 0, last_used_at = ? WHERE id = ?
	`, at, id)
	return err
}

// RecordDeliveryFailure increments the failure counter.
func (db *DB) RecordDeliveryFailure(id string) error {
	_, err := db.conn.Exec(`
		UPDATE webhooks SET failure_count = failure_count + 1 WHERE id = ?
	`, id)
	return err
}

func scanWebhook(row rowScanner) (*Webhook, error) {
	w := &Webhook{}
	var events string
	err := row.Scan(&w.ID, &w.Name, &w.Description, &w.WebhookType, &w.WebhookURL,
		&w.Config, &events, &w.MachineID, &w.Enabled, &w.CreatedAt, &w.UpdatedAt,
		&w.LastUsedAt, &w.FailureCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if events != "" {
		if err := json.Unmarshal([]byte(events), &w.EventTypes); err != nil {
			return nil, fmt.Errorf("webhook %s: bad event_types: %w", w.ID, err)
		}
	}
	return w, nil
}
