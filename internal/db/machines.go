package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateMachine registers a new machine.
func (db *DB) CreateMachine(m *Machine) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()

	_, err := db.conn.Exec(`
		INSERT INTO machines (id, name, hostname, enabled, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.Name, m.Hostname, m.Enabled, m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("machine name %q: %w", m.Name, ErrConflict)
		}
		return err
	}
	return nil
}

// GetMachine retrieves a machine by ID.
func (db *DB) GetMachine(id string) (*Machine, error) {
	m := &Machine{}
	err := db.conn.QueryRow(`
		SELECT id, name, hostname, enabled, created_at FROM machines WHERE id = ?
	`, id).Scan(&m.ID, &m.Name, &m.Hostname, &m.Enabled, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMachines retrieves all registered machines.
func (db *DB) ListMachines() ([]*Machine, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, hostname, enabled, created_at FROM machines ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var machines []*Machine
	for rows.Next() {
		m := &Machine{}
		if err := rows.Scan(&m.ID, &m.Name, &m.Hostname, &m.Enabled, &m.CreatedAt); err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// DeleteMachine deregisters a machine. Tasks scoped to it keep their scope
// and simply stop matching; history is retained.
func (db *DB) DeleteMachine(id string) error {
	res, err := db.conn.Exec("DELETE FROM machines WHERE id = ?", id)
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
