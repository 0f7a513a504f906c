package db

import (
	"context"
	"database/sql"
	"fmt"
)

var (
	Activity    = &ActivityOperations{}
	Supervisors = &SupervisorOperations{}
)

type ActivityOperations struct{}

func (o *ActivityOperations) Insert(ctx context.Context, actor, action, entityType, entityID, details string) error {
	_, err := GetDB().ExecContext(ctx, InsertActivity, actor, action, entityType, entityID, details)
	if err != nil {
		return fmt.Errorf("failed to insert activity entry: %w", err)
	}
	return nil
}

func (o *ActivityOperations) List(ctx context.Context, limit, offset int) ([]*ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := GetDB().QueryContext(ctx, ListActivity, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	return scanActivity(rows)
}

func (o *ActivityOperations) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := GetDB().QueryContext(ctx, ListActivityByEntity, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity for %s %s: %w", entityType, entityID, err)
	}
	defer rows.Close()

	return scanActivity(rows)
}

func scanActivity(rows *sql.Rows) ([]*ActivityEntry, error) {
	var entries []*ActivityEntry
	for rows.Next() {
		e := &ActivityEntry{}
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.EntityType, &e.EntityID, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type SupervisorOperations struct{}

func (o *SupervisorOperations) Create(ctx context.Context, s *Supervisor) error {
	_, err := GetDB().ExecContext(ctx, InsertSupervisor, s.AdminID, s.StoreID, s.Username, s.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}
	return nil
}

func (o *SupervisorOperations) GetByUsername(ctx context.Context, username string) (*Supervisor, error) {
	s := &Supervisor{}
	var lastLogin sql.NullTime
	err := GetDB().QueryRowContext(ctx, GetSupervisorByUsername, username).Scan(
		&s.AdminID, &s.StoreID, &s.Username, &s.PasswordHash, &s.CreatedAt, &lastLogin)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get supervisor: %w", err)
	}
	if lastLogin.Valid {
		s.LastLogin = &lastLogin.Time
	}
	return s, nil
}

func (o *SupervisorOperations) TouchLogin(ctx context.Context, adminID string) error {
	_, err := GetDB().ExecContext(ctx, UpdateSupervisorLogin, adminID)
	if err != nil {
		return fmt.Errorf("failed to update supervisor login: %w", err)
	}
	return nil
}

func (o *SupervisorOperations) Count(ctx context.Context) (int, error) {
	var count int
	if err := GetDB().QueryRowContext(ctx, CountSupervisors).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count supervisors: %w", err)
	}
	return count, nil
}
