// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sweepd/sweepd/internal/database"
)

// ErrScanNotFound is returned when a scan id has no record.
var ErrScanNotFound = errors.New("scan not found")

// ScanStore persists scan records. Records survive process restarts so the
// scan history and completed findings remain retrievable; only live
// broadcaster state is ephemeral.
type ScanStore struct {
	db database.Querier
}

// NewScanStore creates a new ScanStore.
func NewScanStore(db database.Querier) *ScanStore {
	return &ScanStore{db: db}
}

// Save upserts the full record keyed by id.
func (s *ScanStore) Save(ctx context.Context, scan *Scan) error {
	if scan == nil {
		return errors.New("scan is nil")
	}

	directoriesJSON, err := json.Marshal(scan.Directories)
	if err != nil {
		return fmt.Errorf("marshal directories: %w", err)
	}
	exclusionsJSON, err := json.Marshal(scan.Exclusions)
	if err != nil {
		return fmt.Errorf("marshal exclusions: %w", err)
	}
	optionsJSON, err := json.Marshal(scan.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	var findingsJSON any
	if scan.Findings != nil {
		raw, err := json.Marshal(scan.Findings)
		if err != nil {
			return fmt.Errorf("marshal findings: %w", err)
		}
		findingsJSON = string(raw)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scans
			(id, category, status, directories, exclusions, options,
			 stage, current_item, items_processed, elapsed_ms,
			 findings, findings_count, total_size, error_message,
			 created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			stage = excluded.stage,
			current_item = excluded.current_item,
			items_processed = excluded.items_processed,
			elapsed_ms = excluded.elapsed_ms,
			findings = excluded.findings,
			findings_count = excluded.findings_count,
			total_size = excluded.total_size,
			error_message = excluded.error_message,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, scan.ID, string(scan.Category), string(scan.Status),
		string(directoriesJSON), string(exclusionsJSON), string(optionsJSON),
		scan.Progress.Stage, scan.Progress.CurrentItem, scan.Progress.ItemsProcessed, scan.Progress.ElapsedMS,
		findingsJSON, scan.FindingsCount, scan.TotalSize, scan.ErrorMessage,
		scan.CreatedAt, scan.StartedAt, scan.CompletedAt)
	if err != nil {
		return fmt.Errorf("save scan: %w", err)
	}
	return nil
}

// UpdateProgress writes only the progress snapshot columns.
func (s *ScanStore) UpdateProgress(ctx context.Context, id string, p Progress) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scans
		SET stage = ?, current_item = ?, items_processed = ?, elapsed_ms = ?
		WHERE id = ?
	`, p.Stage, p.CurrentItem, p.ItemsProcessed, p.ElapsedMS, id)
	if err != nil {
		return fmt.Errorf("update scan progress: %w", err)
	}
	return nil
}

// Delete removes a scan record. Deleting an unknown id is not an error.
func (s *ScanStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete scan: %w", err)
	}
	return nil
}

// Get retrieves a scan by id. Returns ErrScanNotFound for unknown ids.
func (s *ScanStore) Get(ctx context.Context, id string) (*Scan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, category, status, directories, exclusions, options,
		       stage, current_item, items_processed, elapsed_ms,
		       findings, findings_count, total_size, error_message,
		       created_at, started_at, completed_at
		FROM scans
		WHERE id = ?
	`, id)

	scan, err := scanRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScanNotFound
	}
	return scan, err
}

// List returns all scans newest-first.
func (s *ScanStore) List(ctx context.Context) ([]*Scan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, status, directories, exclusions, options,
		       stage, current_item, items_processed, elapsed_ms,
		       findings, findings_count, total_size, error_message,
		       created_at, started_at, completed_at
		FROM scans
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []*Scan
	for rows.Next() {
		scan, err := scanRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

// ListActive returns scans still in pending or running state, oldest first.
// Used by startup recovery to fail jobs interrupted by a previous shutdown.
func (s *ScanStore) ListActive(ctx context.Context) ([]*Scan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, status, directories, exclusions, options,
		       stage, current_item, items_processed, elapsed_ms,
		       findings, findings_count, total_size, error_message,
		       created_at, started_at, completed_at
		FROM scans
		WHERE status IN (?, ?)
		ORDER BY created_at ASC
	`, string(ScanStatusPending), string(ScanStatusRunning))
	if err != nil {
		return nil, fmt.Errorf("list active scans: %w", err)
	}
	defer rows.Close()

	var scans []*Scan
	for rows.Next() {
		scan, err := scanRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

func scanRow(scanFn func(dest ...any) error) (*Scan, error) {
	var (
		scan            Scan
		category        string
		status          string
		directoriesJSON string
		exclusionsJSON  string
		optionsJSON     string
		findingsJSON    sql.NullString
		startedAt       sql.NullTime
		completedAt     sql.NullTime
	)

	err := scanFn(
		&scan.ID, &category, &status, &directoriesJSON, &exclusionsJSON, &optionsJSON,
		&scan.Progress.Stage, &scan.Progress.CurrentItem, &scan.Progress.ItemsProcessed, &scan.Progress.ElapsedMS,
		&findingsJSON, &scan.FindingsCount, &scan.TotalSize, &scan.ErrorMessage,
		&scan.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	scan.Category = ScanCategory(category)
	scan.Status = ScanStatus(status)

	if err := json.Unmarshal([]byte(directoriesJSON), &scan.Directories); err != nil {
		return nil, fmt.Errorf("unmarshal directories: %w", err)
	}
	if err := json.Unmarshal([]byte(exclusionsJSON), &scan.Exclusions); err != nil {
		return nil, fmt.Errorf("unmarshal exclusions: %w", err)
	}
	if err := json.Unmarshal([]byte(optionsJSON), &scan.Options); err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}
	if findingsJSON.Valid && findingsJSON.String != "" {
		var findings Findings
		if err := json.Unmarshal([]byte(findingsJSON.String), &findings); err != nil {
			return nil, fmt.Errorf("unmarshal findings: %w", err)
		}
		scan.Findings = &findings
	}
	if startedAt.Valid {
		scan.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		scan.CompletedAt = &completedAt.Time
	}

	return &scan, nil
}
