package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/residency/internal/platform/grpc/pagination"
	"github.com/louisbranch/residency/internal/services/timeline/storage"
)

// ListResidents implements storage.Directory with keyset paging on id.
func (s *Store) ListResidents(ctx context.Context, pageSize int, pageToken string) (storage.ResidentPage, error) {
	after, err := pagination.DecodeKeyToken(pageToken)
	if err != nil {
		return storage.ResidentPage{}, err
	}
	pageSize = max(pageSize, 1)

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, display_name FROM residents WHERE id > ? ORDER BY id LIMIT ?`,
		after, pageSize+1,
	)
	if err != nil {
		return storage.ResidentPage{}, fmt.Errorf("list residents: %w", err)
	}
	defer rows.Close()

	var residents []storage.Resident
	for rows.Next() {
		var r storage.Resident
		if err := rows.Scan(&r.ID, &r.DisplayName); err != nil {
			return storage.ResidentPage{}, fmt.Errorf("scan resident: %w", err)
		}
		residents = append(residents, r)
	}
	if err := rows.Err(); err != nil {
		return storage.ResidentPage{}, fmt.Errorf("list residents: %w", err)
	}

	page := storage.ResidentPage{Residents: residents}
	if len(residents) > pageSize {
		page.Residents = residents[:pageSize]
		page.NextPageToken = pagination.EncodeKeyToken(page.Residents[pageSize-1].ID)
	}
	return page, nil
}

// PutResident inserts or renames a resident.
func (s *Store) PutResident(ctx context.Context, resident storage.Resident) error {
	id := strings.TrimSpace(resident.ID)
	if id == "" {
		return fmt.Errorf("resident id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO residents (id, display_name) VALUES (?, ?)
ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name`,
		id, strings.TrimSpace(resident.DisplayName),
	)
	if err != nil {
		return fmt.Errorf("put resident %s: %w", id, err)
	}
	return nil
}

// PutResource inserts or relabels a resource.
func (s *Store) PutResource(ctx context.Context, resource storage.Resource) error {
	id := strings.TrimSpace(resource.ID)
	if id == "" {
		return fmt.Errorf("resource id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO resources (id, label) VALUES (?, ?)
ON CONFLICT (id) DO UPDATE SET label = excluded.label`,
		id, strings.TrimSpace(resource.Label),
	)
	if err != nil {
		return fmt.Errorf("put resource %s: %w", id, err)
	}
	return nil
}
