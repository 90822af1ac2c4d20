package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/gridpaint/internal/services/canvas/domain"
)

// ReadAllCells returns every placed cell for a new-session snapshot.
func (s *Store) ReadAllCells(ctx context.Context) ([]domain.Cell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT x, y, color, owner_id, updated_at
FROM cells
ORDER BY y, x
`)
	if err != nil {
		return nil, fmt.Errorf("read cells: %w", err)
	}
	defer rows.Close()

	var cells []domain.Cell
	for rows.Next() {
		var cell domain.Cell
		var updatedAt int64
		if err := rows.Scan(&cell.X, &cell.Y, &cell.Color, &cell.OwnerID, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		cell.UpdatedAt = fromMillis(updatedAt)
		cells = append(cells, cell)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cells: %w", err)
	}
	return cells, nil
}

// UpsertCell creates or overwrites the cell at the given coordinate.
// Last write wins; no history is retained.
func (s *Store) UpsertCell(ctx context.Context, cell domain.Cell) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	cell.Color = strings.TrimSpace(cell.Color)
	cell.OwnerID = strings.TrimSpace(cell.OwnerID)
	if cell.Color == "" {
		return fmt.Errorf("cell color is required")
	}
	if cell.OwnerID == "" {
		return fmt.Errorf("cell owner is required")
	}
	if cell.UpdatedAt.IsZero() {
		cell.UpdatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO cells (x, y, color, owner_id, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(x, y) DO UPDATE SET
	color = excluded.color,
	owner_id = excluded.owner_id,
	updated_at = excluded.updated_at
`,
		cell.X,
		cell.Y,
		cell.Color,
		cell.OwnerID,
		toMillis(cell.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert cell: %w", err)
	}
	return nil
}
