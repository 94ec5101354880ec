package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/pgbridge/internal/domain"
)

// ErrNoActiveRollbackPoint is returned when a phase has no active snapshot to
// roll back to.
var ErrNoActiveRollbackPoint = errors.New("no active rollback point for phase")

type rollbackPointRepository struct {
	db DBTX
}

// NewRollbackPointRepository wires the rollback snapshot repository.
func NewRollbackPointRepository(db DBTX) RollbackPointRepository {
	return &rollbackPointRepository{db: db}
}

func (r *rollbackPointRepository) Create(ctx context.Context, point domain.RollbackPoint) (domain.RollbackPoint, error) {
	countsJSON, err := point.RowCountsJSON()
	if err != nil {
		return domain.RollbackPoint{}, fmt.Errorf("failed to marshal row counts: %w", err)
	}
	inventoryJSON, err := point.IndexInventoryJSON()
	if err != nil {
		return domain.RollbackPoint{}, fmt.Errorf("failed to marshal index inventory: %w", err)
	}

	// A new phase snapshot supersedes every earlier one.
	if _, err := r.db.Exec(
		ctx,
		`UPDATE migration_rollback_points SET status = 'expired' WHERE status = 'active'`,
	); err != nil {
		return domain.RollbackPoint{}, fmt.Errorf("failed to expire previous rollback points: %w", err)
	}

	row := r.db.QueryRow(
		ctx,
		`INSERT INTO migration_rollback_points (phase_name, table_row_counts, index_inventory, status)
		 VALUES ($1, $2, $3, 'active')
		 RETURNING id, created_at`,
		point.PhaseName,
		countsJSON,
		inventoryJSON,
	)
	point.Status = domain.RollbackPointStatusActive
	if err := row.Scan(&point.ID, &point.CreatedAt); err != nil {
		return domain.RollbackPoint{}, fmt.Errorf("failed to create rollback point: %w", err)
	}
	return point, nil
}

func (r *rollbackPointRepository) GetActive(ctx context.Context, phase domain.Phase) (domain.RollbackPoint, error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT id, phase_name, table_row_counts, index_inventory, status, created_at
		 FROM migration_rollback_points
		 WHERE phase_name = $1 AND status = 'active'`,
		phase,
	)

	var (
		point         domain.RollbackPoint
		countsJSON    []byte
		inventoryJSON []byte
	)
	if err := row.Scan(&point.ID, &point.PhaseName, &countsJSON, &inventoryJSON, &point.Status, &point.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RollbackPoint{}, fmt.Errorf("%w: %s", ErrNoActiveRollbackPoint, phase)
		}
		return domain.RollbackPoint{}, fmt.Errorf("failed to load rollback point: %w", err)
	}

	counts, err := domain.RowCountsFromJSON(countsJSON)
	if err != nil {
		return domain.RollbackPoint{}, fmt.Errorf("failed to decode row counts: %w", err)
	}
	point.TableRowCounts = counts

	inventory, err := domain.IndexInventoryFromJSON(inventoryJSON)
	if err != nil {
		return domain.RollbackPoint{}, fmt.Errorf("failed to decode index inventory: %w", err)
	}
	point.IndexInventory = inventory

	return point, nil
}

func (r *rollbackPointRepository) MarkUsed(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE migration_rollback_points SET status = 'used' WHERE id = $1 AND status = 'active'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark rollback point used: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("rollback point %d is no longer active", id)
	}
	return nil
}

func (r *rollbackPointRepository) List(ctx context.Context) ([]domain.RollbackPoint, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, phase_name, table_row_counts, index_inventory, status, created_at
		 FROM migration_rollback_points
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rollback points: %w", err)
	}
	defer rows.Close()

	points := []domain.RollbackPoint{}
	for rows.Next() {
		var (
			point         domain.RollbackPoint
			countsJSON    []byte
			inventoryJSON []byte
		)
		if scanErr := rows.Scan(&point.ID, &point.PhaseName, &countsJSON, &inventoryJSON, &point.Status, &point.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan rollback point: %w", scanErr)
		}
		counts, err := domain.RowCountsFromJSON(countsJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode row counts: %w", err)
		}
		point.TableRowCounts = counts
		inventory, err := domain.IndexInventoryFromJSON(inventoryJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode index inventory: %w", err)
		}
		point.IndexInventory = inventory
		points = append(points, point)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate rollback points: %w", rowsErr)
	}
	return points, nil
}
