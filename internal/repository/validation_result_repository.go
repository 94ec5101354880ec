package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/pgbridge/internal/domain"
)

type validationResultRepository struct {
	db DBTX
}

// NewValidationResultRepository wires the validation outcome repository.
func NewValidationResultRepository(db DBTX) ValidationResultRepository {
	return &validationResultRepository{db: db}
}

func (r *validationResultRepository) Record(ctx context.Context, result domain.ValidationResult) (domain.ValidationResult, error) {
	detailsJSON, err := result.DetailsJSON()
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("failed to marshal validation details: %w", err)
	}

	var errorMessage any
	if result.ErrorMessage != nil {
		errorMessage = truncateDiagnostic(*result.ErrorMessage)
	}

	row := r.db.QueryRow(
		ctx,
		`INSERT INTO migration_validation_results (validation_type, target_table, passed, error_message, details)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		result.ValidationType,
		result.TargetTable,
		result.Passed,
		errorMessage,
		detailsJSON,
	)
	if err := row.Scan(&result.ID, &result.CreatedAt); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("failed to record validation result: %w", err)
	}
	return result, nil
}

func (r *validationResultRepository) List(ctx context.Context, limit int) ([]domain.ValidationResult, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, validation_type, target_table, passed, error_message, details, created_at
		 FROM migration_validation_results
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list validation results: %w", err)
	}
	defer rows.Close()

	results := []domain.ValidationResult{}
	for rows.Next() {
		var (
			result       domain.ValidationResult
			errorMessage pgtype.Text
			detailsJSON  []byte
		)
		if scanErr := rows.Scan(
			&result.ID,
			&result.ValidationType,
			&result.TargetTable,
			&result.Passed,
			&errorMessage,
			&detailsJSON,
			&result.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan validation result: %w", scanErr)
		}
		if errorMessage.Valid {
			value := errorMessage.String
			result.ErrorMessage = &value
		}
		details, err := domain.DetailsFromJSON(detailsJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode validation details: %w", err)
		}
		result.Details = details
		results = append(results, result)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate validation results: %w", rowsErr)
	}
	return results, nil
}
