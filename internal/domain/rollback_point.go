package domain

import (
	"encoding/json"
	"time"
)

// RollbackPointStatus captures lifecycle state for a rollback point.
type RollbackPointStatus string

const (
	RollbackPointStatusActive  RollbackPointStatus = "active"
	RollbackPointStatusUsed    RollbackPointStatus = "used"
	RollbackPointStatusExpired RollbackPointStatus = "expired"
)

// RollbackPoint is a snapshot taken at phase entry: watched-table row counts and
// the index inventory at that moment. At most one point per phase is active.
type RollbackPoint struct {
	ID             int64               `json:"id"`
	PhaseName      Phase               `json:"phase_name"`
	TableRowCounts map[string]int64    `json:"table_row_counts"`
	IndexInventory []string            `json:"index_inventory"`
	Status         RollbackPointStatus `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
}

// RowCountsJSON marshals the row-count snapshot into the stored JSONB layout.
func (p RollbackPoint) RowCountsJSON() (json.RawMessage, error) {
	counts := p.TableRowCounts
	if counts == nil {
		counts = map[string]int64{}
	}
	return json.Marshal(counts)
}

// IndexInventoryJSON marshals the index inventory for persistence.
func (p RollbackPoint) IndexInventoryJSON() (json.RawMessage, error) {
	inventory := p.IndexInventory
	if inventory == nil {
		inventory = []string{}
	}
	return json.Marshal(inventory)
}

// RowCountsFromJSON unmarshals a persisted row-count snapshot.
func RowCountsFromJSON(data []byte) (map[string]int64, error) {
	if len(data) == 0 {
		return map[string]int64{}, nil
	}
	var counts map[string]int64
	if err := json.Unmarshal(data, &counts); err != nil {
		return nil, err
	}
	if counts == nil {
		counts = map[string]int64{}
	}
	return counts, nil
}

// IndexInventoryFromJSON unmarshals a persisted index inventory.
func IndexInventoryFromJSON(data []byte) ([]string, error) {
	if len(data) == 0 {
		return []string{}, nil
	}
	var inventory []string
	if err := json.Unmarshal(data, &inventory); err != nil {
		return nil, err
	}
	if inventory == nil {
		inventory = []string{}
	}
	return inventory, nil
}
