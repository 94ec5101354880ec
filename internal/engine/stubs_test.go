package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/pgbridge/internal/domain"
	"github.com/rpattn/pgbridge/internal/repository"
)

// In-memory stand-ins for the pgx repositories. They keep the same invariants
// the SQL enforces (forward-only status transitions, stable window order) so
// engine behavior can be exercised without a database.

type stubBridge struct {
	mu      sync.Mutex
	order   []string
	records map[string]*domain.BridgeRecord
	purged  bool
}

func newStubBridge() *stubBridge {
	return &stubBridge{records: map[string]*domain.BridgeRecord{}}
}

func bridgeKey(entityType, sourceID string) string {
	return entityType + "|" + sourceID
}

// seed inserts a record directly, bypassing the pending-only snapshot rules.
func (s *stubBridge) seed(record domain.BridgeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.Status == "" {
		record.Status = domain.BridgeStatusPending
	}
	key := bridgeKey(record.EntityType, record.SourceID)
	s.order = append(s.order, key)
	s.records[key] = &record
}

func (s *stubBridge) WithTx(pgx.Tx) repository.BridgeRepository { return s }

func (s *stubBridge) UpsertSnapshots(_ context.Context, records []domain.BridgeRecord) (repository.BridgeUpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result repository.BridgeUpsertResult
	for _, record := range records {
		key := bridgeKey(record.EntityType, record.SourceID)
		existing, ok := s.records[key]
		if !ok {
			record.Status = domain.BridgeStatusPending
			stored := record
			s.order = append(s.order, key)
			s.records[key] = &stored
			result.Inserted++
			continue
		}
		if existing.Status == domain.BridgeStatusPending {
			existing.SourcePayload = record.SourcePayload
			result.Resnapshots++
		}
	}
	return result, nil
}

func (s *stubBridge) Window(_ context.Context, entityType string, limit, offset int) ([]domain.BridgeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var window []domain.BridgeRecord
	seen := 0
	for _, key := range s.order {
		record := s.records[key]
		if record.EntityType != entityType {
			continue
		}
		if seen < offset {
			seen++
			continue
		}
		seen++
		window = append(window, *record)
		if len(window) == limit {
			break
		}
	}
	return window, nil
}

func (s *stubBridge) transition(entityType, sourceID string, from []domain.BridgeStatus, to domain.BridgeStatus, mutate func(*domain.BridgeRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[bridgeKey(entityType, sourceID)]
	if !ok {
		return false
	}
	for _, status := range from {
		if record.Status == status {
			record.Status = to
			if mutate != nil {
				mutate(record)
			}
			return true
		}
	}
	return false
}

func (s *stubBridge) SetProcessing(_ context.Context, entityType, sourceID string) (bool, error) {
	return s.transition(entityType, sourceID, []domain.BridgeStatus{domain.BridgeStatusPending}, domain.BridgeStatusProcessing, nil), nil
}

func (s *stubBridge) SetCompleted(_ context.Context, entityType, sourceID string, targetPayload map[string]any, advisories []domain.ValidationError) (bool, error) {
	return s.transition(entityType, sourceID, []domain.BridgeStatus{domain.BridgeStatusProcessing}, domain.BridgeStatusCompleted, func(r *domain.BridgeRecord) {
		r.TargetPayload = targetPayload
		r.ValidationErrors = advisories
	}), nil
}

func (s *stubBridge) SetFailed(_ context.Context, entityType, sourceID string, validationErrors []domain.ValidationError, lastError string) (bool, error) {
	return s.transition(entityType, sourceID, []domain.BridgeStatus{domain.BridgeStatusProcessing}, domain.BridgeStatusFailed, func(r *domain.BridgeRecord) {
		r.ValidationErrors = validationErrors
		if lastError != "" {
			r.LastError = &lastError
		}
	}), nil
}

func (s *stubBridge) MarkVerified(_ context.Context, entityType string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var promoted int64
	for _, record := range s.records {
		if record.EntityType == entityType && record.Status == domain.BridgeStatusCompleted {
			record.Status = domain.BridgeStatusVerified
			promoted++
		}
	}
	return promoted, nil
}

func (s *stubBridge) ResetFailed(_ context.Context, entityType string, sourceIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	only := map[string]bool{}
	for _, id := range sourceIDs {
		only[id] = true
	}
	var reset int64
	for _, record := range s.records {
		if record.EntityType != entityType || record.Status != domain.BridgeStatusFailed {
			continue
		}
		if len(only) > 0 && !only[record.SourceID] {
			continue
		}
		record.Status = domain.BridgeStatusPending
		record.LastError = nil
		record.ValidationErrors = nil
		reset++
	}
	return reset, nil
}

func (s *stubBridge) ResetCompleted(_ context.Context, entityType string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reset int64
	for _, record := range s.records {
		if record.EntityType != entityType {
			continue
		}
		if record.Status == domain.BridgeStatusCompleted || record.Status == domain.BridgeStatusVerified {
			record.Status = domain.BridgeStatusPending
			record.TargetPayload = nil
			reset++
		}
	}
	return reset, nil
}

func (s *stubBridge) CompletedTargetIDs(_ context.Context, entityType string) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for _, key := range s.order {
		record := s.records[key]
		if record.EntityType != entityType {
			continue
		}
		if record.Status == domain.BridgeStatusCompleted || record.Status == domain.BridgeStatusVerified {
			ids = append(ids, record.TargetID)
		}
	}
	return ids, nil
}

func (s *stubBridge) ResolveTargetIDs(_ context.Context, entityType string, sourceIDs []string) (map[string]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolved := map[string]uuid.UUID{}
	for _, sourceID := range sourceIDs {
		if record, ok := s.records[bridgeKey(entityType, sourceID)]; ok {
			resolved[sourceID] = record.TargetID
		}
	}
	return resolved, nil
}

func (s *stubBridge) ExistingSourceIDs(_ context.Context, entityType string, sourceIDs []string) (map[string]domain.BridgeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := map[string]domain.BridgeStatus{}
	for _, sourceID := range sourceIDs {
		if record, ok := s.records[bridgeKey(entityType, sourceID)]; ok && record.Status != domain.BridgeStatusPending {
			existing[sourceID] = record.Status
		}
	}
	return existing, nil
}

func (s *stubBridge) Counts(_ context.Context, entityType string) (domain.BridgeCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := domain.BridgeCounts{EntityType: entityType}
	for _, record := range s.records {
		if record.EntityType != entityType {
			continue
		}
		addCount(&counts, record.Status)
	}
	return counts, nil
}

func (s *stubBridge) CountsAll(_ context.Context) ([]domain.BridgeCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byType := map[string]*domain.BridgeCounts{}
	var order []string
	for _, key := range s.order {
		record := s.records[key]
		counts, ok := byType[record.EntityType]
		if !ok {
			counts = &domain.BridgeCounts{EntityType: record.EntityType}
			byType[record.EntityType] = counts
			order = append(order, record.EntityType)
		}
		addCount(counts, record.Status)
	}
	all := make([]domain.BridgeCounts, 0, len(order))
	for _, entityType := range order {
		all = append(all, *byType[entityType])
	}
	return all, nil
}

func addCount(counts *domain.BridgeCounts, status domain.BridgeStatus) {
	switch status {
	case domain.BridgeStatusPending:
		counts.Pending++
	case domain.BridgeStatusProcessing:
		counts.Processing++
	case domain.BridgeStatusCompleted:
		counts.Completed++
	case domain.BridgeStatusFailed:
		counts.Failed++
	case domain.BridgeStatusVerified:
		counts.Verified++
	}
}

func (s *stubBridge) Total(_ context.Context, entityType string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, record := range s.records {
		if record.EntityType == entityType {
			total++
		}
	}
	return total, nil
}

func (s *stubBridge) PurgeAll(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := int64(len(s.records))
	s.order = nil
	s.records = map[string]*domain.BridgeRecord{}
	s.purged = true
	return purged, nil
}

func (s *stubBridge) Archive(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	archived := int64(len(s.records))
	s.order = nil
	s.records = map[string]*domain.BridgeRecord{}
	return archived, nil
}

func (s *stubBridge) statusOf(entityType, sourceID string) domain.BridgeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[bridgeKey(entityType, sourceID)]; ok {
		return record.Status
	}
	return ""
}

func (s *stubBridge) recordOf(entityType, sourceID string) domain.BridgeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[bridgeKey(entityType, sourceID)]; ok {
		return *record
	}
	return domain.BridgeRecord{}
}

type stubLog struct {
	mu      sync.Mutex
	entries []domain.MigrationLogEntry
	nextID  int64
}

func (s *stubLog) Append(_ context.Context, entry domain.MigrationLogEntry) (domain.MigrationLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.ID = s.nextID
	entry.CreatedAt = time.Now()
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *stubLog) HasCompleted(_ context.Context, phase domain.Phase) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.Phase == phase && entry.Status == domain.LogStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubLog) List(_ context.Context, limit, offset int) ([]domain.MigrationLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listed := make([]domain.MigrationLogEntry, len(s.entries))
	copy(listed, s.entries)
	return listed, nil
}

func (s *stubLog) PhaseTimings(context.Context) ([]domain.PhaseTiming, error) {
	return []domain.PhaseTiming{}, nil
}

func (s *stubLog) lastStatus(phase domain.Phase, operation string) domain.LogStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var status domain.LogStatus
	for _, entry := range s.entries {
		if entry.Phase == phase && entry.Operation == operation {
			status = entry.Status
		}
	}
	return status
}

type stubRollback struct {
	mu     sync.Mutex
	points []*domain.RollbackPoint
	nextID int64
}

func (s *stubRollback) Create(_ context.Context, point domain.RollbackPoint) (domain.RollbackPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.points {
		if existing.Status == domain.RollbackPointStatusActive {
			existing.Status = domain.RollbackPointStatusExpired
		}
	}
	s.nextID++
	point.ID = s.nextID
	point.Status = domain.RollbackPointStatusActive
	point.CreatedAt = time.Now()
	stored := point
	s.points = append(s.points, &stored)
	return stored, nil
}

func (s *stubRollback) GetActive(_ context.Context, phase domain.Phase) (domain.RollbackPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, point := range s.points {
		if point.PhaseName == phase && point.Status == domain.RollbackPointStatusActive {
			return *point, nil
		}
	}
	return domain.RollbackPoint{}, repository.ErrNoActiveRollbackPoint
}

func (s *stubRollback) MarkUsed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, point := range s.points {
		if point.ID == id {
			point.Status = domain.RollbackPointStatusUsed
			return nil
		}
	}
	return fmt.Errorf("rollback point %d not found", id)
}

func (s *stubRollback) List(context.Context) ([]domain.RollbackPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listed := make([]domain.RollbackPoint, 0, len(s.points))
	for i := len(s.points) - 1; i >= 0; i-- {
		listed = append(listed, *s.points[i])
	}
	return listed, nil
}

type stubValidation struct {
	mu      sync.Mutex
	results []domain.ValidationResult
}

func (s *stubValidation) Record(_ context.Context, result domain.ValidationResult) (domain.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result.ID = int64(len(s.results) + 1)
	result.CreatedAt = time.Now()
	s.results = append(s.results, result)
	return result, nil
}

func (s *stubValidation) List(_ context.Context, limit int) ([]domain.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listed := make([]domain.ValidationResult, len(s.results))
	copy(listed, s.results)
	return listed, nil
}

type stubSource struct {
	rows map[string][]repository.SourceRow
}

func (s *stubSource) FetchBatch(_ context.Context, desc domain.EntityDescriptor, batchSize, offset int, _ string) ([]repository.SourceRow, error) {
	rows := s.rows[desc.EntityType]
	if offset >= len(rows) {
		return nil, nil
	}
	end := offset + batchSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], nil
}

func (s *stubSource) Count(_ context.Context, desc domain.EntityDescriptor, _ string) (int64, error) {
	return int64(len(s.rows[desc.EntityType])), nil
}

type stubTarget struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]map[string]any
	failIf func(payload map[string]any) error
}

func newStubTarget() *stubTarget {
	return &stubTarget{rows: map[uuid.UUID]map[string]any{}}
}

func (s *stubTarget) WithTx(pgx.Tx) repository.TargetRepository { return s }

func (s *stubTarget) Upsert(_ context.Context, _ domain.EntityDescriptor, targetID uuid.UUID, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIf != nil {
		if err := s.failIf(payload); err != nil {
			return err
		}
	}
	s.rows[targetID] = payload
	return nil
}

func (s *stubTarget) DeleteByIDs(_ context.Context, _ domain.EntityDescriptor, ids []uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for _, id := range ids {
		if _, ok := s.rows[id]; ok {
			delete(s.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *stubTarget) Count(_ context.Context, _ domain.EntityDescriptor) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}

func (s *stubTarget) TableExists(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (s *stubTarget) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type stubCatalog struct {
	mu             sync.Mutex
	indexInventory []string
	viewsInstalled bool
}

func (s *stubCatalog) TableRowCounts(_ context.Context, tables []string) (map[string]int64, error) {
	counts := map[string]int64{}
	for _, table := range tables {
		counts[table] = 0
	}
	return counts, nil
}

func (s *stubCatalog) IndexInventory(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inventory := make([]string, len(s.indexInventory))
	copy(inventory, s.indexInventory)
	return inventory, nil
}

func (s *stubCatalog) DropIndexes(_ context.Context, names []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := map[string]bool{}
	for _, name := range names {
		drop[name] = true
	}
	var kept []string
	dropped := 0
	for _, name := range s.indexInventory {
		if drop[name] {
			dropped++
			continue
		}
		kept = append(kept, name)
	}
	s.indexInventory = kept
	return dropped, nil
}

func (s *stubCatalog) TableBloat(context.Context, []string) ([]domain.TableBloat, error) {
	return []domain.TableBloat{}, nil
}

func (s *stubCatalog) InstallMonitoringViews(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewsInstalled = true
	return 3, nil
}

// stubTxRunner hands the chunk body the same repositories the test inspects.
// failures, when set, makes the first N RunInTx calls fail before touching fn.
type stubTxRunner struct {
	mu       sync.Mutex
	bridge   *stubBridge
	target   *stubTarget
	failures int
	calls    int
}

func (s *stubTxRunner) RunInTx(ctx context.Context, _ time.Duration, fn func(tx ChunkTx) error) error {
	s.mu.Lock()
	s.calls++
	failNow := s.failures > 0
	if failNow {
		s.failures--
	}
	s.mu.Unlock()
	if failNow {
		return fmt.Errorf("connection reset by peer")
	}
	return fn(ChunkTx{
		Bridge: s.bridge,
		Target: s.target,
		Attempt: func(_ context.Context, body func() error) error {
			return body()
		},
	})
}
