package transform

import (
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/rpattn/pgbridge/internal/domain"
)

func workOrderDescriptor() domain.EntityDescriptor {
	return domain.EntityDescriptor{
		EntityType:     "work_order",
		SourceTable:    "legacy_work_orders",
		SourceIDColumn: "wo_number",
		TargetTable:    "work_orders",
		Fields: []domain.FieldMapping{
			{SourceField: "title", TargetField: "name", Required: true},
			{SourceField: "notes", TargetField: "description"},
		},
		EnumRemaps: []domain.EnumRemap{
			{
				SourceField: "status_code",
				TargetField: "status",
				Values:      map[string]string{"0": "draft", "1": "open", "2": "closed"},
				Default:     "draft",
			},
		},
		References: []domain.ReferenceMapping{
			{SourceField: "site_code", TargetField: "site_id", ReferencedEntityType: "site", Optional: true},
		},
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	desc := workOrderDescriptor()
	record := domain.BridgeRecord{
		EntityType: "work_order",
		SourceID:   "WO-1001",
		TargetID:   uuid.New(),
		SourcePayload: map[string]any{
			"title":       "Replace pump",
			"notes":       "urgent",
			"status_code": int64(1),
			"site_code":   "SITE-A",
		},
	}
	refs := ResolvedRefs{"site_id": uuid.New()}

	first := Apply(desc, record, refs)
	second := Apply(desc, record, refs)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated Apply produced different output: %v vs %v", first, second)
	}
	if first["name"] != "Replace pump" {
		t.Errorf("expected name to carry over, got %v", first["name"])
	}
	if first["status"] != "open" {
		t.Errorf("expected status_code 1 to remap to open, got %v", first["status"])
	}
	if first["site_id"] != refs["site_id"] {
		t.Errorf("expected resolved reference id, got %v", first["site_id"])
	}
}

func TestApplyLeavesUnresolvedReferencesNil(t *testing.T) {
	desc := workOrderDescriptor()
	record := domain.BridgeRecord{
		SourceID:      "WO-1002",
		TargetID:      uuid.New(),
		SourcePayload: map[string]any{"title": "Inspect valve", "status_code": "2", "site_code": "SITE-Z"},
	}

	target := Apply(desc, record, ResolvedRefs{})

	value, present := target["site_id"]
	if !present {
		t.Fatal("expected site_id key in target shape")
	}
	if value != nil {
		t.Errorf("expected unresolved reference to stay nil, got %v", value)
	}
}

func TestRemapEnum(t *testing.T) {
	remap := domain.EnumRemap{
		SourceField: "status_code",
		TargetField: "status",
		Values:      map[string]string{"0": "draft", "1": "open", "true": "active"},
		Default:     "draft",
	}

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil falls back to default", nil, "draft"},
		{"unknown falls back to default", "99", "draft"},
		{"string key", "1", "open"},
		{"int key", 1, "open"},
		{"int64 key", int64(1), "open"},
		{"float64 key", float64(1), "open"},
		{"bool key", true, "active"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RemapEnum(remap, tt.value); got != tt.want {
				t.Errorf("RemapEnum(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestOutcomeConstructors(t *testing.T) {
	ok := Ok(map[string]any{"name": "x"})
	if ok.State != StateOK || ok.Target["name"] != "x" {
		t.Errorf("unexpected ok outcome: %+v", ok)
	}

	failed := ValidationFailed([]domain.ValidationError{{Field: "name", Severity: domain.SeverityCritical}})
	if failed.State != StateValidationFailed || len(failed.Errors) != 1 {
		t.Errorf("unexpected validation outcome: %+v", failed)
	}

	execution := ExecutionFailed("constraint violation")
	if execution.State != StateExecutionFailed || execution.Message != "constraint violation" {
		t.Errorf("unexpected execution outcome: %+v", execution)
	}
}
