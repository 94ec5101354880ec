package validate

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/pgbridge/internal/domain"
	"github.com/rpattn/pgbridge/internal/transform"
)

func assetDescriptor() domain.EntityDescriptor {
	return domain.EntityDescriptor{
		EntityType:     "asset",
		SourceTable:    "legacy_assets",
		SourceIDColumn: "asset_tag",
		TargetTable:    "assets",
		Fields: []domain.FieldMapping{
			{SourceField: "asset_name", TargetField: "name", Required: true},
			{SourceField: "installed_on", TargetField: "installed_at"},
		},
		EnumRemaps: []domain.EnumRemap{
			{
				SourceField: "condition_code",
				TargetField: "condition",
				Values:      map[string]string{"1": "good", "2": "degraded"},
				Default:     "unknown",
			},
		},
		Timestamps: []domain.TimestampMapping{
			{SourceField: "installed_on", TargetField: "installed_at"},
		},
		References: []domain.ReferenceMapping{
			{SourceField: "site_code", TargetField: "site_id", ReferencedEntityType: "site"},
		},
	}
}

func validRecord() (domain.BridgeRecord, map[string]any, transform.ResolvedRefs) {
	siteID := uuid.New()
	record := domain.BridgeRecord{
		EntityType: "asset",
		SourceID:   "A-100",
		TargetID:   uuid.New(),
		SourcePayload: map[string]any{
			"asset_name":     "Compressor 4",
			"installed_on":   "2024-03-01T12:00:00Z",
			"condition_code": "1",
			"site_code":      "SITE-A",
		},
	}
	target := map[string]any{
		"name":         "Compressor 4",
		"installed_at": "2024-03-01T12:00:00Z",
		"condition":    "good",
		"site_id":      siteID,
	}
	return record, target, transform.ResolvedRefs{"site_id": siteID}
}

func findError(errs []domain.ValidationError, field string) *domain.ValidationError {
	for i := range errs {
		if errs[i].Field == field {
			return &errs[i]
		}
	}
	return nil
}

func TestValidateCleanRecord(t *testing.T) {
	v := New(assetDescriptor(), Options{})
	record, target, refs := validRecord()

	errs := v.Validate(record, target, refs)
	if len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestValidateMissingSourceIdentity(t *testing.T) {
	v := New(assetDescriptor(), Options{})
	record, target, refs := validRecord()
	record.SourceID = "  "

	errs := v.Validate(record, target, refs)
	found := findError(errs, "sourceId")
	if found == nil {
		t.Fatalf("expected a sourceId error, got %v", errs)
	}
	if found.Severity != domain.SeverityCritical {
		t.Errorf("missing identity must be critical, got %s", found.Severity)
	}
}

func TestValidateMissingTargetIdentity(t *testing.T) {
	v := New(assetDescriptor(), Options{})
	record, target, refs := validRecord()
	record.TargetID = uuid.Nil

	errs := v.Validate(record, target, refs)
	found := findError(errs, "targetId")
	if found == nil || found.Severity != domain.SeverityCritical {
		t.Fatalf("expected a critical targetId error, got %v", errs)
	}
}

func TestValidateRequiredField(t *testing.T) {
	v := New(assetDescriptor(), Options{})
	record, target, refs := validRecord()
	target["name"] = ""

	errs := v.Validate(record, target, refs)
	found := findError(errs, "name")
	if found == nil || found.Severity != domain.SeverityCritical {
		t.Fatalf("expected a critical required-field error, got %v", errs)
	}
}

func TestValidateDerivedMismatch(t *testing.T) {
	v := New(assetDescriptor(), Options{})
	record, target, refs := validRecord()
	target["condition"] = "degraded" // source says "1" -> good

	errs := v.Validate(record, target, refs)
	found := findError(errs, "condition")
	if found == nil || found.Severity != domain.SeverityCritical {
		t.Fatalf("expected a critical derived-field error, got %v", errs)
	}
}

func TestValidateReferences(t *testing.T) {
	t.Run("unresolved reference is critical", func(t *testing.T) {
		v := New(assetDescriptor(), Options{})
		record, target, _ := validRecord()

		errs := v.Validate(record, target, transform.ResolvedRefs{})
		found := findError(errs, "site_id")
		if found == nil || found.Severity != domain.SeverityCritical {
			t.Fatalf("expected a critical reference error, got %v", errs)
		}
	})

	t.Run("empty required reference is critical", func(t *testing.T) {
		v := New(assetDescriptor(), Options{})
		record, target, _ := validRecord()
		record.SourcePayload["site_code"] = nil

		errs := v.Validate(record, target, transform.ResolvedRefs{})
		found := findError(errs, "site_id")
		if found == nil || found.Severity != domain.SeverityCritical {
			t.Fatalf("expected a critical empty-reference error, got %v", errs)
		}
	})

	t.Run("empty optional reference passes", func(t *testing.T) {
		desc := assetDescriptor()
		desc.References[0].Optional = true
		v := New(desc, Options{})
		record, target, _ := validRecord()
		record.SourcePayload["site_code"] = nil

		errs := v.Validate(record, target, transform.ResolvedRefs{})
		if found := findError(errs, "site_id"); found != nil {
			t.Fatalf("optional empty reference should not fail, got %v", found)
		}
	})
}

func TestValidateTimestampDrift(t *testing.T) {
	v := New(assetDescriptor(), Options{TimestampTolerance: time.Second})
	record, target, refs := validRecord()
	target["installed_at"] = "2024-03-01T12:05:00Z" // 5 minutes of drift

	errs := v.Validate(record, target, refs)
	found := findError(errs, "installed_at")
	if found == nil {
		t.Fatalf("expected a timestamp drift error, got %v", errs)
	}
	if found.Severity != domain.SeverityAdvisory {
		t.Errorf("timestamp drift must be advisory, got %s", found.Severity)
	}
	if domain.HasCritical(errs) {
		t.Error("advisory drift alone must not block the record")
	}
}

func TestValidateTimestampWithinTolerance(t *testing.T) {
	v := New(assetDescriptor(), Options{TimestampTolerance: 2 * time.Second})
	record, target, refs := validRecord()
	target["installed_at"] = "2024-03-01T12:00:01Z"

	errs := v.Validate(record, target, refs)
	if found := findError(errs, "installed_at"); found != nil {
		t.Fatalf("drift inside tolerance should pass, got %v", found)
	}
}

func TestValidateDeterministicOrder(t *testing.T) {
	v := New(assetDescriptor(), Options{})
	record, target, _ := validRecord()
	record.SourceID = ""
	target["name"] = nil

	first := v.Validate(record, target, transform.ResolvedRefs{})
	second := v.Validate(record, target, transform.ResolvedRefs{})

	if len(first) != len(second) {
		t.Fatalf("validation is not deterministic: %d vs %d errors", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("validation order changed at %d: %v vs %v", i, first[i], second[i])
		}
	}
}
