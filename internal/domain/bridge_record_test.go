package domain

import "testing"

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to BridgeStatus
		want     bool
	}{
		{BridgeStatusPending, BridgeStatusProcessing, true},
		{BridgeStatusProcessing, BridgeStatusCompleted, true},
		{BridgeStatusProcessing, BridgeStatusFailed, true},
		{BridgeStatusCompleted, BridgeStatusVerified, true},
		{BridgeStatusPending, BridgeStatusCompleted, false},
		{BridgeStatusCompleted, BridgeStatusPending, false},
		{BridgeStatusFailed, BridgeStatusPending, false},
		{BridgeStatusFailed, BridgeStatusProcessing, false},
		{BridgeStatusVerified, BridgeStatusCompleted, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestBridgeCounts(t *testing.T) {
	counts := BridgeCounts{Pending: 10, Processing: 2, Completed: 80, Failed: 4, Verified: 4}

	if counts.Total() != 100 {
		t.Errorf("expected total 100, got %d", counts.Total())
	}
	if rate := counts.SuccessRate(); rate < 0.954 || rate > 0.955 {
		t.Errorf("expected success rate 84/88, got %.4f", rate)
	}
	if pct := counts.PercentComplete(); pct != 84 {
		t.Errorf("expected 84%% complete, got %.1f", pct)
	}

	empty := BridgeCounts{}
	if empty.SuccessRate() != 1 {
		t.Errorf("untouched counts must report a full success rate, got %.2f", empty.SuccessRate())
	}
	if empty.PercentComplete() != 0 {
		t.Errorf("empty counts must report 0%% complete, got %.2f", empty.PercentComplete())
	}
}

func TestPhasePredecessors(t *testing.T) {
	order := Phases()
	if len(order) != 4 {
		t.Fatalf("expected 4 phases, got %d", len(order))
	}
	if order[0].Predecessor() != "" {
		t.Errorf("first phase must have no predecessor, got %s", order[0].Predecessor())
	}
	for i := 1; i < len(order); i++ {
		if order[i].Predecessor() != order[i-1] {
			t.Errorf("%s predecessor: got %s, want %s", order[i], order[i].Predecessor(), order[i-1])
		}
	}

	if _, err := ParsePhase("migrate"); err != nil {
		t.Errorf("migrate should parse: %v", err)
	}
	if _, err := ParsePhase("teardown"); err == nil {
		t.Error("unknown phase must not parse")
	}
}

func TestDescriptorValidate(t *testing.T) {
	valid := EntityDescriptor{
		EntityType:     "asset",
		SourceTable:    "legacy_assets",
		SourceIDColumn: "tag",
		TargetTable:    "assets",
		Fields:         []FieldMapping{{SourceField: "name", TargetField: "name"}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid descriptor rejected: %v", err)
	}

	collision := valid
	collision.EnumRemaps = []EnumRemap{{SourceField: "state", TargetField: "name", Values: map[string]string{}, Default: "x"}}
	if err := collision.Validate(); err == nil {
		t.Error("target field collision must be rejected")
	}

	missingDefault := valid
	missingDefault.EnumRemaps = []EnumRemap{{SourceField: "state", TargetField: "state", Values: map[string]string{}}}
	if err := missingDefault.Validate(); err == nil {
		t.Error("enum remap without default must be rejected")
	}

	danglingTimestamp := valid
	danglingTimestamp.Timestamps = []TimestampMapping{{SourceField: "created", TargetField: "created_at"}}
	if err := danglingTimestamp.Validate(); err == nil {
		t.Error("timestamp check on unmapped field must be rejected")
	}
}
