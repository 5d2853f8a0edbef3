package validator

import (
	"errors"
	"testing"
)

type snapshotRequest struct {
	SessionID string `json:"sessionId" validate:"required,min=8"`
	Snapshot  struct {
		Scroll int `json:"scrollDepthPercent" validate:"gte=0"`
	} `json:"snapshot"`
	Tier string `form:"tier" validate:"omitempty,oneof=cold warm"`
}

func TestFieldsUseJSONNames(t *testing.T) {
	val := New()
	req := snapshotRequest{SessionID: "short", Tier: "lukewarm"}
	req.Snapshot.Scroll = -1

	fields := Fields(val.Struct(req))
	if len(fields) != 3 {
		t.Fatalf("expected 3 field errors, got %+v", fields)
	}
	want := map[string]string{"sessionId": "min", "snapshot.scrollDepthPercent": "gte", "tier": "oneof"}
	for _, fe := range fields {
		if want[fe.Field] != fe.Rule {
			t.Fatalf("unexpected field error %+v", fe)
		}
	}
}

func TestFieldsIgnoresOtherErrors(t *testing.T) {
	if Fields(errors.New("boom")) != nil {
		t.Fatal("expected nil for non validation errors")
	}
	if Fields(New().Struct(snapshotRequest{SessionID: "long-enough"})) != nil {
		t.Fatal("expected nil for a valid struct")
	}
}
