package config

import (
	"strings"
	"testing"

	"github.com/virtualsteve-star/stinger-sub004/internal/detector"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/conversation"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

func builtinRegistry(t *testing.T) *guardrail.Registry {
	t.Helper()
	reg := guardrail.NewRegistry()
	err := detector.RegisterBuiltins(reg, detector.Deps{
		Conversations: conversation.NewStore(),
	})
	if err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	return reg
}

const sampleDocument = `
version: "1.0"
preset: customer_service
pipeline:
  input:
    - name: pii_check
      type: simple_pii_detection
      enabled: true
      action: block
      on_error: block
      timeout_ms: 1000
      confidence_threshold: 0.9
      config: { patterns: [ssn, credit_card, email] }
  output:
    - name: code_check
      type: simple_code_generation
      action: warn
`

func TestParseAndResolveDocument(t *testing.T) {
	reg := builtinRegistry(t)

	doc, err := ParseDocument([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if doc.Preset != "customer_service" || doc.Version != "1.0" {
		t.Fatalf("doc = %+v", doc)
	}

	spec, err := Resolve(doc, reg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if spec.Name != "customer_service" {
		t.Errorf("Name = %q", spec.Name)
	}

	// The overlay tightened pii_check's threshold; the preset's other
	// guardrails are untouched.
	pii := spec.Find("pii_check")
	if pii == nil || pii.ConfidenceThreshold == nil || *pii.ConfidenceThreshold != 0.9 {
		t.Errorf("pii_check = %+v, want overlaid threshold 0.9", pii)
	}
	base, _ := Preset("customer_service")
	if inj, wantInj := spec.Find("injection_check"), base.Find("injection_check"); inj == nil || wantInj == nil || inj.Type != wantInj.Type || inj.Action != wantInj.Action {
		t.Errorf("injection_check changed by unrelated overlay: %+v vs %+v", inj, wantInj)
	}

	// code_check is new on output and appended after the preset's list.
	if cc := spec.Find("code_check"); cc == nil || cc.Action != guardrail.ActionWarn {
		t.Errorf("code_check = %+v", cc)
	}
	if got := len(spec.Output); got != len(base.Output)+1 {
		t.Errorf("output length = %d, want %d", got, len(base.Output)+1)
	}
}

func TestParseDocumentRejectsUnknownTopLevelKey(t *testing.T) {
	_, err := ParseDocument([]byte("version: \"1.0\"\nbogus_key: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestParseDocumentEmpty(t *testing.T) {
	if _, err := ParseDocument(nil); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestResolveUnknownDetectorTypeFailsSchema(t *testing.T) {
	reg := builtinRegistry(t)
	doc := &Document{
		Pipeline: DocumentPipeline{
			Input: []guardrail.Spec{{Name: "g", Type: "no_such_detector"}},
		},
	}
	_, err := Resolve(doc, reg)
	if err == nil || !strings.Contains(err.Error(), "unknown detector type") {
		t.Fatalf("err = %v, want unknown detector type", err)
	}
}

func TestResolveUnknownPreset(t *testing.T) {
	reg := builtinRegistry(t)
	if _, err := Resolve(&Document{Preset: "deluxe"}, reg); err == nil {
		t.Fatal("expected unknown preset error")
	}
}

func TestValidateSemanticsDuplicateNames(t *testing.T) {
	reg := builtinRegistry(t)
	doc := &Document{
		Pipeline: DocumentPipeline{
			Input: []guardrail.Spec{
				{Name: "dup", Type: detector.TypeLength, Config: map[string]any{"max": 10}},
				{Name: "dup", Type: detector.TypePatternPII},
			},
		},
	}
	_, err := Resolve(doc, reg)
	if err == nil || !strings.Contains(err.Error(), "duplicate guardrail name") {
		t.Fatalf("err = %v, want duplicate name", err)
	}
}

func TestValidateSemanticsUnreachableStage(t *testing.T) {
	reg := builtinRegistry(t)
	doc := &Document{
		Pipeline: DocumentPipeline{
			Input: []guardrail.Spec{
				{Name: "g", Type: detector.TypePatternPII, Stage: guardrail.StageOutput},
			},
		},
	}
	_, err := Resolve(doc, reg)
	if err == nil || !strings.Contains(err.Error(), "never runs") {
		t.Fatalf("err = %v, want unreachable stage", err)
	}
}

func TestPresetsAllValidate(t *testing.T) {
	reg := builtinRegistry(t)
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			spec, err := PipelineFromPreset(name, reg)
			if err != nil {
				t.Fatalf("PipelineFromPreset: %v", err)
			}
			if err := ValidateSemantics(spec); err != nil {
				t.Fatalf("ValidateSemantics: %v", err)
			}
			if spec.Version == "" {
				t.Error("preset has no version")
			}
		})
	}
}

func TestMergeOverlayDisableOnly(t *testing.T) {
	base, _ := Preset("basic")
	off := false
	doc := &Document{
		Preset: "basic",
		Pipeline: DocumentPipeline{
			Input: []guardrail.Spec{{Name: "toxicity_check", Enabled: &off}},
		},
	}

	merged := MergeOverlay(base, doc)
	tox := merged.Find("toxicity_check")
	if tox == nil || tox.IsEnabled() {
		t.Fatalf("toxicity_check = %+v, want disabled", tox)
	}
	// The overlay set only `enabled`; the type survives from the preset.
	if tox.Type != detector.TypePatternToxicity {
		t.Errorf("Type = %q, want preset type preserved", tox.Type)
	}
	// Re-resolving a fresh preset shows the original untouched.
	fresh, _ := Preset("basic")
	if !fresh.Find("toxicity_check").IsEnabled() {
		t.Error("MergeOverlay mutated the shipped preset")
	}
}
