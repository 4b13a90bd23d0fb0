package config

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/virtualsteve-star/stinger-sub004/internal/detector"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/pipeline"
	"github.com/virtualsteve-star/stinger-sub004/internal/port/outbound"
)

// Document is a declarative pipeline description as users write it:
// optionally naming a preset to start from, with guardrail entries that
// overlay the preset by name.
type Document struct {
	// Version of the document format.
	Version string `yaml:"version" validate:"omitempty,oneof=1.0"`

	// Preset names the embedded template this document overlays.
	// Empty means the document stands alone.
	Preset string `yaml:"preset"`

	// Name overrides the pipeline name (defaults to the preset name or
	// "custom").
	Name string `yaml:"name"`

	// Pipeline carries the defaults and the guardrail lists.
	Pipeline DocumentPipeline `yaml:"pipeline"`
}

// DocumentPipeline is the pipeline section of a document.
type DocumentPipeline struct {
	Defaults pipeline.Defaults `yaml:"defaults" validate:"omitempty"`
	Input    []guardrail.Spec  `yaml:"input" validate:"omitempty,dive"`
	Output   []guardrail.Spec  `yaml:"output" validate:"omitempty,dive"`
}

// ParseDocument is validation level 1: syntax. YAML is a superset of
// JSON, so JSON documents parse too. Unknown top-level keys are
// rejected; unknown keys on a guardrail entry flow into its flat
// config (back-compat).
func ParseDocument(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("pipeline document: empty document")
		}
		return nil, fmt.Errorf("pipeline document: %w", err)
	}
	return &doc, nil
}

// ParseDocumentFile reads and parses a document from disk.
func ParseDocumentFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline document: %w", err)
	}
	return ParseDocument(data)
}

// ValidateSchema is validation level 2: struct tags plus registry
// lookups. Every guardrail entry must carry a name and a type tag the
// registry knows.
func ValidateSchema(spec *pipeline.Spec, reg *guardrail.Registry) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(spec); err != nil {
		return formatValidationErrors(err)
	}

	check := func(stage string, list []guardrail.Spec) error {
		for i := range list {
			gs := &list[i]
			if !reg.Known(gs.Type) {
				return fmt.Errorf("%s[%d] %q: unknown detector type %q", stage, i, gs.Name, gs.Type)
			}
		}
		return nil
	}
	if err := check("input", spec.Input); err != nil {
		return err
	}
	return check("output", spec.Output)
}

// ValidateSemantics is validation level 3: cross-entry rules that the
// schema cannot express. Detector-internal exclusions (e.g. allow vs
// deny lists) surface from the factories at compile time.
func ValidateSemantics(spec *pipeline.Spec) error {
	check := func(stage string, list []guardrail.Spec) error {
		seen := make(map[string]bool, len(list))
		for i := range list {
			gs := &list[i]
			if seen[gs.Name] {
				return fmt.Errorf("%s[%d]: duplicate guardrail name %q", stage, i, gs.Name)
			}
			seen[gs.Name] = true
			if gs.Stage != "" && gs.Stage != guardrail.Stage(stage) && gs.Stage != guardrail.StageBoth {
				return fmt.Errorf("%s[%d] %q: declared stage %q never runs in this list", stage, i, gs.Name, gs.Stage)
			}
		}
		return nil
	}
	if err := check("input", spec.Input); err != nil {
		return err
	}
	return check("output", spec.Output)
}

// RuntimeWarnings is validation level 4: reachability checks that must
// not fail the load. A pipeline using model-assisted detectors with an
// unreachable (or absent) provider still loads; its calls resolve
// through on_error at runtime.
func RuntimeWarnings(ctx context.Context, spec *pipeline.Spec, classifier outbound.Classifier) []string {
	var modelTypes []string
	for _, list := range [][]guardrail.Spec{spec.Input, spec.Output} {
		for i := range list {
			if detector.RequiresClassifier(list[i].Type) {
				modelTypes = append(modelTypes, list[i].Name)
			}
		}
	}
	if len(modelTypes) == 0 {
		return nil
	}

	if classifier == nil {
		return []string{fmt.Sprintf(
			"no classifier provider configured; model-assisted guardrails will fail construction: %s",
			strings.Join(modelTypes, ", "))}
	}
	if err := classifier.Ping(ctx); err != nil {
		return []string{fmt.Sprintf(
			"classifier provider unreachable (%v); model-assisted guardrails will resolve through on_error: %s",
			err, strings.Join(modelTypes, ", "))}
	}
	return nil
}

// Resolve turns a parsed document into a validated pipeline spec:
// preset resolution, overlay merge, then schema and semantic
// validation of the merged result.
func Resolve(doc *Document, reg *guardrail.Registry) (*pipeline.Spec, error) {
	var spec *pipeline.Spec
	if doc.Preset != "" {
		base, err := Preset(doc.Preset)
		if err != nil {
			return nil, err
		}
		spec = MergeOverlay(base, doc)
	} else {
		spec = &pipeline.Spec{
			Name:     doc.Name,
			Version:  doc.Version,
			Defaults: doc.Pipeline.Defaults,
			Input:    cloneList(doc.Pipeline.Input),
			Output:   cloneList(doc.Pipeline.Output),
		}
		if spec.Name == "" {
			spec.Name = "custom"
		}
	}

	if err := ValidateSchema(spec, reg); err != nil {
		return nil, err
	}
	if err := ValidateSemantics(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// PipelineFromPreset validates and returns an embedded preset's spec.
func PipelineFromPreset(name string, reg *guardrail.Registry) (*pipeline.Spec, error) {
	spec, err := Preset(name)
	if err != nil {
		return nil, err
	}
	if err := ValidateSchema(spec, reg); err != nil {
		return nil, fmt.Errorf("preset %q: %w", name, err)
	}
	return spec, nil
}

// PipelineFromDocument parses, resolves, and validates a document.
func PipelineFromDocument(data []byte, reg *guardrail.Registry) (*pipeline.Spec, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return Resolve(doc, reg)
}

// MergeOverlay applies a document's guardrail entries onto a preset.
// Entries matching a preset guardrail by name override only the fields
// they set; unmatched entries are appended; preset guardrails absent
// from the overlay are kept exactly as shipped.
func MergeOverlay(base *pipeline.Spec, doc *Document) *pipeline.Spec {
	out := base.Clone()
	if doc.Name != "" {
		out.Name = doc.Name
	}
	if doc.Version != "" {
		out.Version = doc.Version
	}
	mergeDefaults(&out.Defaults, doc.Pipeline.Defaults)
	out.Input = mergeList(out.Input, doc.Pipeline.Input)
	out.Output = mergeList(out.Output, doc.Pipeline.Output)
	return out
}

func mergeDefaults(base *pipeline.Defaults, over pipeline.Defaults) {
	if over.TimeoutMs > 0 {
		base.TimeoutMs = over.TimeoutMs
	}
	if over.DeadlineMs > 0 {
		base.DeadlineMs = over.DeadlineMs
	}
	if over.FailClosed != nil {
		fc := *over.FailClosed
		base.FailClosed = &fc
	}
	if over.OrderByPerformance {
		base.OrderByPerformance = true
	}
}

func mergeList(base, overlay []guardrail.Spec) []guardrail.Spec {
	out := make([]guardrail.Spec, len(base))
	copy(out, base)

	for i := range overlay {
		over := &overlay[i]
		merged := false
		for j := range out {
			if out[j].Name == over.Name {
				out[j] = overlaySpec(out[j], *over)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, over.Clone())
		}
	}
	return out
}

// overlaySpec merges one overlay entry onto its preset counterpart.
// Only fields the overlay sets are taken; the config sub-map replaces
// wholesale (partial config merges are too surprising to debug).
func overlaySpec(base, over guardrail.Spec) guardrail.Spec {
	out := base.Clone()
	if over.Type != "" {
		out.Type = over.Type
	}
	if over.Enabled != nil {
		e := *over.Enabled
		out.Enabled = &e
	}
	if over.Stage != "" {
		out.Stage = over.Stage
	}
	if over.Action != "" {
		out.Action = over.Action
	}
	if over.OnError != "" {
		out.OnError = over.OnError
	}
	if over.TimeoutMs > 0 {
		out.TimeoutMs = over.TimeoutMs
	}
	if over.ConfidenceThreshold != nil {
		t := *over.ConfidenceThreshold
		out.ConfidenceThreshold = &t
	}
	if over.Config != nil {
		out.Config = make(map[string]any, len(over.Config))
		for k, v := range over.Config {
			out.Config[k] = v
		}
	}
	if len(over.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]any, len(over.Extra))
		}
		for k, v := range over.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

func cloneList(in []guardrail.Spec) []guardrail.Spec {
	if in == nil {
		return nil
	}
	out := make([]guardrail.Spec, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
