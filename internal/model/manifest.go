package model

import "github.com/ggcore/gg-core/internal/errs"

// Capability enumerates what a loaded model can do.
type Capability string

const (
	CapabilityTextClassification    Capability = "text_classification"
	CapabilityTextGeneration        Capability = "text_generation"
	CapabilityEmbedding             Capability = "embedding"
	CapabilityNamedEntityRecognition Capability = "named_entity_recognition"
)

// Architecture names a model's on-disk format.
type Architecture string

const (
	ArchitectureGGUF        Architecture = "gguf"
	ArchitectureONNX        Architecture = "onnx"
	ArchitectureSafeTensors Architecture = "safetensors"
)

// Manifest describes a model to be loaded: identity, capabilities, and the
// integrity hash used to verify the file on disk (spec §4.6 step 3).
type Manifest struct {
	ModelID      string       `yaml:"model_id" json:"model_id"`
	Name         string       `yaml:"name" json:"name"`
	Version      string       `yaml:"version" json:"version"`
	Capabilities []Capability `yaml:"capabilities" json:"capabilities"`
	SHA256       string       `yaml:"sha256" json:"sha256"`
	SizeBytes    int64        `yaml:"size_bytes" json:"size_bytes"`
	Architecture Architecture `yaml:"architecture" json:"architecture"`
	License      string       `yaml:"license" json:"license"`
}

// Validate checks the fields spec §4.6 requires before a manifest may be
// preloaded: nonempty model_id, a 64-character sha256, and at least one
// capability.
func (m *Manifest) Validate() error {
	if m.ModelID == "" {
		return &errs.IntegrityFailure{Reason: "model_id cannot be empty"}
	}
	if len(m.SHA256) != 64 {
		return &errs.IntegrityFailure{Reason: "sha256 must be 64 hex characters"}
	}
	if len(m.Capabilities) == 0 {
		return &errs.IntegrityFailure{Reason: "capabilities cannot be empty"}
	}
	return nil
}

// HasCapability reports whether the manifest declares cap.
func (m *Manifest) HasCapability(cap Capability) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
