// Package model provides capability-based model selection.
// Callers ask for a capability (grading, detection) and the registry resolves
// it to configured endpoints with a fallback chain.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityGrading scores submissions and writes feedback.
	CapabilityGrading Capability = "grading"

	// CapabilityDetection classifies AI-usage disclosures.
	CapabilityDetection Capability = "detection"

	// CapabilityFast is for quick, low-stakes calls.
	CapabilityFast Capability = "fast"
)

// TaskCapabilities maps pipeline tasks to their default capability.
var TaskCapabilities = map[string]Capability{
	"grade":      CapabilityGrading,
	"disclosure": CapabilityDetection,
}

// CapabilityForTask returns the default capability for a task.
// Unknown tasks get CapabilityGrading.
func CapabilityForTask(task string) Capability {
	if c, ok := TaskCapabilities[task]; ok {
		return c
	}
	return CapabilityGrading
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityGrading, CapabilityDetection, CapabilityFast:
		return true
	}
	return false
}

func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for invalid values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
