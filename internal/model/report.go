package model

import "time"

// AnalysisReport is the integrated result of one photograph analysis.
// The JSON layout is consumed by the renderers and by external tooling.
type AnalysisReport struct {
	ID               string           `json:"id"`                // uuid of the analysis
	InstallationType InstallationType `json:"installation_type"` // residential, commercial, industrial
	Classification   Classification   `json:"classification"`    // Overall verdict

	Findings     []Finding `json:"non_conformities"` // Ordered as detected by the vision model
	Conformities []string  `json:"conformities"`     // Ordered as detected by the vision model
	Summary      string    `json:"summary"`          // Classification, counts and model summary

	Recommendations []string  `json:"recommendations,omitempty"`
	Model           string    `json:"model,omitempty"` // Vision model that produced the findings
	CreatedAt       time.Time `json:"created_at"`
}

// Classification is the overall verdict of an analysis
type Classification struct {
	Status        Status `json:"status"`
	Justification string `json:"justification"`
}

// Status is the conformity verdict
type Status string

const (
	StatusConforme   Status = "CONFORME"
	StatusNoConforme Status = "NO_CONFORME"
)

// InstallationType selects the inspection emphasis of the vision prompt
type InstallationType string

const (
	InstallationResidential InstallationType = "residential"
	InstallationCommercial  InstallationType = "commercial"
	InstallationIndustrial  InstallationType = "industrial"
)

// InstallationTypes lists the recognized installation types in display order
func InstallationTypes() []InstallationType {
	return []InstallationType{InstallationResidential, InstallationCommercial, InstallationIndustrial}
}

// Valid reports whether t is a recognized installation type
func (t InstallationType) Valid() bool {
	switch t {
	case InstallationResidential, InstallationCommercial, InstallationIndustrial:
		return true
	}
	return false
}

// Label returns the Spanish display name used in prompts and reports
func (t InstallationType) Label() string {
	switch t {
	case InstallationResidential:
		return "Residencial"
	case InstallationCommercial:
		return "Comercial"
	case InstallationIndustrial:
		return "Industrial"
	}
	return string(t)
}

// Counts returns the number of findings per severity
func (r *AnalysisReport) Counts() map[Severity]int {
	counts := map[Severity]int{SeverityHigh: 0, SeverityMedium: 0, SeverityLow: 0}
	for _, f := range r.Findings {
		counts[f.Severity]++
	}
	return counts
}
