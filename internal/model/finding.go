package model

// Finding is a single non-conformity detected in a photograph.
// Article is nil when no regulatory reference could be established.
type Finding struct {
	Description    string   `json:"description"`
	Article        *string  `json:"article"`
	Severity       Severity `json:"severity"`
	Location       string   `json:"location,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// ArticleOr returns the cited article or fallback when there is none
func (f Finding) ArticleOr(fallback string) string {
	if f.Article == nil || *f.Article == "" {
		return fallback
	}
	return *f.Article
}

// Severity tiers a non-conformity by risk
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Severities lists tiers from most to least severe
func Severities() []Severity {
	return []Severity{SeverityHigh, SeverityMedium, SeverityLow}
}

// Label returns the Spanish display name of the tier
func (s Severity) Label() string {
	switch s {
	case SeverityHigh:
		return "Alta"
	case SeverityMedium:
		return "Media"
	case SeverityLow:
		return "Baja"
	}
	return string(s)
}

// StrPtr returns a pointer to s
func StrPtr(s string) *string {
	return &s
}
