package vision

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ppiankov/inspecta/internal/model"
)

// MaxNonConformities caps the findings kept from one reply
const MaxNonConformities = 10

// RawFinding is a non-conformity as the model reported it
type RawFinding struct {
	Description    string `json:"description"`
	Location       string `json:"location,omitempty"`
	Article        string `json:"article,omitempty"`
	Severity       string `json:"severity,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// RawAnalysis is the validated model verdict before normative integration
type RawAnalysis struct {
	Classification  model.Status `json:"classification"`
	NonConformities []RawFinding `json:"non_conformities"`
	Conformities    []string     `json:"conformities"`
	Summary         string       `json:"summary"`
	Recommendations []string     `json:"recommendations,omitempty"`
	Model           string       `json:"model,omitempty"`
}

type wireFinding struct {
	Description    *string `json:"description"`
	Location       *string `json:"location"`
	Article        *string `json:"article"`
	Severity       *string `json:"severity"`
	Recommendation *string `json:"recommendation"`
}

type wireAnalysis struct {
	Classification  *string        `json:"classification"`
	NonConformities *[]wireFinding `json:"non_conformities"`
	Conformities    *[]string      `json:"conformities"`
	Summary         *string        `json:"summary"`
	Recommendations []string       `json:"recommendations"`
}

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

// ParseResponse validates a model reply. The JSON object may be bare, inside a
// fenced code block, or embedded in prose. Unknown fields are ignored; a
// missing required field or a wrong type is a MalformedModelResponse.
func ParseResponse(text string) (*RawAnalysis, error) {
	candidate := extractJSON(text)
	if candidate == "" {
		return nil, malformed("parse", "no JSON object in response")
	}

	var w wireAnalysis
	if err := json.Unmarshal([]byte(candidate), &w); err != nil {
		return nil, malformed("parse", "invalid JSON: %v", err)
	}

	switch {
	case w.Classification == nil:
		return nil, malformed("parse", "missing field \"classification\"")
	case w.NonConformities == nil:
		return nil, malformed("parse", "missing field \"non_conformities\"")
	case w.Conformities == nil:
		return nil, malformed("parse", "missing field \"conformities\"")
	case w.Summary == nil:
		return nil, malformed("parse", "missing field \"summary\"")
	}

	status, ok := normalizeStatus(*w.Classification)
	if !ok {
		return nil, malformed("parse", "unknown classification %q", *w.Classification)
	}

	out := &RawAnalysis{
		Classification:  status,
		NonConformities: []RawFinding{},
		Conformities:    nonEmpty(*w.Conformities),
		Summary:         strings.TrimSpace(*w.Summary),
		Recommendations: nonEmpty(w.Recommendations),
	}

	for i, f := range *w.NonConformities {
		if f.Description == nil || strings.TrimSpace(*f.Description) == "" {
			return nil, malformed("parse", "non_conformities[%d] has no description", i)
		}
		if len(out.NonConformities) == MaxNonConformities {
			break
		}
		out.NonConformities = append(out.NonConformities, RawFinding{
			Description:    strings.TrimSpace(*f.Description),
			Location:       deref(f.Location),
			Article:        deref(f.Article),
			Severity:       deref(f.Severity),
			Recommendation: deref(f.Recommendation),
		})
	}
	return out, nil
}

// normalizeStatus maps "no conforme", "No-Conforme" and the like to a Status
func normalizeStatus(s string) (model.Status, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch model.Status(s) {
	case model.StatusConforme:
		return model.StatusConforme, true
	case model.StatusNoConforme:
		return model.StatusNoConforme, true
	}
	return "", false
}

func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") && json.Valid([]byte(text)) {
		return text
	}
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return firstObject(text)
}

// firstObject returns the first balanced {...} in text, skipping braces inside strings
func firstObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
