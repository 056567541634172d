package integrate

import (
	"fmt"
	"strings"

	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/util"
)

const executiveLimit = 10

// Classify returns the verdict for a set of findings. Any finding makes the
// installation non-conforming.
func Classify(findings []model.Finding) model.Classification {
	counts := countBySeverity(findings)
	n := len(findings)

	switch {
	case n == 0:
		return model.Classification{
			Status:        model.StatusConforme,
			Justification: "No se detectaron no conformidades en la instalación analizada.",
		}
	case counts[model.SeverityHigh] > 0:
		return model.Classification{
			Status: model.StatusNoConforme,
			Justification: fmt.Sprintf("Se detectaron %d no conformidades, incluyendo %d de severidad alta que representan riesgo para la seguridad.",
				n, counts[model.SeverityHigh]),
		}
	case counts[model.SeverityMedium] > 0:
		return model.Classification{
			Status: model.StatusNoConforme,
			Justification: fmt.Sprintf("Se detectaron %d no conformidades de severidad media. La instalación no cumple con los requisitos normativos.",
				n),
		}
	default:
		return model.Classification{
			Status:        model.StatusNoConforme,
			Justification: fmt.Sprintf("Se detectaron %d no conformidades menores.", n),
		}
	}
}

// Summarize builds the report summary: verdict, counts per tier, the vision
// model's own summary and an executive list of findings per tier.
func Summarize(status model.Status, findings []model.Finding, visionSummary string) string {
	counts := countBySeverity(findings)

	var b strings.Builder
	fmt.Fprintf(&b, "Clasificación: %s\n", status)
	fmt.Fprintf(&b, "Alta: %d, Media: %d, Baja: %d\n",
		counts[model.SeverityHigh], counts[model.SeverityMedium], counts[model.SeverityLow])
	if s := strings.TrimSpace(visionSummary); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}

	if len(findings) == 0 {
		return strings.TrimRight(b.String(), "\n")
	}

	b.WriteString("\nResumen ejecutivo:\n")
	for _, sev := range model.Severities() {
		var listed int
		for _, f := range findings {
			if f.Severity != sev {
				continue
			}
			if listed == 0 {
				fmt.Fprintf(&b, "Severidad %s:\n", strings.ToLower(sev.Label()))
			}
			if listed == executiveLimit {
				fmt.Fprintf(&b, "- ... y %d más\n", counts[sev]-executiveLimit)
				break
			}
			fmt.Fprintf(&b, "- %s (%s)\n", util.Truncate(f.Description, 120), f.ArticleOr("Sin ref."))
			listed++
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func countBySeverity(findings []model.Finding) map[model.Severity]int {
	counts := map[model.Severity]int{}
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
