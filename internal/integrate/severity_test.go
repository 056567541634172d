package integrate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ppiankov/inspecta/internal/model"
)

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		description string
		want        model.Severity
	}{
		{"Conductor EXPUESTO en el tablero", model.SeverityHigh},
		{"Conductores expuestos", model.SeverityHigh},
		{"Riesgo de descarga por sobrecarga", model.SeverityHigh},
		{"Contacto sin protección GFCI", model.SeverityHigh},
		{"Evidence of arcing on the busbar", model.SeverityHigh},
		{"Loose connection at the breaker", model.SeverityHigh},
		{"Corrosión en la barra de tierra", model.SeverityMedium},
		{"Cable dañado por roedores", model.SeverityMedium},
		{"Overheating at breaker terminals", model.SeverityMedium},
		{"Falta etiqueta en el interruptor", model.SeverityLow},
		{"Señalización incompleta", model.SeverityLow},
		{"Missing archive of circuit documentation", model.SeverityLow},
		{"Fireproof cover in good shape but unlabeled", model.SeverityLow},
		{"Architectural drawings of the panel are not posted", model.SeverityMedium},
		{"Marco del tablero desalineado", model.SeverityMedium},
		{"something unusual in the box", model.SeverityMedium},
		{"", model.SeverityMedium},
	}
	for _, tt := range tests {
		got := ClassifySeverity(tt.description)
		assert.Equal(t, tt.want, got, "description %q", tt.description)
	}
}

func finding(desc string, sev model.Severity, article string) model.Finding {
	f := model.Finding{Description: desc, Severity: sev}
	if article != "" {
		f.Article = model.StrPtr(article)
	}
	return f
}

func TestClassifyJustification(t *testing.T) {
	c := Classify(nil)
	assert.Equal(t, model.StatusConforme, c.Status)
	assert.Equal(t, "No se detectaron no conformidades en la instalación analizada.", c.Justification)

	c = Classify([]model.Finding{finding("a", model.SeverityHigh, ""), finding("b", model.SeverityLow, "")})
	assert.Equal(t, model.StatusNoConforme, c.Status)
	assert.Equal(t, "Se detectaron 2 no conformidades, incluyendo 1 de severidad alta que representan riesgo para la seguridad.", c.Justification)

	c = Classify([]model.Finding{finding("a", model.SeverityMedium, ""), finding("b", model.SeverityLow, "")})
	assert.True(t, strings.HasPrefix(c.Justification, "Se detectaron 2 no conformidades de severidad media."))

	c = Classify([]model.Finding{finding("a", model.SeverityLow, "")})
	assert.Equal(t, model.StatusNoConforme, c.Status, "a single minor finding is still non-conforming")
	assert.Equal(t, "Se detectaron 1 no conformidades menores.", c.Justification)
}

func TestSummarize(t *testing.T) {
	findings := []model.Finding{
		finding("Conductor expuesto", model.SeverityHigh, "300-4(B)(1)"),
		finding("Falta etiqueta", model.SeverityLow, ""),
	}
	s := Summarize(model.StatusNoConforme, findings, "El tablero presenta daños.")

	lines := strings.Split(s, "\n")
	assert.Equal(t, "Clasificación: NO_CONFORME", lines[0])
	assert.Equal(t, "Alta: 1, Media: 0, Baja: 1", lines[1])
	assert.Equal(t, "El tablero presenta daños.", lines[2])
	assert.Contains(t, s, "Severidad alta:\n- Conductor expuesto (300-4(B)(1))")
	assert.Contains(t, s, "Severidad baja:\n- Falta etiqueta (Sin ref.)")
	assert.NotContains(t, s, "Severidad media")
}

func TestSummarizeCapsExecutiveList(t *testing.T) {
	var findings []model.Finding
	for i := 0; i < 13; i++ {
		findings = append(findings, finding(fmt.Sprintf("hallazgo %d", i), model.SeverityHigh, ""))
	}
	s := Summarize(model.StatusNoConforme, findings, "")

	assert.Contains(t, s, "- hallazgo 9 (Sin ref.)")
	assert.NotContains(t, s, "hallazgo 10")
	assert.Contains(t, s, "- ... y 3 más")
}
