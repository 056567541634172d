package integrate

import (
	"strings"
	"unicode"

	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/util"
)

type tier struct {
	severity model.Severity
	keywords []string
}

// Checked in order; the first tier with a matching keyword wins. Keywords are
// folded (lowercase, no accents) and match whole words, so every inflection
// that should count is listed.
var severityTable = []tier{
	{model.SeverityHigh, []string{
		"shock", "shocks", "electrocution", "electric shock", "fire", "fires", "burn", "burns",
		"burned", "burnt", "burning", "arc", "arcs", "arcing", "exposed", "live part", "live parts",
		"no ground", "ungrounded", "missing ground", "short circuit", "short circuits",
		"loose connection", "loose connections",
		"riesgo", "riesgos", "peligro", "peligroso", "peligrosa", "descarga", "descargas",
		"electrocucion", "incendio", "fuego", "quemadura", "quemaduras", "quemado", "quemada",
		"expuesto", "expuestos", "expuesta", "expuestas", "sin tierra", "falta de tierra",
		"sin proteccion", "cortocircuito", "cortocircuitos", "conexion suelta", "conexiones sueltas",
		"arco", "arcos",
	}},
	{model.SeverityMedium, []string{
		"overload", "overloaded", "overloading", "overheating", "overheat", "overheated",
		"degradation", "degraded", "deteriorated", "deterioration", "corrosion", "corroded", "worn",
		"damaged", "damage", "undersized",
		"sobrecarga", "sobrecargado", "sobrecargados", "sobrecalentamiento", "calentamiento",
		"degradacion", "degradado", "deteriorado", "deteriorada", "deteriorados", "deterioradas",
		"corroido", "corroida", "desgaste", "desgastado", "desgastada",
		"danado", "danada", "danados", "danadas", "subdimensionado", "subdimensionados",
	}},
	{model.SeverityLow, []string{
		"label", "labels", "labeled", "labelled", "labeling", "labelling", "unlabeled", "unlabelled",
		"signage", "cosmetic", "paint", "painted", "organization", "tidy", "documentation",
		"identification", "etiqueta", "etiquetas", "etiquetado", "etiquetada", "senalizacion",
		"identificacion", "cosmetico", "cosmetica", "pintura", "orden", "organizacion",
		"documentacion", "limpieza",
	}},
}

// ClassifySeverity assigns a tier from the finding text. Keywords match whole
// words, ignoring case and accents: "Expuestos" hits "expuestos" while
// "archive" does not hit "arc". A description with no keyword is medium.
func ClassifySeverity(description string) model.Severity {
	text := " " + strings.Join(strings.Fields(wordsOnly(util.Fold(description))), " ") + " "
	for _, t := range severityTable {
		for _, kw := range t.keywords {
			if strings.Contains(text, " "+kw+" ") {
				return t.severity
			}
		}
	}
	return model.SeverityMedium
}

// wordsOnly replaces punctuation with spaces so keywords match across it
func wordsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
}
