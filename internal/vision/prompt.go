package vision

import (
	"fmt"
	"strings"

	"github.com/ppiankov/inspecta/internal/model"
)

// SystemPrompt frames every analysis request
const SystemPrompt = "Eres un inspector eléctrico certificado en México. Evalúas instalaciones " +
	"contra la NOM-001-SEDE-2012 y normas NMX aplicables. Respondes únicamente con un objeto JSON válido."

type template struct {
	name     string
	norms    []string
	emphasis []string
}

var templates = map[model.InstallationType]template{
	model.InstallationResidential: {
		name:  "instalación eléctrica residencial",
		norms: []string{"NOM-001-SEDE-2012 Artículo 210 (Circuitos derivados)", "NOM-001-SEDE-2012 Artículo 250 (Puesta a tierra)", "NOM-001-SEDE-2012 Artículo 408 (Tableros)"},
		emphasis: []string{
			"Contactos y apagadores: estado, fijación y placas completas",
			"Protección GFCI en baños, cocinas, exteriores y áreas húmedas",
			"Tablero o centro de carga: tapa, identificación de circuitos, interruptores adecuados",
			"Conexión a tierra visible y continuidad del conductor de puesta a tierra",
			"Conductores expuestos, empalmes sin caja o aislamiento dañado",
		},
	},
	model.InstallationCommercial: {
		name:  "instalación eléctrica comercial",
		norms: []string{"NOM-001-SEDE-2012 Artículo 700 (Sistemas de emergencia)", "NOM-001-SEDE-2012 Artículo 300 (Métodos de alambrado)", "NOM-001-SEDE-2012 Artículo 110 (Requisitos generales)"},
		emphasis: []string{
			"Alumbrado de emergencia y señalización de salidas",
			"Balance de cargas y capacidad de los circuitos",
			"Señalización de voltaje y de riesgo eléctrico",
			"Canalizaciones: soportes, tapas, ocupación y protección mecánica",
			"Espacio de trabajo frente a tableros (mínimo 1 metro libre)",
		},
	},
	model.InstallationIndustrial: {
		name:  "instalación eléctrica industrial",
		norms: []string{"NOM-001-SEDE-2012 Artículo 430 (Motores)", "NOM-001-SEDE-2012 Artículo 500 (Áreas peligrosas)", "NOM-001-SEDE-2012 Artículo 250 (Puesta a tierra)"},
		emphasis: []string{
			"Protección de motores contra sobrecarga y cortocircuito",
			"Equipo adecuado para áreas peligrosas (clasificadas)",
			"Mallas y redes de tierra, uniones equipotenciales",
			"Equipo de alta potencia: distancias, barreras y resguardos",
			"Corrosión, sobrecalentamiento o degradación de conductores y conexiones",
		},
	},
}

// BuildPrompt returns the inspection prompt for an installation type
func BuildPrompt(it model.InstallationType) (string, error) {
	t, ok := templates[it]
	if !ok {
		return "", model.Errorf(model.KindInvalidConfiguration, "vision",
			"unknown installation type %q (expected residential, commercial or industrial)", it)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analiza esta fotografía de una %s.\n\n", t.name)

	b.WriteString("NORMAS APLICABLES:\n")
	for _, n := range t.norms {
		fmt.Fprintf(&b, "- %s\n", n)
	}

	b.WriteString("\nELEMENTOS A VERIFICAR:\n")
	for i, e := range t.emphasis {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e)
	}

	b.WriteString(`
INSTRUCCIONES:
- Describe solo lo que se observa en la imagen; no supongas elementos que no son visibles.
- Registra cada no conformidad por separado, con su ubicación en la imagen.
- Cita el artículo de la NOM únicamente si estás seguro; si no, omite el campo "article".
- La severidad puede ser "alta", "media" o "baja".
- Reporta como máximo 10 no conformidades, las más relevantes primero.

Responde con un único objeto JSON con esta estructura exacta:
{
  "classification": "CONFORME" o "NO_CONFORME",
  "non_conformities": [
    {"description": "...", "location": "...", "article": "...", "severity": "...", "recommendation": "..."}
  ],
  "conformities": ["..."],
  "summary": "...",
  "recommendations": ["..."]
}
`)
	return b.String(), nil
}
