package vision

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ppiankov/inspecta/internal/model"
)

const validReply = `{
  "classification": "NO_CONFORME",
  "non_conformities": [
    {"description": "Conductor expuesto cerca del gabinete metálico", "location": "esquina superior", "article": "300-4(B)(1)", "severity": "alta"}
  ],
  "conformities": ["Tapa del tablero completa"],
  "summary": "Se observa un conductor sin protección.",
  "extra_field": {"ignored": true}
}`

func TestParseResponse_Bare(t *testing.T) {
	raw, err := ParseResponse(validReply)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if raw.Classification != model.StatusNoConforme {
		t.Errorf("expected NO_CONFORME, got %s", raw.Classification)
	}
	if len(raw.NonConformities) != 1 {
		t.Fatalf("expected 1 non-conformity, got %d", len(raw.NonConformities))
	}
	nc := raw.NonConformities[0]
	if nc.Article != "300-4(B)(1)" || nc.Severity != "alta" || nc.Location != "esquina superior" {
		t.Errorf("unexpected finding: %+v", nc)
	}
	if len(raw.Conformities) != 1 || raw.Summary == "" {
		t.Errorf("unexpected conformities or summary: %+v", raw)
	}
	if raw.Recommendations == nil {
		t.Error("recommendations should be an empty slice, not nil")
	}
}

func TestParseResponse_Fenced(t *testing.T) {
	text := "Aquí está el análisis:\n```json\n" + validReply + "\n```\nSaludos."
	raw, err := ParseResponse(text)
	if err != nil {
		t.Fatalf("fenced JSON rejected: %v", err)
	}
	if raw.Classification != model.StatusNoConforme {
		t.Errorf("unexpected classification %s", raw.Classification)
	}
}

func TestParseResponse_EmbeddedInProse(t *testing.T) {
	text := `Resultado {"classification": "conforme", "non_conformities": [], "conformities": ["Todo en orden {ok}"], "summary": "Sin hallazgos."} fin.`
	raw, err := ParseResponse(text)
	if err != nil {
		t.Fatalf("embedded JSON rejected: %v", err)
	}
	if raw.Classification != model.StatusConforme {
		t.Errorf("expected CONFORME, got %s", raw.Classification)
	}
	if len(raw.NonConformities) != 0 || raw.Conformities[0] != "Todo en orden {ok}" {
		t.Errorf("unexpected parse: %+v", raw)
	}
}

func TestParseResponse_ClassificationNormalised(t *testing.T) {
	for _, in := range []string{"NO CONFORME", "no conforme", "No-Conforme", " NO_CONFORME "} {
		text := fmt.Sprintf(`{"classification": %q, "non_conformities": [], "conformities": [], "summary": "x"}`, in)
		raw, err := ParseResponse(text)
		if err != nil {
			t.Errorf("%q rejected: %v", in, err)
			continue
		}
		if raw.Classification != model.StatusNoConforme {
			t.Errorf("%q parsed as %s", in, raw.Classification)
		}
	}
}

func TestParseResponse_Malformed(t *testing.T) {
	tests := map[string]string{
		"no json":              "La instalación se ve bien.",
		"missing summary":      `{"classification": "CONFORME", "non_conformities": [], "conformities": []}`,
		"missing findings":     `{"classification": "CONFORME", "conformities": [], "summary": "x"}`,
		"missing conformities": `{"classification": "CONFORME", "non_conformities": [], "summary": "x"}`,
		"missing class":        `{"non_conformities": [], "conformities": [], "summary": "x"}`,
		"wrong type":           `{"classification": "CONFORME", "non_conformities": "none", "conformities": [], "summary": "x"}`,
		"unknown class":        `{"classification": "PARCIAL", "non_conformities": [], "conformities": [], "summary": "x"}`,
		"empty description":    `{"classification": "NO_CONFORME", "non_conformities": [{"description": " "}], "conformities": [], "summary": "x"}`,
		"truncated":            `{"classification": "CONFORME", "non_conformities": [`,
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResponse(text)
			if model.KindOf(err) != model.KindMalformedModelResponse {
				t.Errorf("expected MalformedModelResponse, got %v", err)
			}
		})
	}
}

func TestParseResponse_CapsFindings(t *testing.T) {
	var items []string
	for i := 0; i < 14; i++ {
		items = append(items, fmt.Sprintf(`{"description": "hallazgo %d"}`, i))
	}
	text := `{"classification": "NO_CONFORME", "non_conformities": [` + strings.Join(items, ",") +
		`], "conformities": [], "summary": "x"}`

	raw, err := ParseResponse(text)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(raw.NonConformities) != MaxNonConformities {
		t.Fatalf("expected %d findings, got %d", MaxNonConformities, len(raw.NonConformities))
	}
	if raw.NonConformities[9].Description != "hallazgo 9" {
		t.Errorf("findings must keep their order, got %q last", raw.NonConformities[9].Description)
	}
}

func TestFirstObject(t *testing.T) {
	got := firstObject(`x {"a": "}", "b": {"c": "\"{"}} y {"d": 1}`)
	want := `{"a": "}", "b": {"c": "\"{"}}`
	if got != want {
		t.Errorf("firstObject = %s, want %s", got, want)
	}
	if firstObject("no braces") != "" || firstObject("{ unbalanced") != "" {
		t.Error("expected empty result")
	}
}
