// Package report renders an AnalysisReport as JSON or as a Markdown dictamen.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/inspecta/internal/model"
)

// NoReference is shown in place of a missing article
const NoReference = "Sin referencia"

// RenderJSON writes the report as indented JSON
func RenderJSON(w io.Writer, r *model.AnalysisReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// RenderMarkdown writes the report as a Markdown dictamen
func RenderMarkdown(w io.Writer, r *model.AnalysisReport) error {
	var b strings.Builder

	b.WriteString("# Dictamen de inspección eléctrica\n\n")
	fmt.Fprintf(&b, "- **Análisis:** `%s`\n", r.ID)
	fmt.Fprintf(&b, "- **Tipo de instalación:** %s\n", r.InstallationType.Label())
	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- **Fecha:** %s\n", r.CreatedAt.Format("2006-01-02 15:04 MST"))
	}
	if r.Model != "" {
		fmt.Fprintf(&b, "- **Modelo de visión:** %s\n", r.Model)
	}

	b.WriteString("\n## Clasificación\n\n")
	fmt.Fprintf(&b, "**%s**\n\n", statusLabel(r.Classification.Status))
	if r.Classification.Justification != "" {
		fmt.Fprintf(&b, "%s\n", r.Classification.Justification)
	}

	b.WriteString("\n## No conformidades\n\n")
	if len(r.Findings) == 0 {
		b.WriteString("No se detectaron no conformidades.\n")
	} else {
		b.WriteString("| # | Descripción | Ubicación | Artículo | Severidad |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for i, f := range r.Findings {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
				i+1, cell(f.Description), cell(f.Location), cell(f.ArticleOr(NoReference)), f.Severity.Label())
		}
	}

	if len(r.Conformities) > 0 {
		b.WriteString("\n## Conformidades\n\n")
		for _, c := range r.Conformities {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}

	if recs := recommendations(r); len(recs) > 0 {
		b.WriteString("\n## Recomendaciones\n\n")
		for _, rec := range recs {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
	}

	if r.Summary != "" {
		b.WriteString("\n## Resumen\n\n```\n")
		b.WriteString(r.Summary)
		b.WriteString("\n```\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteFiles renders the report to the given paths. An empty path is skipped.
func WriteFiles(r *model.AnalysisReport, jsonPath, mdPath string) error {
	if jsonPath != "" {
		if err := writeFile(jsonPath, func(w io.Writer) error { return RenderJSON(w, r) }); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
	}
	if mdPath != "" {
		if err := writeFile(mdPath, func(w io.Writer) error { return RenderMarkdown(w, r) }); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
	}
	return nil
}

func writeFile(path string, render func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func statusLabel(s model.Status) string {
	switch s {
	case model.StatusConforme:
		return "CONFORME"
	case model.StatusNoConforme:
		return "NO CONFORME"
	}
	return string(s)
}

// recommendations falls back to the per-finding ones
func recommendations(r *model.AnalysisReport) []string {
	if len(r.Recommendations) > 0 {
		return r.Recommendations
	}
	var out []string
	for _, f := range r.Findings {
		if f.Recommendation != "" {
			out = append(out, f.Recommendation)
		}
	}
	return out
}

// cell escapes a value for a Markdown table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "-"
	}
	return s
}
