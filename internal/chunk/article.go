package chunk

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	// Artículo 110-14, Art. 250-2, Article 300-4(B)(1)
	articleWordPattern = regexp.MustCompile(`(?i)\b(?:art[íi]culo|art\.|article|section|secci[óo]n)\s+(\d+(?:[.-]\d+)*(?:\([A-Za-z0-9]+\))*)`)
	// 300-4(B)(1): at the start of a line
	clauseLinePattern = regexp.MustCompile(`(?m)^[ \t]*(\d{2,3}-\d+[A-Za-z]?(?:\([A-Za-z0-9]+\))*)[ \t]*[:.]`)

	nomPattern = regexp.MustCompile(`NOM-\d+-[A-Z]+-\d+`)
	nmxPattern = regexp.MustCompile(`NMX-[A-Z]-\d+-[A-Z]+-\d+`)
)

type heading struct {
	pos   int // rune offset of the heading in the document
	label string
}

type headings []heading

// findHeadings returns article headings in document order
func findHeadings(runes []rune) headings {
	text := string(runes)
	byteToRune := make(map[int]int, len(runes))
	i := 0
	for b := range text {
		byteToRune[b] = i
		i++
	}

	var hs headings
	seen := make(map[int]bool)
	for _, p := range []*regexp.Regexp{articleWordPattern, clauseLinePattern} {
		for _, m := range p.FindAllStringSubmatchIndex(text, -1) {
			pos := byteToRune[m[2]]
			if seen[pos] {
				continue
			}
			seen[pos] = true
			hs = append(hs, heading{pos: pos, label: text[m[2]:m[3]]})
		}
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].pos < hs[j].pos })
	return hs
}

// labelFor returns the first heading inside the span, or the last heading
// before it when the span continues an earlier article.
func (hs headings) labelFor(sp span) string {
	last := ""
	for _, h := range hs {
		if h.pos >= sp.end {
			break
		}
		if h.pos >= sp.start {
			return h.label
		}
		last = h.label
	}
	return last
}

// NormalizeArticle strips decoration a model may add around an article label
// ("Artículo 300-4(B)(1)" becomes "300-4(B)(1)").
func NormalizeArticle(s string) string {
	s = strings.TrimSpace(s)
	if m := articleWordPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return strings.Trim(s, " .:;,")
}

// IdentifyNorm finds the NOM/NMX identifier of a document, looking at the
// file name first and the text second. Falls back to the file stem.
func IdentifyNorm(name, text string) string {
	upper := strings.ToUpper(filepath.Base(name))
	for _, p := range []*regexp.Regexp{nomPattern, nmxPattern} {
		if m := p.FindString(upper); m != "" {
			return m
		}
	}
	for _, p := range []*regexp.Regexp{nomPattern, nmxPattern} {
		if m := p.FindString(text); m != "" {
			return m
		}
	}
	return DocumentKey(filepath.Base(name))
}
