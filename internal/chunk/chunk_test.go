package chunk

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/inspecta/internal/model"
)

func expectedCount(l, c, o int) int {
	if l == 0 {
		return 0
	}
	if l <= c {
		return 1
	}
	step := c - o
	return (l - o + step - 1) / step
}

func TestChunk_CountAndReconstruction(t *testing.T) {
	base := "Los conductores deben protegerse contra daño físico. Ñandú eléctrico. "
	cases := []struct {
		length, size, overlap int
	}{
		{1, 10, 0},
		{10, 10, 3},
		{11, 10, 3},
		{17, 10, 3},
		{18, 10, 3},
		{100, 10, 9},
		{257, 64, 16},
		{1000, 1000, 200},
		{3456, 1000, 200},
		{50, 7, 0},
	}

	for _, tc := range cases {
		text := []rune(strings.Repeat(base, tc.length/len([]rune(base))+1))[:tc.length]
		chunks, err := Chunk(string(text), tc.size, tc.overlap)
		require.NoError(t, err)

		assert.Len(t, chunks, expectedCount(tc.length, tc.size, tc.overlap), "L=%d C=%d O=%d", tc.length, tc.size, tc.overlap)
		assert.Equal(t, string(text), Join(chunks, tc.overlap), "L=%d C=%d O=%d", tc.length, tc.size, tc.overlap)

		for i, c := range chunks {
			assert.LessOrEqual(t, len([]rune(c)), tc.size)
			if i < len(chunks)-1 {
				assert.Len(t, []rune(c), tc.size, "only the last chunk may be short")
			}
		}
	}
}

func TestChunk_KeepsTrailingRemainder(t *testing.T) {
	chunks, err := Chunk("abcdefghijkl", 5, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"abcde", "efghi", "ijkl"}, chunks)
}

func TestChunk_Empty(t *testing.T) {
	chunks, err := Chunk("", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_InvalidConfiguration(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{10, 10}, {10, 11}, {0, 0}, {10, -1}} {
		_, err := Chunk("some text", tc.size, tc.overlap)
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrInvalidConfiguration), "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func TestNewSplitter_RejectsBadOptions(t *testing.T) {
	_, err := NewSplitter(WithSize(100), WithOverlap(100))
	require.Error(t, err)
	assert.Equal(t, model.KindInvalidConfiguration, model.KindOf(err))

	s, err := NewSplitter()
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, s.Size())
	assert.Equal(t, DefaultOverlap, s.Overlap())
}

func TestSplitter_Split_LabelsArticles(t *testing.T) {
	text := "NOM-001-SEDE-2012 Instalaciones eléctricas.\n" +
		"Artículo 110-14 Conexiones eléctricas. Las terminales deben ser adecuadas para el conductor.\n" +
		"Las conexiones deben quedar firmes y sin daño.\n" +
		"300-4(B)(1): conductors shall be protected from abrasion near metal edges.\n"

	s, err := NewSplitter(WithSize(60), WithOverlap(10))
	require.NoError(t, err)

	chunks, err := s.Split(Document{Name: "corpus/NOM-001-SEDE-2012.txt", Text: text})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	assert.Equal(t, "corpus_NOM-001-SEDE-2012_chunk_0", chunks[0].ID)
	assert.Equal(t, "110-14", chunks[0].Article(), "heading inside the first chunk")

	var labels []string
	for i, c := range chunks {
		assert.Equal(t, "NOM-001-SEDE-2012", c.NormID)
		assert.Equal(t, "corpus/NOM-001-SEDE-2012.txt", c.SourceDocument)
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, len(chunks), c.TotalChunks)
		labels = append(labels, c.Article())
	}
	assert.Contains(t, labels, "110-14")
	assert.Equal(t, "300-4(B)(1)", chunks[len(chunks)-1].Article())
}

func TestSplitter_Split_NoHeading(t *testing.T) {
	s, err := NewSplitter(WithSize(20), WithOverlap(5))
	require.NoError(t, err)

	chunks, err := s.Split(Document{Name: "notas.txt", Text: "Texto preliminar sin encabezado alguno."})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Nil(t, chunks[0].ArticleLabel)
}

func TestSplitter_Split_InheritsPreviousArticle(t *testing.T) {
	text := "Artículo 250-2 Puesta a tierra. " + strings.Repeat("texto de continuación ", 20)
	s, err := NewSplitter(WithSize(50), WithOverlap(5))
	require.NoError(t, err)

	chunks, err := s.Split(Document{Name: "tierra.txt", Text: text})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)
	for _, c := range chunks {
		assert.Equal(t, "250-2", c.Article())
	}
}

func TestIdentifyNorm(t *testing.T) {
	assert.Equal(t, "NOM-001-SEDE-2012", IdentifyNorm("nom-001-sede-2012.pdf", ""))
	assert.Equal(t, "NMX-J-098-ANCE-2014", IdentifyNorm("tensiones.pdf", "según NMX-J-098-ANCE-2014 vigente"))
	assert.Equal(t, "reglamento_local", IdentifyNorm("docs/reglamento local.txt", "sin identificador"))
}

func TestNormalizeArticle(t *testing.T) {
	assert.Equal(t, "300-4(B)(1)", NormalizeArticle("Artículo 300-4(B)(1)"))
	assert.Equal(t, "250-2", NormalizeArticle("Art. 250-2"))
	assert.Equal(t, "110-14", NormalizeArticle(" 110-14. "))
}

func TestDocumentKey(t *testing.T) {
	tests := map[string]string{
		"NOM-001-SEDE-2012.txt":      "NOM-001-SEDE-2012",
		"2012/NOM-001-SEDE.txt":      "2012_NOM-001-SEDE",
		"2018/NOM-001-SEDE.txt":      "2018_NOM-001-SEDE",
		"./anexos/guia tecnica.html": "anexos_guia_tecnica",
		"/srv/normas/NMX-J-098.pdf":  "srv_normas_NMX-J-098",
		"":                           "document",
	}
	for in, want := range tests {
		assert.Equal(t, want, DocumentKey(in), "DocumentKey(%q)", in)
	}
	assert.Equal(t, "NOM-001-SEDE", IdentifyNorm("2018/NOM-001-SEDE.txt", "sin identificador"),
		"the norm id ignores the directory")
}
