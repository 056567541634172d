package model

// RegulatoryChunk is one embeddable passage of a regulatory document.
// Chunks are immutable once created and map to exactly one embedding.
type RegulatoryChunk struct {
	ID             string  `json:"id"`              // <document key>_chunk_<index>
	Text           string  `json:"text"`
	SourceDocument string  `json:"source_document"` // Path relative to the corpus root
	ArticleLabel   *string `json:"article_label"`   // Article heading in force for this passage
	NormID         string  `json:"norm_id"`         // e.g. NOM-001-SEDE-2012
	ChunkIndex     int     `json:"chunk_index"`
	TotalChunks    int     `json:"total_chunks"`
}

// Article returns the article label or "" when the chunk has none
func (c RegulatoryChunk) Article() string {
	if c.ArticleLabel == nil {
		return ""
	}
	return *c.ArticleLabel
}

// Citation is a regulatory reference retrieved for a finding
type Citation struct {
	Article        string  `json:"article"`
	SourceDocument string  `json:"source_document"`
	NormID         string  `json:"norm_id"`
	Excerpt        string  `json:"excerpt"`
	Similarity     float64 `json:"similarity"`
}
