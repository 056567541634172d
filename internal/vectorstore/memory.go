package vectorstore

import (
	"context"
	"sync"

	"github.com/ppiankov/inspecta/internal/model"
)

// Memory is a non-persistent backend for tests and throwaway runs
type Memory struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string // ids in insertion order
	nextSeq int64
	model   string
}

// NewMemory creates an empty in-memory backend
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record)}
}

func (m *Memory) Upsert(_ context.Context, recs []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range recs {
		r.Vector = append([]float32(nil), r.Vector...)
		if existing, ok := m.records[r.Chunk.ID]; ok {
			r.Seq = existing.Seq
			*existing = r
			continue
		}
		m.nextSeq++
		r.Seq = m.nextSeq
		rec := r
		m.records[r.Chunk.ID] = &rec
		m.order = append(m.order, r.Chunk.ID)
	}
	return nil
}

func (m *Memory) Scan(_ context.Context, normID string, fn func(Record) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		r := m.records[id]
		if normID != "" && r.Chunk.NormID != normID {
			continue
		}
		if err := fn(*r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*Record)
	m.order = nil
	m.model = ""
	return nil
}

func (m *Memory) DeleteSource(_ context.Context, sourceDocument string, keep []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	order := m.order[:0]
	removed := 0
	for _, id := range m.order {
		if m.records[id].Chunk.SourceDocument == sourceDocument && !kept[id] {
			delete(m.records, id)
			removed++
			continue
		}
		order = append(order, id)
	}
	m.order = order
	return removed, nil
}

func (m *Memory) ByArticle(_ context.Context, label string) ([]model.RegulatoryChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.RegulatoryChunk
	for _, id := range m.order {
		if c := m.records[id].Chunk; c.Article() == label {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) Sources(context.Context) ([]SourceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := make(map[string]int)
	var out []SourceInfo
	for _, id := range m.order {
		c := m.records[id].Chunk
		i, ok := idx[c.SourceDocument]
		if !ok {
			i = len(out)
			idx[c.SourceDocument] = i
			out = append(out, SourceInfo{SourceDocument: c.SourceDocument, NormID: c.NormID})
		}
		out[i].Chunks++
	}
	sortSources(out)
	return out, nil
}

func (m *Memory) EmbeddingModel(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model, nil
}

func (m *Memory) SetEmbeddingModel(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = name
	return nil
}

func (m *Memory) Close() error { return nil }
