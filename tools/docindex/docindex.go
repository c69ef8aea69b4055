// Package docindex decides whether a document is about a given subject by
// indexing its text in a throwaway bleve index and querying the subject.
package docindex

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/lang/fr"
	"github.com/blevesearch/bleve/search/query"

	"github.com/mohammad-safakhou/climarisk/models"
)

const (
	DefaultChunkRunes = 4000
	DefaultOverlap    = 200
)

// Match is the outcome of Score.
type Match struct {
	Relevant bool    `json:"relevant"`
	Score    float64 `json:"score"`
	// Chunks is the number of text chunks that matched.
	Chunks uint64 `json:"chunks"`
}

type chunk struct {
	Text string `json:"text"`
}

type Index struct {
	ChunkRunes int
	Overlap    int
}

func New() Index { return Index{ChunkRunes: DefaultChunkRunes, Overlap: DefaultOverlap} }

// Score reports whether any chunk of doc contains every word of at least
// one subject. Subjects are typically a document code and its label.
func (ix Index) Score(doc models.Document, subjects ...string) (Match, error) {
	var queries []query.Query
	for _, s := range subjects {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		q := bleve.NewMatchQuery(s)
		q.SetField("text")
		q.SetOperator(query.MatchQueryOperatorAnd)
		queries = append(queries, q)
	}
	if len(queries) == 0 || strings.TrimSpace(doc.Text) == "" {
		return Match{}, nil
	}

	mapping := bleve.NewIndexMapping()
	mapping.DefaultAnalyzer = fr.AnalyzerName
	index, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return Match{}, fmt.Errorf("docindex: %w", err)
	}
	defer index.Close()

	batch := index.NewBatch()
	for i, part := range makeChunks(doc.Text, ix.chunkRunes(), ix.Overlap) {
		if err := batch.Index(fmt.Sprintf("%04d", i), chunk{Text: part}); err != nil {
			return Match{}, fmt.Errorf("docindex: %w", err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return Match{}, fmt.Errorf("docindex: %w", err)
	}

	res, err := index.Search(bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...)))
	if err != nil {
		return Match{}, fmt.Errorf("docindex: %w", err)
	}
	return Match{Relevant: res.Total > 0, Score: res.MaxScore, Chunks: res.Total}, nil
}

func (ix Index) chunkRunes() int {
	if ix.ChunkRunes <= 0 {
		return DefaultChunkRunes
	}
	return ix.ChunkRunes
}

func makeChunks(text string, approx, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= approx {
		return []string{string(runes)}
	}
	if overlap < 0 || overlap >= approx {
		overlap = 0
	}
	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+approx, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}
