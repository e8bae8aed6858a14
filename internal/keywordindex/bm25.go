package keywordindex

import (
	"math"
	"strings"
)

// BM25Okapi parameters
const (
	K1      = 1.5
	B       = 0.75
	Epsilon = 0.25
)

// Tokenize lowercases text and splits it on whitespace
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// BM25 is an Okapi BM25 scorer over a fixed corpus. Fields are exported
// for gob encoding only.
type BM25 struct {
	DocFreqs []map[string]int
	DocLens  []int
	AvgDL    float64
	IDF      map[string]float64
	K1       float64
	B        float64
}

// NewBM25 computes term statistics for corpus, one token list per document
func NewBM25(corpus [][]string) *BM25 {
	m := &BM25{
		DocFreqs: make([]map[string]int, len(corpus)),
		DocLens:  make([]int, len(corpus)),
		IDF:      make(map[string]float64),
		K1:       K1,
		B:        B,
	}

	nd := make(map[string]int)
	total := 0
	for i, doc := range corpus {
		freqs := make(map[string]int)
		for _, tok := range doc {
			freqs[tok]++
		}
		m.DocFreqs[i] = freqs
		m.DocLens[i] = len(doc)
		total += len(doc)
		for tok := range freqs {
			nd[tok]++
		}
	}
	if len(corpus) > 0 {
		m.AvgDL = float64(total) / float64(len(corpus))
	}

	m.computeIDF(nd, len(corpus))
	return m
}

// computeIDF uses ln(N-n+0.5) - ln(n+0.5). Terms in more than half the
// corpus get a negative value, which is replaced by Epsilon times the mean.
func (m *BM25) computeIDF(nd map[string]int, n int) {
	if len(nd) == 0 {
		return
	}

	sum := 0.0
	var negative []string
	for tok, freq := range nd {
		idf := math.Log(float64(n-freq)+0.5) - math.Log(float64(freq)+0.5)
		m.IDF[tok] = idf
		sum += idf
		if idf < 0 {
			negative = append(negative, tok)
		}
	}

	eps := Epsilon * sum / float64(len(nd))
	for _, tok := range negative {
		m.IDF[tok] = eps
	}
}

// Scores returns the relevance of every document for the query tokens.
// Repeated query tokens contribute once per occurrence.
func (m *BM25) Scores(query []string) []float64 {
	scores := make([]float64, len(m.DocFreqs))
	if m.AvgDL == 0 {
		return scores
	}

	for _, q := range query {
		idf, ok := m.IDF[q]
		if !ok {
			continue
		}
		for i, freqs := range m.DocFreqs {
			f := float64(freqs[q])
			if f == 0 {
				continue
			}
			norm := m.K1 * (1 - m.B + m.B*float64(m.DocLens[i])/m.AvgDL)
			scores[i] += idf * f * (m.K1 + 1) / (f + norm)
		}
	}
	return scores
}

// Len returns the corpus size
func (m *BM25) Len() int {
	return len(m.DocFreqs)
}
