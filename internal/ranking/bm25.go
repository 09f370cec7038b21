package ranking

import (
	"math"
	"strings"
	"unicode"
)

// BM25 parameters. K1 controls term frequency saturation, B controls
// document length normalization.
const (
	K1 = 1.2
	B  = 0.75
)

// Document is the input to the lexical index: an item id plus the text to
// tokenize (typically title + summary + snippet concatenated).
type Document struct {
	ID   string
	Text string
}

// indexedDocument holds the derived per-document state. It is rebuilt every
// time an index is constructed and never mutated after AddDocuments.
type indexedDocument struct {
	id       string
	termFreq map[string]int
	length   int
}

// BM25Index is an in-memory inverted document-frequency index over one batch
// of items. It exists only for the duration of a single ranking pass; the
// corpus (the batch being ranked) and the query (category keywords) are both
// ephemeral per request, so nothing is persisted.
type BM25Index struct {
	docs        []indexedDocument
	docFreq     map[string]int
	totalLength int
}

// NewBM25Index creates an empty index.
func NewBM25Index() *BM25Index {
	return &BM25Index{
		docFreq: make(map[string]int),
	}
}

// AddDocuments tokenizes and ingests a batch of documents, building
// per-document term frequencies, global document frequencies, and the
// average document length used for length normalization.
func (idx *BM25Index) AddDocuments(docs []Document) {
	for _, doc := range docs {
		terms := Tokenize(doc.Text)

		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}

		// df counts documents containing the term, not occurrences.
		for term := range tf {
			idx.docFreq[term]++
		}

		idx.docs = append(idx.docs, indexedDocument{
			id:       doc.ID,
			termFreq: tf,
			length:   len(terms),
		})
		idx.totalLength += len(terms)
	}
}

// Score computes the raw BM25 score of every indexed document against the
// query terms. Documents with zero tokens score 0. The returned map contains
// an entry for every indexed document id.
//
// score(d, Q) = Σ IDF(t) × (tf(t,d) × (k1+1)) / (tf(t,d) + k1 × (1-b + b×|d|/avgdl))
func (idx *BM25Index) Score(queryTerms []string) map[string]float64 {
	scores := make(map[string]float64, len(idx.docs))

	avgdl := idx.averageLength()

	for _, doc := range idx.docs {
		score := 0.0
		if doc.length > 0 && avgdl > 0 {
			for _, term := range queryTerms {
				tf := float64(doc.termFreq[strings.ToLower(term)])
				if tf == 0 {
					continue
				}
				idf := idx.idf(strings.ToLower(term))
				numerator := tf * (K1 + 1)
				denominator := tf + K1*(1-B+B*float64(doc.length)/avgdl)
				score += idf * numerator / denominator
			}
		}
		scores[doc.id] = score
	}

	return scores
}

// idf computes the smoothed inverse document frequency:
// ln((N - df + 0.5) / (df + 0.5) + 1). The +1 keeps IDF non-negative even
// when a term appears in more than half the corpus.
func (idx *BM25Index) idf(term string) float64 {
	df := float64(idx.docFreq[term])
	n := float64(len(idx.docs))
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

// averageLength returns the average token count across indexed documents,
// or 0 for an empty index.
func (idx *BM25Index) averageLength() float64 {
	if len(idx.docs) == 0 {
		return 0
	}
	return float64(idx.totalLength) / float64(len(idx.docs))
}

// NormalizeScores rescales a batch of raw scores to [0, 1] by dividing by
// the maximum observed score. If the maximum is 0 all scores remain 0; there
// is no division by zero in the degenerate case.
func NormalizeScores(scores map[string]float64) map[string]float64 {
	max := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}

	normalized := make(map[string]float64, len(scores))
	if max == 0 {
		for id := range scores {
			normalized[id] = 0
		}
		return normalized
	}

	for id, s := range scores {
		normalized[id] = s / max
	}
	return normalized
}

// Tokenize lowercases text and splits it into word tokens on any
// non-letter, non-digit boundary. Malformed or empty text yields an empty
// token list rather than an error.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
