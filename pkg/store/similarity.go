package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/viant/vec/search"
	"github.com/xhad/docuchat/internal/models"
)

// scorer returns a similarity where higher is better.
type scorer func(query []float32, queryMagnitude float32, e *entry) float64

func scorerFor(metric string) scorer {
	if metric == MetricL2 {
		return func(query []float32, _ float32, e *entry) float64 {
			return -float64(search.Float32s(query).EuclideanDistance(e.record.Embedding))
		}
	}
	return func(query []float32, queryMagnitude float32, e *entry) float64 {
		if queryMagnitude == 0 || e.magnitude == 0 {
			return 0
		}
		return 1 - float64(search.Float32s(query).CosineDistance(e.record.Embedding))
	}
}

func magnitude(v []float32) float32 {
	return search.Float32s(v).Magnitude()
}

type entry struct {
	record    models.IndexRecord
	magnitude float32
}

// rank scores every entry and returns the best k. Entries are given in
// insertion order and sort.SliceStable keeps that order for equal scores.
func rank(entries []*entry, query []float32, k int, metric string) []models.ScoredSegment {
	if k <= 0 || len(entries) == 0 {
		return []models.ScoredSegment{}
	}

	score := scorerFor(metric)
	qm := magnitude(query)

	hits := make([]models.ScoredSegment, len(entries))
	for i, e := range entries {
		hits[i] = models.ScoredSegment{Segment: e.record.Segment, Score: score(query, qm, e)}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// encodeEmbedding stores a vector as little-endian IEEE 754 float32 values.
func encodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
