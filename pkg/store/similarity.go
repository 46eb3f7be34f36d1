package store

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/m-mizutani/goerr/v2"

	"github.com/xhad/agrigenius/internal/models"
)

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// topK ranks entries by similarity to query. Equal scores keep entry order.
func topK(entries []entry, query []float32, k int) []models.ScoredChunk {
	scored := make([]models.ScoredChunk, 0, len(entries))
	for _, e := range entries {
		scored = append(scored, models.ScoredChunk{Chunk: e.chunk, Score: Cosine(query, e.vector)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

type entry struct {
	chunk  models.Chunk
	vector []float32
}

func vectorToBlob(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func blobToVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, goerr.New("invalid vector blob length", goerr.V("bytes", len(b)))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
