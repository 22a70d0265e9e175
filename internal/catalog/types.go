package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedEmbedding indicates an embedding could not be decoded from
// either a native float list or a string-encoded list.
var ErrMalformedEmbedding = errors.New("malformed embedding")

// Vector is a fixed-length embedding vector.
//
// Exports from the upstream catalog sometimes carry embeddings as a
// string-encoded list ("[0.1, 0.2, ...]") rather than a native JSON array.
// Decoding tries the native form first, then the string form; anything else
// is rejected. Silent coercion of other types is deliberately not supported.
type Vector []float32

// UnmarshalJSON implements the tagged-union decode described above.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var native []float32
	if err := json.Unmarshal(data, &native); err == nil {
		*v = native
		return nil
	}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return fmt.Errorf("%w: expected float list or string-encoded list", ErrMalformedEmbedding)
	}

	parsed, err := ParseVector(encoded)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalJSON encodes the vector as a native JSON float array.
func (v Vector) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	return b, nil
}

// String renders the vector in its textual serialized form, e.g. "[0.1,0.2]".
// ParseVector(v.String()) yields the identical float32 sequence.
func (v Vector) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// ParseVector decodes the textual list form, coercing each element to a
// 32-bit float. Whitespace around elements is tolerated.
func ParseVector(s string) (Vector, error) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, fmt.Errorf("%w: %q is not a bracketed list", ErrMalformedEmbedding, s)
	}

	inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	if inner == "" {
		return Vector{}, nil
	}

	parts := strings.Split(inner, ",")
	vec := make(Vector, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("%w: element %q: %v", ErrMalformedEmbedding, part, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}

// Amenity is a single airport amenity record from the catalog.
// Field names mirror the persisted schema exposed by the vector store.
type Amenity struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Terminal    string `json:"terminal"`
	Category    string `json:"category"`
	Hour        string `json:"hour"`
	Content     string `json:"content,omitempty"`

	// Embedding is write-once: populated at ingestion, never updated.
	// Omitted from search responses.
	Embedding Vector `json:"embedding,omitempty"`
}

// ScoredAmenity is an amenity paired with its cosine similarity to a query.
type ScoredAmenity struct {
	Amenity
	Similarity float32 `json:"similarity"`
}
