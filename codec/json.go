package codec

import "encoding/json"

// JSON is the default codec for mutation variables and snapshot payloads.
// The zero value is ready to use.
//
// Note that decoding into an interface value (e.g. Codec[any] for snapshots)
// yields generic JSON shapes (map[string]any, float64); callers restoring
// typed data should decode into a concrete V.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
