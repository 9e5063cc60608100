// Package codec provides pluggable (de)serialization for the parts of the
// engine that leave process memory: offline mutation variables and cache
// snapshots. A queued mutation survives a restart only as bytes, so whatever
// codec encoded its variables must be registered again to decode them.
package codec

// Codec encodes/decodes values V to []byte for persistence.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
