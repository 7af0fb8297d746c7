package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec turns value trees into bytes and back. Unmarshal into an
// interface{} (or a struct with interface{} fields) must be followed by
// Normalize so both codecs produce the same tree types.
type Codec interface {
	Name() string
	// Binary reports whether frames are binary rather than text.
	Binary() bool
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

var (
	JSON Codec = jsonCodec{}
	CBOR Codec = newCBORCodec()
)

// CodecByName returns the codec called name ("json" or "cbor").
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("wire: unknown codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal json: %w", err)
	}
	return buf, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("wire: unmarshal json: %w", err)
	}
	return nil
}

type cborCodec struct {
	enc cbor.EncMode
}

func newCBORCodec() cborCodec {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	return cborCodec{enc: em}
}

func (cborCodec) Name() string { return "cbor" }
func (cborCodec) Binary() bool { return true }

func (c cborCodec) Marshal(v interface{}) ([]byte, error) {
	buf, err := c.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal cbor: %w", err)
	}
	return buf, nil
}

func (cborCodec) Unmarshal(data []byte, v interface{}) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("wire: unmarshal cbor: %w", err)
	}
	return nil
}

// Normalize rewrites a freshly unmarshalled tree so that integers are int64,
// other numbers float64 and every map is keyed by string.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case uint64:
		if t <= math.MaxInt64 {
			return int64(t)
		}
		return float64(t)
	case []interface{}:
		for i := range t {
			t[i] = Normalize(t[i])
		}
		return t
	case map[string]interface{}:
		for k, e := range t {
			t[k] = Normalize(e)
		}
		return t
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = Normalize(e)
		}
		return m
	default:
		return v
	}
}
