// pkg/codec/codec.go
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Codec encodes envelopes, relay payloads and CLI reports.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	ContentType() string
}

var (
	// JSONStrict rejects unknown fields and trailing content. It is used for
	// everything that crosses the relay.
	JSONStrict Codec = jsonCodec{strict: true}
	// JSON is the lenient variant used for request payloads.
	JSON Codec = jsonCodec{}
	// YAML is used for human-facing output.
	YAML Codec = yamlCodec{}
)

// ErrTrailingContent is returned by JSONStrict when more than one value is present.
var ErrTrailingContent = errors.New("json trailing content")

type jsonCodec struct{ strict bool }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (c jsonCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if c.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	if !c.strict {
		return nil
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return ErrTrailingContent
	}
	return nil
}

func (jsonCodec) ContentType() string { return "application/json" }

type yamlCodec struct{}

func (yamlCodec) Marshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (yamlCodec) Unmarshal(data []byte, v any) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("yaml decode: %w", err)
	}
	return nil
}

func (yamlCodec) ContentType() string { return "application/yaml" }
