// Package codec provides the byte encodings for snapshot dumps.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"entitygraph/pkg/domain"
)

// Codec names accepted by ByName.
const (
	NameJSON    = "json"
	NameMsgPack = "msgpack"
)

type jsonCodec struct{}

// JSON returns the indented JSON codec.
func JSON() domain.Codec { return jsonCodec{} }

func (jsonCodec) Name() string        { return NameJSON }
func (jsonCodec) Extension() string   { return "json" }
func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Encode(d domain.Dump) ([]byte, error) {
	payload, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json dump: %w", err)
	}
	return payload, nil
}

func (jsonCodec) Decode(payload []byte) (domain.Dump, error) {
	var d domain.Dump
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(&d); err != nil {
		return domain.Dump{}, fmt.Errorf("decode json dump: %w", err)
	}
	return d, nil
}

type msgpackCodec struct{}

// MsgPack returns the MessagePack codec.
func MsgPack() domain.Codec { return msgpackCodec{} }

func (msgpackCodec) Name() string        { return NameMsgPack }
func (msgpackCodec) Extension() string   { return "msgpack" }
func (msgpackCodec) ContentType() string { return "application/vnd.msgpack" }

func (msgpackCodec) Encode(d domain.Dump) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode msgpack dump: %w", err)
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Decode(payload []byte) (domain.Dump, error) {
	var d domain.Dump
	if err := msgpack.Unmarshal(payload, &d); err != nil {
		return domain.Dump{}, fmt.Errorf("decode msgpack dump: %w", err)
	}
	return d, nil
}

var registry = map[string]func() domain.Codec{
	NameJSON:    JSON,
	NameMsgPack: MsgPack,
}

// ByName resolves a codec by name or file extension, case-insensitively.
func ByName(name string) (domain.Codec, error) {
	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "."))
	if key == "" {
		return JSON(), nil
	}
	if ctor, ok := registry[key]; ok {
		return ctor(), nil
	}
	if key == "mp" || key == "mpk" {
		return MsgPack(), nil
	}
	return nil, fmt.Errorf("unknown codec %q (supported: %s)", name, strings.Join(Names(), ", "))
}

// Names lists the registered codec names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
