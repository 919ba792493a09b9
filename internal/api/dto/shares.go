package dto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/eshaffer321/ledger-balancer/internal/domain/allocator"
)

// Share is one keyed weight or result in an ordered set of shares.
type Share struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// Shares is an ordered key to value mapping. It decodes from either a JSON
// object, keeping the key order of the document, or an array of
// {"key","value"} pairs, and always encodes as an object in order.
type Shares []Share

// UnmarshalJSON implements json.Unmarshaler.
func (s *Shares) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var pairs []Share
		if err := json.Unmarshal(data, &pairs); err != nil {
			return err
		}
		*s = pairs
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("shares must be an object or an array, got %v", tok)
	}

	out := Shares{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var value float64
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("share %q: %w", key, err)
		}
		out = append(out, Share{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Shares) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sh := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(sh.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(sh.Value)
		if err != nil {
			return nil, fmt.Errorf("share %q: %w", sh.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ToAllocator converts to the allocator's representation.
func (s Shares) ToAllocator() allocator.Shares[string] {
	out := make(allocator.Shares[string], len(s))
	for i, sh := range s {
		out[i] = allocator.Share[string]{Key: sh.Key, Value: sh.Value}
	}
	return out
}

// SharesFrom converts allocator shares for a response.
func SharesFrom(in allocator.Shares[string]) Shares {
	out := make(Shares, len(in))
	for i, sh := range in {
		out[i] = Share{Key: sh.Key, Value: sh.Value}
	}
	return out
}
