package compiler

import (
	"bytes"
	"encoding/json"
)

// Dict is a string-keyed map that remembers insertion order. Object
// literals evaluate to a Dict so loops over them see source order.
type Dict struct {
	keys []string
	vals map[string]any
}

// NewDict creates an empty Dict.
func NewDict() *Dict {
	return &Dict{vals: make(map[string]any)}
}

// Set stores a value, keeping first-insertion position for repeated keys.
func (d *Dict) Set(key string, val any) {
	if _, ok := d.vals[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.vals[key] = val
}

// Get returns the value for key.
func (d *Dict) Get(key string) (any, bool) {
	v, ok := d.vals[key]
	return v, ok
}

// Keys returns the keys in insertion order. The slice is shared; do
// not mutate it.
func (d *Dict) Keys() []string {
	return d.keys
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return len(d.keys)
}

// MarshalJSON encodes entries in insertion order.
func (d *Dict) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		vb, err := json.Marshal(d.vals[k])
		if err != nil {
			return nil, err
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
