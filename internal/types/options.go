package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Option is one labelled answer choice.
type Option struct {
	Label string
	Text  string
}

// Options is an insertion-ordered label -> text mapping. It marshals as a JSON
// object whose keys keep slice order, which plain Go maps cannot guarantee.
type Options []Option

// Get returns the text for label.
func (o Options) Get(label string) (string, bool) {
	for _, opt := range o {
		if opt.Label == label {
			return opt.Text, true
		}
	}
	return "", false
}

// Has reports whether label is present.
func (o Options) Has(label string) bool {
	_, ok := o.Get(label)
	return ok
}

// Set overwrites an existing label in place or appends a new one.
func (o Options) Set(label, text string) Options {
	for i := range o {
		if o[i].Label == label {
			o[i].Text = text
			return o
		}
	}
	return append(o, Option{Label: label, Text: text})
}

// Labels returns the labels in order.
func (o Options) Labels() []string {
	out := make([]string, len(o))
	for i, opt := range o {
		out[i] = opt.Label
	}
	return out
}

// Sorted returns a copy ordered by label.
func (o Options) Sorted() Options {
	out := make(Options, len(o))
	copy(out, o)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func (o Options) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, opt := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(opt.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(opt.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Options) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("options: expected object, got %v", tok)
	}

	out := Options{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := kt.(string)
		if !ok {
			return fmt.Errorf("options: non-string key %v", kt)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("options[%s]: %w", key, err)
		}
		out = out.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = out
	return nil
}
