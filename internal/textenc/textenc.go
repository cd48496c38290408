package textenc

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// NameUTF8BOM is the candidate that accepts UTF-8 only with a byte order mark.
const NameUTF8BOM = "utf-8-sig"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DefaultCandidates returns the default decoding ladder.
func DefaultCandidates() []string {
	return []string{NameUTF8BOM, "utf-8", "gb18030"}
}

// EncodingError is returned when no candidate decodes the input.
type EncodingError struct {
	Tried []string
}

func (e *EncodingError) Error() string {
	return "no candidate encoding could decode the input (tried " + strings.Join(e.Tried, ", ") + ")"
}

// Candidate is one rung of the decoding ladder.
type Candidate struct {
	name   string
	decode func([]byte) (string, bool)
}

// Name returns the canonical name of the candidate.
func (c Candidate) Name() string {
	return c.name
}

// Lookup resolves an encoding name. Besides "utf-8-sig", any WHATWG name or
// label known to golang.org/x/text/encoding/htmlindex is accepted.
func Lookup(name string) (Candidate, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case NameUTF8BOM, "utf-8-bom", "utf8-sig":
		return Candidate{name: NameUTF8BOM, decode: decodeBOM}, nil
	case "utf-8", "utf8":
		return Candidate{name: "utf-8", decode: decodeUTF8}, nil
	}

	enc, err := htmlindex.Get(n)
	if err != nil {
		return Candidate{}, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = n
	}
	if canonical == "utf-8" {
		return Candidate{name: "utf-8", decode: decodeUTF8}, nil
	}
	return Candidate{name: canonical, decode: legacyDecoder(enc)}, nil
}

func decodeBOM(data []byte) (string, bool) {
	if !bytes.HasPrefix(data, utf8BOM) {
		return "", false
	}
	rest := data[len(utf8BOM):]
	if !utf8.Valid(rest) {
		return "", false
	}
	return string(rest), true
}

func decodeUTF8(data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

func legacyDecoder(enc encoding.Encoding) func([]byte) (string, bool) {
	return func(data []byte) (string, bool) {
		out, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			return "", false
		}
		if bytes.ContainsRune(out, utf8.RuneError) {
			return "", false
		}
		return string(out), true
	}
}

// Resolver tries candidate encodings in order.
type Resolver struct {
	candidates []Candidate
}

// NewResolver builds a resolver from encoding names. With no names the
// default ladder is used.
func NewResolver(names ...string) (*Resolver, error) {
	if len(names) == 0 {
		names = DefaultCandidates()
	}
	r := &Resolver{candidates: make([]Candidate, 0, len(names))}
	for _, name := range names {
		c, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		r.candidates = append(r.candidates, c)
	}
	return r, nil
}

// Names returns the candidate names in order.
func (r *Resolver) Names() []string {
	names := make([]string, len(r.candidates))
	for i, c := range r.candidates {
		names[i] = c.name
	}
	return names
}

// Resolve decodes data with the first candidate that succeeds and returns the
// text together with the name of the encoding used.
func (r *Resolver) Resolve(data []byte) (string, string, error) {
	for _, c := range r.candidates {
		if text, ok := c.decode(data); ok {
			return text, c.name, nil
		}
	}
	return "", "", &EncodingError{Tried: r.Names()}
}

var defaultResolver, _ = NewResolver()

// Resolve decodes data with the default ladder.
func Resolve(data []byte) (string, string, error) {
	return defaultResolver.Resolve(data)
}
