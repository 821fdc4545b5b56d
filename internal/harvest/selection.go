package harvest

import (
	"errors"
	"fmt"
	"strings"
)

// Selection names the publishers a run harvests. A run over one publisher and
// a run over several share every downstream code path; only the label differs.
type Selection struct {
	names []string
}

// Single selects one publisher.
func Single(name string) Selection {
	return Selection{names: []string{strings.TrimSpace(name)}}
}

// Batch selects several publishers queried together.
func Batch(names ...string) Selection {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return Selection{names: out}
}

// Names returns a copy of the selected publisher names.
func (s Selection) Names() []string {
	return append([]string(nil), s.names...)
}

// Label is the artifact prefix: the names joined by "_".
func (s Selection) Label() string {
	return strings.Join(s.names, "_")
}

// Validate rejects empty selections.
func (s Selection) Validate() error {
	if len(s.names) == 0 {
		return errors.New("at least one publisher is required")
	}
	for _, n := range s.names {
		if n == "" {
			return errors.New("publisher name must not be empty")
		}
	}
	return nil
}

// SourceCodes maps a publisher name to the portal's provider codes.
type SourceCodes map[string][]string

// Resolve returns the codes for every selected publisher, in selection order.
// A missing name wraps ErrUnknownPublisher.
func (c SourceCodes) Resolve(sel Selection) ([]string, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	var codes []string
	for _, name := range sel.names {
		found, ok := c[name]
		if !ok || len(found) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPublisher, name)
		}
		codes = append(codes, found...)
	}
	return codes, nil
}
