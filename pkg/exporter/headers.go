package exporter

import (
	"net/http"

	"google.golang.org/grpc/metadata"
)

// Header is one extra request header.
type Header struct {
	Key   string
	Value string
}

// Headers is an ordered multimap of extra request headers. Repeated keys are kept.
// The zero value holds no headers.
type Headers struct {
	entries []Header
}

// Add appends a header.
func (h *Headers) Add(key, value string) {
	h.entries = append(h.entries, Header{Key: key, Value: value})
}

// Len returns the number of entries.
func (h Headers) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the headers in insertion order.
func (h Headers) Entries() []Header {
	if len(h.entries) == 0 {
		return nil
	}

	out := make([]Header, len(h.entries))
	copy(out, h.entries)

	return out
}

// Values returns every value recorded for key, in insertion order.
func (h Headers) Values(key string) []string {
	var out []string

	for _, entry := range h.entries {
		if http.CanonicalHeaderKey(entry.Key) == http.CanonicalHeaderKey(key) {
			out = append(out, entry.Value)
		}
	}

	return out
}

func (h Headers) clone() Headers {
	return Headers{entries: h.Entries()}
}

func (h Headers) metadata() metadata.MD {
	if len(h.entries) == 0 {
		return nil
	}

	md := metadata.MD{}
	for _, entry := range h.entries {
		md.Append(entry.Key, entry.Value)
	}

	return md
}

func (h Headers) applyTo(header http.Header) {
	for _, entry := range h.entries {
		header.Add(entry.Key, entry.Value)
	}
}
