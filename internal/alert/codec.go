package alert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// wireAlert mirrors the on-wire JSON object. Fields are pointers so
// Decode can tell "absent" apart from "present with zero value".
type wireAlert struct {
	ID        *string `json:"id"`
	Text      *string `json:"text"`
	Timestamp *int64  `json:"timestamp"`
	TTL       *int    `json:"ttl"`
}

// Encode serializes a into the fixed-order, minimally-escaped wire
// form: {"id":"...","text":"...","timestamp":N,"ttl":N}. Only '"' and
// '\' are escaped in text — the two characters that would otherwise
// either break the envelope or get misread as a JSON escape sequence
// by Decode's standard-library parser — so Encode/Decode round-trip
// any text without control characters, including a literal backslash.
func Encode(a Alert) []byte {
	var b strings.Builder
	b.Grow(len(a.Text) + 64)

	b.WriteString(`{"id":"`)
	b.WriteString(a.ID.String())
	b.WriteString(`","text":"`)
	escapeText(&b, a.Text)
	b.WriteString(`","timestamp":`)
	fmt.Fprintf(&b, "%d", a.Timestamp)
	b.WriteString(`,"ttl":`)
	fmt.Fprintf(&b, "%d", a.TTL)
	b.WriteByte('}')

	return []byte(b.String())
}

// escapeText copies s into b, escaping only '"' and '\'.
func escapeText(b *strings.Builder, s string) {
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
}

// Decode parses the wire form into an Alert, using the standard JSON
// decoder (tolerant of any valid escaping a peer may have produced,
// including a literal \"). Returns an error — never a panic — when a
// required field is missing, a numeric field fails to parse, the id is
// not a valid UUID, or the envelope is not recognizable JSON.
func Decode(data []byte) (Alert, error) {
	var w wireAlert
	if err := json.Unmarshal(data, &w); err != nil {
		return Alert{}, fmt.Errorf("alert: decode envelope: %w", err)
	}

	if w.ID == nil {
		return Alert{}, fmt.Errorf("alert: decode: missing id")
	}
	if w.Text == nil {
		return Alert{}, fmt.Errorf("alert: decode: missing text")
	}
	if w.Timestamp == nil {
		return Alert{}, fmt.Errorf("alert: decode: missing timestamp")
	}
	if w.TTL == nil {
		return Alert{}, fmt.Errorf("alert: decode: missing ttl")
	}

	id, err := uuid.Parse(*w.ID)
	if err != nil {
		return Alert{}, fmt.Errorf("alert: decode: invalid id %q: %w", *w.ID, err)
	}

	return Alert{
		ID:        id,
		Text:      *w.Text,
		Timestamp: *w.Timestamp,
		TTL:       *w.TTL,
	}, nil
}
