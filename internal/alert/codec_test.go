package alert

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

// TestEncodeDecodeRoundTrip verifies decode(encode(a)) == a for
// well-formed alerts, per the codec's round-trip law.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		a    Alert
	}{
		{"typical alert", Alert{ID: uuid.New(), Text: "Emergency alert! Move to higher ground.", Timestamp: 1700000000000, TTL: 8}},
		{"empty text", Alert{ID: uuid.New(), Text: "", Timestamp: 0, TTL: 1}},
		{"ttl zero after exhaustion", Alert{ID: uuid.New(), Text: "flood stage", Timestamp: 42, TTL: 0}},
		{"unicode text", Alert{ID: uuid.New(), Text: "海嘯警報：立即撤離", Timestamp: 123456, TTL: 5}},
		{"backslash in text", Alert{ID: uuid.New(), Text: `C:\temp\newfile`, Timestamp: 7, TTL: 3}},
		{"backslash followed by non-escape letter", Alert{ID: uuid.New(), Text: `a\qb`, Timestamp: 8, TTL: 3}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := Decode(Encode(tc.a))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if decoded != tc.a {
				t.Errorf("round-trip mismatch: got %+v, want %+v", decoded, tc.a)
			}
		})
	}
}

// TestEncodeEscapesQuotesAndBackslashes verifies the encoder escapes
// '"' and '\', the two characters that would otherwise corrupt the
// envelope or be misread as a JSON escape sequence on decode.
func TestEncodeEscapesQuotesAndBackslashes(t *testing.T) {
	a := Alert{ID: uuid.New(), Text: `say "help" now, path C:\logs`, Timestamp: 1, TTL: 8}
	encoded := string(Encode(a))

	if !strings.Contains(encoded, `say \"help\" now, path C:\\logs`) {
		t.Fatalf("expected escaped quotes and backslashes in wire form, got %s", encoded)
	}

	decoded, err := Decode(Encode(a))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Text != a.Text {
		t.Errorf("text mismatch after round trip: got %q, want %q", decoded.Text, a.Text)
	}
}

// TestDecodeToleratesLiteralEscapedQuote verifies a peer-produced \"
// decodes correctly even though our own encoder never emits other
// escapes.
func TestDecodeToleratesLiteralEscapedQuote(t *testing.T) {
	wire := `{"id":"` + uuid.New().String() + `","text":"a \"quoted\" word","timestamp":1,"ttl":8}`
	decoded, err := Decode([]byte(wire))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Text != `a "quoted" word` {
		t.Errorf("got %q", decoded.Text)
	}
}

// TestDecodeMissingFields verifies each required field is checked.
func TestDecodeMissingFields(t *testing.T) {
	cases := map[string]string{
		"missing id":        `{"text":"x","timestamp":1,"ttl":8}`,
		"missing text":      `{"id":"` + uuid.New().String() + `","timestamp":1,"ttl":8}`,
		"missing timestamp": `{"id":"` + uuid.New().String() + `","text":"x","ttl":8}`,
		"missing ttl":       `{"id":"` + uuid.New().String() + `","text":"x","timestamp":1}`,
		"invalid id":        `{"id":"not-a-uuid","text":"x","timestamp":1,"ttl":8}`,
		"not json":          `not json at all`,
		"bad numeric":       `{"id":"` + uuid.New().String() + `","text":"x","timestamp":"nope","ttl":8}`,
	}

	for name, wire := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(wire)); err == nil {
				t.Fatalf("expected DecodeError for %s", name)
			}
		})
	}
}

// TestForwardDecrementsTTL verifies Forward decrements by exactly one
// and CanForward gates on the pre-decrement value.
func TestForwardDecrementsTTL(t *testing.T) {
	a := Alert{ID: uuid.New(), Text: "x", Timestamp: 1, TTL: 2}
	if !a.CanForward() {
		t.Fatalf("ttl=2 should be forwardable")
	}
	f := a.Forward()
	if f.TTL != 1 {
		t.Errorf("expected ttl=1 after forward, got %d", f.TTL)
	}

	one := Alert{ID: uuid.New(), Text: "x", Timestamp: 1, TTL: 1}
	if one.CanForward() {
		t.Errorf("ttl=1 must not be forwardable")
	}
}
