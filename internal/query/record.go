package query

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Record is one parsed input line.
type Record = map[string]any

// ParseRecord turns one input line into a Record. An empty line is an
// empty record; a line that is not a JSON object is kept whole under
// "text". Numbers are preserved as json.Number so integers stay exact.
func ParseRecord(line string) Record {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Record{}
	}
	if trimmed[0] == '{' {
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		var rec Record
		if err := dec.Decode(&rec); err == nil && !dec.More() && rec != nil {
			return rec
		}
	}
	return Record{"text": trimmed}
}

// Lookup resolves a dotted field path inside rec.
func Lookup(rec Record, path string) (any, bool) {
	var cur any = rec
	for part := range strings.SplitSeq(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Int reads an integral field value. Float-valued numbers do not qualify.
func Int(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

// MarshalRecord encodes rec as one JSON line without a trailing newline.
func MarshalRecord(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
