package query

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a query set.
type File struct {
	Queries []Query `yaml:"queries" json:"queries"`
}

// LoadFile reads and validates queries from a .yaml, .yml, .json or .cue
// file. Each format holds a top-level "queries" list.
func LoadFile(path string) ([]Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}

	var qs []Query
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
		qs, err = decodeYAML(data)
	case ".cue":
		qs, err = decodeCUE(path, data)
	default:
		return nil, fmt.Errorf("read queries %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode queries %s: %w", path, err)
	}
	if err := ValidateAll(qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// decodeYAML also covers JSON, which is a subset of YAML.
func decodeYAML(data []byte) ([]Query, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	return f.Queries, nil
}

func decodeCUE(path string, data []byte) ([]Query, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, err
	}
	list := v.LookupPath(cue.ParsePath("queries"))
	if !list.Exists() {
		return nil, fmt.Errorf("no queries field")
	}
	iter, err := list.List()
	if err != nil {
		return nil, err
	}

	var qs []Query
	for iter.Next() {
		q, err := queryFromCUE(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("queries[%d]: %w", len(qs), err)
		}
		qs = append(qs, q)
	}
	return qs, nil
}

func queryFromCUE(v cue.Value) (Query, error) {
	var q Query
	var err error
	if q.ID, err = v.LookupPath(cue.ParsePath("id")).String(); err != nil {
		return Query{}, err
	}
	agg, err := v.LookupPath(cue.ParsePath("select.agg")).String()
	if err != nil {
		return Query{}, err
	}
	q.Select.Agg = Aggregator(agg)
	if q.Select.Field, err = v.LookupPath(cue.ParsePath("select.field")).String(); err != nil {
		return Query{}, err
	}

	where := v.LookupPath(cue.ParsePath("where"))
	if !where.Exists() {
		return q, nil
	}
	fields, err := where.Fields()
	if err != nil {
		return Query{}, err
	}
	q.Where = make(map[string]map[string]any)
	for fields.Next() {
		ops, err := fields.Value().Fields()
		if err != nil {
			return Query{}, err
		}
		conds := make(map[string]any)
		for ops.Next() {
			lit, err := cueLiteral(ops.Value())
			if err != nil {
				return Query{}, fmt.Errorf("where.%s.%s: %w", fields.Label(), ops.Label(), err)
			}
			conds[ops.Label()] = lit
		}
		q.Where[fields.Label()] = conds
	}
	return q, nil
}

// cueLiteral converts a concrete CUE value into the plain Go values the
// where-clause compiler accepts.
func cueLiteral(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		return v.Int64()
	case cue.BoolKind:
		return v.Bool()
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, err
		}
		var out []any
		for iter.Next() {
			elem, err := cueLiteral(iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, err
		}
		out := make(map[string]any)
		for iter.Next() {
			elem, err := cueLiteral(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Label()] = elem
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported literal of kind %v", v.Kind())
}
