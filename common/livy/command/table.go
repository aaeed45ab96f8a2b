package command

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/scusemua/livy-notebook/common/livy"
)

// tableFromRecords builds a table from newline-separated JSON objects, one per row.
// Columns are ordered by first appearance.
func tableFromRecords(text string, coerce bool) (*livy.Table, error) {
	table := &livy.Table{Columns: []string{}, Rows: []map[string]interface{}{}}
	seen := make(map[string]struct{})

	for lineNo, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		keys, row, err := decodeRecord(line, coerce)
		if err != nil {
			return nil, fmt.Errorf("line %d is not a JSON record: %w", lineNo+1, err)
		}

		for _, key := range keys {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				table.Columns = append(table.Columns, key)
			}
		}

		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// decodeRecord decodes one JSON object, returning its keys in document order.
func decodeRecord(line string, coerce bool) ([]string, map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected '{', found %v", tok)
	}

	keys := make([]string, 0, 8)
	row := make(map[string]interface{})
	for {
		tok, err = dec.Token()
		if err != nil {
			return nil, nil, err
		}

		if delim, ok := tok.(json.Delim); ok && delim == '}' {
			return keys, row, nil
		}

		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected an object key, found %v", tok)
		}

		value, err := decodeValue(dec, coerce)
		if err != nil {
			return nil, nil, err
		}

		if _, dup := row[key]; !dup {
			keys = append(keys, key)
		}
		row[key] = value
	}
}

// decodeValue decodes the next value from a token stream.
func decodeValue(dec *json.Decoder, coerce bool) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			obj := make(map[string]interface{})
			for {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}

				if delim, ok := keyTok.(json.Delim); ok && delim == '}' {
					return obj, nil
				}

				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("expected an object key, found %v", keyTok)
				}

				if obj[key], err = decodeValue(dec, coerce); err != nil {
					return nil, err
				}
			}
		case '[':
			arr := make([]interface{}, 0)
			for dec.More() {
				elem, err := decodeValue(dec, coerce)
				if err != nil {
					return nil, err
				}
				arr = append(arr, elem)
			}

			if _, err = dec.Token(); err != nil {
				return nil, err
			}

			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", v)
		}
	case json.Number:
		return coerceNumber(v, coerce), nil
	default:
		return v, nil
	}
}

func coerceNumber(n json.Number, coerce bool) interface{} {
	if !coerce {
		return n.String()
	}

	if i, err := n.Int64(); err == nil {
		return i
	}

	if f, err := n.Float64(); err == nil {
		return f
	}

	return n.String()
}

// tableFromSqlOutput builds a table from the application/json output of a sql session,
// which has the form {"schema": {"fields": [{"name": ...}, ...]}, "data": [[...], ...]}.
func tableFromSqlOutput(raw interface{}, coerce bool) (*livy.Table, error) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, found %T", raw)
	}

	schema, ok := obj["schema"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("output has no schema")
	}

	fields, ok := schema["fields"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("schema has no fields")
	}

	table := &livy.Table{Columns: make([]string, 0, len(fields)), Rows: []map[string]interface{}{}}
	for _, field := range fields {
		fieldObj, ok := field.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid schema field %v", field)
		}

		name, _ := fieldObj["name"].(string)
		table.Columns = append(table.Columns, name)
	}

	data, _ := obj["data"].([]interface{})
	for _, rawRow := range data {
		values, ok := rawRow.([]interface{})
		if !ok || len(values) != len(table.Columns) {
			return nil, fmt.Errorf("row %v does not match the schema", rawRow)
		}

		row := make(map[string]interface{}, len(values))
		for i, value := range values {
			row[table.Columns[i]] = coerceFloat(value, coerce)
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func coerceFloat(value interface{}, coerce bool) interface{} {
	f, ok := value.(float64)
	if !ok {
		return value
	}

	if !coerce {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}

	return f
}

// truncate drops the rows beyond the sampling limit.
func truncate(table *livy.Table, opts SamplingOptions) *livy.Table {
	if !opts.AllRows() && len(table.Rows) > opts.MaxRows {
		table.Rows = table.Rows[:opts.MaxRows]
	}

	return table
}
