package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/tabletalk/tabletalk/internal/dataset"
)

// Frame is a parsed upload: typed columns plus rows in file order. Cell
// values are int64, float64, bool, string, or nil.
type Frame struct {
	Columns []dataset.Column
	Rows    [][]any
}

func (f Frame) RowCount() int64 { return int64(len(f.Rows)) }

// ParseCSV reads a CSV upload. The first record is the header; column types
// are inferred from the data (BIGINT if every non-empty cell is an integer,
// DOUBLE if numeric, VARCHAR otherwise). Empty cells become NULL.
func ParseCSV(r io.Reader) (Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return Frame{}, fmt.Errorf("csv file is empty")
	}
	if err != nil {
		return Frame{}, fmt.Errorf("read csv header: %w", err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Frame{}, fmt.Errorf("read csv row %d: %w", len(records)+2, err)
		}
		records = append(records, record)
	}

	columns := make([]dataset.Column, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		columns[i] = dataset.Column{Name: name, Type: inferCSVColumnType(records, i)}
	}

	rows := make([][]any, len(records))
	for ri, record := range records {
		row := make([]any, len(columns))
		for ci := range columns {
			if ci >= len(record) {
				continue
			}
			row[ci] = convertCSVCell(record[ci], columns[ci].Type)
		}
		rows[ri] = row
	}
	return Frame{Columns: columns, Rows: rows}, nil
}

func inferCSVColumnType(records [][]string, index int) string {
	sawValue := false
	allInt := true
	allNumeric := true
	for _, record := range records {
		if index >= len(record) {
			continue
		}
		cell := strings.TrimSpace(record[index])
		if cell == "" {
			continue
		}
		sawValue = true
		if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
			allInt = false
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				allNumeric = false
				break
			}
		}
	}
	switch {
	case !sawValue:
		return "VARCHAR"
	case allInt:
		return "BIGINT"
	case allNumeric:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

func convertCSVCell(cell, columnType string) any {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	switch columnType {
	case "BIGINT":
		v, _ := strconv.ParseInt(cell, 10, 64)
		return v
	case "DOUBLE":
		v, _ := strconv.ParseFloat(cell, 64)
		return v
	default:
		return cell
	}
}

// ParseJSON reads a JSON upload and normalizes it to a table: an array of
// objects becomes one row per object with nested objects flattened into
// dotted keys, an array of primitives becomes a single "value" column, and a
// lone object or primitive becomes a one-row table.
func ParseJSON(r io.Reader) (Frame, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return Frame{}, fmt.Errorf("parse json: %w", err)
	}

	var objects []map[string]any
	switch value := payload.(type) {
	case []any:
		if len(value) == 0 {
			return Frame{}, fmt.Errorf("json file holds an empty array")
		}
		if _, ok := value[0].(map[string]any); ok {
			for i, item := range value {
				obj, ok := item.(map[string]any)
				if !ok {
					return Frame{}, fmt.Errorf("json array mixes objects and primitives at index %d", i)
				}
				objects = append(objects, flattenObject("", obj))
			}
		} else {
			for _, item := range value {
				objects = append(objects, map[string]any{"value": item})
			}
		}
	case map[string]any:
		objects = append(objects, flattenObject("", value))
	default:
		objects = append(objects, map[string]any{"value": value})
	}

	names := unionKeys(objects)
	columns := make([]dataset.Column, len(names))
	for i, name := range names {
		columns[i] = dataset.Column{Name: name, Type: inferJSONColumnType(objects, name)}
	}

	rows := make([][]any, len(objects))
	for ri, obj := range objects {
		row := make([]any, len(columns))
		for ci, col := range columns {
			row[ci] = convertJSONCell(obj[col.Name], col.Type)
		}
		rows[ri] = row
	}
	return Frame{Columns: columns, Rows: rows}, nil
}

func flattenObject(prefix string, obj map[string]any) map[string]any {
	flat := make(map[string]any, len(obj))
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		if nested, ok := obj[key].(map[string]any); ok {
			for nestedKey, nestedValue := range flattenObject(name, nested) {
				flat[nestedKey] = nestedValue
			}
			continue
		}
		flat[name] = obj[key]
	}
	return flat
}

func unionKeys(objects []map[string]any) []string {
	var names []string
	seen := map[string]bool{}
	for _, obj := range objects {
		keys := make([]string, 0, len(obj))
		for key := range obj {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if !seen[key] {
				seen[key] = true
				names = append(names, key)
			}
		}
	}
	return names
}

func inferJSONColumnType(objects []map[string]any, name string) string {
	sawValue := false
	allInt := true
	allNumeric := true
	allBool := true
	for _, obj := range objects {
		value, ok := obj[name]
		if !ok || value == nil {
			continue
		}
		sawValue = true
		switch typed := value.(type) {
		case bool:
			allInt, allNumeric = false, false
		case json.Number:
			allBool = false
			if _, err := strconv.ParseInt(typed.String(), 10, 64); err != nil {
				allInt = false
			}
		default:
			allInt, allNumeric, allBool = false, false, false
		}
	}
	switch {
	case !sawValue:
		return "VARCHAR"
	case allBool:
		return "BOOLEAN"
	case allInt:
		return "BIGINT"
	case allNumeric:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

func convertJSONCell(value any, columnType string) any {
	if value == nil {
		return nil
	}
	switch typed := value.(type) {
	case bool:
		if columnType == "BOOLEAN" {
			return typed
		}
		return strconv.FormatBool(typed)
	case json.Number:
		switch columnType {
		case "BIGINT":
			v, _ := strconv.ParseInt(typed.String(), 10, 64)
			return v
		case "DOUBLE":
			v, _ := typed.Float64()
			return v
		default:
			return typed.String()
		}
	case string:
		return typed
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(bytes.TrimSpace(encoded))
	}
}
