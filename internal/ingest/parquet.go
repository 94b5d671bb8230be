package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
}

type parquetRow struct {
	RowSeq      int64  `parquet:"row_seq"`
	PayloadJSON string `parquet:"payload_json"`
}

// EncodeFrameToParquet writes a dataset's rows as one parquet archive
// segment. Each row is kept as a JSON object so the archive survives schema
// drift between uploads.
func EncodeFrameToParquet(frame Frame) (ParquetEncodeResult, error) {
	if len(frame.Rows) == 0 {
		return ParquetEncodeResult{}, fmt.Errorf("rows are required")
	}

	rows := make([]parquetRow, 0, len(frame.Rows))
	for i, row := range frame.Rows {
		payload := make(map[string]any, len(frame.Columns))
		for ci, col := range frame.Columns {
			if ci < len(row) {
				payload[col.Name] = row[ci]
			}
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return ParquetEncodeResult{}, fmt.Errorf("encode row %d: %w", i+1, err)
		}
		rows = append(rows, parquetRow{RowSeq: int64(i + 1), PayloadJSON: string(encoded)})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{Data: buf.Bytes(), RecordCount: int64(len(rows))}, nil
}
