package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/tabletalk/tabletalk/internal/dataset"
)

func TestEncodeFrameToParquet(t *testing.T) {
	frame := Frame{
		Columns: []dataset.Column{
			{Name: "Deal Stage", Type: "VARCHAR"},
			{Name: "Amount", Type: "BIGINT"},
		},
		Rows: [][]any{
			{"Closed Won", int64(1200)},
			{"On Hold", nil},
		},
	}

	result, err := EncodeFrameToParquet(frame)
	if err != nil {
		t.Fatalf("EncodeFrameToParquet() error = %v", err)
	}
	if result.RecordCount != 2 {
		t.Fatalf("RecordCount = %d", result.RecordCount)
	}
	if len(result.Data) == 0 {
		t.Fatal("expected non-empty parquet payload")
	}

	reader := parquet.NewGenericReader[parquetRow](bytes.NewReader(result.Data))
	defer func() { _ = reader.Close() }()
	rows := make([]parquetRow, 2)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("read rows = %d", count)
	}
	if rows[0].RowSeq != 1 || rows[1].RowSeq != 2 {
		t.Fatalf("unexpected row sequence: %+v", rows)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(rows[0].PayloadJSON), &payload); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if payload["Deal Stage"] != "Closed Won" {
		t.Fatalf("payload = %#v", payload)
	}

	if _, err := EncodeFrameToParquet(Frame{}); err == nil {
		t.Fatal("expected error for empty frame")
	}
}
