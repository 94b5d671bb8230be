// Package ingest turns uploaded CSV/JSON files into queryable datasets: it
// parses the upload, materializes a table in the dataset store, archives the
// bytes to object storage, and writes the catalog entry the chat engine
// resolves questions against.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/oracle"
	"github.com/tabletalk/tabletalk/internal/storage"
)

// MaxUploadBytes caps the accepted upload size.
const MaxUploadBytes = 50 << 20

var identPattern = regexp.MustCompile(`[^a-z0-9]+`)

type Service struct {
	datasets  dataset.Store
	repo      catalog.Repository
	objects   storage.ObjectStore
	completer oracle.Completer
	logger    *slog.Logger
}

// New wires the upload pipeline. The completer may be nil; catalog summaries
// then come from the deterministic fallback.
func New(datasets dataset.Store, repo catalog.Repository, objects storage.ObjectStore, completer oracle.Completer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{datasets: datasets, repo: repo, objects: objects, completer: completer, logger: logger}
}

type UploadInput struct {
	UserID   string
	Filename string
	Content  []byte
}

// BuildTableName derives the dataset's table name (which doubles as its
// dataset ID) from the owner and the original filename, made unique by a
// random infix.
func BuildTableName(userID, filename string) string {
	infix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s", sanitizeIdent(userID), infix, sanitizeIdent(filename))
}

func sanitizeIdent(value string) string {
	sanitized := identPattern.ReplaceAllString(strings.ToLower(value), "_")
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		return "x"
	}
	if len(sanitized) > 63 {
		sanitized = sanitized[:63]
	}
	return sanitized
}

// Upload runs the full pipeline for one file. The dataset table, the
// archived objects, and the catalog row either all exist afterwards or none
// do.
func (s *Service) Upload(ctx context.Context, in UploadInput) (catalog.Entry, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return catalog.Entry{}, fmt.Errorf("user id is required")
	}
	if len(in.Content) == 0 {
		return catalog.Entry{}, fmt.Errorf("file is empty")
	}
	if len(in.Content) > MaxUploadBytes {
		return catalog.Entry{}, fmt.Errorf("file exceeds the %d byte upload limit", MaxUploadBytes)
	}

	frame, err := parseUpload(in.Filename, in.Content)
	if err != nil {
		return catalog.Entry{}, err
	}
	if len(frame.Rows) == 0 {
		return catalog.Entry{}, fmt.Errorf("file %q holds no data rows", in.Filename)
	}

	tableName := BuildTableName(in.UserID, in.Filename)
	if err := s.datasets.CreateTable(ctx, tableName, frame.Columns, frame.Rows); err != nil {
		return catalog.Entry{}, fmt.Errorf("create dataset table %q: %w", tableName, err)
	}

	if err := s.archive(ctx, in, tableName, frame); err != nil {
		s.cleanup(ctx, in.UserID, tableName)
		return catalog.Entry{}, err
	}

	summary := s.generateSummary(ctx, in.Filename, frame)

	columns := make([]catalog.Column, len(frame.Columns))
	for i, col := range frame.Columns {
		columns[i] = catalog.Column{Name: col.Name, Type: col.Type}
	}
	entry, err := s.repo.CreateEntry(ctx, catalog.CreateEntryInput{
		DatasetID:   tableName,
		UserID:      in.UserID,
		DisplayName: in.Filename,
		Summary:     summary,
		Columns:     columns,
		RowCount:    frame.RowCount(),
	})
	if err != nil {
		s.cleanup(ctx, in.UserID, tableName)
		return catalog.Entry{}, fmt.Errorf("persist catalog entry: %w", err)
	}

	s.logger.Info("dataset ingested",
		"dataset_id", entry.DatasetID,
		"user_id", in.UserID,
		"rows", entry.RowCount,
		"columns", len(entry.Columns))
	return entry, nil
}

func parseUpload(filename string, content []byte) (Frame, error) {
	switch fileExtension(filename) {
	case "csv":
		return ParseCSV(bytes.NewReader(content))
	case "json":
		return ParseJSON(bytes.NewReader(content))
	default:
		return Frame{}, fmt.Errorf("unsupported file type %q: only csv and json uploads are accepted", filename)
	}
}

func fileExtension(filename string) string {
	dot := strings.LastIndex(filename, ".")
	if dot < 0 {
		return ""
	}
	return strings.ToLower(filename[dot+1:])
}

// archive writes the raw upload and one parquet segment under the dataset's
// object prefix.
func (s *Service) archive(ctx context.Context, in UploadInput, tableName string, frame Frame) error {
	rawKey, err := storage.BuildRawFilePath(in.UserID, tableName, sanitizeFilename(in.Filename))
	if err != nil {
		return err
	}
	contentType := "text/csv"
	if fileExtension(in.Filename) == "json" {
		contentType = "application/json"
	}
	if _, err := s.objects.Put(ctx, rawKey, bytes.NewReader(in.Content), int64(len(in.Content)), storage.PutOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("archive raw upload: %w", err)
	}

	encoded, err := EncodeFrameToParquet(frame)
	if err != nil {
		return fmt.Errorf("encode archive segment: %w", err)
	}
	segmentKey, err := storage.BuildArchiveFilePath(in.UserID, tableName, 0)
	if err != nil {
		return err
	}
	if _, err := s.objects.Put(ctx, segmentKey, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		return fmt.Errorf("archive parquet segment: %w", err)
	}
	return nil
}

func sanitizeFilename(filename string) string {
	ext := fileExtension(filename)
	base := filename
	if ext != "" {
		base = filename[:len(filename)-len(ext)-1]
	}
	sanitized := sanitizeIdent(base)
	if ext != "" {
		return sanitized + "." + ext
	}
	return sanitized
}

// Delete removes a dataset end to end: the table, everything under the
// dataset's object prefix, and the catalog row.
func (s *Service) Delete(ctx context.Context, userID, datasetID string) error {
	entry, err := s.repo.GetEntry(ctx, datasetID)
	if err != nil {
		return err
	}
	if entry.UserID != userID {
		return catalog.ErrNotFound
	}

	if err := s.datasets.DropTable(ctx, datasetID); err != nil {
		s.logger.Warn("drop dataset table failed", "dataset_id", datasetID, "error", err)
	}
	s.deleteObjects(ctx, userID, datasetID)

	if _, err := s.repo.DeleteEntry(ctx, datasetID); err != nil {
		return fmt.Errorf("delete catalog entry %q: %w", datasetID, err)
	}
	s.logger.Info("dataset deleted", "dataset_id", datasetID, "user_id", userID)
	return nil
}

func (s *Service) deleteObjects(ctx context.Context, userID, datasetID string) {
	prefix, err := storage.DatasetPrefix(userID, datasetID)
	if err != nil {
		s.logger.Warn("skip object cleanup", "dataset_id", datasetID, "error", err)
		return
	}
	objects, err := s.objects.List(ctx, prefix)
	if err != nil {
		s.logger.Warn("list dataset objects failed", "dataset_id", datasetID, "error", err)
		return
	}
	for _, object := range objects {
		if err := s.objects.Delete(ctx, object.Key); err != nil {
			s.logger.Warn("delete dataset object failed", "key", object.Key, "error", err)
		}
	}
}

// cleanup rolls back a partially ingested dataset.
func (s *Service) cleanup(ctx context.Context, userID, tableName string) {
	if err := s.datasets.DropTable(ctx, tableName); err != nil {
		s.logger.Warn("rollback drop table failed", "table", tableName, "error", err)
	}
	s.deleteObjects(ctx, userID, tableName)
}
