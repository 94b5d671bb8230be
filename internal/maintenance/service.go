// Package maintenance sweeps the object store for archive objects whose
// dataset no longer exists in the catalog. Deletes normally clean up their
// own objects; the sweeper picks up what a crashed upload or a partially
// failed delete left behind.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/storage"
)

type Catalog interface {
	GetEntry(ctx context.Context, datasetID string) (catalog.Entry, error)
}

type Config struct {
	// SweepInterval is how often the background loop runs a sweep.
	SweepInterval time.Duration
	// SafetyAge protects in-flight uploads: a dataset is only swept when
	// every one of its objects is at least this old.
	SafetyAge time.Duration
}

type Service struct {
	Catalog     Catalog
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type SweepSummary struct {
	ObjectsScanned  int   `json:"objects_scanned"`
	DatasetsScanned int   `json:"datasets_scanned"`
	OrphanDatasets  int   `json:"orphan_datasets"`
	ObjectsDeleted  int   `json:"objects_deleted"`
	SkippedRecent   int   `json:"skipped_recent"`
	BytesReclaimed  int64 `json:"bytes_reclaimed"`
	Failures        int   `json:"failures"`
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.RunSweepOnce(ctx)
			if err != nil {
				sweepRunsTotal.WithLabelValues("error").Inc()
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "archive sweep failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			sweepRunsTotal.WithLabelValues("ok").Inc()
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "archive sweep completed", slog.Any("summary", summary))
			}
		}
	}
}

func (s *Service) RunSweepOnce(ctx context.Context) (SweepSummary, error) {
	s.ensureDefaults()
	if s.Catalog == nil {
		return SweepSummary{}, fmt.Errorf("catalog is required")
	}
	if s.ObjectStore == nil {
		return SweepSummary{}, fmt.Errorf("object store is required")
	}

	objects, err := s.ObjectStore.List(ctx, "users")
	if err != nil {
		return SweepSummary{}, fmt.Errorf("list archive objects: %w", err)
	}

	summary := SweepSummary{ObjectsScanned: len(objects)}
	byDataset := make(map[string][]storage.ObjectInfo)
	for _, object := range objects {
		datasetID, ok := datasetIDFromKey(object.Key)
		if !ok {
			continue
		}
		byDataset[datasetID] = append(byDataset[datasetID], object)
	}
	summary.DatasetsScanned = len(byDataset)

	cutoff := s.Clock().Add(-s.Config.SafetyAge)
	for datasetID, group := range byDataset {
		_, err := s.Catalog.GetEntry(ctx, datasetID)
		if err == nil {
			continue
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			summary.Failures++
			continue
		}

		// An object younger than the safety age may belong to an upload
		// that has not reached the catalog yet. Leave the whole dataset
		// for the next sweep.
		if anyNewerThan(group, cutoff) {
			summary.SkippedRecent++
			continue
		}

		summary.OrphanDatasets++
		for _, object := range group {
			if err := s.ObjectStore.Delete(ctx, object.Key); err != nil {
				summary.Failures++
				if s.Logger != nil {
					s.Logger.WarnContext(ctx, "failed to delete orphaned object",
						slog.String("key", object.Key),
						slog.Any("error", err),
					)
				}
				continue
			}
			summary.ObjectsDeleted++
			summary.BytesReclaimed += object.Size
			sweepOrphanObjectsTotal.Inc()
			sweepBytesReclaimedTotal.Add(float64(object.Size))
		}
	}

	return summary, nil
}

// datasetIDFromKey extracts the dataset ID from an archive key shaped like
// users/<user>/datasets/<id>/....
func datasetIDFromKey(key string) (string, bool) {
	parts := strings.Split(strings.Trim(key, "/"), "/")
	if len(parts) < 5 || parts[0] != "users" || parts[2] != "datasets" {
		return "", false
	}
	if parts[3] == "" {
		return "", false
	}
	return parts[3], true
}

func anyNewerThan(objects []storage.ObjectInfo, cutoff time.Time) bool {
	for _, object := range objects {
		if object.LastModified.After(cutoff) {
			return true
		}
	}
	return false
}

func (s *Service) ensureDefaults() {
	if s.Config.SweepInterval <= 0 {
		s.Config.SweepInterval = time.Hour
	}
	if s.Config.SafetyAge <= 0 {
		s.Config.SafetyAge = 30 * time.Minute
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
}
