package storage

import (
	"fmt"
	"path"
	"regexp"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// DatasetPrefix is the key prefix under which everything belonging to one
// dataset lives. Deleting a dataset means deleting this prefix.
func DatasetPrefix(userID, datasetID string) (string, error) {
	if err := validatePathComponent(userID, "user id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(datasetID, "dataset id"); err != nil {
		return "", err
	}
	return path.Join("users", userID, "datasets", datasetID), nil
}

// BuildRawFilePath is the key for the original upload bytes, kept verbatim.
func BuildRawFilePath(userID, datasetID, filename string) (string, error) {
	prefix, err := DatasetPrefix(userID, datasetID)
	if err != nil {
		return "", err
	}
	if err := validatePathComponent(filename, "filename"); err != nil {
		return "", err
	}
	return path.Join(prefix, "raw", filename), nil
}

// BuildArchiveFilePath is the key for one parquet archive segment of a
// dataset.
func BuildArchiveFilePath(userID, datasetID string, sequence int) (string, error) {
	prefix, err := DatasetPrefix(userID, datasetID)
	if err != nil {
		return "", err
	}
	if sequence < 0 {
		return "", fmt.Errorf("sequence must be >= 0")
	}
	return path.Join(prefix, "archive", fmt.Sprintf("segment-%05d.parquet", sequence)), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
