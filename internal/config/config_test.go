package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("tabletalk-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.ObjectStore.Endpoint != "localhost:9000" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
	if cfg.Catalog.MaxOpenConns != 20 {
		t.Fatalf("Catalog.MaxOpenConns = %d", cfg.Catalog.MaxOpenConns)
	}
	if cfg.Dataset.Path != "tabletalk.duckdb" {
		t.Fatalf("Dataset.Path = %q", cfg.Dataset.Path)
	}
	if cfg.Engine.ResolverMinScore != 2 {
		t.Fatalf("Engine.ResolverMinScore = %d", cfg.Engine.ResolverMinScore)
	}
	if cfg.Engine.TableMatchMinSegs != 3 {
		t.Fatalf("Engine.TableMatchMinSegs = %d", cfg.Engine.TableMatchMinSegs)
	}
	if cfg.Engine.FilterProbeLimit != 8 {
		t.Fatalf("Engine.FilterProbeLimit = %d", cfg.Engine.FilterProbeLimit)
	}
	if cfg.Engine.RecentTurnWindow != 10 {
		t.Fatalf("Engine.RecentTurnWindow = %d", cfg.Engine.RecentTurnWindow)
	}
	if cfg.Engine.PromptHistoryWindow != 6 {
		t.Fatalf("Engine.PromptHistoryWindow = %d", cfg.Engine.PromptHistoryWindow)
	}
	if cfg.Upload.SampleRows != 20 {
		t.Fatalf("Upload.SampleRows = %d", cfg.Upload.SampleRows)
	}
	if cfg.Oracle.Model != "gpt-5" {
		t.Fatalf("Oracle.Model = %q", cfg.Oracle.Model)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"TABLETALK_PROFILE": "prod"})
	cfg, err := Load("tabletalk-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if cfg.ObjectStore.AutoCreateBucket {
		t.Fatal("ObjectStore.AutoCreateBucket should default to false in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"TABLETALK_PROFILE":                         "test",
		"TABLETALK_HTTP_ADDR":                       ":9999",
		"TABLETALK_HTTP_READ_TIMEOUT":               "2s",
		"TABLETALK_LOG_LEVEL":                       "error",
		"TABLETALK_AUTH_REQUIRED":                   "true",
		"TABLETALK_AUTH_STATIC_KEYS":                "k1:alice:chat_user",
		"TABLETALK_CATALOG_DSN":                     "postgres://example",
		"TABLETALK_CATALOG_MAX_OPEN_CONNS":          "42",
		"TABLETALK_SERVICE_NAME":                    "tabletalk-custom",
		"TABLETALK_DATASET_PATH":                    "/var/lib/tabletalk/data.duckdb",
		"TABLETALK_DATASET_QUERY_TIMEOUT":           "9s",
		"TABLETALK_OBJECTSTORE_ENDPOINT":            "s3.example.com",
		"TABLETALK_OBJECTSTORE_BUCKET":              "tabletalk-prod",
		"TABLETALK_ORACLE_BASE_URL":                 "https://api.example.com",
		"TABLETALK_ORACLE_API_KEY":                  "secret-key",
		"TABLETALK_ORACLE_MODEL":                    "gpt-5.2",
		"TABLETALK_ORACLE_TEMPERATURE":              "0.3",
		"TABLETALK_ORACLE_TIMEOUT":                  "21s",
		"TABLETALK_ENGINE_RESOLVER_MIN_SCORE":       "3",
		"TABLETALK_ENGINE_TABLE_MATCH_MIN_SEGMENTS": "2",
		"TABLETALK_ENGINE_FILTER_PROBE_LIMIT":       "4",
		"TABLETALK_ENGINE_RECENT_TURN_WINDOW":       "20",
		"TABLETALK_ENGINE_PROMPT_HISTORY_WINDOW":    "8",
		"TABLETALK_ENGINE_MAX_STATEMENT_LENGTH":     "1500",
		"TABLETALK_UPLOAD_MAX_BYTES":                "1048576",
		"TABLETALK_UPLOAD_SAMPLE_ROWS":              "5",
	})
	cfg, err := Load("tabletalk-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "tabletalk-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required = false, want true")
	}
	if cfg.Auth.StaticKeys != "k1:alice:chat_user" {
		t.Fatalf("StaticKeys = %q", cfg.Auth.StaticKeys)
	}
	if cfg.Catalog.DSN != "postgres://example" {
		t.Fatalf("Catalog.DSN = %q", cfg.Catalog.DSN)
	}
	if cfg.Catalog.MaxOpenConns != 42 {
		t.Fatalf("Catalog.MaxOpenConns = %d", cfg.Catalog.MaxOpenConns)
	}
	if cfg.Dataset.Path != "/var/lib/tabletalk/data.duckdb" {
		t.Fatalf("Dataset.Path = %q", cfg.Dataset.Path)
	}
	if cfg.Dataset.QueryTimeout != 9*time.Second {
		t.Fatalf("Dataset.QueryTimeout = %s", cfg.Dataset.QueryTimeout)
	}
	if cfg.ObjectStore.Endpoint != "s3.example.com" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
	if cfg.ObjectStore.Bucket != "tabletalk-prod" {
		t.Fatalf("ObjectStore.Bucket = %q", cfg.ObjectStore.Bucket)
	}
	if cfg.Oracle.BaseURL != "https://api.example.com" {
		t.Fatalf("Oracle.BaseURL = %q", cfg.Oracle.BaseURL)
	}
	if cfg.Oracle.APIKey != "secret-key" {
		t.Fatalf("Oracle.APIKey = %q", cfg.Oracle.APIKey)
	}
	if cfg.Oracle.Model != "gpt-5.2" {
		t.Fatalf("Oracle.Model = %q", cfg.Oracle.Model)
	}
	if cfg.Oracle.Temperature != 0.3 {
		t.Fatalf("Oracle.Temperature = %f", cfg.Oracle.Temperature)
	}
	if cfg.Oracle.Timeout != 21*time.Second {
		t.Fatalf("Oracle.Timeout = %s", cfg.Oracle.Timeout)
	}
	if cfg.Engine.ResolverMinScore != 3 {
		t.Fatalf("Engine.ResolverMinScore = %d", cfg.Engine.ResolverMinScore)
	}
	if cfg.Engine.TableMatchMinSegs != 2 {
		t.Fatalf("Engine.TableMatchMinSegs = %d", cfg.Engine.TableMatchMinSegs)
	}
	if cfg.Engine.FilterProbeLimit != 4 {
		t.Fatalf("Engine.FilterProbeLimit = %d", cfg.Engine.FilterProbeLimit)
	}
	if cfg.Engine.RecentTurnWindow != 20 {
		t.Fatalf("Engine.RecentTurnWindow = %d", cfg.Engine.RecentTurnWindow)
	}
	if cfg.Engine.PromptHistoryWindow != 8 {
		t.Fatalf("Engine.PromptHistoryWindow = %d", cfg.Engine.PromptHistoryWindow)
	}
	if cfg.Engine.MaxStatementLength != 1500 {
		t.Fatalf("Engine.MaxStatementLength = %d", cfg.Engine.MaxStatementLength)
	}
	if cfg.Upload.MaxBytes != 1048576 {
		t.Fatalf("Upload.MaxBytes = %d", cfg.Upload.MaxBytes)
	}
	if cfg.Upload.SampleRows != 5 {
		t.Fatalf("Upload.SampleRows = %d", cfg.Upload.SampleRows)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"TABLETALK_PROFILE": "oops"},
		{"TABLETALK_HTTP_READ_TIMEOUT": "NaN"},
		{"TABLETALK_CATALOG_MAX_OPEN_CONNS": "oops"},
		{"TABLETALK_DATASET_QUERY_TIMEOUT": "oops"},
		{"TABLETALK_ORACLE_TEMPERATURE": "bad"},
		{"TABLETALK_ENGINE_RESOLVER_MIN_SCORE": "0"},
		{"TABLETALK_ENGINE_FILTER_PROBE_LIMIT": "-1"},
		{"TABLETALK_UPLOAD_MAX_BYTES": "lots"},
		{"TABLETALK_AUTH_REQUIRED": "not-bool"},
		{"TABLETALK_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("tabletalk-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
