package tabletalkctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	UserID     string
	SessionID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("tabletalkctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "TableTalk API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	userID := fs.String("user", defaults.UserID, "User ID header (used when auth is disabled)")
	sessionID := fs.String("session", defaults.SessionID, "Chat session ID to continue")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	var request *http.Request
	var err error
	base := strings.TrimRight(*baseURL, "/")
	switch command {
	case "health":
		request, err = http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/health", nil)
	case "ready":
		request, err = http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/ready", nil)
	case "datasets":
		request, err = http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/datasets", nil)
	case "sessions":
		request, err = http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/chat/sessions", nil)
	case "chat":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "chat requires a message argument")
			return 2
		}
		request, err = chatRequest(ctx, base, *sessionID, strings.Join(fs.Args()[1:], " "))
	case "upload":
		if fs.NArg() != 2 {
			_, _ = fmt.Fprintln(stderr, "upload requires a file path argument")
			return 2
		}
		request, err = uploadRequest(ctx, base, fs.Arg(1))
	case "delete":
		if fs.NArg() != 2 {
			_, _ = fmt.Fprintln(stderr, "delete requires a dataset ID argument")
			return 2
		}
		request, err = http.NewRequestWithContext(ctx, http.MethodDelete, base+"/v1/datasets/"+fs.Arg(1), nil)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "build request: %v\n", err)
		return 1
	}

	request.Header.Set("Accept", "application/json")
	if strings.TrimSpace(*apiKey) != "" {
		request.Header.Set("X-API-Key", strings.TrimSpace(*apiKey))
	}
	if strings.TrimSpace(*userID) != "" {
		request.Header.Set("X-User-ID", strings.TrimSpace(*userID))
	}

	response, err := client.Do(request)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	defer func() { _ = response.Body.Close() }()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "read response: %v\n", err)
		return 1
	}

	if response.StatusCode >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", response.StatusCode, strings.TrimSpace(string(body)))
		return 1
	}

	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(stdout, string(body))
	}
	return 0
}

func chatRequest(ctx context.Context, base, sessionID, message string) (*http.Request, error) {
	payload, err := json.Marshal(map[string]string{
		"session_id": sessionID,
		"message":    message,
	})
	if err != nil {
		return nil, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/chat/message", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	return request, nil
}

func uploadRequest(ctx context.Context, base, path string) (*http.Request, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/datasets", &buf)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", form.FormDataContentType())
	return request, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: tabletalkctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health              GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready               GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  datasets            GET /v1/datasets")
	_, _ = fmt.Fprintln(w, "  sessions            GET /v1/chat/sessions")
	_, _ = fmt.Fprintln(w, "  chat <message>      POST /v1/chat/message")
	_, _ = fmt.Fprintln(w, "  upload <file>       POST /v1/datasets")
	_, _ = fmt.Fprintln(w, "  delete <dataset>    DELETE /v1/datasets/{dataset}")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
