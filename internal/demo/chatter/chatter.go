// Package chatter drives a demo conversation against a running API: it
// uploads a seeded sales dataset once and then keeps asking questions about
// it, exercising the whole query-synthesis path end to end.
package chatter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

type Service struct {
	cfg       Config
	log       *slog.Logger
	http      *http.Client
	generator *Generator

	sessionID string
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type datasetList struct {
	Datasets []struct {
		DatasetID   string `json:"dataset_id"`
		DisplayName string `json:"display_name"`
	} `json:"datasets"`
}

func NewService(cfg Config, logger *slog.Logger, client *http.Client) (*Service, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return &Service{
		cfg:       cfg,
		log:       logger,
		http:      client,
		generator: NewGenerator(cfg.Seed),
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	datasetReady := false

	for {
		if !datasetReady {
			if err := s.ensureDataset(ctx); err != nil {
				s.log.Error("failed to ensure demo dataset", slog.Any("error", err))
			} else {
				datasetReady = true
			}
		} else {
			if err := s.askOnce(ctx); err != nil {
				s.log.Error("failed to send demo question", slog.Any("error", err))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) ensureDataset(ctx context.Context) error {
	status, body, err := s.do(ctx, http.MethodGet, "/v1/datasets", nil, "")
	if err != nil {
		return fmt.Errorf("list datasets: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("list datasets failed with status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var list datasetList
	if err := json.Unmarshal(body, &list); err != nil {
		return fmt.Errorf("decode dataset list: %w", err)
	}
	for _, entry := range list.Datasets {
		if entry.DisplayName == s.cfg.Filename {
			s.log.Info("demo dataset already exists", slog.String("dataset_id", entry.DatasetID))
			return nil
		}
	}

	payload, contentType, err := multipartFile(s.cfg.Filename, s.generator.SalesCSV(s.cfg.RowCount))
	if err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	status, body, err = s.do(ctx, http.MethodPost, "/v1/datasets", payload, contentType)
	if err != nil {
		return fmt.Errorf("upload demo dataset: %w", err)
	}
	if status != http.StatusCreated {
		return fmt.Errorf("upload demo dataset failed with status %d: %s", status, strings.TrimSpace(string(body)))
	}
	s.log.Info("uploaded demo dataset", slog.String("filename", s.cfg.Filename))
	return nil
}

func (s *Service) askOnce(ctx context.Context) error {
	question := s.generator.NextQuestion()
	raw, err := json.Marshal(chatRequest{SessionID: s.sessionID, Message: question})
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}

	status, body, err := s.do(ctx, http.MethodPost, "/v1/chat/message", bytes.NewReader(raw), "application/json")
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("chat request status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("decode chat response: %w", err)
	}
	s.sessionID = response.SessionID

	s.log.Info("demo question answered",
		slog.String("session_id", response.SessionID),
		slog.String("question", question),
		slog.String("answer", truncate(response.Message, 120)),
	)
	return nil
}

func (s *Service) do(ctx context.Context, method, path string, body io.Reader, contentType string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIBaseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-User-ID", s.cfg.UserID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func multipartFile(filename string, content []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", err
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return &buf, form.FormDataContentType(), nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
