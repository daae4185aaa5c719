package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pid-editor/backend/internal/models"
	"go.uber.org/zap"
)

// DefaultAirtableURL is the public Airtable REST endpoint.
const DefaultAirtableURL = "https://api.airtable.com/v0"

// AirtableConfig identifies one Airtable table.
type AirtableConfig struct {
	APIURL string
	APIKey string
	BaseID string
	Table  string
	Client *http.Client
	Logger *zap.Logger
}

// AirtableStore implements Store over the Airtable REST API.
type AirtableStore struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// NewAirtableStore creates a store for cfg.Table.
func NewAirtableStore(cfg AirtableConfig) (*AirtableStore, error) {
	if cfg.BaseID == "" || cfg.Table == "" {
		return nil, fmt.Errorf("airtable base id and table are required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("airtable api key is required")
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAirtableURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AirtableStore{
		endpoint: strings.TrimRight(apiURL, "/") + "/" + url.PathEscape(cfg.BaseID) + "/" + url.PathEscape(cfg.Table),
		apiKey:   cfg.APIKey,
		client:   client,
		logger:   logger,
	}, nil
}

type airtableList struct {
	Records []models.Record `json:"records"`
	Offset  string          `json:"offset"`
}

type airtableError struct {
	Error json.RawMessage `json:"error"`
}

// List follows pagination offsets until all records are read.
func (s *AirtableStore) List(ctx context.Context) ([]models.Record, error) {
	var (
		all    []models.Record
		offset string
	)
	for {
		q := url.Values{}
		q.Set("pageSize", "100")
		if offset != "" {
			q.Set("offset", offset)
		}

		var page airtableList
		if err := s.do(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("listing records: %w", err)
		}
		for _, r := range page.Records {
			all = append(all, normalizeRecord(r))
		}

		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}

	s.logger.Debug("airtable list", zap.Int("records", len(all)))
	return all, nil
}

// Get retrieves a record by id.
func (s *AirtableStore) Get(ctx context.Context, id string) (models.Record, error) {
	var rec models.Record
	if err := s.do(ctx, http.MethodGet, s.recordURL(id), nil, &rec); err != nil {
		return models.Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	return normalizeRecord(rec), nil
}

// Create inserts a record. Linked and select values are typecast by Airtable.
func (s *AirtableStore) Create(ctx context.Context, fields map[string]any) (models.Record, error) {
	body := map[string]any{"fields": dropNil(fields), "typecast": true}
	var rec models.Record
	if err := s.do(ctx, http.MethodPost, s.endpoint, body, &rec); err != nil {
		return models.Record{}, fmt.Errorf("create: %w", err)
	}
	return normalizeRecord(rec), nil
}

// Update patches a record. Nil values clear the field.
func (s *AirtableStore) Update(ctx context.Context, id string, fields map[string]any) (models.Record, error) {
	body := map[string]any{"fields": fields, "typecast": true}
	var rec models.Record
	if err := s.do(ctx, http.MethodPatch, s.recordURL(id), body, &rec); err != nil {
		return models.Record{}, fmt.Errorf("update %s: %w", id, err)
	}
	return normalizeRecord(rec), nil
}

// Delete removes a record.
func (s *AirtableStore) Delete(ctx context.Context, id string) error {
	if err := s.do(ctx, http.MethodDelete, s.recordURL(id), nil, nil); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

func (s *AirtableStore) recordURL(id string) string {
	return s.endpoint + "/" + url.PathEscape(id)
}

func (s *AirtableStore) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr airtableError
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &apiErr) == nil && len(apiErr.Error) > 0 {
			return fmt.Errorf("airtable %s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("airtable %s", resp.Status)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func normalizeRecord(r models.Record) models.Record {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	return r
}

func dropNil(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

var _ Store = (*AirtableStore)(nil)
