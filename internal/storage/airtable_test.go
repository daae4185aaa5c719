package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAirtable(t *testing.T, handler http.HandlerFunc) *AirtableStore {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewAirtableStore(AirtableConfig{
		APIURL: srv.URL,
		APIKey: "key",
		BaseID: "app1",
		Table:  "Items",
	})
	require.NoError(t, err)
	return s
}

func TestAirtableStore_ListPaginates(t *testing.T) {
	var calls int
	s := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "/app1/Items", r.URL.Path)

		switch r.URL.Query().Get("offset") {
		case "":
			w.Write([]byte(`{"records":[{"id":"rec1","fields":{"Name":"A"}}],"offset":"p2"}`))
		case "p2":
			w.Write([]byte(`{"records":[{"id":"rec2","fields":{"Name":"B","Sequence":2}}]}`))
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
		}
	})

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "rec1", list[0].ID)
	assert.Equal(t, "B", list[1].Fields["Name"])
	assert.Equal(t, 2, calls)
}

func TestAirtableStore_CreateUpdateDelete(t *testing.T) {
	s := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/app1/Items":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, true, body["typecast"])
			fields := body["fields"].(map[string]any)
			assert.NotContains(t, fields, "x")
			w.Write([]byte(`{"id":"recNew","createdTime":"2026-01-01T00:00:00.000Z","fields":{"Name":"Pump"}}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/app1/Items/recNew":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			fields := body["fields"].(map[string]any)
			assert.Contains(t, fields, "x")
			assert.Nil(t, fields["x"])
			w.Write([]byte(`{"id":"recNew","fields":{"Name":"Pump","Code":"1203"}}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/app1/Items/recNew":
			w.Write([]byte(`{"deleted":true,"id":"recNew"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"NOT_FOUND"}`))
		}
	})
	ctx := context.Background()

	rec, err := s.Create(ctx, map[string]any{"Name": "Pump", "x": nil})
	require.NoError(t, err)
	assert.Equal(t, "recNew", rec.ID)

	rec, err = s.Update(ctx, "recNew", map[string]any{"x": nil, "Code": "1203"})
	require.NoError(t, err)
	assert.Equal(t, "1203", rec.Fields["Code"])

	require.NoError(t, s.Delete(ctx, "recNew"))

	_, err = s.Get(ctx, "recMissing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAirtableStore_ErrorBody(t *testing.T) {
	s := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"type":"INVALID_VALUE_FOR_COLUMN","message":"bad"}}`))
	})

	_, err := s.Create(context.Background(), map[string]any{"Name": "x"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "INVALID_VALUE_FOR_COLUMN"))
}

func TestNewAirtableStore_Validation(t *testing.T) {
	_, err := NewAirtableStore(AirtableConfig{APIKey: "k"})
	assert.Error(t, err)
	_, err = NewAirtableStore(AirtableConfig{BaseID: "app", Table: "Items"})
	assert.Error(t, err)
}
