package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slacklytics/slacklytics/pkg/retry"
)

// newStubStore starts a fake store endpoint and returns a connected
// client. handler sees every request except the initial ping.
func newStubStore(t *testing.T, handler http.HandlerFunc) *ES {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The v8 client validates this header on every response.
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewES(context.Background(), Config{
		Addresses: []string{srv.URL},
		Retry: retry.Policy{
			MaxRetries:     2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			BackoffFactor:  2.0,
		},
	})
	if err != nil {
		t.Fatalf("NewES() error = %v", err)
	}
	return client
}

func TestIndexName(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		want    string
	}{
		{"plain", "general", "slack-general"},
		{"uppercase", "TeamRoom", "slack-teamroom"},
		{"special characters", "dev ops/infra", "slack-dev-ops-infra"},
		{"unicode", "日本語", "slack----"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IndexName(tt.channel); got != tt.want {
				t.Errorf("IndexName(%q) = %q, want %q", tt.channel, got, tt.want)
			}
		})
	}
}

func TestBulkIndexAccounting(t *testing.T) {
	var gotBody string
	client := newStubStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/slack-general/_bulk" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		gotBody = string(body)

		// Two accepted, one rejected by the store.
		resp := map[string]any{
			"errors": true,
			"items": []map[string]any{
				{"index": map[string]any{"_id": "1.000", "status": 201}},
				{"index": map[string]any{"_id": "2.000", "status": 400,
					"error": map[string]any{"type": "mapper_parsing_exception", "reason": "bad field"}}},
				{"index": map[string]any{"_id": "3.000", "status": 200}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})

	docs := []map[string]any{
		{"ts": "1.000", "text": "a"},
		{"ts": "2.000", "text": "b"},
		{"ts": "3.000", "text": "c"},
	}
	result, err := client.BulkIndex(context.Background(), "slack-general", docs, "ts")
	if err != nil {
		t.Fatalf("BulkIndex() error = %v", err)
	}

	if result.Success != 2 || result.Failed != 1 {
		t.Errorf("result = %+v, want {Success:2 Failed:1}", result)
	}
	if result.Total() != len(docs) {
		t.Errorf("Success+Failed = %d, want %d", result.Total(), len(docs))
	}
	if !strings.Contains(gotBody, `"_id":"2.000"`) {
		t.Errorf("bulk body missing explicit _id lines:\n%s", gotBody)
	}
}

func TestBulkIndexEmptyBatch(t *testing.T) {
	client := newStubStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty batch")
	})

	result, err := client.BulkIndex(context.Background(), "slack-general", nil, "ts")
	if err != nil {
		t.Fatalf("BulkIndex() error = %v", err)
	}
	if result.Total() != 0 {
		t.Errorf("result = %+v, want zero", result)
	}
}

func TestBulkIndexRetriesWholeBatch(t *testing.T) {
	calls := 0
	client := newStubStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"type": "unavailable", "reason": "shutting down"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"errors": false,
			"items": []map[string]any{
				{"index": map[string]any{"_id": "1.000", "status": 201}},
			},
		})
	})

	result, err := client.BulkIndex(context.Background(), "slack-general",
		[]map[string]any{{"ts": "1.000"}}, "ts")
	if err != nil {
		t.Fatalf("BulkIndex() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry of the whole batch)", calls)
	}
	if result.Success != 1 {
		t.Errorf("result = %+v, want {Success:1}", result)
	}
}

func TestSearchIndexNotFound(t *testing.T) {
	client := newStubStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error":  map[string]any{"type": "index_not_found_exception", "reason": "no such index"},
			"status": 404,
		})
	})

	result, err := client.Search(context.Background(), "slack-nodata", map[string]any{"size": 0}, 0, 0)
	if err != nil {
		t.Fatalf("Search() error = %v, want typed not-found result", err)
	}
	if !result.IndexNotFound {
		t.Error("IndexNotFound = false, want true")
	}
}

func TestSearchParsesHitsAndAggregations(t *testing.T) {
	client := newStubStore(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"hits": map[string]any{
				"total": map[string]any{"value": 42},
				"hits": []map[string]any{
					{"_id": "1.000", "_source": map[string]any{"text": "hello"}},
				},
			},
			"aggregations": map[string]any{
				"reaction_count": map[string]any{"value": 7.0},
			},
		})
	})

	result, err := client.Search(context.Background(), "slack-general", map[string]any{}, 10, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Total != 42 {
		t.Errorf("Total = %d, want 42", result.Total)
	}
	if len(result.Hits) != 1 || result.Hits[0].ID != "1.000" {
		t.Errorf("Hits = %+v", result.Hits)
	}
	if _, ok := result.Aggregations["reaction_count"]; !ok {
		t.Error("missing reaction_count aggregation")
	}
}

func TestCreateIndexAlreadyExists(t *testing.T) {
	created := false
	client := newStubStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK) // index exists
		case r.Method == http.MethodPut:
			created = true
			w.WriteHeader(http.StatusOK)
		}
	})

	if err := client.CreateIndex(context.Background(), "slack-general", nil); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if created {
		t.Error("CreateIndex issued a create call for an existing index")
	}
}

func TestCreateIndexRace(t *testing.T) {
	client := newStubStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			// Another writer created it between the probe and the create.
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"type": "resource_already_exists_exception", "reason": "exists"}})
		}
	})

	if err := client.CreateIndex(context.Background(), "slack-general", nil); err != nil {
		t.Errorf("CreateIndex() error = %v, want nil for already-exists race", err)
	}
}

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           *APIError
		alreadyExists bool
		notFound      bool
		temporary     bool
	}{
		{
			name:          "already exists",
			err:           &APIError{Status: 400, Type: "resource_already_exists_exception"},
			alreadyExists: true,
		},
		{
			name:     "index not found",
			err:      &APIError{Status: 404, Type: "index_not_found_exception"},
			notFound: true,
		},
		{
			name:      "server error",
			err:       &APIError{Status: 503, Type: "unavailable"},
			temporary: true,
		},
		{
			name: "mapping error is terminal",
			err:  &APIError{Status: 400, Type: "mapper_parsing_exception"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAlreadyExists(tt.err); got != tt.alreadyExists {
				t.Errorf("IsAlreadyExists = %v, want %v", got, tt.alreadyExists)
			}
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound = %v, want %v", got, tt.notFound)
			}
			if got := retry.IsTemporaryError(tt.err); got != tt.temporary {
				t.Errorf("IsTemporaryError = %v, want %v", got, tt.temporary)
			}
			if got := shouldRetry(tt.err); got != tt.temporary {
				t.Errorf("shouldRetry = %v, want %v", got, tt.temporary)
			}
		})
	}
}
