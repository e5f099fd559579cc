// Package store wraps the search datastore's bulk-write and query
// operations with retry, idempotent document IDs, and differentiated
// handling of "already exists" and "not found" conditions.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/slacklytics/slacklytics/pkg/logger"
	"github.com/slacklytics/slacklytics/pkg/models"
	"github.com/slacklytics/slacklytics/pkg/retry"
	"github.com/slacklytics/slacklytics/pkg/telemetry"
)

// Hit is one search result document.
type Hit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

// SearchResult is the decoded outcome of a search call. IndexNotFound
// marks the typed "no such index" result: querying a channel that has
// never been ingested is a normal, expected outcome, not an error.
type SearchResult struct {
	IndexNotFound bool
	Total         int
	Hits          []Hit
	Aggregations  map[string]json.RawMessage
}

// Client is the document store surface consumed by the ingestion
// pipeline and the aggregation engine.
type Client interface {
	// CreateIndex creates an index with the given settings; it
	// succeeds silently when the index already exists.
	CreateIndex(ctx context.Context, name string, settings map[string]any) error

	// CreateTemplate creates or updates an index template.
	CreateTemplate(ctx context.Context, name string, template map[string]any) error

	// IndexDocument writes a single document; id may be empty for an
	// auto-assigned ID.
	IndexDocument(ctx context.Context, index string, doc map[string]any, id string) error

	// BulkIndex writes documents in one call. When idField is set,
	// each document's value for that field becomes its explicit ID,
	// making retries and re-ingestion idempotent upserts. A retry
	// re-submits the whole batch; partial retry is never attempted.
	BulkIndex(ctx context.Context, index string, docs []map[string]any, idField string) (models.BatchResult, error)

	// Search executes a query. size and from apply only when the query
	// body does not set them itself.
	Search(ctx context.Context, index string, query map[string]any, size, from int) (*SearchResult, error)
}

// Config configures the Elasticsearch-backed client.
type Config struct {
	Addresses []string
	Username  string
	Password  string

	// Retry overrides the default policy when non-zero.
	Retry retry.Policy
}

// ES implements Client against Elasticsearch.
type ES struct {
	es     *elasticsearch.Client
	policy retry.Policy
}

// shouldRetry is the store's retry-eligibility predicate: transient
// failures are retried; "already exists" and "not found" are terminal
// outcomes the caller handles.
func shouldRetry(err error) bool {
	if IsAlreadyExists(err) || IsNotFound(err) {
		return false
	}
	return retry.IsTemporaryError(err)
}

// NewES connects to the store and verifies the connection.
func NewES(ctx context.Context, cfg Config) (*ES, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store client: %w", err)
	}

	res, err := es.Ping(es.Ping.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to reach store: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, decodeAPIError(res.StatusCode, res.Body)
	}
	logger.L().Info("connected to document store", "addresses", cfg.Addresses)

	p := cfg.Retry
	if p.BackoffFactor == 0 {
		p = retry.DefaultPolicy()
	}
	p.ShouldRetry = shouldRetry
	return &ES{es: es, policy: p}, nil
}

// CreateIndex creates name with settings. An existing index is a no-op
// success, whether detected by the existence probe or reported by the
// create call itself.
func (c *ES) CreateIndex(ctx context.Context, name string, settings map[string]any) error {
	return c.do("create_index", func() error {
		exists, err := c.indexExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			logger.L().Info("index already exists", "index", name)
			return nil
		}

		var body bytes.Buffer
		if settings != nil {
			if err := json.NewEncoder(&body).Encode(settings); err != nil {
				return fmt.Errorf("encode index settings: %w", err)
			}
		}
		opts := []func(*esapi.IndicesCreateRequest){c.es.Indices.Create.WithContext(ctx)}
		if settings != nil {
			opts = append(opts, c.es.Indices.Create.WithBody(&body))
		}
		res, err := c.es.Indices.Create(name, opts...)
		if err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
		defer res.Body.Close()
		if res.IsError() {
			err := decodeAPIError(res.StatusCode, res.Body)
			if IsAlreadyExists(err) {
				// Lost a creation race; the index is there, which is
				// all the caller wanted.
				return nil
			}
			return err
		}
		logger.L().Info("created index", "index", name)
		return nil
	})
}

func (c *ES) indexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", name, err)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, decodeAPIError(res.StatusCode, res.Body)
	}
}

// CreateTemplate creates or updates the index template name.
func (c *ES) CreateTemplate(ctx context.Context, name string, template map[string]any) error {
	return c.do("create_template", func() error {
		body, err := json.Marshal(template)
		if err != nil {
			return fmt.Errorf("encode template: %w", err)
		}
		res, err := c.es.Indices.PutIndexTemplate(name, bytes.NewReader(body),
			c.es.Indices.PutIndexTemplate.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("put template %s: %w", name, err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return decodeAPIError(res.StatusCode, res.Body)
		}
		logger.L().Info("created index template", "template", name)
		return nil
	})
}

// IndexDocument writes one document to index.
func (c *ES) IndexDocument(ctx context.Context, index string, doc map[string]any, id string) error {
	return c.do("index_document", func() error {
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		opts := []func(*esapi.IndexRequest){c.es.Index.WithContext(ctx)}
		if id != "" {
			opts = append(opts, c.es.Index.WithDocumentID(id))
		}
		res, err := c.es.Index(index, bytes.NewReader(body), opts...)
		if err != nil {
			return fmt.Errorf("index document in %s: %w", index, err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return decodeAPIError(res.StatusCode, res.Body)
		}
		return nil
	})
}

// bulkResponse is the subset of the bulk API response needed for
// success/failure accounting.
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// BulkIndex submits docs to index in a single call and translates the
// store's per-item tally into a BatchResult whose Success+Failed equals
// len(docs).
func (c *ES) BulkIndex(ctx context.Context, index string, docs []map[string]any, idField string) (models.BatchResult, error) {
	if len(docs) == 0 {
		return models.BatchResult{}, nil
	}

	var result models.BatchResult
	err := c.do("bulk_index", func() error {
		var buf bytes.Buffer
		for _, doc := range docs {
			meta := map[string]any{"index": map[string]any{}}
			if idField != "" {
				if id, ok := doc[idField]; ok {
					meta["index"].(map[string]any)["_id"] = fmt.Sprint(id)
				}
			}
			if err := json.NewEncoder(&buf).Encode(meta); err != nil {
				return fmt.Errorf("encode bulk action: %w", err)
			}
			if err := json.NewEncoder(&buf).Encode(doc); err != nil {
				return fmt.Errorf("encode bulk document: %w", err)
			}
		}

		res, err := c.es.Bulk(bytes.NewReader(buf.Bytes()),
			c.es.Bulk.WithIndex(index),
			c.es.Bulk.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("bulk write to %s: %w", index, err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return decodeAPIError(res.StatusCode, res.Body)
		}

		var parsed bulkResponse
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode bulk response: %w", err)
		}

		result = models.BatchResult{}
		for _, item := range parsed.Items {
			failed := false
			for _, op := range item {
				if op.Error != nil || op.Status >= 400 {
					failed = true
				}
			}
			if failed {
				result.Failed++
			} else {
				result.Success++
			}
		}
		// Items missing from the response still count as submitted.
		if missing := len(docs) - result.Total(); missing > 0 {
			result.Failed += missing
		}
		return nil
	})
	if err != nil {
		return models.BatchResult{Failed: len(docs)}, err
	}

	telemetry.DocumentsIndexed.Add(float64(result.Success))
	telemetry.DocumentsFailed.Add(float64(result.Failed))
	logger.L().Info("bulk indexed documents",
		"index", index, "success", result.Success, "failed", result.Failed)
	return result, nil
}

// searchResponse is the subset of the search API response the engine
// consumes. Aggregations stay raw; each caller decodes the shapes it
// asked for.
type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []Hit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

// Search executes query against index. A missing index yields a typed
// not-found result rather than an error.
func (c *ES) Search(ctx context.Context, index string, query map[string]any, size, from int) (*SearchResult, error) {
	var result *SearchResult
	err := c.do("search", func() error {
		body, err := json.Marshal(query)
		if err != nil {
			return fmt.Errorf("encode query: %w", err)
		}
		opts := []func(*esapi.SearchRequest){
			c.es.Search.WithContext(ctx),
			c.es.Search.WithIndex(index),
			c.es.Search.WithBody(bytes.NewReader(body)),
		}
		if _, ok := query["size"]; !ok {
			opts = append(opts, c.es.Search.WithSize(size))
		}
		if _, ok := query["from"]; !ok {
			opts = append(opts, c.es.Search.WithFrom(from))
		}
		res, err := c.es.Search(opts...)
		if err != nil {
			return fmt.Errorf("search %s: %w", index, err)
		}
		defer res.Body.Close()
		if res.IsError() {
			apiErr := decodeAPIError(res.StatusCode, res.Body)
			if IsNotFound(apiErr) {
				result = &SearchResult{IndexNotFound: true}
				return nil
			}
			return apiErr
		}

		var parsed searchResponse
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		result = &SearchResult{
			Total:        parsed.Hits.Total.Value,
			Hits:         parsed.Hits.Hits,
			Aggregations: parsed.Aggregations,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// do runs op under the store's retry policy, counting attempts.
func (c *ES) do(op string, fn func() error) error {
	p := c.policy
	prev := p.OnRetry
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		telemetry.RetryAttempts.WithLabelValues(op).Inc()
		if prev != nil {
			prev(attempt, err, wait)
		}
	}
	return p.Do(fn)
}
