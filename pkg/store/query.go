package store

import "time"

// Query builders. Each returns a plain map so queries compose freely
// and marshal directly into request bodies.

// TermQuery matches field exactly.
func TermQuery(field string, value any) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

// DateRangeQuery matches field within [start, end], both inclusive.
// Zero bounds are omitted.
func DateRangeQuery(field string, start, end time.Time) map[string]any {
	params := map[string]any{}
	if !start.IsZero() {
		params["gte"] = start.Format(time.RFC3339Nano)
	}
	if !end.IsZero() {
		params["lte"] = end.Format(time.RFC3339Nano)
	}
	return map[string]any{"range": map[string]any{field: params}}
}

// BoolQuery combines clauses under a bool query. Nil clause groups are
// omitted.
func BoolQuery(must, filter []map[string]any) map[string]any {
	boolParams := map[string]any{}
	if len(must) > 0 {
		boolParams["must"] = must
	}
	if len(filter) > 0 {
		boolParams["filter"] = filter
	}
	return map[string]any{"bool": boolParams}
}

// NestedQuery wraps query so it applies inside the nested field at
// path.
func NestedQuery(path string, query map[string]any) map[string]any {
	return map[string]any{"nested": map[string]any{"path": path, "query": query}}
}

// ExistsQuery matches documents where field has any value.
func ExistsQuery(field string) map[string]any {
	return map[string]any{"exists": map[string]any{"field": field}}
}

// TermsAgg buckets by field values, returning at most size buckets.
func TermsAgg(field string, size int) map[string]any {
	return map[string]any{"terms": map[string]any{"field": field, "size": size}}
}

// SumAgg sums field across matching documents.
func SumAgg(field string) map[string]any {
	return map[string]any{"sum": map[string]any{"field": field}}
}

// NestedAgg scopes sub-aggregations to the nested field at path.
func NestedAgg(path string, aggs map[string]any) map[string]any {
	return map[string]any{
		"nested": map[string]any{"path": path},
		"aggs":   aggs,
	}
}

// DateHistogramAgg buckets a date field by calendar interval.
func DateHistogramAgg(field, interval, format string) map[string]any {
	return map[string]any{
		"date_histogram": map[string]any{
			"field":             field,
			"calendar_interval": interval,
			"format":            format,
		},
	}
}

// AggregationQuery builds an aggregations-only request: size 0 plus an
// optional bool filter.
func AggregationQuery(aggs map[string]any, queryParts ...map[string]any) map[string]any {
	q := map[string]any{
		"size": 0,
		"aggs": aggs,
	}
	if len(queryParts) > 0 {
		q["query"] = BoolQuery(queryParts, nil)
	}
	return q
}

// SearchQuery builds a document request with a bool-must filter.
func SearchQuery(size, from int, queryParts ...map[string]any) map[string]any {
	return map[string]any{
		"size":  size,
		"from":  from,
		"query": BoolQuery(queryParts, nil),
	}
}
