package cache

import "context"

// Loader computes a value on a cache miss.
type Loader[T any] func(ctx context.Context) (T, error)

// GetOrCompute returns the cached value under key, or computes, stores and
// returns it. A compute error is returned as-is and nothing is stored. A
// failed store write does not fail the call.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, load Loader[T]) (T, error) {
	if value, ok := GetAs[T](ctx, c, key); ok {
		return value, nil
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(ctx, key, value)
	return value, nil
}

// CustomerSession caches a customer session by session ID.
func CustomerSession[T any](ctx context.Context, c *Cache, sessionID string, load Loader[T]) (T, error) {
	return GetOrCompute(ctx, c, SessionKey(sessionID), load)
}

// DocumentSearch caches a document search result set.
func DocumentSearch[T any](ctx context.Context, c *Cache, query, category string, limit int, load Loader[T]) (T, error) {
	return GetOrCompute(ctx, c, DocSearchKey(query, category, limit), load)
}

// GraphResult caches a graph query result for a customer.
func GraphResult[T any](ctx context.Context, c *Cache, queryType string, customerID int64, variant string, load Loader[T]) (T, error) {
	return GetOrCompute(ctx, c, GraphKey(queryType, customerID, variant), load)
}

// Classification caches a customer classification.
func Classification[T any](ctx context.Context, c *Cache, customerID int64, load Loader[T]) (T, error) {
	return GetOrCompute(ctx, c, ClassificationKey(customerID), load)
}

// CachedResponse is the stored form of a generated response.
type CachedResponse struct {
	Response       string `json:"response"`
	Classification string `json:"classification"`
	Query          string `json:"query"`
	ContextSummary string `json:"context_summary"`
}

// Response caches a generated response for a classification, query and
// context summary.
func Response(ctx context.Context, c *Cache, classification, query, contextSummary string, load Loader[string]) (string, error) {
	cached, err := GetOrCompute(ctx, c, ResponseKey(classification, query, contextSummary),
		func(ctx context.Context) (CachedResponse, error) {
			response, err := load(ctx)
			if err != nil {
				return CachedResponse{}, err
			}
			return CachedResponse{
				Response:       response,
				Classification: classification,
				Query:          query,
				ContextSummary: contextSummary,
			}, nil
		})
	if err != nil {
		return "", err
	}
	return cached.Response, nil
}
