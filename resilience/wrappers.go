package resilience

import "context"

// Specialized entry points per external dependency. Each constructs the
// appropriate error context and dependency-specific fallback ordering on
// top of the general Do.

// DoGeneration wraps an image or video generation call. Callers supply the
// cheaper-model and reduced-parameter alternatives as custom fallbacks;
// the catalog's placeholder asset remains the last resort before universal
// degradation.
func (h *Handler) DoGeneration(ctx context.Context, sessionID, operation, service string, op Op, custom ...Fallback) (any, error) {
	return h.Do(ctx, OpInfo{
		SessionID: sessionID,
		Operation: operation,
		Category:  CategoryGeneration,
		Service:   service,
	}, op, custom...)
}

// DoVision wraps a vision or chat model call.
func (h *Handler) DoVision(ctx context.Context, sessionID, operation string, op Op, custom ...Fallback) (any, error) {
	return h.Do(ctx, OpInfo{
		SessionID: sessionID,
		Operation: operation,
		Category:  CategoryVision,
	}, op, custom...)
}

// DoStorage wraps an object-storage upload. Its catalog fallback continues
// without persisting and returns a placeholder reference with stored=false.
func (h *Handler) DoStorage(ctx context.Context, sessionID, operation string, op Op) (any, error) {
	return h.Do(ctx, OpInfo{
		SessionID: sessionID,
		Operation: operation,
		Category:  CategoryObjectStorage,
	}, op)
}

// DoDocStore wraps a document-store read or write. The cached-response
// fallback serves the session snapshot for docID with a staleness warning.
func (h *Handler) DoDocStore(ctx context.Context, sessionID, operation, collection, docID string, op Op) (any, error) {
	cached := Fallback{
		Kind:        FallbackCachedResponse,
		Description: "serve cached session data with a staleness warning",
		Params:      map[string]any{"collection": collection, "id": docID},
	}
	return h.Do(ctx, OpInfo{
		SessionID: sessionID,
		Operation: operation,
		Category:  CategoryDocumentStore,
	}, op, cached)
}

// DoRateLimited wraps a call that already reported throttling upstream.
func (h *Handler) DoRateLimited(ctx context.Context, sessionID, operation, service string, op Op, custom ...Fallback) (any, error) {
	return h.Do(ctx, OpInfo{
		SessionID: sessionID,
		Operation: operation,
		Category:  CategoryRateLimit,
		Service:   service,
	}, op, custom...)
}
