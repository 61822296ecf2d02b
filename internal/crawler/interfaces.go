package crawler

import (
	"context"
	"io"
	"time"
)

// Renderer drives a browser to a page and returns its fully expanded markup.
type Renderer interface {
	Render(ctx context.Context, url string) (RenderedPage, error)
}

// Extractor turns rendered markup into records.
type Extractor interface {
	Metadata(html string) (ApplicationMetadata, error)
	Comments(html string, appID string) ([]Comment, error)
}

// AppendStore persists records below all previously written rows.
type AppendStore interface {
	EnsureInitialized(ctx context.Context) error
	Append(ctx context.Context, app ApplicationMetadata, comments []Comment) error
}

// FailureLedger records targets that could not be fully processed.
// Implementations never return an error to the caller.
type FailureLedger interface {
	Record(ctx context.Context, record FailureRecord)
}

// Fetcher fetches a URL without a browser and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// LinkDiscoverer lists the application URLs to crawl.
type LinkDiscoverer interface {
	Links(ctx context.Context) ([]string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RetrievalStore persists one audit row per completed render.
type RetrievalStore interface {
	StoreRetrieval(ctx context.Context, record RetrievalRecord) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// VisitedSet remembers targets processed by earlier runs.
type VisitedSet interface {
	IsVisited(ctx context.Context, url string) (bool, error)
	MarkVisited(ctx context.Context, url string, expiry time.Duration) error
}

// Queue provides enqueue/dequeue semantics for crawl targets.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// RetryPolicy decides whether and when to re-attempt a failed operation.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Hasher computes digests for snapshot naming and integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
