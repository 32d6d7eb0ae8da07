package transport

import (
	"context"
	"errors"
)

// ErrNotFound means the requested document does not exist at the source.
// Callers treat this as an expected outcome (the bill simply isn't there),
// distinct from a genuine transport failure.
var ErrNotFound = errors.New("document not found at source")

// Client retrieves bill documents from the remote legislature source. Two
// implementations exist: a stateful FTP session client and a stateless HTTP
// client for mirrored copies. The rest of the pipeline never knows which is
// active.
type Client interface {
	// FetchBillHistory retrieves the raw bill-history XML for one bill.
	// Returns ErrNotFound when the file is absent.
	FetchBillHistory(ctx context.Context, session, billType string, number int) ([]byte, error)

	// ListBillNumbers enumerates every bill number of the given type that
	// exists at the source, sorted ascending.
	ListBillNumbers(ctx context.Context, session, billType string) ([]int, error)

	// FetchTextDocument retrieves a bill-text HTML page by absolute URL.
	// Returns ErrNotFound on a non-success response.
	FetchTextDocument(ctx context.Context, url string) (string, error)

	// Close releases any underlying connection.
	Close() error
}
