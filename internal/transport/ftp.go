package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"sort"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

const (
	// idleWindow bounds how long a control connection is trusted without
	// traffic before it is re-established.
	idleWindow = 60 * time.Second

	ftpStatusNotFound = 550
)

// FTPClient fetches bill documents over FTP. One control connection is
// reused across calls within the idle window and transparently re-dialed on
// failure, so a stale connection never surfaces to the job loop. Not safe
// for concurrent use by two jobs, which the single-active-job invariant
// already rules out.
type FTPClient struct {
	addr     string
	user     string
	password string
	timeout  time.Duration

	mu       sync.Mutex
	conn     *ftp.ServerConn
	lastUsed time.Time

	// Bill-text pages live on the legislature's web server, not the FTP
	// tree, so text fetches go through the HTTP client.
	text *HTTPClient
}

// NewFTPClient creates a client for the given FTP server address.
func NewFTPClient(addr, user, password string, timeout time.Duration) *FTPClient {
	return &FTPClient{
		addr:     addr,
		user:     user,
		password: password,
		timeout:  timeout,
		text:     NewHTTPClient("", timeout),
	}
}

// FetchBillHistory retrieves one bill-history XML document.
func (c *FTPClient) FetchBillHistory(ctx context.Context, session, billType string, number int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := conn.Retr(HistoryPath(session, billType, number))
	if err != nil {
		return nil, c.classify(err, "retrieve")
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		c.reset()
		return nil, fmt.Errorf("failed to read transfer: %w", err)
	}

	c.lastUsed = time.Now()
	return body, nil
}

// ListBillNumbers enumerates every bucket directory for the type, then the
// files within each, parsing bill numbers out of the filenames.
func (c *FTPClient) ListBillNumbers(ctx context.Context, session, billType string) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	buckets, err := conn.List(chamberPath(session, billType))
	if err != nil {
		return nil, c.classify(err, "list chamber")
	}

	var numbers []int
	for _, bucket := range buckets {
		if bucket.Type != ftp.EntryTypeFolder || !matchBucketDir(bucket.Name, billType) {
			continue
		}

		files, err := conn.List(chamberPath(session, billType) + "/" + bucket.Name)
		if err != nil {
			return nil, c.classify(err, "list bucket")
		}
		for _, f := range files {
			if f.Type != ftp.EntryTypeFile {
				continue
			}
			if n, ok := parseHistoryFilename(f.Name, billType); ok {
				numbers = append(numbers, n)
			}
		}
	}

	c.lastUsed = time.Now()
	sort.Ints(numbers)
	return numbers, nil
}

// FetchTextDocument retrieves a bill-text HTML page by absolute URL.
func (c *FTPClient) FetchTextDocument(ctx context.Context, url string) (string, error) {
	return c.text.FetchTextDocument(ctx, url)
}

// Close shuts down the control connection if one is open.
func (c *FTPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	return nil
}

// ensureConn returns a live control connection, re-dialing when the previous
// one has sat idle past the window. Callers must hold the mutex.
func (c *FTPClient) ensureConn(ctx context.Context) (*ftp.ServerConn, error) {
	if c.conn != nil && time.Since(c.lastUsed) > idleWindow {
		c.reset()
	}
	if c.conn != nil {
		return c.conn, nil
	}

	conn, err := ftp.Dial(c.addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(c.timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}

	if err := conn.Login(c.user, c.password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("failed to log in to %s: %w", c.addr, err)
	}

	c.conn = conn
	c.lastUsed = time.Now()
	return conn, nil
}

// classify maps an FTP error to ErrNotFound when the server reports a
// missing file, and otherwise resets the connection and wraps the error as a
// transport failure.
func (c *FTPClient) classify(err error, op string) error {
	var proto *textproto.Error
	if errors.As(err, &proto) && proto.Code == ftpStatusNotFound {
		c.lastUsed = time.Now()
		return ErrNotFound
	}
	c.reset()
	return fmt.Errorf("failed to %s: %w", op, err)
}

func (c *FTPClient) reset() {
	if c.conn != nil {
		c.conn.Quit()
		c.conn = nil
	}
}
