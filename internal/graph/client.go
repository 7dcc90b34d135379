// Package graph queries the SPARQL endpoint holding the ingested archive
// structure. It is read-only: only SELECT queries are ever sent.
//
// A Client is configured with an ordered list of candidate endpoints. The
// first one answering the health probe is used; when it stops answering the
// remaining candidates are tried before the call fails with a network fault.
package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
)

// RecordRow is one (recordset, record) pair from the structure graph.
// RecordPath and Record are empty for a recordset with no records.
type RecordRow struct {
	RecordSetPath string
	RecordPath    string
	Record        string
}

// HashRow is a file location with the digest recorded for it.
type HashRow struct {
	Path   string
	Digest string
}

// Health is the result of the endpoint probe.
type Health struct {
	Endpoint string
	Triples  int
}

// Client is a SPARQL protocol client with endpoint failover.
//
// Thread-safety: All methods are safe for concurrent use.
type Client struct {
	endpoints    []string
	http         *http.Client
	probeTimeout time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	active string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithProbeTimeout bounds each endpoint probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) { c.probeTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client over the candidate endpoints, tried in order.
// DefaultEndpoints are used when none are given.
func NewClient(endpoints []string, opts ...Option) *Client {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	c := &Client{
		endpoints:    append([]string(nil), endpoints...),
		http:         http.DefaultClient,
		probeTimeout: 10 * time.Second,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the endpoint currently in use, or "" before discovery.
func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Health probes the candidates in order and selects the first one that
// answers the total triple count query.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var errs []string
	for _, ep := range c.endpoints {
		n, err := c.probe(ctx, ep)
		if err != nil {
			c.logger.Warn("endpoint unavailable", "endpoint", ep, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", ep, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		c.mu.Lock()
		c.active = ep
		c.mu.Unlock()
		c.logger.Info("endpoint selected", "endpoint", ep, "triples", n)
		return Health{Endpoint: ep, Triples: n}, nil
	}
	return Health{}, fault.Errorf(fault.KindNetwork, "probe graph endpoints", "",
		"no endpoint answered: %s", strings.Join(errs, "; "))
}

func (c *Client) probe(ctx context.Context, ep string) (int, error) {
	pctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	rows, err := c.post(pctx, ep, healthQuery)
	if err != nil {
		return 0, err
	}
	return countValue(rows)
}

// Select runs a SELECT query. Without a selected endpoint it discovers one
// first; if the selected endpoint fails, the other candidates are tried in
// order and the first that answers becomes the selected endpoint.
func (c *Client) Select(ctx context.Context, query string) ([]Binding, error) {
	active := c.Endpoint()
	if active == "" {
		h, err := c.Health(ctx)
		if err != nil {
			return nil, err
		}
		active = h.Endpoint
	}

	rows, err := c.post(ctx, active, query)
	if err == nil {
		return rows, nil
	}
	errs := []string{fmt.Sprintf("%s: %v", active, err)}
	c.logger.Warn("query failed, trying other endpoints", "endpoint", active, "error", err)

	for _, ep := range c.endpoints {
		if ep == active || ctx.Err() != nil {
			continue
		}
		rows, err := c.post(ctx, ep, query)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ep, err))
			continue
		}
		c.mu.Lock()
		c.active = ep
		c.mu.Unlock()
		c.logger.Info("failed over to endpoint", "endpoint", ep)
		return rows, nil
	}
	return nil, fault.Errorf(fault.KindNetwork, "sparql query", "",
		"all endpoints failed: %s", strings.Join(errs, "; "))
}

func (c *Client) post(ctx context.Context, ep, query string) ([]Binding, error) {
	form := url.Values{"query": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet)
	}
	return ParseResults(body)
}

// GraphTripleCount returns the number of triples in a named graph. Zero
// means the graph is absent or empty.
func (c *Client) GraphTripleCount(ctx context.Context, graphURI string) (int, error) {
	q, err := graphQuery(graphCountQuery, graphURI)
	if err != nil {
		return 0, fault.New(fault.KindConfiguration, "graph triple count", graphURI, err)
	}
	rows, err := c.Select(ctx, q)
	if err != nil {
		return 0, err
	}
	n, err := countValue(rows)
	if err != nil {
		return 0, fault.New(fault.KindNetwork, "graph triple count", graphURI, err)
	}
	return n, nil
}

// ListRecords returns every recordset location in the graph with the
// records it includes.
func (c *Client) ListRecords(ctx context.Context, graphURI string) ([]RecordRow, error) {
	q, err := graphQuery(recordsQuery, graphURI)
	if err != nil {
		return nil, fault.New(fault.KindConfiguration, "list records", graphURI, err)
	}
	rows, err := c.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]RecordRow, 0, len(rows))
	for _, b := range rows {
		rs, ok := b["recordset_path"]
		if !ok {
			continue
		}
		row := RecordRow{RecordSetPath: rs}
		// Both must be bound for the record half of the row to count.
		if rp, ok := b["record_path"]; ok {
			if rec, ok := b["record"]; ok {
				row.RecordPath = rp
				row.Record = rec
			}
		}
		out = append(out, row)
	}
	c.logger.Debug("records listed", "graph", graphURI, "rows", len(out))
	return out, nil
}

// ListHashes returns every location in the graph that carries a recorded
// digest. Digests are lower-cased.
func (c *Client) ListHashes(ctx context.Context, graphURI string) ([]HashRow, error) {
	q, err := graphQuery(hashesQuery, graphURI)
	if err != nil {
		return nil, fault.New(fault.KindConfiguration, "list hashes", graphURI, err)
	}
	rows, err := c.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]HashRow, 0, len(rows))
	for _, b := range rows {
		p := strings.TrimSpace(b["path"])
		h := strings.ToLower(strings.TrimSpace(b["hash"]))
		if p == "" || h == "" {
			continue
		}
		out = append(out, HashRow{Path: p, Digest: h})
	}
	return out, nil
}
