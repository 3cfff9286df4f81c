package kg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"pharmatlas/internal/graph"
	"pharmatlas/internal/upstream"
	"pharmatlas/util"
)

const (
	DefaultEndpoint = "https://api.bte.ncats.io/v1/query"
	DefaultTimeout  = 60 * time.Second

	maxBodyBytes     = 64 << 20
	maxErrorBodySize = 512
)

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Guard      *upstream.Guard
	Logger     *zap.Logger
}

// Client posts one-hop query graphs to a knowledge-graph query service.
type Client struct {
	endpoint   string
	httpClient *http.Client
	guard      *upstream.Guard
	logger     *zap.Logger
}

func NewClient(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		endpoint:   opts.Endpoint,
		httpClient: opts.HTTPClient,
		guard:      opts.Guard,
		logger:     opts.Logger,
	}
}

// Endpoint returns the configured query URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Query asks for every node of the target category related to the gene. HTTP,
// network and decoding failures all come back as a failed Result.
func (c *Client) Query(ctx context.Context, identifier string, target graph.Category) Result {
	var result Result
	start := time.Now()

	err := c.guard.Do(ctx, identifier+" "+string(target), func(ctx context.Context) (upstream.Outcome, string, error) {
		result = c.post(ctx, graph.NewOneHopQuery(util.GeneCURIE(identifier), target))
		if result.OK() {
			return upstream.OutcomeOK, "", nil
		}
		outcome := upstream.OutcomeTransportError
		if result.Failure.Kind == FailureDecode {
			outcome = upstream.OutcomeDecodeError
		}
		return outcome, result.Failure.Message, result.Failure
	})
	if errors.Is(err, upstream.ErrRejected) {
		result = Failed(FailureTransport, fmt.Sprintf("Connection error: %v", err))
	}

	fields := []zap.Field{
		zap.String("identifier", identifier),
		zap.String("category", string(target)),
		zap.Duration("duration", time.Since(start)),
	}
	if !result.OK() {
		c.logger.Warn("knowledge graph query failed", append(fields, zap.String("error", result.Err()))...)
	} else {
		c.logger.Debug("knowledge graph query", append(fields, zap.Int("bytes", len(result.Document)))...)
	}
	return result
}

func (c *Client) post(ctx context.Context, query graph.Query) Result {
	body, err := json.Marshal(query)
	if err != nil {
		return Failed(FailureTransport, fmt.Sprintf("Connection error: failed to encode query: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Failed(FailureTransport, fmt.Sprintf("Connection error: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failed(FailureTransport, fmt.Sprintf("Connection error: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return Failed(FailureTransport,
			fmt.Sprintf("HTTP Error: %d - %s", resp.StatusCode, strings.TrimSpace(string(excerpt))))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Failed(FailureTransport, fmt.Sprintf("Connection error: failed to read response: %v", err))
	}

	doc := graph.Document(raw)
	if !doc.IsObject() {
		return Failed(FailureDecode, "Decode error: response is not a JSON object")
	}
	return Success(doc)
}
