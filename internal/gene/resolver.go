package gene

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"pharmatlas/internal/upstream"
)

const (
	DefaultEndpoint = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	DefaultTimeout  = 10 * time.Second

	// Organism restricts every lookup to human genes.
	Organism = "Homo sapiens"
)

// Status is the outcome of one lookup.
type Status string

const (
	StatusFound    Status = "found"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Lookup is the result of resolving a gene symbol. Identifier is set only when
// Status is StatusFound; ErrorDetail only when Status is StatusError.
type Lookup struct {
	Symbol      string `json:"gene_symbol"`
	Identifier  string `json:"entrez_id,omitempty"`
	Status      Status `json:"status"`
	ErrorDetail string `json:"error,omitempty"`
}

func (l Lookup) Found() bool {
	return l.Status == StatusFound
}

// Options configures a Resolver. Zero values fall back to the defaults above.
type Options struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Guard      *upstream.Guard
	Logger     *zap.Logger
}

// Resolver maps gene symbols to NCBI Gene identifiers using E-utilities esearch.
type Resolver struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	guard      *upstream.Guard
	logger     *zap.Logger
}

func NewResolver(opts Options) *Resolver {
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
	return &Resolver{
		endpoint:   opts.Endpoint,
		apiKey:     opts.APIKey,
		httpClient: opts.HTTPClient,
		guard:      opts.Guard,
		logger:     opts.Logger,
	}
}

type esearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
		Error  string   `json:"ERROR"`
	} `json:"esearchresult"`
}

// SearchTerm builds the esearch term restricting the symbol to the gene-name
// field of human genes.
func SearchTerm(symbol string) string {
	return fmt.Sprintf("%s[Gene Name] AND %s[Organism]", symbol, Organism)
}

// Resolve looks the symbol up with exactly one request. Failures are reported
// in the returned Lookup, never as an error.
func (r *Resolver) Resolve(ctx context.Context, symbol string) Lookup {
	symbol = strings.TrimSpace(symbol)
	lookup := Lookup{Symbol: symbol}

	// An empty term matches arbitrary genes.
	if symbol == "" {
		lookup.Status = StatusNotFound
		return lookup
	}

	err := r.guard.Do(ctx, symbol, func(ctx context.Context) (upstream.Outcome, string, error) {
		ids, outcome, err := r.search(ctx, symbol)
		if err != nil {
			lookup.Status = StatusError
			lookup.ErrorDetail = err.Error()
			return outcome, err.Error(), err
		}
		if len(ids) == 0 {
			lookup.Status = StatusNotFound
			return upstream.OutcomeNotFound, "", nil
		}
		// First match wins; esearch is asked for a single id anyway.
		lookup.Status = StatusFound
		lookup.Identifier = ids[0]
		return upstream.OutcomeOK, "", nil
	})
	if err != nil && lookup.Status != StatusError {
		lookup.Status = StatusError
		lookup.ErrorDetail = err.Error()
	}

	r.logger.Debug("gene lookup",
		zap.String("gene", symbol),
		zap.String("status", string(lookup.Status)),
		zap.String("identifier", lookup.Identifier))
	return lookup
}

func (r *Resolver) search(ctx context.Context, symbol string) ([]string, upstream.Outcome, error) {
	params := url.Values{}
	params.Set("db", "gene")
	params.Set("term", SearchTerm(symbol))
	params.Set("retmode", "json")
	params.Set("retmax", "1")
	if r.apiKey != "" {
		params.Set("api_key", r.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, upstream.OutcomeTransportError, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, upstream.OutcomeTransportError, fmt.Errorf("failed to query NCBI Gene: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, upstream.OutcomeTransportError,
			fmt.Errorf("NCBI Gene returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded esearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, upstream.OutcomeDecodeError, fmt.Errorf("failed to decode NCBI Gene response: %w", err)
	}

	if len(decoded.Result.IDList) == 0 && decoded.Result.Error != "" {
		return nil, upstream.OutcomeDecodeError, fmt.Errorf("NCBI Gene search error: %s", decoded.Result.Error)
	}

	return decoded.Result.IDList, upstream.OutcomeOK, nil
}
