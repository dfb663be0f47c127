package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
	"github.com/nep7une-w/jupiter-trading-bot/internal/ratelimit"
)

// Default configuration values.
const (
	DefaultBaseURL      = "https://lite-api.jup.ag/swap/v1"
	DefaultTimeout      = 15 * time.Second
	DefaultRateLimitRPS = 1.0

	maxErrorBody = 2048
)

// APIError is a non-2xx aggregator response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jupiter API status %d: %s", e.Status, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// HTTPClient implements Client over the aggregator REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *zap.Logger
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sends key in the x-api-key header.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) {
		c.apiKey = key
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithRateLimit paces requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		c.limiter = ratelimit.New(rps, burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *HTTPClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewHTTPClient creates a new aggregator client.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: ratelimit.New(DefaultRateLimitRPS, 1),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("jupiter")
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "jupiter",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors (no route, bad mint) say nothing about API health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return c
}

// GetQuote calls GET {base}/quote.
func (c *HTTPClient) GetQuote(ctx context.Context, params QuoteParams) (*domain.Quote, error) {
	q := url.Values{}
	q.Set("inputMint", params.InputMint)
	q.Set("outputMint", params.OutputMint)
	q.Set("amount", strconv.FormatUint(params.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(params.SlippageBps))
	q.Set("restrictIntermediateTokens", "true")

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return parseQuote(body)
}

// BuildSwap calls POST {base}/swap.
func (c *HTTPClient) BuildSwap(ctx context.Context, req *domain.SwapRequest) (*SwapTransaction, error) {
	if req == nil || req.Quote == nil || len(req.Quote.Raw) == 0 {
		return nil, errors.New("swap request without raw quote")
	}

	payload, err := json.Marshal(newSwapBody(req))
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/swap", payload)
	if err != nil {
		return nil, err
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal swap response: %w", err)
	}
	if resp.SwapTransaction == "" {
		return nil, errors.New("swap response without transaction")
	}

	raw, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}

	return &SwapTransaction{
		Transaction:               raw,
		LastValidBlockHeight:      resp.LastValidBlockHeight,
		PrioritizationFeeLamports: resp.PrioritizationFeeLamports,
		ComputeUnitLimit:          resp.ComputeUnitLimit,
		SimulationError:           resp.SimulationError,
	}, nil
}

// do sends one request through the rate limiter and circuit breaker.
func (c *HTTPClient) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("x-api-key", c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if len(body) > maxErrorBody {
				body = body[:maxErrorBody]
			}
			return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	})
}

// quoteResponse mirrors the quote payload; amounts arrive as decimal strings.
type quoteResponse struct {
	InputMint            string      `json:"inputMint"`
	InAmount             string      `json:"inAmount"`
	OutputMint           string      `json:"outputMint"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	SwapMode             string      `json:"swapMode"`
	SlippageBps          int         `json:"slippageBps"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []routePlan `json:"routePlan"`
	ContextSlot          uint64      `json:"contextSlot"`
	ErrorCode            string      `json:"errorCode"`
	Error                string      `json:"error"`
}

type routePlan struct {
	SwapInfo swapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

type swapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
}

func parseQuote(body []byte) (*domain.Quote, error) {
	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal quote: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("quote error %s: %s", resp.ErrorCode, resp.Error)
	}

	inAmount, err := parseAmount("inAmount", resp.InAmount)
	if err != nil {
		return nil, err
	}
	outAmount, err := parseAmount("outAmount", resp.OutAmount)
	if err != nil {
		return nil, err
	}
	threshold, err := parseAmount("otherAmountThreshold", resp.OtherAmountThreshold)
	if err != nil {
		return nil, err
	}

	quote := &domain.Quote{
		InputMint:            resp.InputMint,
		OutputMint:           resp.OutputMint,
		InAmount:             inAmount,
		OutAmount:            outAmount,
		OtherAmountThreshold: threshold,
		PriceImpactPct:       resp.PriceImpactPct,
		SlippageBps:          resp.SlippageBps,
		ContextSlot:          resp.ContextSlot,
		Raw:                  json.RawMessage(body),
	}

	for _, rp := range resp.RoutePlan {
		stepIn, err := parseAmount("swapInfo.inAmount", rp.SwapInfo.InAmount)
		if err != nil {
			return nil, err
		}
		stepOut, err := parseAmount("swapInfo.outAmount", rp.SwapInfo.OutAmount)
		if err != nil {
			return nil, err
		}
		quote.Route = append(quote.Route, domain.RouteStep{
			AMMKey:     rp.SwapInfo.AmmKey,
			Label:      rp.SwapInfo.Label,
			InputMint:  rp.SwapInfo.InputMint,
			OutputMint: rp.SwapInfo.OutputMint,
			InAmount:   stepIn,
			OutAmount:  stepOut,
			Percent:    rp.Percent,
		})
	}

	return quote, nil
}

// parseAmount parses a base-unit amount string. Empty means zero.
func parseAmount(field, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return v, nil
}

// swapBody is the POST /swap payload.
type swapBody struct {
	QuoteResponse                 json.RawMessage   `json:"quoteResponse"`
	UserPublicKey                 string            `json:"userPublicKey"`
	DynamicComputeUnitLimit       bool              `json:"dynamicComputeUnitLimit"`
	DynamicSlippage               bool              `json:"dynamicSlippage"`
	WrapAndUnwrapSol              bool              `json:"wrapAndUnwrapSol"`
	PrioritizationFeeLamports     prioritizationFee `json:"prioritizationFeeLamports"`
	ComputeUnitLimit              *uint32           `json:"computeUnitLimit,omitempty"`
	ComputeUnitPriceMicroLamports *uint64           `json:"computeUnitPriceMicroLamports,omitempty"`
}

type prioritizationFee struct {
	PriorityLevelWithMaxLamports priorityLevelWithMaxLamports `json:"priorityLevelWithMaxLamports"`
}

type priorityLevelWithMaxLamports struct {
	MaxLamports   uint64 `json:"maxLamports"`
	PriorityLevel string `json:"priorityLevel"`
}

func newSwapBody(req *domain.SwapRequest) swapBody {
	return swapBody{
		QuoteResponse:                 req.Quote.Raw,
		UserPublicKey:                 req.UserPublicKey,
		DynamicComputeUnitLimit:       req.DynamicComputeUnitLimit,
		DynamicSlippage:               req.DynamicSlippage,
		WrapAndUnwrapSol:              req.WrapAndUnwrapSol,
		ComputeUnitLimit:              req.ComputeUnitLimit,
		ComputeUnitPriceMicroLamports: req.ComputeUnitPriceMicroLamports,
		PrioritizationFeeLamports: prioritizationFee{
			PriorityLevelWithMaxLamports: priorityLevelWithMaxLamports{
				MaxLamports:   req.Prioritization.MaxLamports,
				PriorityLevel: string(req.Prioritization.PriorityLevel),
			},
		},
	}
}

type swapResponse struct {
	SwapTransaction           string      `json:"swapTransaction"`
	LastValidBlockHeight      uint64      `json:"lastValidBlockHeight"`
	PrioritizationFeeLamports uint64      `json:"prioritizationFeeLamports"`
	ComputeUnitLimit          uint32      `json:"computeUnitLimit"`
	SimulationError           interface{} `json:"simulationError"`
}
