// Package clients provides the catalog API transport stack: a GraphQL
// HTTP client, a response-driven capacity limiter, a retrying executor,
// and cursor pagination helpers.
package clients

import (
	"bytes"
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/ajitpratap0/cartsync/pkg/config"
	"github.com/ajitpratap0/cartsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/cartsync/pkg/json"
	stringpool "github.com/ajitpratap0/cartsync/pkg/strings"
)

// Catalog API headers. The call-limit header carries a "used/limit"
// capacity pair; Retry-After is only present on throttled responses.
const (
	headerAccessToken = "X-Catalog-Access-Token"
	headerCallLimit   = "X-Catalog-Call-Limit"
	headerRetryAfter  = "Retry-After"
)

// RateLimitInfo is the capacity metadata parsed from response headers.
type RateLimitInfo struct {
	Used       int           `json:"used"`
	Limit      int           `json:"limit"`
	RetryAfter time.Duration `json:"retry_after"`
}

// Remaining converts the used/limit pair into the remaining request
// budget, clamped at zero.
func (ri *RateLimitInfo) Remaining() int {
	remaining := ri.Limit - ri.Used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// QueryError is a single entry in a GraphQL response error list.
type QueryError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// Response is a decoded GraphQL envelope together with the capacity
// metadata observed on the carrying HTTP response. RateLimit is nil
// when the server sent no call-limit header.
type Response struct {
	Data      jsonpool.RawMessage `json:"data"`
	Errors    []QueryError        `json:"errors,omitempty"`
	RateLimit *RateLimitInfo      `json:"-"`
}

// HasErrors reports whether the response carries an application-level
// error list. Such responses count as failed requests even when the
// HTTP status is 200.
func (r *Response) HasErrors() bool {
	return len(r.Errors) > 0
}

// ErrorMessages flattens the error list for logging and error details.
func (r *Response) ErrorMessages() []string {
	if len(r.Errors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, qe := range r.Errors {
		msgs = append(msgs, qe.Message)
	}
	return msgs
}

// GraphQLClient executes queries against the catalog admin API. It owns
// a tuned HTTP/2 transport and understands the API's capacity headers;
// pacing and retries live in CapacityLimiter and Executor.
type GraphQLClient struct {
	endpoint    string
	accessToken string
	userAgent   string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewGraphQLClient builds a client from the API section of the config.
// When OAuth2 client credentials are configured the underlying transport
// refreshes tokens automatically; otherwise the static access token is
// sent on every request.
func NewGraphQLClient(cfg *config.APIConfig, logger *zap.Logger) *GraphQLClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	token := cfg.AccessToken
	if cfg.Auth.Type == config.AuthTypeOAuth2 {
		token = ""
	}
	return &GraphQLClient{
		endpoint:    cfg.Endpoint,
		accessToken: token,
		userAgent:   cfg.UserAgent,
		httpClient:  newHTTPClient(cfg),
		logger:      logger.With(zap.String("component", "graphql_client")),
	}
}

// newTransport builds the pooled HTTP transport with HTTP/2 enabled.
func newTransport() *http.Transport {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		// HTTP/1.1 still works; nothing to surface here.
		_ = err
	}
	return transport
}

// Execute sends one GraphQL request and decodes the envelope. The
// returned Response carries parsed capacity headers whenever the server
// sent them, including on throttled and failed responses. A response
// with an application-level error list is returned with err == nil; the
// caller decides how to treat it.
func (c *GraphQLClient) Execute(ctx context.Context, query string, variables map[string]interface{}) (*Response, error) {
	payload := map[string]interface{}{
		"query": query,
	}
	if len(variables) > 0 {
		payload["variables"] = variables
	}

	buf, err := jsonpool.MarshalToBuffer(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode query payload")
	}
	defer jsonpool.PutBuffer(buf)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to build catalog request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.accessToken != "" {
		req.Header.Set(headerAccessToken, c.accessToken)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(err, errors.ErrorTypeTransient, "catalog request failed")
	}
	defer httpResp.Body.Close()

	rateLimit := parseRateLimit(httpResp.Header)

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		err := errors.New(errors.ErrorTypeThrottled, "catalog API throttled the request").
			WithDetail("status", httpResp.StatusCode)
		if rateLimit != nil {
			err = err.WithDetail("retry_after", rateLimit.RetryAfter.String())
		}
		return &Response{RateLimit: rateLimit}, err
	case httpResp.StatusCode >= 500:
		return &Response{RateLimit: rateLimit}, errors.New(errors.ErrorTypeTransient,
			stringpool.Sprintf("catalog API returned status %d", httpResp.StatusCode))
	case httpResp.StatusCode >= 400:
		return &Response{RateLimit: rateLimit}, errors.New(errors.ErrorTypeQuery,
			stringpool.Sprintf("catalog API rejected request with status %d", httpResp.StatusCode))
	}

	resp := &Response{RateLimit: rateLimit}
	decoder := jsonpool.GetDecoder(httpResp.Body)
	defer jsonpool.PutDecoder(decoder)
	if err := decoder.Decode(resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode catalog response")
	}

	if resp.HasErrors() {
		c.logger.Debug("catalog response carried errors",
			zap.Strings("errors", resp.ErrorMessages()))
	}
	return resp, nil
}

// parseRateLimit reads the capacity headers. The call-limit header has
// the form "used/limit", e.g. "35/40".
func parseRateLimit(header http.Header) *RateLimitInfo {
	callLimit := header.Get(headerCallLimit)
	retryAfter := header.Get(headerRetryAfter)
	if callLimit == "" && retryAfter == "" {
		return nil
	}

	info := &RateLimitInfo{}
	if callLimit != "" {
		parts := strings.SplitN(callLimit, "/", 2)
		if len(parts) == 2 {
			used, errUsed := strconv.Atoi(strings.TrimSpace(parts[0]))
			limit, errLimit := strconv.Atoi(strings.TrimSpace(parts[1]))
			if errUsed == nil && errLimit == nil {
				info.Used = used
				info.Limit = limit
			}
		}
	}
	if retryAfter != "" {
		if seconds, err := strconv.ParseFloat(retryAfter, 64); err == nil && seconds > 0 {
			info.RetryAfter = time.Duration(seconds * float64(time.Second))
		}
	}
	return info
}
