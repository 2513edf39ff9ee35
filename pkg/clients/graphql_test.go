package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cartsync/pkg/config"
	"github.com/ajitpratap0/cartsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/cartsync/pkg/json"
)

func newTestClient(endpoint string) *GraphQLClient {
	cfg := &config.APIConfig{
		Endpoint:    endpoint,
		AccessToken: "test-token",
		TimeoutMs:   5000,
		UserAgent:   "cartsync-test/1.0",
	}
	return NewGraphQLClient(cfg, zap.NewNop())
}

func TestGraphQLClientExecute(t *testing.T) {
	t.Run("sends the query and decodes the envelope", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "test-token", r.Header.Get(headerAccessToken))
			assert.Equal(t, "cartsync-test/1.0", r.Header.Get("User-Agent"))

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			var payload map[string]interface{}
			require.NoError(t, jsonpool.Unmarshal(body, &payload))
			assert.Equal(t, "query { products }", payload["query"])

			w.Header().Set(headerCallLimit, "12/40")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"data":{"products":{"edges":[]}}}`))
		}))
		defer server.Close()

		resp, err := newTestClient(server.URL).Execute(context.Background(), "query { products }", nil)
		require.NoError(t, err)
		require.NotNil(t, resp)

		assert.False(t, resp.HasErrors())
		assert.NotEmpty(t, resp.Data)
		require.NotNil(t, resp.RateLimit)
		assert.Equal(t, 12, resp.RateLimit.Used)
		assert.Equal(t, 40, resp.RateLimit.Limit)
		assert.Equal(t, 28, resp.RateLimit.Remaining())
	})

	t.Run("throttled response yields a throttled error with metadata", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(headerCallLimit, "40/40")
			w.Header().Set(headerRetryAfter, "2.0")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		resp, err := newTestClient(server.URL).Execute(context.Background(), "query { products }", nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeThrottled))

		require.NotNil(t, resp)
		require.NotNil(t, resp.RateLimit)
		assert.Equal(t, 0, resp.RateLimit.Remaining())
		assert.Equal(t, 2*time.Second, resp.RateLimit.RetryAfter)
	})

	t.Run("server errors are transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Execute(context.Background(), "query { products }", nil)
		require.Error(t, err)
		assert.True(t, errors.IsRetryable(err))
	})

	t.Run("client errors are not retryable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Execute(context.Background(), "query { products }", nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
		assert.False(t, errors.IsRetryable(err))
	})

	t.Run("application error list passes through without a transport error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"errors":[{"message":"Field 'bogus' doesn't exist"}]}`))
		}))
		defer server.Close()

		resp, err := newTestClient(server.URL).Execute(context.Background(), "query { bogus }", nil)
		require.NoError(t, err)
		require.NotNil(t, resp)

		assert.True(t, resp.HasErrors())
		assert.Equal(t, []string{"Field 'bogus' doesn't exist"}, resp.ErrorMessages())
	})
}

func TestParseRateLimit(t *testing.T) {
	t.Run("parses the used and limit pair", func(t *testing.T) {
		h := http.Header{}
		h.Set(headerCallLimit, "35/40")

		info := parseRateLimit(h)
		require.NotNil(t, info)
		assert.Equal(t, 35, info.Used)
		assert.Equal(t, 40, info.Limit)
		assert.Equal(t, 5, info.Remaining())
		assert.Zero(t, info.RetryAfter)
	})

	t.Run("parses fractional retry-after seconds", func(t *testing.T) {
		h := http.Header{}
		h.Set(headerRetryAfter, "1.5")

		info := parseRateLimit(h)
		require.NotNil(t, info)
		assert.Equal(t, 1500*time.Millisecond, info.RetryAfter)
	})

	t.Run("missing headers yield no info", func(t *testing.T) {
		assert.Nil(t, parseRateLimit(http.Header{}))
	})

	t.Run("malformed pair is ignored", func(t *testing.T) {
		h := http.Header{}
		h.Set(headerCallLimit, "not-a-pair")

		info := parseRateLimit(h)
		require.NotNil(t, info)
		assert.Zero(t, info.Used)
		assert.Zero(t, info.Limit)
	})

	t.Run("remaining never goes negative", func(t *testing.T) {
		info := &RateLimitInfo{Used: 45, Limit: 40}
		assert.Equal(t, 0, info.Remaining())
	})
}
