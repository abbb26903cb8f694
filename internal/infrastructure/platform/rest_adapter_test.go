package platform_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/omnihub/backend/internal/domain/integration"
	"github.com/omnihub/backend/internal/infrastructure/platform"
)

func newWooAdapter(t *testing.T, serverURL string) *platform.RESTAdapter {
	t.Helper()
	exec := platform.NewExecutor(nil, integration.RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond}, 0, zaptest.NewLogger(t))
	adapter, err := platform.NewRESTAdapter(integration.PlatformWooCommerce, map[string]string{
		"site_url":        serverURL,
		"consumer_key":    "ck_test",
		"consumer_secret": "cs_test",
	}, exec, zaptest.NewLogger(t))
	require.NoError(t, err)
	return adapter
}

func TestRESTAdapter_MissingCredentials(t *testing.T) {
	exec := platform.NewExecutor(nil, integration.RetryPolicy{}, 0, zaptest.NewLogger(t))
	_, err := platform.NewRESTAdapter(integration.PlatformShopify, map[string]string{"shop_domain": "x.myshopify.com"}, exec, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, integration.ErrMissingCredentials)
}

func TestRESTAdapter_Authenticate(t *testing.T) {
	t.Run("accepts valid credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/wp-json/wc/v3/system_status", r.URL.Path)
			assert.Equal(t, "ck_test", r.URL.Query().Get("consumer_key"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"environment":{}}`))
		}))
		defer srv.Close()

		adapter := newWooAdapter(t, srv.URL)
		require.NoError(t, adapter.Authenticate(context.Background()))
	})

	t.Run("maps 401 to authentication failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		adapter := newWooAdapter(t, srv.URL)
		err := adapter.Authenticate(context.Background())
		assert.ErrorIs(t, err, integration.ErrAuthenticationFailed)
	})
}

func TestRESTAdapter_Sync(t *testing.T) {
	t.Run("counts listed records and forwards since", func(t *testing.T) {
		var gotSince string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/wp-json/wc/v3/orders", r.URL.Path)
			gotSince = r.URL.Query().Get("modified_after")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"orders":[{"id":1},{"id":2},{"id":3}]}`))
		}))
		defer srv.Close()

		adapter := newWooAdapter(t, srv.URL)
		since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		result, err := adapter.Sync(context.Background(), integration.OperationSyncOrders, &since)
		require.NoError(t, err)
		assert.Equal(t, 3, result.RecordsProcessed)
		assert.Equal(t, 3, result.RecordsSucceeded)
		assert.Equal(t, 0, result.RecordsFailed)
		assert.Equal(t, "2026-08-01T00:00:00Z", gotSince)
	})

	t.Run("rejects unsupported operations without a request", func(t *testing.T) {
		exec := platform.NewExecutor(nil, integration.RetryPolicy{}, 0, zaptest.NewLogger(t))
		adapter, err := platform.NewRESTAdapter(integration.PlatformTelegram,
			map[string]string{"bot_token": "123:abc"}, exec, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = adapter.Sync(context.Background(), integration.OperationSyncCustomers, nil)
		assert.ErrorIs(t, err, integration.ErrConfiguration)
	})

	t.Run("reports upstream failure in the result", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		adapter := newWooAdapter(t, srv.URL)
		result, err := adapter.Sync(context.Background(), integration.OperationSyncOrders, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, integration.ErrFatalClient)
		require.NotNil(t, result)
		assert.Equal(t, 1, result.RecordsFailed)
		assert.NotEmpty(t, result.Errors)
	})
}

func TestRESTAdapter_ExtractMessages(t *testing.T) {
	exec := platform.NewExecutor(nil, integration.RetryPolicy{}, 0, zaptest.NewLogger(t))
	adapter, err := platform.NewRESTAdapter(integration.PlatformTelegram,
		map[string]string{"bot_token": "123:abc"}, exec, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()

	n, err := adapter.ExtractMessages(ctx, map[string]any{"messages": []any{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = adapter.ExtractMessages(ctx, map[string]any{"message": map[string]any{"text": "hi"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = adapter.ExtractMessages(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTierFor(t *testing.T) {
	tier := platform.TierFor(integration.PlatformTelegram)
	assert.Equal(t, 30, tier.MessagesPerSecond)
	assert.Equal(t, 1, tier.PerChatLimit)

	tier = platform.TierFor(integration.PlatformShopify)
	assert.Equal(t, 40, tier.RequestsPerMinute)
	assert.Zero(t, tier.MessagesPerSecond)
}
