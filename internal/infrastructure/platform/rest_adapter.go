package platform

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omnihub/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Platform profiles
// ---------------------------------------------------------------------------

// profile describes how to reach one platform's API: where the base URL
// comes from, how credentials turn into headers or query parameters, which
// paths serve each sync operation, and the platform's published rate tier.
// Field mapping stays out of the profile; adapters move envelopes, not
// records.
type profile struct {
	tier    integration.RateTier
	baseURL func(secrets map[string]string) string
	headers func(secrets map[string]string) map[string]string
	query   func(secrets map[string]string) map[string]string

	// ping is the cheap authenticated call used by Authenticate and
	// TestConnection. pingMethod defaults to GET.
	ping       string
	pingMethod string

	// ops maps sync operations to API paths. Operations absent from the
	// map are not supported by the platform.
	ops        map[integration.Operation]string
	opMethod   string
	sinceParam string
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func ensureScheme(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimRight(host, "/")
	}
	return "https://" + strings.TrimRight(host, "/")
}

// profiles carries the per-platform wiring. Rate tiers follow each
// platform's published quotas, with room left under the hard limit.
var profiles = map[integration.Platform]profile{
	integration.PlatformShopify: {
		tier: integration.RateTier{RequestsPerMinute: 40, RequestsPerHour: 2000, BurstSize: 2, BurstInterval: time.Second},
		baseURL: func(s map[string]string) string {
			return ensureScheme(s["shop_domain"]) + "/admin/api/2024-01"
		},
		headers: func(s map[string]string) map[string]string {
			return map[string]string{"X-Shopify-Access-Token": s["access_token"]}
		},
		ping: "/shop.json",
		ops: map[integration.Operation]string{
			integration.OperationSyncOrders:    "/orders.json",
			integration.OperationSyncProducts:  "/products.json",
			integration.OperationSyncCustomers: "/customers.json",
		},
		sinceParam: "updated_at_min",
	},
	integration.PlatformWooCommerce: {
		tier: integration.RateTier{RequestsPerMinute: 60, RequestsPerHour: 3000, BurstSize: 5, BurstInterval: time.Second},
		baseURL: func(s map[string]string) string {
			return ensureScheme(s["site_url"]) + "/wp-json/wc/v3"
		},
		query: func(s map[string]string) map[string]string {
			return map[string]string{"consumer_key": s["consumer_key"], "consumer_secret": s["consumer_secret"]}
		},
		ping: "/system_status",
		ops: map[integration.Operation]string{
			integration.OperationSyncOrders:    "/orders",
			integration.OperationSyncProducts:  "/products",
			integration.OperationSyncCustomers: "/customers",
		},
		sinceParam: "modified_after",
	},
	integration.PlatformBigCommerce: {
		tier: integration.RateTier{RequestsPerMinute: 150, RequestsPerHour: 7000, BurstSize: 10, BurstInterval: time.Second},
		baseURL: func(s map[string]string) string {
			return "https://api.bigcommerce.com/stores/" + s["store_hash"] + "/v3"
		},
		headers: func(s map[string]string) map[string]string {
			return map[string]string{"X-Auth-Token": s["access_token"]}
		},
		ping: "/catalog/summary",
		ops: map[integration.Operation]string{
			integration.OperationSyncOrders:    "/orders",
			integration.OperationSyncProducts:  "/catalog/products",
			integration.OperationSyncCustomers: "/customers",
		},
		sinceParam: "date_modified:min",
	},
	integration.PlatformWildberries: {
		tier:    integration.RateTier{RequestsPerMinute: 100, RequestsPerHour: 5000, BurstSize: 5, BurstInterval: time.Second},
		baseURL: func(map[string]string) string { return "https://suppliers-api.wildberries.ru" },
		headers: func(s map[string]string) map[string]string {
			return map[string]string{"Authorization": s["api_key"]}
		},
		ping: "/ping",
		ops: map[integration.Operation]string{
			integration.OperationSyncOrders:   "/api/v3/orders",
			integration.OperationSyncProducts: "/content/v2/get/cards/list",
		},
		sinceParam: "dateFrom",
	},
	integration.PlatformOzon: {
		tier:    integration.RateTier{RequestsPerMinute: 200, RequestsPerHour: 10000, BurstSize: 10, BurstInterval: time.Second},
		baseURL: func(map[string]string) string { return "https://api-seller.ozon.ru" },
		headers: func(s map[string]string) map[string]string {
			return map[string]string{"Client-Id": s["client_id"], "Api-Key": s["api_key"]}
		},
		ping:       "/v1/warehouse/list",
		pingMethod: http.MethodPost,
		ops: map[integration.Operation]string{
			integration.OperationSyncOrders:   "/v3/posting/fbs/list",
			integration.OperationSyncProducts: "/v3/product/list",
		},
		opMethod:   http.MethodPost,
		sinceParam: "since",
	},
	integration.PlatformInSales: {
		tier:    integration.RateTier{RequestsPerMinute: 30, RequestsPerHour: 1500, BurstSize: 3, BurstInterval: time.Second},
		baseURL: func(s map[string]string) string { return ensureScheme(s["domain"]) },
		headers: func(s map[string]string) map[string]string {
			token := base64.StdEncoding.EncodeToString([]byte(s["api_key"] + ":" + s["password"]))
			return map[string]string{"Authorization": "Basic " + token}
		},
		ping: "/admin/account.json",
		ops: map[integration.Operation]string{
			integration.OperationSyncOrders:    "/admin/orders.json",
			integration.OperationSyncProducts:  "/admin/products.json",
			integration.OperationSyncCustomers: "/admin/clients.json",
		},
		sinceParam: "updated_since",
	},
	integration.PlatformBitrix: {
		tier:    integration.RateTier{RequestsPerMinute: 120, RequestsPerHour: 6000, BurstSize: 2, BurstInterval: time.Second},
		baseURL: func(s map[string]string) string { return strings.TrimRight(s["webhook_url"], "/") },
		ping:    "/profile",
		ops: map[integration.Operation]string{
			integration.OperationSyncOrders:    "/crm.deal.list",
			integration.OperationSyncProducts:  "/crm.product.list",
			integration.OperationSyncCustomers: "/crm.contact.list",
		},
		sinceParam: "filter[>DATE_MODIFY]",
	},
	integration.PlatformTelegram: {
		tier: integration.RateTier{RequestsPerMinute: 1800, RequestsPerHour: 50000, BurstSize: 30, BurstInterval: time.Second,
			MessagesPerSecond: 30, PerChatLimit: 1},
		baseURL: func(s map[string]string) string {
			return "https://api.telegram.org/bot" + s["bot_token"]
		},
		ping: "/getMe",
	},
	integration.PlatformWhatsApp: {
		tier: integration.RateTier{RequestsPerMinute: 600, RequestsPerHour: 20000, BurstSize: 20, BurstInterval: time.Second,
			MessagesPerSecond: 80, PerChatLimit: 2},
		baseURL: func(s map[string]string) string {
			return "https://graph.facebook.com/v19.0/" + s["phone_number_id"]
		},
		headers: func(s map[string]string) map[string]string { return bearer(s["access_token"]) },
		ping:    "",
	},
	integration.PlatformViber: {
		tier: integration.RateTier{RequestsPerMinute: 600, RequestsPerHour: 20000, BurstSize: 20, BurstInterval: time.Second,
			MessagesPerSecond: 20, PerChatLimit: 1},
		baseURL: func(map[string]string) string { return "https://chatapi.viber.com/pa" },
		headers: func(s map[string]string) map[string]string {
			return map[string]string{"X-Viber-Auth-Token": s["auth_token"]}
		},
		ping:       "/get_account_info",
		pingMethod: http.MethodPost,
	},
	integration.PlatformVK: {
		tier: integration.RateTier{RequestsPerMinute: 1200, RequestsPerHour: 40000, BurstSize: 20, BurstInterval: time.Second,
			MessagesPerSecond: 20, PerChatLimit: 1},
		baseURL: func(map[string]string) string { return "https://api.vk.com/method" },
		query: func(s map[string]string) map[string]string {
			return map[string]string{"access_token": s["access_token"], "v": "5.199"}
		},
		ping: "/groups.getById",
	},
}

// TierFor returns the built-in rate tier for a platform. Unknown platforms
// get the zero tier, which NewLimiter fills with conservative defaults.
func TierFor(p integration.Platform) integration.RateTier {
	return profiles[p].tier
}

// ---------------------------------------------------------------------------
// RESTAdapter
// ---------------------------------------------------------------------------

// RESTAdapter implements the PlatformAdapter port over a platform profile.
// It knows how to address a platform and authenticate against it but does
// no field transformation; sync operations move envelopes and counts.
type RESTAdapter struct {
	platform integration.Platform
	prof     profile
	secrets  map[string]string
	exec     *Executor
	limiter  *integration.Limiter
	log      *zap.Logger
}

// NewRESTAdapter builds an adapter for the given platform from decrypted
// credentials. The executor is shared across adapters; the limiter is owned
// by this instance.
func NewRESTAdapter(p integration.Platform, secrets map[string]string, exec *Executor, log *zap.Logger) (*RESTAdapter, error) {
	if err := integration.ValidateCredentials(p, secrets); err != nil {
		return nil, err
	}
	prof, ok := profiles[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrUnknownPlatform, p)
	}
	return &RESTAdapter{
		platform: p,
		prof:     prof,
		secrets:  secrets,
		exec:     exec,
		limiter:  integration.NewLimiter(prof.tier),
		log:      log.With(zap.String("platform", p.String())),
	}, nil
}

func (a *RESTAdapter) Platform() integration.Platform { return a.platform }

func (a *RESTAdapter) Limiter() *integration.Limiter { return a.limiter }

// Close releases nothing today; the HTTP client is shared by the executor.
func (a *RESTAdapter) Close() error { return nil }

func (a *RESTAdapter) request(method, path string) *integration.Request {
	req := &integration.Request{
		Method:  method,
		URL:     a.prof.baseURL(a.secrets) + path,
		Headers: map[string]string{},
		Query:   map[string]string{},
	}
	if a.prof.headers != nil {
		for k, v := range a.prof.headers(a.secrets) {
			req.Headers[k] = v
		}
	}
	if a.prof.query != nil {
		for k, v := range a.prof.query(a.secrets) {
			req.Query[k] = v
		}
	}
	return req
}

// Authenticate proves the credentials with the profile's ping call. A 401
// or 403 maps to ErrAuthenticationFailed; everything else surfaces as the
// executor classified it.
func (a *RESTAdapter) Authenticate(ctx context.Context) error {
	resp, err := a.ping(ctx)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: %s rejected credentials (status %d)",
				integration.ErrAuthenticationFailed, a.platform, resp.StatusCode)
		}
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s ping returned status %d",
			integration.ErrAuthenticationFailed, a.platform, resp.StatusCode)
	}
	return nil
}

// TestConnection reuses the ping call for health checks.
func (a *RESTAdapter) TestConnection(ctx context.Context) (*integration.Response, error) {
	return a.ping(ctx)
}

func (a *RESTAdapter) ping(ctx context.Context) (*integration.Response, error) {
	method := a.prof.pingMethod
	if method == "" {
		method = http.MethodGet
	}
	return a.exec.Do(ctx, a.platform, a.limiter, a.request(method, a.prof.ping))
}

// Sync pulls one resource listing through the executor and reports envelope
// counts. Platforms without a path for the operation fail fast with a
// configuration error so the orchestrator can report them per adapter.
func (a *RESTAdapter) Sync(ctx context.Context, op integration.Operation, since *time.Time) (*integration.SyncResult, error) {
	path, ok := a.prof.ops[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s does not support %s", integration.ErrConfiguration, a.platform, op)
	}

	method := a.prof.opMethod
	if method == "" {
		method = http.MethodGet
	}
	req := a.request(method, path)
	if since != nil && a.prof.sinceParam != "" {
		req.Query[a.prof.sinceParam] = since.UTC().Format(time.RFC3339)
	}

	started := time.Now()
	resp, err := a.exec.Do(ctx, a.platform, a.limiter, req)
	result := &integration.SyncResult{
		Platform:  a.platform,
		Operation: op,
		Duration:  time.Since(started),
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		result.RecordsFailed = 1
		if resp != nil {
			result.Errors = append(result.Errors, resp.Error)
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
		return result, err
	}

	n := countRecords(resp.Data)
	result.RecordsProcessed = n
	result.RecordsSucceeded = n
	a.log.Debug("sync completed",
		zap.String("operation", op.String()),
		zap.Int("records", n),
		zap.Int("attempts", resp.Attempts))
	return result, nil
}

// ExtractMessages counts the events inside an already-verified webhook
// payload. Parsing the payloads into domain records is left to downstream
// consumers; the hub only acknowledges volume.
func (a *RESTAdapter) ExtractMessages(_ context.Context, payload map[string]any) (int, error) {
	if len(payload) == 0 {
		return 0, nil
	}
	for _, key := range []string{"messages", "events", "updates", "entry", "results"} {
		if arr, ok := payload[key].([]any); ok {
			return len(arr), nil
		}
	}
	return 1, nil
}

// countRecords finds the listing array inside a platform response.
// Platform listings wrap their records in a single top-level array keyed by
// resource name; non-listing bodies count as zero.
func countRecords(data map[string]any) int {
	for _, v := range data {
		if arr, ok := v.([]any); ok {
			return len(arr)
		}
	}
	return 0
}
