package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanishedbrands/download-service/internal/api/http/handlers"
	"github.com/vanishedbrands/download-service/internal/auth"
	"github.com/vanishedbrands/download-service/internal/config"
	"github.com/vanishedbrands/download-service/internal/domain"
	"github.com/vanishedbrands/download-service/internal/observability"
	"github.com/vanishedbrands/download-service/internal/ratelimit"
	"github.com/vanishedbrands/download-service/internal/repository"
	"github.com/vanishedbrands/download-service/internal/service"
	"github.com/vanishedbrands/download-service/internal/storage"
	"github.com/vanishedbrands/download-service/internal/storage/memory"
	"go.uber.org/zap"
)

const testResourceKey = "exports/brands-2026-02.csv"

type apiFixture struct {
	app    *fiber.App
	store  *memory.Store
	issuer *service.IssuerService
}

func newAPIFixture(t *testing.T, rateLimit int) *apiFixture {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, testResourceKey, []byte("name,domain\nPanAm,panam.com\n"), storage.PutOptions{}))

	tokens := repository.NewTokenRepository(store, "tokens/", "tokens-state/")
	orders := repository.NewOrderRepository(store, "orders/")
	resolver := repository.NewResourceResolver(store, "exports/manifest.json", testResourceKey)

	download := config.DownloadConfig{
		TokenTTL:      24 * time.Hour,
		MaxUses:       3,
		SignedURLTTL:  15 * time.Minute,
		GracePeriod:   5 * time.Second,
		CASMaxRetries: 5,
		Filename:      "vanished-brands.csv",
	}
	issuer := service.NewIssuerService(service.IssuerDependencies{
		TokenRepo: tokens,
		OrderRepo: orders,
		Resolver:  resolver,
	})
	redemption := service.NewRedemptionService(download, service.RedemptionDependencies{
		TokenRepo: tokens,
		Resolver:  resolver,
		Signer:    store,
	})
	links := auth.NewLinkManager("test-secret", time.Hour)
	dataset := service.NewDatasetService(config.StoreConfig{DatasetPrefix: "exports/"}, links, store, nil)

	metrics := observability.NewMetrics()
	limiter := ratelimit.New(ratelimit.NewMemoryCounter(), rateLimit, time.Minute)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 5*time.Second, "*")
	RegisterRoutes(app, RouteConfig{
		Health:          handlers.NewHealthHandler("download-service", "test", store),
		Downloads:       handlers.NewDownloadsHandler(redemption),
		Admin:           handlers.NewAdminHandler(issuer, dataset, download),
		Dataset:         handlers.NewDatasetHandler(dataset),
		Checkout:        handlers.NewCheckoutHandler(nil),
		AdminMiddleware: auth.NewAdminMiddleware("s3cret"),
		Limiter:         limiter,
		Metrics:         metrics,
	})
	return &apiFixture{app: app, store: store, issuer: issuer}
}

func (fx *apiFixture) mintToken(t *testing.T, maxUses int) string {
	t.Helper()
	record, err := fx.issuer.Issue(context.Background(), "5O190127TN364715T", testResourceKey, 24*time.Hour, maxUses)
	require.NoError(t, err)
	return record.ID
}

func decodeJSON(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func orderRow(tokenID string) *domain.Order {
	return &domain.Order{
		OrderID:     "5O190127TN364715T",
		Status:      domain.OrderStatusCompleted,
		TokenID:     tokenID,
		ResourceKey: testResourceKey,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestGetDownloadRedirects(t *testing.T) {
	fx := newAPIFixture(t, 100)
	token := fx.mintToken(t, 3)

	resp, err := fx.app.Test(httptest.NewRequest("GET", "/downloads/"+token, nil))
	require.NoError(t, err)
	assert.Equal(t, 302, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), testResourceKey)
}

func TestPostDownloadReturnsJSONEnvelope(t *testing.T) {
	fx := newAPIFixture(t, 100)
	token := fx.mintToken(t, 3)

	body, _ := json.Marshal(map[string]string{"token": token})
	req := httptest.NewRequest("POST", "/downloads", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := fx.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	payload := decodeJSON(t, resp.Body)
	assert.Contains(t, payload["url"], testResourceKey)
	assert.Equal(t, float64(1), payload["uses"])
	assert.Equal(t, float64(3), payload["maxUses"])
	assert.Equal(t, false, payload["last"])
}

func TestPeekReturnsSnapshotWithoutConsuming(t *testing.T) {
	fx := newAPIFixture(t, 100)
	token := fx.mintToken(t, 3)

	for i := 0; i < 2; i++ {
		resp, err := fx.app.Test(httptest.NewRequest("GET", "/downloads/"+token+"?peek=1", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		payload := decodeJSON(t, resp.Body)
		assert.Equal(t, float64(0), payload["uses"])
		assert.Equal(t, float64(3), payload["remaining"])
	}
}

func TestDownloadDenialStatuses(t *testing.T) {
	fx := newAPIFixture(t, 100)

	resp, err := fx.app.Test(httptest.NewRequest("GET", "/downloads/not-a-uuid", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = fx.app.Test(httptest.NewRequest("GET", "/downloads/99999999-9999-4999-8999-999999999999", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	payload := decodeJSON(t, resp.Body)
	errObj := payload["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestLimitReachedCarriesRetryAfter(t *testing.T) {
	fx := newAPIFixture(t, 100)
	token := fx.mintToken(t, 1)

	resp, err := fx.app.Test(httptest.NewRequest("GET", "/downloads/"+token, nil))
	require.NoError(t, err)
	assert.Equal(t, 302, resp.StatusCode)

	resp, err = fx.app.Test(httptest.NewRequest("GET", "/downloads/"+token, nil))
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)
	assert.Equal(t, "86400", resp.Header.Get("Retry-After"))
	payload := decodeJSON(t, resp.Body)
	errObj := payload["error"].(map[string]any)
	assert.Equal(t, "LIMIT_REACHED", errObj["code"])
}

func TestRateLimiterAppliesToPublicRoutes(t *testing.T) {
	fx := newAPIFixture(t, 2)
	token := fx.mintToken(t, 3)

	for i := 0; i < 2; i++ {
		resp, err := fx.app.Test(httptest.NewRequest("GET", "/downloads/"+token+"?peek=1", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	}

	resp, err := fx.app.Test(httptest.NewRequest("GET", "/downloads/"+token+"?peek=1", nil))
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	payload := decodeJSON(t, resp.Body)
	errObj := payload["error"].(map[string]any)
	assert.Equal(t, "RATE_LIMITED", errObj["code"])
}

func TestRateLimitKeyFromForwardedFor(t *testing.T) {
	fx := newAPIFixture(t, 1)
	token := fx.mintToken(t, 3)

	first := httptest.NewRequest("GET", "/downloads/"+token+"?peek=1", nil)
	first.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	resp, err := fx.app.Test(first)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	// Same client, different proxy hop: still the same bucket.
	second := httptest.NewRequest("GET", "/downloads/"+token+"?peek=1", nil)
	second.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")
	resp, err = fx.app.Test(second)
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)

	// Different client passes.
	third := httptest.NewRequest("GET", "/downloads/"+token+"?peek=1", nil)
	third.Header.Set("X-Forwarded-For", "203.0.113.8")
	resp, err = fx.app.Test(third)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestAdminReissueGuarded(t *testing.T) {
	fx := newAPIFixture(t, 100)

	body, _ := json.Marshal(map[string]any{"orderID": "5O190127TN364715T"})
	req := httptest.NewRequest("POST", "/admin/tokens/reissue", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := fx.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
}

func TestAdminReissueFlow(t *testing.T) {
	fx := newAPIFixture(t, 100)
	token := fx.mintToken(t, 3)

	// Capture normally writes this row; seed it directly.
	orders := repository.NewOrderRepository(fx.store, "orders/")
	require.NoError(t, orders.Save(context.Background(), orderRow(token)))

	body, _ := json.Marshal(map[string]any{"orderID": "5O190127TN364715T", "maxUses": 5})
	req := httptest.NewRequest("POST", "/admin/tokens/reissue", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", "s3cret")

	resp, err := fx.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	payload := decodeJSON(t, resp.Body)
	assert.NotEqual(t, token, payload["token"])
	assert.Equal(t, float64(5), payload["maxUses"])
	assert.Equal(t, true, payload["revokedOld"])

	// The old token is drained: cap pinned to its use count.
	resp, err = fx.app.Test(httptest.NewRequest("GET", "/downloads/"+token, nil))
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)
}

func TestDatasetDownloadFlow(t *testing.T) {
	fx := newAPIFixture(t, 100)

	body, _ := json.Marshal(map[string]string{"email": "buyer@example.com", "version": "2026-02"})
	req := httptest.NewRequest("POST", "/admin/links", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", "s3cret")

	resp, err := fx.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)
	payload := decodeJSON(t, resp.Body)
	link := payload["token"].(string)

	resp, err = fx.app.Test(httptest.NewRequest("GET", "/data/download?token="+link, nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "brands-2026-02.csv")
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	csv, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(csv), "__WATERMARK__")
}

func TestDatasetDownloadRejectsMissingToken(t *testing.T) {
	fx := newAPIFixture(t, 100)
	resp, err := fx.app.Test(httptest.NewRequest("GET", "/data/download", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	fx := newAPIFixture(t, 100)

	resp, err := fx.app.Test(httptest.NewRequest("GET", "/health/live", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = fx.app.Test(httptest.NewRequest("GET", "/health/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	fx := newAPIFixture(t, 100)
	resp, err := fx.app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
