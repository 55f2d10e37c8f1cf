// Package e2e runs the stock service HTTP API against a PostgreSQL container.
// The suite applies the embedded migrations, serves the real handler from an httptest.Server
// and truncates every table before each test.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/abgdnv/shelfstock/internal/app"
	"github.com/abgdnv/shelfstock/internal/config"
	"github.com/abgdnv/shelfstock/internal/model"
	"github.com/abgdnv/shelfstock/internal/service"
	"github.com/abgdnv/shelfstock/internal/store"
	"github.com/abgdnv/shelfstock/pkg/messaging"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// skipE2ETests is the environment variable that can be set to skip E2E tests.
const skipE2ETests = "STOCK_SVC_SKIP_E2E_TESTS"

const apiURL = "/api/v1"

// today is the date the service runs on during the suite. The expiry-aware cutoff is 2024-01-12.
var today = model.MustParseDay("2024-01-05")

type StockServiceE2ESuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer
	dbPool      *pgxpool.Pool
	server      *httptest.Server
	httpClient  *http.Client
	publisher   *recordingPublisher
	logger      *slog.Logger
	ctx         context.Context
}

type recordingPublisher struct {
	subjects []string
}

func (p *recordingPublisher) Publish(_ context.Context, event messaging.Event) error {
	p.subjects = append(p.subjects, event.Subject())
	return nil
}

func testConfig() *config.Config {
	var cfg config.Config
	cfg.HTTPServer.MaxBodyBytes = 1 << 20
	cfg.GRPC.HealthInterval = time.Second
	cfg.Storage.Driver = config.DriverPostgres
	cfg.Inventory = config.InventoryConfig{
		Strategy:          "expiry-aware-fifo",
		LowStockThreshold: 50,
		SafetyHorizon:     7 * 24 * time.Hour,
		NotifyMode:        "every",
	}
	cfg.Events.PublishTimeout = time.Second
	return &cfg
}

func (s *StockServiceE2ESuite) SetupSuite() {
	s.ctx = context.Background()
	var err error
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:17.5-alpine",
		postgres.WithDatabase("stock"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to run PostgreSQL container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get connection string from container")

	s.dbPool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err, "Failed to create pgx pool")
	for i := range 10 {
		s.logger.Info("Pinging E2E PostgreSQL database", "attempt", i+1)
		if err = s.dbPool.Ping(s.ctx); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	require.NoError(s.T(), err, "Failed to connect to PostgreSQL after retries")

	require.NoError(s.T(), store.Migrate(connStr, s.logger), "Failed to apply migrations")

	s.publisher = &recordingPublisher{}
	deps, err := app.SetupDependencies(app.Infrastructure{
		Store:     store.NewPgStore(s.dbPool),
		Publisher: s.publisher,
		Clock:     model.FixedClock(today),
	}, testConfig(), s.logger)
	require.NoError(s.T(), err, "Failed to set up application for E2E")

	s.server = httptest.NewServer(app.SetupHttpHandler(deps))
	s.httpClient = s.server.Client()
	s.logger.Info("E2E test server started", "url", s.server.URL)
}

func (s *StockServiceE2ESuite) TearDownSuite() {
	if s.server != nil {
		s.server.Close()
	}
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.logger.Warn("Failed to terminate E2E PostgreSQL container", "error", err)
		}
	}
}

func (s *StockServiceE2ESuite) SetupTest() {
	_, err := s.dbPool.Exec(s.ctx,
		"TRUNCATE TABLE discount_products, discounts, shelf_stock, stock_batches, products RESTART IDENTITY CASCADE")
	require.NoError(s.T(), err, "Failed to truncate tables")
	s.publisher.subjects = nil
}

func TestStockServiceE2E(t *testing.T) {
	if os.Getenv(skipE2ETests) == "1" {
		t.Skip("Skipping E2E tests based on " + skipE2ETests + " env var")
	}
	suite.Run(t, new(StockServiceE2ESuite))
}

// doRequest sends payload as JSON and decodes a successful response into out.
// Returns the HTTP status code.
func (s *StockServiceE2ESuite) doRequest(method, path string, payload, out any) int {
	s.T().Helper()
	var body io.Reader
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		require.NoError(s.T(), err)
		body = bytes.NewBuffer(payloadBytes)
	}
	req, err := http.NewRequestWithContext(s.ctx, method, s.server.URL+apiURL+path, body)
	require.NoError(s.T(), err, "Failed to create HTTP request")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err, "HTTP request failed")
	defer func() {
		require.NoError(s.T(), resp.Body.Close(), "Failed to close response body")
	}()
	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err, "Failed to read response body")

	if out != nil && resp.StatusCode < http.StatusBadRequest {
		require.NoError(s.T(), json.Unmarshal(bodyBytes, out), "Failed to decode response: %s", bodyBytes)
	}
	return resp.StatusCode
}

func (s *StockServiceE2ESuite) givenProduct(code string, price int64) {
	s.T().Helper()
	status := s.doRequest(http.MethodPost, "/products",
		service.ProductCreateDto{Code: code, Name: code, UnitPrice: decimal.NewFromInt(price)}, nil)
	require.Equal(s.T(), http.StatusCreated, status)
}

func (s *StockServiceE2ESuite) givenBatch(code, purchased, expires string, quantity int) {
	s.T().Helper()
	status := s.doRequest(http.MethodPost, "/batches", service.BatchReceiveDto{
		ProductCode: code, PurchaseDate: purchased, ExpiryDate: expires, Quantity: quantity,
	}, nil)
	require.Equal(s.T(), http.StatusCreated, status)
}

func (s *StockServiceE2ESuite) TestReplenishAndSell_E2E() {
	// given
	s.givenProduct("P1", 100)
	s.givenBatch("P1", "2024-01-01", "2024-01-10", 5)
	s.givenBatch("P1", "2024-01-02", "2025-01-01", 5)

	// when
	var moved service.MoveResultDto
	status := s.doRequest(http.MethodPost, "/shelf/P1/replenish", service.QuantityDto{Quantity: 7}, &moved)

	// then
	s.Require().Equal(http.StatusOK, status)
	s.Equal(7, moved.Moved)
	s.True(moved.Fulfilled)
	s.Require().Len(moved.Draws, 2)
	s.Equal(int64(2), moved.Draws[0].BatchID)
	s.Equal(5, moved.Draws[0].Quantity)
	s.Equal(int64(1), moved.Draws[1].BatchID)
	s.Equal(2, moved.Draws[1].Quantity)

	var shelf service.ShelfStatusDto
	s.Require().Equal(http.StatusOK, s.doRequest(http.MethodGet, "/shelf/P1", nil, &shelf))
	s.Equal(7, shelf.Quantity)
	s.Require().NotNil(shelf.NextLot)
	s.Equal(int64(2), shelf.NextLot.BatchID)

	// when
	var bill service.BillDto
	status = s.doRequest(http.MethodPost, "/sales", service.SaleDto{
		Lines: []service.SaleLineDto{{ProductCode: "P1", Quantity: 6}},
	}, &bill)

	// then
	s.Require().Equal(http.StatusCreated, status)
	s.Require().Len(bill.Lines, 1)
	s.True(decimal.NewFromInt(600).Equal(bill.Total))
	s.Equal(1, bill.Lines[0].Remaining)
	s.True(bill.Lines[0].LowStock)
	s.Equal([]string{"stock.low.P1"}, s.publisher.subjects)
}

func (s *StockServiceE2ESuite) TestPartialReplenishment_E2E() {
	// given
	s.givenProduct("P1", 100)
	s.givenBatch("P1", "2024-01-01", "2025-01-01", 3)
	s.givenBatch("P1", "2024-01-04", "2025-01-01", 4)

	// when
	var moved service.MoveResultDto
	status := s.doRequest(http.MethodPost, "/shelf/P1/replenish", service.QuantityDto{Quantity: 10}, &moved)

	// then
	s.Require().Equal(http.StatusOK, status)
	s.Equal(7, moved.Moved)
	s.Equal(3, moved.Shortfall)
	s.False(moved.Fulfilled)

	var batches []service.BatchDto
	s.Require().Equal(http.StatusOK, s.doRequest(http.MethodGet, "/products/P1/batches", nil, &batches))
	s.Empty(batches)
}

func (s *StockServiceE2ESuite) TestQuoteWithBestDiscount_E2E() {
	// given
	s.givenProduct("P1", 100)
	s.givenBatch("P1", "2024-01-01", "2025-01-01", 60)
	s.Require().Equal(http.StatusOK, s.doRequest(http.MethodPost, "/shelf/P1/replenish", service.QuantityDto{Quantity: 60}, nil))
	for _, d := range []service.DiscountCreateDto{
		{Name: "15 off", Type: "PERCENT", Value: decimal.NewFromInt(15), StartDate: "2024-01-01", EndDate: "2024-01-31", ProductCodes: []string{"P1"}},
		{Name: "20 flat", Type: "AMOUNT", Value: decimal.NewFromInt(20), StartDate: "2024-01-01", EndDate: "2024-01-31", ProductCodes: []string{"P1"}},
		{Name: "expired", Type: "PERCENT", Value: decimal.NewFromInt(90), StartDate: "2023-12-01", EndDate: "2023-12-31", ProductCodes: []string{"P1"}},
	} {
		s.Require().Equal(http.StatusCreated, s.doRequest(http.MethodPost, "/discounts", d, nil))
	}

	// when
	var quote service.QuoteDto
	status := s.doRequest(http.MethodGet, "/products/P1/price?quantity=2", nil, &quote)

	// then
	s.Require().Equal(http.StatusOK, status)
	s.True(decimal.NewFromInt(200).Equal(quote.BaseTotal))
	s.True(decimal.NewFromInt(170).Equal(quote.Total))
	s.Require().NotNil(quote.Discount)
	s.Equal("15 off", quote.Discount.Name)

	var active []service.DiscountDto
	s.Require().Equal(http.StatusOK, s.doRequest(http.MethodGet, "/products/P1/discounts", nil, &active))
	s.Len(active, 2)
}

func (s *StockServiceE2ESuite) TestErrors_E2E() {
	testCases := []struct {
		name         string
		method       string
		path         string
		payload      any
		expectedCode int
	}{
		{name: "unknown product", method: http.MethodGet, path: "/products/NOPE", expectedCode: http.StatusNotFound},
		{name: "replenish unknown product", method: http.MethodPost, path: "/shelf/NOPE/replenish", payload: service.QuantityDto{Quantity: 1}, expectedCode: http.StatusNotFound},
		{name: "zero quantity", method: http.MethodPost, path: "/shelf/P1/deduct", payload: service.QuantityDto{Quantity: 0}, expectedCode: http.StatusBadRequest},
		{name: "over-deduction", method: http.MethodPost, path: "/shelf/P1/deduct", payload: service.QuantityDto{Quantity: 1}, expectedCode: http.StatusConflict},
		{name: "expiry before purchase", method: http.MethodPost, path: "/batches", payload: service.BatchReceiveDto{
			ProductCode: "P1", PurchaseDate: "2024-02-01", ExpiryDate: "2024-01-01", Quantity: 1,
		}, expectedCode: http.StatusBadRequest},
		{name: "duplicate product", method: http.MethodPost, path: "/products", payload: service.ProductCreateDto{
			Code: "P1", Name: "again", UnitPrice: decimal.NewFromInt(1),
		}, expectedCode: http.StatusConflict},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.SetupTest()
			// given
			s.givenProduct("P1", 100)

			// when
			status := s.doRequest(tc.method, tc.path, tc.payload, nil)

			// then
			s.Equal(tc.expectedCode, status)
		})
	}
}
