package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"imss/harvester/internal/config"
	"imss/harvester/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type portalStub struct {
	t        *testing.T
	requests atomic.Int32
	blocked  atomic.Bool
}

func (s *portalStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	if s.blocked.Load() {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("Request Rejected"))
		return
	}

	q := r.URL.Query()
	switch q.Get("P") {
	case "imsscomprotipoprod":
		if q.Get("pr") == "" {
			w.Write([]byte(fixture(s.t, "periods.html")))
			return
		}
		w.Write([]byte(fixture(s.t, "tree.html")))
	case "imsscomprotipoproddet":
		w.Write([]byte(fixture(s.t, "overview.html")))
	case "imsscomprotipoproddetajx":
		if r.Header.Get("Referer") == "" || q.Get("ajx") != "1" || q.Get("pg") != "2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(fixture(s.t, "listing.json")))
	case "imsscomprofich":
		w.Write([]byte(fixture(s.t, "detail.html")))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T) (*ImssClient, *portalStub) {
	t.Helper()
	stub := &portalStub{t: t}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	cfg := config.SourceConfig{
		BaseURL:             srv.URL,
		Timeout:             5,
		MaxRetries:          0,
		CircuitBreakerDelay: 1,
		UserAgent:           "harvester-test",
	}
	return NewImssClient(cfg, nil, NewParser(srv.URL)), stub
}

func TestClientDiscovery(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	periods, err := c.ListPeriods(ctx)
	require.NoError(t, err)
	assert.Len(t, periods, 14)

	period, err := c.DiscoverPeriod(ctx, "2019")
	require.NoError(t, err)
	assert.Equal(t, "2019", period.ID)
	assert.Len(t, period.Categories, 2)
}

func TestClientLeafPages(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	leafURL := "/?P=imsscomprotipoproddet&cat=12&sc=34"

	overview, err := c.FetchOverview(ctx, leafURL)
	require.NoError(t, err)
	assert.Equal(t, &domain.ResultsOverview{Total: 1234, Pages: 124}, overview)

	rows, err := c.FetchListingPage(ctx, leafURL, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	html, err := c.FetchDetail(ctx, domain.RecordID("555").Path())
	require.NoError(t, err)
	assert.Contains(t, html, "txtcajacompra")
}

func TestClientHTTPError(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.FetchDetail(context.Background(), "/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClientCircuitBreaker(t *testing.T) {
	c, stub := newTestClient(t)
	ctx := context.Background()

	stub.blocked.Store(true)
	_, err := c.FetchDetail(ctx, domain.RecordID("1").Path())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker activated")

	stub.blocked.Store(false)
	before := stub.requests.Load()
	_, err = c.FetchDetail(ctx, domain.RecordID("1").Path())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, before, stub.requests.Load(), "no request reaches the portal while the breaker is open")
}

func TestClientCancelledContext(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchDetail(ctx, domain.RecordID("1").Path())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListingPageURL(t *testing.T) {
	got := ListingPageURL("/?P=imsscomprotipoproddet&cat=12&sc=34", 3)
	assert.Equal(t, "/?P=imsscomprotipoproddetajx&cat=12&sc=34&ajx=1&corderdir=up&pg=3", got)
}
