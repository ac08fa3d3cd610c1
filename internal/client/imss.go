package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"imss/harvester/internal/config"
	"imss/harvester/internal/domain"
	"imss/harvester/internal/proxy"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

const (
	periodsPath = "/?P=imsscomprotipoprod"
	listingPage = "imsscomprotipoproddet"
	listingAjax = "imsscomprotipoproddetajx"
)

// Bodies the portal's firewall serves instead of the requested page
var blockedMarkers = []string{"Request Rejected", "Quota Exceeded", "Access Denied"}

// ImssClient fetches pages of the IMSS procurement portal
type ImssClient struct {
	rl            ratelimit.Limiter
	config        config.SourceConfig
	baseURL       string
	httpClient    *resty.Client
	parser        *Parser
	proxySupplier proxy.ProxySupplier

	// Circuit breaker for blocked responses
	circuitBreakerMutex sync.RWMutex
	blockedUntil        time.Time
	circuitBreakerDelay time.Duration
}

func NewImssClient(cfg config.SourceConfig, proxySupplier proxy.ProxySupplier, parser *Parser) *ImssClient {
	client := resty.New().
		SetTimeout(time.Duration(cfg.Timeout)*time.Second).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(2*time.Second).
		SetRetryMaxWaitTime(10*time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "es-MX,es;q=0.9,en;q=0.5").
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
		})

	if proxySupplier != nil {
		if proxyURL := proxySupplier.Get(); proxyURL != "" {
			client.SetProxy(proxyURL)
			log.Infof("🔗 Using initial proxy: %s", proxyURL)
		}
	}

	rl := ratelimit.NewUnlimited()
	if cfg.MaxRequestsPerSecond > 0 {
		rl = ratelimit.New(cfg.MaxRequestsPerSecond)
	}

	return &ImssClient{
		rl:                  rl,
		config:              cfg,
		baseURL:             strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:          client,
		parser:              parser,
		proxySupplier:       proxySupplier,
		circuitBreakerDelay: time.Duration(cfg.CircuitBreakerDelay) * time.Minute,
	}
}

// ListPeriods returns every period the portal serves
func (c *ImssClient) ListPeriods(ctx context.Context) ([]string, error) {
	html, err := c.fetch(ctx, periodsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch period list: %w", err)
	}
	return c.parser.ParsePeriods(html)
}

// DiscoverPeriod builds the category tree of one period
func (c *ImssClient) DiscoverPeriod(ctx context.Context, periodID string) (*domain.Period, error) {
	html, err := c.fetch(ctx, periodsPath+"&pr="+periodID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tree for period %s: %w", periodID, err)
	}

	period, err := c.parser.ParseTree(html, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tree for period %s: %w", periodID, err)
	}
	return period, nil
}

func (c *ImssClient) FetchOverview(ctx context.Context, leafURL string) (*domain.ResultsOverview, error) {
	html, err := c.fetch(ctx, leafURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing overview: %w", err)
	}

	overview, err := c.parser.ParseOverview(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing overview: %w", err)
	}

	log.Debugf("Leaf %s has %d contracts in %d pages", leafURL, overview.Total, overview.Pages)
	return overview, nil
}

func (c *ImssClient) FetchListingPage(ctx context.Context, leafURL string, page int) ([]domain.ListingRow, error) {
	headers := map[string]string{
		"Referer":          c.resolve(leafURL),
		"X-Requested-With": "XMLHttpRequest",
	}

	body, err := c.fetch(ctx, ListingPageURL(leafURL, page), headers)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing page %d: %w", page, err)
	}

	rows, err := c.parser.ParseListing([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page %d: %w", page, err)
	}
	return rows, nil
}

func (c *ImssClient) FetchDetail(ctx context.Context, detailURL string) (string, error) {
	html, err := c.fetch(ctx, detailURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch contract page: %w", err)
	}
	return html, nil
}

// ListingPageURL turns a leaf listing URL into the AJAX URL of one of its pages
func ListingPageURL(leafURL string, page int) string {
	ajax := strings.Replace(leafURL, listingPage, listingAjax, 1)
	return fmt.Sprintf("%s&ajx=1&corderdir=up&pg=%d", ajax, page)
}

func (c *ImssClient) resolve(url string) string {
	if strings.HasPrefix(url, "/") {
		return c.baseURL + url
	}
	return url
}

func (c *ImssClient) isCircuitBreakerOpen() bool {
	c.circuitBreakerMutex.RLock()
	now := time.Now()
	wasOpen := now.Before(c.blockedUntil)
	wasTriggered := !c.blockedUntil.IsZero()
	c.circuitBreakerMutex.RUnlock()

	if !wasOpen && wasTriggered {
		c.circuitBreakerMutex.Lock()
		if !c.blockedUntil.IsZero() && now.After(c.blockedUntil) {
			c.blockedUntil = time.Time{}
			log.Infof("✅ Circuit breaker closed - requests are allowed again")
		}
		c.circuitBreakerMutex.Unlock()
	}

	return wasOpen
}

func (c *ImssClient) triggerCircuitBreaker() {
	c.circuitBreakerMutex.Lock()
	defer c.circuitBreakerMutex.Unlock()

	c.blockedUntil = time.Now().Add(c.circuitBreakerDelay)
	log.Warnf("🚫 Circuit breaker activated! All requests disabled until %v (%v)",
		c.blockedUntil.Format("15:04:05"), c.circuitBreakerDelay)
}

func (c *ImssClient) remainingCircuitBreakerTime() time.Duration {
	c.circuitBreakerMutex.RLock()
	defer c.circuitBreakerMutex.RUnlock()

	remaining := time.Until(c.blockedUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func isBlocked(resp *resty.Response) bool {
	switch resp.StatusCode() {
	case http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	body := resp.String()
	for _, marker := range blockedMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

func (c *ImssClient) get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error) {
	return c.httpClient.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(url)
}

func (c *ImssClient) fetch(ctx context.Context, path string, headers map[string]string) (string, error) {
	if c.isCircuitBreakerOpen() {
		remaining := c.remainingCircuitBreakerTime()
		log.Debugf("🚫 Request blocked by circuit breaker. Remaining time: %v", remaining.Round(time.Second))
		return "", fmt.Errorf("circuit breaker is open - requests disabled for %v more", remaining.Round(time.Second))
	}

	c.rl.Take()

	url := c.resolve(path)
	resp, err := c.get(ctx, url, headers)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}

	if isBlocked(resp) {
		log.Warnf("🚫 Portal rejected request for URL: %s", url)

		if c.proxySupplier != nil {
			if newProxy := c.proxySupplier.Get(); newProxy != "" {
				log.Infof("🔄 Switching to new proxy: %s", newProxy)
				c.httpClient.SetProxy(newProxy)

				retryResp, retryErr := c.get(ctx, url, headers)
				if retryErr == nil && !isBlocked(retryResp) && !retryResp.IsError() {
					log.Infof("✅ Retry successful with new proxy")
					return retryResp.String(), nil
				}
			}
		}

		c.triggerCircuitBreaker()
		return "", fmt.Errorf("request rejected by portal - circuit breaker activated for %v", c.circuitBreakerDelay)
	}

	if resp.IsError() {
		return "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode(), resp.Status())
	}

	return resp.String(), nil
}
