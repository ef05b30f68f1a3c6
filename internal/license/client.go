// Package license is a client for the public validation endpoint, for
// applications that check their own key against a CloudLicensePro server.
package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/cloudlicensepro/internal/licensecheck"
)

const validatePath = "/api/licenses/validate"

type Config struct {
	Key           string
	ProductID     string
	BaseURL       string
	CheckInterval time.Duration
	GracePeriod   time.Duration

	// OnCheck, when set, receives the status after every Validate.
	OnCheck func(Status)
}

// Status is the last known validation outcome.
type Status struct {
	Result      licensecheck.Result `json:"result"`
	LastChecked time.Time           `json:"last_checked"`
	Offline     bool                `json:"offline"`
	Warning     string              `json:"warning,omitempty"`
}

type validateRequest struct {
	Key       string `json:"key"`
	ProductID string `json:"product_id,omitempty"`
}

type Client struct {
	mu         sync.RWMutex
	cfg        Config
	status     Status
	httpClient *http.Client
	now        func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   chan struct{}
	stopCh    chan struct{}
	stopped   chan struct{}
}

func NewClient(cfg Config) *Client {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 24 * time.Hour
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 7 * 24 * time.Hour
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		now:     time.Now,
		started: make(chan struct{}),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Check validates key against the server without touching the cached
// status.
func (c *Client) Check(ctx context.Context, key, productID string) (licensecheck.Result, error) {
	body, err := json.Marshal(validateRequest{Key: key, ProductID: productID})
	if err != nil {
		return licensecheck.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+validatePath, bytes.NewReader(body))
	if err != nil {
		return licensecheck.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return licensecheck.Result{}, fmt.Errorf("validate request: %w", err)
	}
	defer resp.Body.Close()

	// Invalid keys come back as 200 with valid=false; anything else is a
	// transport-level failure.
	if resp.StatusCode != http.StatusOK {
		return licensecheck.Result{}, fmt.Errorf("validate: status %d", resp.StatusCode)
	}

	var res licensecheck.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return licensecheck.Result{}, fmt.Errorf("decode response: %w", err)
	}
	return res, nil
}

// Validate checks the configured key and caches the outcome. On a
// transport failure the previous result is kept and marked offline.
func (c *Client) Validate(ctx context.Context) error {
	c.mu.RLock()
	key, productID := c.cfg.Key, c.cfg.ProductID
	c.mu.RUnlock()

	res, err := c.Check(ctx, key, productID)

	c.mu.Lock()
	if err != nil {
		c.status.Offline = true
		c.status.Warning = "Unable to reach license server"
	} else {
		c.status = Status{Result: res, LastChecked: c.now()}
		if !res.Valid {
			c.status.Warning = res.Error
		}
	}
	status := c.status
	c.mu.Unlock()

	if c.cfg.OnCheck != nil {
		c.cfg.OnCheck(status)
	}
	return err
}

// Licensed reports whether the application may run. A valid result stays
// usable while offline until the grace period since the last successful
// check runs out.
func (c *Client) Licensed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.status.Result.Valid || c.status.LastChecked.IsZero() {
		return false
	}
	return c.now().Sub(c.status.LastChecked) <= c.cfg.GracePeriod
}

func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Start validates once and then every CheckInterval in the background.
// Calls after the first are no-ops.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() { c.start(ctx) })
}

func (c *Client) start(ctx context.Context) {
	close(c.started)
	c.Validate(ctx)

	go func() {
		defer close(c.stopped)
		ticker := time.NewTicker(c.cfg.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Validate(ctx)
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the background validation goroutine and waits for it. It is
// safe to call more than once, and without a prior Start.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	select {
	case <-c.started:
		<-c.stopped
	default:
	}
}
