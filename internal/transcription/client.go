package transcription

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// ClientStats represents client statistics
type ClientStats struct {
	Provider        string        `json:"provider"`
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// baseClient holds what every backend shares: the HTTP client, the
// concurrency semaphore and request statistics
type baseClient struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{}

	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	closeOnce sync.Once
	mu        sync.RWMutex
}

func newBaseClient(config Config) *baseClient {
	if config.Timeout <= 0 {
		config.Timeout = 300 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &baseClient{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}
}

// acquire takes a concurrency slot, or gives up when ctx is done
func (c *baseClient) acquire(ctx context.Context) error {
	select {
	case c.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *baseClient) release() {
	<-c.semaphore
}

func (c *baseClient) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *baseClient) recordResult(success bool, responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if success {
		c.successRequests++
	} else {
		c.failedRequests++
	}

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

func (c *baseClient) stats(provider string) ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		Provider:        provider,
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// close waits for all active requests to complete
func (c *baseClient) close() error {
	c.closeOnce.Do(func() {
		for i := 0; i < cap(c.semaphore); i++ {
			c.semaphore <- struct{}{}
		}
		c.httpClient.CloseIdleConnections()
	})
	return nil
}
