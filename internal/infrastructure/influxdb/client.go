package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/geofence-relay/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// pointWriter is the subset of api.WriteAPI the relay uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client writes relay telemetry to one InfluxDB v2 bucket. Writes are
// batched and never block the caller; failed batches are counted and
// reported through SetOnError. Safe for concurrent use.
type Client struct {
	influx   influxdb2.Client
	writeAPI pointWriter

	open      atomic.Bool
	written   atomic.Uint64
	failed    atomic.Uint64
	lastErrMu sync.Mutex
	lastErr   error
	onErrorMu sync.RWMutex
	onError   func(err error)
}

// Connect pings the server and opens a batching write API. Every point
// carries relay=relayID as a default tag. It returns ErrDisabled when
// influxdb.enabled is false.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, relayID string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize, flushMs := batchOptions(cfg)
	opts := influxdb2.DefaultOptions().
		SetBatchSize(batchSize).
		SetFlushInterval(flushMs)
	if relayID != "" {
		opts.AddDefaultTag("relay", relayID)
	}
	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	writeAPI := influx.WriteAPI(cfg.Org, cfg.Bucket)
	c := &Client{influx: influx, writeAPI: writeAPI}
	c.open.Store(true)

	go func() {
		for err := range writeAPI.Errors() {
			c.recordError(err)
		}
	}()
	return c, nil
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	healthy, err := influx.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// batchOptions returns the batch size and the flush interval in
// milliseconds, as the client library expects them.
func batchOptions(cfg config.InfluxDBConfig) (batchSize, flushIntervalMs uint) {
	batchSize = defaultBatchSize
	if cfg.BatchSize > 0 {
		batchSize = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return batchSize, uint(flush.Milliseconds()) // #nosec G115 -- positive by construction
}

func (c *Client) recordError(err error) {
	c.failed.Add(1)
	c.lastErrMu.Lock()
	c.lastErr = err
	c.lastErrMu.Unlock()

	c.onErrorMu.RLock()
	fn := c.onError
	c.onErrorMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Close flushes pending points and closes the client. Further writes are
// dropped silently.
func (c *Client) Close() error {
	if c == nil || !c.open.Swap(false) {
		return nil
	}
	c.writeAPI.Flush()
	if c.influx != nil {
		c.influx.Close()
	}
	return nil
}

// HealthCheck pings the server. It is registered as the "influxdb" probe
// on GET /health.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() || c.influx == nil {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(checkCtx, c.influx); err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open. A nil client is closed.
func (c *Client) IsConnected() bool {
	return c != nil && c.open.Load()
}

// SetOnError sets a callback for failed batch writes.
func (c *Client) SetOnError(fn func(err error)) {
	c.onErrorMu.Lock()
	c.onError = fn
	c.onErrorMu.Unlock()
}

// WriteStats reports how many points were queued and how many batch
// writes failed, plus the latest failure.
func (c *Client) WriteStats() (written, failed uint64, lastErr error) {
	c.lastErrMu.Lock()
	defer c.lastErrMu.Unlock()
	return c.written.Load(), c.failed.Load(), c.lastErr
}

// Flush sends pending points now. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}
