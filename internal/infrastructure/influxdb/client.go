package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/benchdash/internal/infrastructure/config"
	"github.com/nerrad567/benchdash/internal/telemetry"
)

const (
	pingTimeout = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Logger receives background write failures. logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Client exports BENCHLAB samples to an InfluxDB v2 bucket.
//
// It implements telemetry.Sink. Writes go through the library's
// non-blocking batched WriteAPI, so Publish never waits on the network;
// batch failures are logged from a background goroutine.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	log      Logger
	closed   atomic.Bool
}

var _ telemetry.Sink = (*Client)(nil)

// Connect pings the server at cfg.URL and prepares the batched writer for
// cfg.Org and cfg.Bucket.
//
// Returns:
//   - *Client: Ready client
//   - error: ErrDisabled, or a wrapped ErrConnectionFailed if the ping fails
func Connect(cfg config.InfluxDBConfig, log Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := time.Duration(cfg.FlushInterval) * time.Second
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	// #nosec G115 -- batch and flush are positive here
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batch)).
			SetFlushInterval(uint(flush.Milliseconds())),
	)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	return newClient(client, client.WriteAPI(cfg.Org, cfg.Bucket), log), nil
}

func newClient(client influxdb2.Client, w api.WriteAPI, log Logger) *Client {
	if log == nil {
		log = noopLogger{}
	}
	c := &Client{client: client, writeAPI: w, log: log}
	go c.logWriteErrors(w.Errors())
	return c
}

// logWriteErrors drains the writer's error channel until the client closes.
func (c *Client) logWriteErrors(errs <-chan error) {
	for err := range errs {
		c.log.Error("InfluxDB batch write failed", "error", fmt.Errorf("%w: %w", ErrWriteFailed, err))
	}
}

// Publish queues sample as one point in MeasurementTelemetry, stamped with
// at. Samples without a numeric metric are skipped.
func (c *Client) Publish(_ context.Context, src telemetry.Source, at time.Time, sample telemetry.Sample) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	if p := telemetryPoint(src, at, sample); p != nil {
		c.writeAPI.WritePoint(p)
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

var errUnhealthy = errors.New("server not healthy")

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errUnhealthy
	}
	return nil
}

// Close flushes queued points and closes the client. Further publishes
// return ErrNotConnected.
func (c *Client) Close() error {
	if c.client == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
