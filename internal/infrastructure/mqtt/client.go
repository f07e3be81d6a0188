package mqtt

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/benchdash/internal/infrastructure/config"
	"github.com/nerrad567/benchdash/internal/telemetry"
)

// Logger is the logging surface the client needs. logging.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client is the BenchDash bridge to an MQTT broker.
//
// It exports telemetry samples (it implements telemetry.Sink), keeps the
// retained system status current, and delivers operator commands. Command
// handlers survive reconnects: they are subscribed again every time the
// connection comes back, and the online status is republished.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	conn   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics
	qos    byte
	log    Logger
	now    func() time.Time

	mu       sync.Mutex
	commands map[string]func()
}

var _ telemetry.Sink = (*Client)(nil)

func newClient(cfg config.MQTTConfig, log Logger) *Client {
	if log == nil {
		log = noopLogger{}
	}
	return &Client{
		cfg:      cfg,
		topics:   Topics{Prefix: cfg.TopicPrefix},
		qos:      byte(cfg.QoS), //nolint:gosec // QoS validated 0..2 by config
		log:      log,
		now:      time.Now,
		commands: make(map[string]func()),
	}
}

// Connect dials the broker described by cfg and waits up to the connect
// timeout for the session. The online status is published from the connect
// handler, on the first connection and after every reconnect.
//
// Parameters:
//   - cfg: MQTT configuration from the config file
//   - log: Receives connection events and handler failures (may be nil)
//
// Returns:
//   - *Client: Connected client
//   - error: Wrapped ErrConnectionFailed if the broker cannot be reached
func Connect(cfg config.MQTTConfig, log Logger) (*Client, error) {
	c := newClient(cfg, log)

	opts := clientOptions(cfg, c.topics, c.now())
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.log.Warn("MQTT connection lost", "error", err)
	})
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log.Warn("MQTT reconnecting", "broker", cfg.Broker.Host)
	})

	c.conn = pahomqtt.NewClient(opts)
	if err := wait(context.Background(), c.conn.Connect(), connectTimeout); err != nil {
		c.conn.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

// handleConnect restores command subscriptions and announces the bridge.
func (c *Client) handleConnect() {
	c.mu.Lock()
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	c.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		if err := c.subscribe(context.Background(), name); err != nil {
			c.log.Warn("MQTT command resubscribe failed", "command", name, "error", err)
		}
	}

	if err := c.publishStatus(context.Background(), StatusOnline, ""); err != nil {
		c.log.Warn("MQTT online status not published", "error", err)
	}
}

// Publish exports one sample to {prefix}/telemetry/{address}. It is not
// retained: a stale sample is worse than none. Wrap the client in
// telemetry.NewThrottle to bound the rate.
func (c *Client) Publish(ctx context.Context, src telemetry.Source, at time.Time, sample telemetry.Sample) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	payload, err := encodeTelemetry(src, at, sample)
	if err != nil {
		return fmt.Errorf("%w: encoding %s sample: %w", ErrPublishFailed, src.Address, err)
	}
	token := c.conn.Publish(c.topics.Telemetry(src.Address), c.qos, false, payload)
	if err := wait(ctx, token, publishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, src.Address, err)
	}
	return nil
}

// publishStatus writes the retained system status.
func (c *Client) publishStatus(ctx context.Context, status, reason string) error {
	payload := encodeStatus(status, c.cfg.Broker.ClientID, reason, c.now())
	token := c.conn.Publish(c.topics.SystemStatus(), c.qos, true, payload)
	if err := wait(ctx, token, publishTimeout); err != nil {
		return fmt.Errorf("%w: status %s: %w", ErrPublishFailed, status, err)
	}
	return nil
}

// HandleCommand calls fn for every message on {prefix}/command/{name}. The
// payload is ignored.
//
// The handler is remembered even when the broker is unreachable: it is
// subscribed on the next (re)connect, and ErrNotConnected is returned so the
// caller can log the delay. fn runs on a paho goroutine; long work should be
// started asynchronously.
func (c *Client) HandleCommand(name string, fn func()) error {
	if fn == nil {
		return fmt.Errorf("%w: command %q has no handler", ErrSubscribeFailed, name)
	}
	c.mu.Lock()
	c.commands[name] = fn
	c.mu.Unlock()

	if !c.Connected() {
		return ErrNotConnected
	}
	return c.subscribe(context.Background(), name)
}

func (c *Client) subscribe(ctx context.Context, name string) error {
	topic := c.topics.Command(name)
	token := c.conn.Subscribe(topic, c.qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(name, msg.Topic())
	})
	if err := wait(ctx, token, publishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// dispatch runs the handler registered for name, recovering panics.
func (c *Client) dispatch(name, topic string) {
	c.mu.Lock()
	fn := c.commands[name]
	c.mu.Unlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("MQTT command handler panic recovered", "command", name, "topic", topic, "panic", r)
		}
	}()
	c.log.Info("MQTT command received", "command", name)
	fn()
}

// Connected reports whether the broker connection is currently open.
func (c *Client) Connected() bool {
	return c.conn != nil && c.conn.IsConnectionOpen()
}

// HealthCheck returns ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.Connected() {
		return ErrNotConnected
	}
	return nil
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// Close publishes the graceful offline status, which replaces the will, and
// disconnects. A failed status publish is returned after disconnecting.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	var err error
	if c.Connected() {
		err = c.publishStatus(context.Background(), StatusOffline, reasonShutdown)
	}
	c.conn.Disconnect(disconnectQuiesce)
	return err
}

// wait blocks until token completes, ctx is done or timeout passes.
func wait(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
