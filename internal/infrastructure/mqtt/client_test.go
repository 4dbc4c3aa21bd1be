package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/geofence-relay/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "geofence-relay-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to a local broker, skipping the test if none is running.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Connect(ctx, testConfig())
	if err != nil {
		t.Skipf("no MQTT broker at 127.0.0.1:1883: %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"PlatformRequest add", topics.PlatformRequest(OpAdd), "geofence/platform/request/add"},
		{"PlatformRequest clear", topics.PlatformRequest(OpClear), "geofence/platform/request/clear"},
		{"PlatformResponse", topics.PlatformResponse("req-1"), "geofence/platform/response/req-1"},
		{"Signal", topics.Signal("abc"), "geofence/signal/abc"},
		{"HostPresence", topics.HostPresence("com.example.app"), "geofence/host/presence/com.example.app"},
		{"HostLifecycle", topics.HostLifecycle(), "geofence/host/lifecycle"},
		{"HostPermission", topics.HostPermission(), "geofence/host/permission"},
		{"HostPermissionRequest", topics.HostPermissionRequest(), "geofence/host/permission/request"},
		{"Task", topics.Task("geofence"), "geofence/task/geofence"},
		{"RelayStatus", topics.RelayStatus(), "geofence/relay/status"},
		{"AllPlatformResponses", topics.AllPlatformResponses(), "geofence/platform/response/+"},
		{"AllHostPresence", topics.AllHostPresence(), "geofence/host/presence/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestLastSegment(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"geofence/platform/response/req-1", "req-1"},
		{"geofence/host/presence/com.example.app", "com.example.app"},
		{"plain", "plain"},
		{"trailing/", ""},
	}
	for _, tt := range tests {
		if got := LastSegment(tt.topic); got != tt.want {
			t.Errorf("LastSegment(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBrokerURL(t *testing.T) {
	b := config.MQTTBrokerConfig{Host: "broker", Port: 1883}
	if got := brokerURL(b); got != "tcp://broker:1883" {
		t.Errorf("brokerURL() = %q", got)
	}
	b.TLS = true
	b.Port = 8883
	if got := brokerURL(b); got != "ssl://broker:8883" {
		t.Errorf("brokerURL() with TLS = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "relay"
	cfg.Auth.Password = "secret"

	opts, err := buildClientOptions(cfg)
	if err != nil {
		t.Fatal(err)
	}

	if opts.ClientID != cfg.Broker.ClientID {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, cfg.Broker.ClientID)
	}
	if opts.Username != "relay" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect should be enabled")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.KeepAlive != int64(defaultKeepAlive/time.Second) {
		t.Errorf("KeepAlive = %d, want default", opts.KeepAlive)
	}
	if opts.TLSConfig != nil {
		t.Error("TLS configured without broker.tls")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.KeepAlive = 15

	opts, err := buildClientOptions(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("TLSConfig = %+v", opts.TLSConfig)
	}
	if opts.KeepAlive != 15 {
		t.Errorf("KeepAlive = %d, want 15", opts.KeepAlive)
	}

	bad := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(bad, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	for _, ca := range []string{bad, filepath.Join(t.TempDir(), "missing.pem")} {
		cfg.Broker.CAFile = ca
		if _, err := buildClientOptions(cfg); err == nil {
			t.Errorf("CA file %s accepted", ca)
		}
	}
}

func TestConfigureLWT(t *testing.T) {
	opts, err := buildClientOptions(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	configureLWT(opts, "relay-1")

	if !opts.WillEnabled {
		t.Fatal("will should be enabled")
	}
	if opts.WillTopic != "geofence/relay/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("will should be retained")
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("will payload not JSON: %v", err)
	}
	if p.Status != statusOffline || p.ClientID != "relay-1" || p.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", p)
	}
}

func TestBuildStatusPayload_OmitsEmptyReason(t *testing.T) {
	payload := string(buildStatusPayload("relay-1", statusOnline, ""))
	if strings.Contains(payload, "reason") {
		t.Errorf("payload %s should omit empty reason", payload)
	}
	if !strings.Contains(payload, `"status":"online"`) {
		t.Errorf("payload %s missing status", payload)
	}
}

// =============================================================================
// Validation Tests (no broker required)
// =============================================================================

func newDisconnected() *Client {
	return newClient(testConfig())
}

func TestPublishValidation(t *testing.T) {
	c := newDisconnected()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid qos", "geofence/x", nil, 3, ErrInvalidQoS},
		{"oversized payload", "geofence/x", make([]byte, maxPayloadSize+1), 1, ErrPayloadTooLarge},
		{"disconnected", "geofence/x", []byte("{}"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishJSON_MarshalError(t *testing.T) {
	c := newDisconnected()
	err := c.PublishJSON("geofence/x", make(chan int))
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newDisconnected()
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 1, noop, ErrInvalidTopic},
		{"invalid qos", "geofence/x", 3, noop, ErrInvalidQoS},
		{"nil handler", "geofence/x", 1, nil, ErrSubscribeFailed},
		{"disconnected", "geofence/x", 1, noop, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestUnsubscribeValidation(t *testing.T) {
	c := newDisconnected()
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Unsubscribe("geofence/x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := newDisconnected()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestDispatch_RecoversPanicAndLogsErrors(t *testing.T) {
	c := newDisconnected()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "geofence/x", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "geofence/x", nil)

	stats := c.Stats()
	if stats.Received != 2 || stats.HandlerErrors != 2 {
		t.Errorf("stats = %+v, want 2 received and 2 handler errors", stats)
	}
	if stats.Connected || stats.Reconnects != 0 {
		t.Errorf("stats = %+v, want disconnected without reconnects", stats)
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.errs) != 1 {
		t.Errorf("errors logged = %d, want 1", len(logger.errs))
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings logged = %d, want 1", len(logger.warns))
	}
}

// =============================================================================
// Broker Tests (skipped without a local broker)
// =============================================================================

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t)

	topic := Topics{}.PlatformResponse("roundtrip-test")
	received := make(chan []byte, 1)

	err := client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- payload
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topic) {
		t.Error("HasSubscription() = false after Subscribe")
	}

	if err := client.PublishJSON(topic, map[string]int{"status_code": 0}); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != `{"status_code":0}` {
			t.Errorf("payload = %s", payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topic) {
		t.Error("HasSubscription() = true after Unsubscribe")
	}
	if s := client.Stats(); s.Published == 0 || s.Received == 0 {
		t.Errorf("stats = %+v, want published and received counts", s)
	}
}

func TestConnect_ContextCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}
