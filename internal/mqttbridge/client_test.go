package mqttbridge

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/cync-lan-core/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// Tests require a running Mosquitto broker at 127.0.0.1:1883.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Host:            "127.0.0.1",
		Port:            1883,
		ClientID:        "cync-lan-core-test",
		TopicPrefix:     "cync_lan_test",
		DiscoveryPrefix: "homeassistant",
		RetryBufferSize: 16,
	}
}

func TestConnect(t *testing.T) {
	cfg := testConfig()

	client, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
}

func TestConnectInvalidBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Port = 19999

	_, err := Connect(cfg, nil)
	if err == nil {
		t.Fatal("Connect() expected error for invalid broker")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose(t *testing.T) {
	cfg := testConfig()

	client, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero-value client error = %v, want nil", err)
	}
}

func TestPublishWhileDisconnectedReturnsErrNotConnected(t *testing.T) {
	cfg := testConfig()

	client, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	err = client.Publish(client.Topics().BridgeState(), []byte("{}"), true)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeAndPublishRoundTrip(t *testing.T) {
	cfg := testConfig()

	client, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	received := make(chan []byte, 1)
	topic := client.Topics().DeviceSet(1)

	if err := client.Subscribe(topic, func(_ string, payload []byte) error {
		received <- payload
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.Publish(topic, []byte("ON"), false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != "ON" {
			t.Errorf("received payload = %q, want %q", payload, "ON")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for round-tripped message")
	}
}
