package mqttbridge

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/cync-lan-core/internal/infrastructure/config"
)

// Connection constants, mirroring the ambient-stack timeouts in
// internal/infrastructure/config but scoped to the MQTT side-channel rather
// than the device-facing protocol.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	reconnectInitialDelay    = 1 * time.Second
	reconnectMaxDelay        = 60 * time.Second

	// defaultQoS is used for every publish and subscription; cync-lan-core
	// does not expose QoS as a config knob (§6 lists no such setting).
	defaultQoS byte = 1
)

// buildClientOptions creates paho options from the MQTT config section.
func buildClientOptions(cfg config.MQTTConfig, topics Topics) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(cfg.ClientID)

	if cfg.User != "" {
		opts.SetUsername(cfg.User)
		opts.SetPassword(cfg.Pass)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(reconnectInitialDelay)
	opts.SetMaxReconnectInterval(reconnectMaxDelay)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	configureLWT(opts, topics)

	return opts
}

// configureLWT sets the last-will so the broker publishes bridge
// availability = offline if the process disconnects without a graceful
// Close (§4.5 "LWT").
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics) {
	opts.SetWill(topics.BridgeAvailability(), "offline", defaultQoS, true)
}
