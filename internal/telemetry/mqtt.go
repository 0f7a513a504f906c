package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/printdesk/fleet/internal/config"
	"github.com/printdesk/fleet/internal/core"
)

// Heartbeat is the wire format printers publish on
// <topic_prefix>/<printer_id>. Absent fields leave the corresponding
// registry value untouched.
type Heartbeat struct {
	PaperAvailable *int               `json:"paper_available,omitempty"`
	InkLevels      map[string]float64 `json:"ink_levels,omitempty"`
	Temperature    *float64           `json:"temperature,omitempty"`
	Humidity       *float64           `json:"humidity,omitempty"`
}

// Subscriber feeds MQTT printer heartbeats into the registry's
// advisory telemetry fields.
type Subscriber struct {
	cfg      config.TelemetryConfig
	registry *core.Registry
	client   mqtt.Client
}

func NewSubscriber(cfg config.TelemetryConfig, registry *core.Registry) *Subscriber {
	return &Subscriber{cfg: cfg, registry: registry}
}

func (s *Subscriber) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", s.cfg.Broker))
	opts.SetClientID(s.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		topic := s.cfg.TopicPrefix + "/+"
		if token := c.Subscribe(topic, 0, s.handleMessage); token.Wait() && token.Error() != nil {
			log.Printf("[telemetry] subscribe %s: %v", topic, token.Error())
			return
		}
		log.Printf("[telemetry] subscribed to %s on %s", topic, s.cfg.Broker)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Printf("[telemetry] connection lost, auto-reconnecting: %v", err)
	}

	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout to %s", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

func (s *Subscriber) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	parts := strings.Split(msg.Topic(), "/")
	printerID := parts[len(parts)-1]

	var hb Heartbeat
	if err := json.Unmarshal(msg.Payload(), &hb); err != nil {
		log.Printf("[telemetry] bad heartbeat on %s: %v", msg.Topic(), err)
		return
	}

	err := s.registry.UpdateTelemetry(printerID, hb.PaperAvailable, hb.InkLevels, hb.Temperature, hb.Humidity)
	if err != nil {
		log.Printf("[telemetry] heartbeat for %s: %v", printerID, err)
	}
}
