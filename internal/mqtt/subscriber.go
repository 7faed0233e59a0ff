package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"spi-dashboard/internal/config"
	"spi-dashboard/internal/modules/spi/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Subscriber struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once

	handlerMu sync.RWMutex
	// messageHandler is called for each valid reading
	messageHandler func(reading types.Reading) error
}

// MQTTSubscriber interface for attaching message handlers
type MQTTSubscriber interface {
	SetMessageHandler(handler func(reading types.Reading) error)
}

// SetMessageHandler sets the message handler for reading messages
func (s *Subscriber) SetMessageHandler(handler func(reading types.Reading) error) {
	s.handlerMu.Lock()
	s.messageHandler = handler
	s.handlerMu.Unlock()
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) *Subscriber {
	s := &Subscriber{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	s.client = mqtt.NewClient(clientOptions(cfg, cfg.MQTTClientID, logger, s.setConnected, s.onConnect))
	return s
}

// clientOptions holds the connection settings shared by the subscriber and
// the publisher.
func clientOptions(cfg config.Config, clientID string, logger *slog.Logger, setConnected func(bool), onConnect func()) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(clientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort, "client_id", clientID)
		if onConnect != nil {
			onConnect()
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})
	return opts
}

// onConnect (re)subscribes. Clean sessions drop subscriptions on every
// reconnect, and paho runs this handler on its own goroutine.
func (s *Subscriber) onConnect() {
	if err := s.subscribe(); err != nil {
		s.logger.Error("mqtt subscribe failed", "topic", s.cfg.MQTTTopic, "error", err)
	}
}

// Connect establishes the connection to the MQTT broker. The topic
// subscription is made from the connect handler.
func (s *Subscriber) Connect(ctx context.Context) error {
	// Fail fast if already stopped.
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	// Fast path.
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	// Wait in a ctx/stop-aware loop.
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}
}

func (s *Subscriber) subscribe() error {
	topic := s.cfg.MQTTTopic
	qos := byte(1) // At least once delivery

	token := s.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var reading types.Reading
	if err := json.Unmarshal(payload, &reading); err != nil {
		s.logger.Warn("failed to parse reading message",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}

	if err := ValidateReading(reading); err != nil {
		s.logger.Warn("invalid reading message",
			"topic", topic,
			"station_id", reading.StationID,
			"error", err,
		)
		return
	}

	s.handlerMu.RLock()
	handler := s.messageHandler
	s.handlerMu.RUnlock()
	if handler == nil {
		return
	}
	if err := handler(reading); err != nil {
		s.logger.Error("message handler failed",
			"topic", topic,
			"station_id", reading.StationID,
			"error", err,
		)
		return
	}
	s.logger.Debug("processed reading message",
		"station_id", reading.StationID,
		"time", reading.Time,
	)
}

// ValidateReading checks the fields a dataset row cannot do without.
func ValidateReading(r types.Reading) error {
	if strings.TrimSpace(r.StationID) == "" {
		return fmt.Errorf("station_id is required")
	}
	if strings.TrimSpace(r.StationName) == "" {
		return fmt.Errorf("station_name is required")
	}
	if strings.TrimSpace(r.Code) == "" {
		return fmt.Errorf("code is required")
	}
	if strings.TrimSpace(r.Time) == "" {
		return fmt.Errorf("time is required")
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %f (must be -90..90)", r.Latitude)
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %f (must be -180..180)", r.Longitude)
	}
	return nil
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}

	// Disconnect without holding s.mu to avoid lock contention/deadlocks.
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
