package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"ffcentral/config"
	"ffcentral/protocol"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"
)

// MessageHandler receives the concrete topic and the raw payload.
type MessageHandler func(topic string, payload []byte)

type subscription struct {
	filter  string
	qos     byte
	handler MessageHandler
}

// Client is the unified messaging client (MQTT or Kafka). On Kafka every
// logical topic shares one bus topic and travels as the message key; QoS and
// retain flags only apply to MQTT.
type Client struct {
	mu       sync.RWMutex
	cfg      *config.MessagingConfig
	backend  string
	mqttConn mqtt.Client
	kafkaW   *kafkago.Writer
	kafkaR   *kafkago.Reader
	subs     []subscription
	cancel   context.CancelFunc
}

// NewClient creates a messaging client based on config.
func NewClient(cfg *config.MessagingConfig) *Client {
	return &Client{
		cfg:     cfg,
		backend: cfg.Backend,
	}
}

// Connect establishes the messaging connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.backend {
	case "mqtt":
		return c.connectMQTT()
	case "kafka":
		return c.connectKafka()
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.backend)
	}
}

func (c *Client) connectMQTT() error {
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.MQTT.Broker, c.cfg.MQTT.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.resubscribe).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("messaging: mqtt connection lost: %v", err)
		})
	if c.cfg.MQTT.Username != "" {
		opts.SetUsername(c.cfg.MQTT.Username).SetPassword(c.cfg.MQTT.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.mqttConn = client
	log.Printf("messaging: mqtt connected to %s", broker)
	return nil
}

// resubscribe restores every subscription after a (re)connect.
func (c *Client) resubscribe(client mqtt.Client) {
	c.mu.RLock()
	subs := append([]subscription(nil), c.subs...)
	c.mu.RUnlock()
	for _, s := range subs {
		token := client.Subscribe(s.filter, s.qos, mqttCallback(s.handler))
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("messaging: resubscribe %s: %v", s.filter, err)
		}
	}
}

func mqttCallback(h MessageHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

func (c *Client) connectKafka() error {
	if len(c.cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	c.kafkaW = &kafkago.Writer{
		Addr:         kafkago.TCP(c.cfg.Kafka.Brokers...),
		Topic:        c.cfg.Kafka.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
	}
	log.Printf("messaging: kafka writer ready on %s", c.cfg.Kafka.Topic)
	return nil
}

func (c *Client) publishTimeout() time.Duration {
	if c.cfg.PublishTimeout > 0 {
		return c.cfg.PublishTimeout
	}
	return 5 * time.Second
}

// Publish sends payload to topic.
func (c *Client) Publish(topic string, payload []byte, qos byte, retain bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.backend {
	case "mqtt":
		if c.mqttConn == nil || !c.mqttConn.IsConnected() {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Publish(topic, qos, retain, payload)
		if !token.WaitTimeout(c.publishTimeout()) {
			return fmt.Errorf("mqtt publish to %s timed out", topic)
		}
		return token.Error()
	case "kafka":
		if c.kafkaW == nil {
			return fmt.Errorf("kafka writer not initialized")
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.publishTimeout())
		defer cancel()
		return c.kafkaW.WriteMessages(ctx, kafkago.Message{
			Key:   []byte(topic),
			Value: payload,
		})
	default:
		return fmt.Errorf("unknown backend: %s", c.backend)
	}
}

// PublishJSON encodes v and publishes it.
func (c *Client) PublishJSON(topic string, v any, qos byte, retain bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	return c.Publish(topic, data, qos, retain)
}

// Subscribe registers handler for every topic matching filter.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subs = append(c.subs, subscription{filter: filter, qos: qos, handler: handler})
	switch c.backend {
	case "mqtt":
		if c.mqttConn == nil {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Subscribe(filter, qos, mqttCallback(handler))
		token.Wait()
		return token.Error()
	case "kafka":
		if c.kafkaR == nil {
			c.startKafkaReader()
		}
		return nil
	default:
		return fmt.Errorf("unknown backend: %s", c.backend)
	}
}

func (c *Client) startKafkaReader() {
	c.kafkaR = kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: c.cfg.Kafka.Brokers,
		Topic:   c.cfg.Kafka.Topic,
		GroupID: c.cfg.Kafka.GroupID,
	})
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	reader := c.kafkaR
	go func() {
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("messaging: kafka read: %v", err)
				}
				return
			}
			c.dispatch(string(msg.Key), msg.Value)
		}
	}()
}

// dispatch hands a bus message to every subscription whose filter matches.
func (c *Client) dispatch(topic string, payload []byte) {
	c.mu.RLock()
	subs := append([]subscription(nil), c.subs...)
	c.mu.RUnlock()
	for _, s := range subs {
		if protocol.TopicMatches(s.filter, topic) {
			s.handler(topic, payload)
		}
	}
}

// IsConnected returns whether the messaging client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.backend {
	case "mqtt":
		return c.mqttConn != nil && c.mqttConn.IsConnected()
	case "kafka":
		return c.kafkaW != nil
	default:
		return false
	}
}

// Close shuts down the messaging connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mqttConn != nil {
		c.mqttConn.Disconnect(1000)
		c.mqttConn = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.kafkaW != nil {
		c.kafkaW.Close()
		c.kafkaW = nil
	}
	if c.kafkaR != nil {
		c.kafkaR.Close()
		c.kafkaR = nil
	}
}
