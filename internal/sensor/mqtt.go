package sensor

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// ReadingPayload is the JSON body expected on the sensor topic. Timestamp is
// optional; a missing or unparseable one is replaced with receive time.
type ReadingPayload struct {
	Temperature *float64 `json:"temperature"`
	Timestamp   string   `json:"timestamp"`
}

// MQTTSource subscribes to a broker topic and pushes each reading into the
// control loop.
type MQTTSource struct {
	client paho.Client
	topic  string
}

func NewMQTTSource(broker, clientID, topic string, onSample SampleFunc) (*MQTTSource, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID + "-sensor").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	s := &MQTTSource{client: client, topic: topic}

	subToken := client.Subscribe(topic, 0, func(_ paho.Client, msg paho.Message) {
		temp, ts := ParseReading(msg.Payload())
		onSample(temp, ts)
	})
	if !subToken.WaitTimeout(10 * time.Second) {
		client.Disconnect(250)
		return nil, fmt.Errorf("subscribe timeout")
	}
	if err := subToken.Error(); err != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	log.Info().Str("broker", broker).Str("topic", topic).Msg("Subscribed to sensor topic")
	return s, nil
}

// ParseReading extracts a reading from a payload. Malformed payloads yield
// NaN so the loop rejects them as invalid samples rather than the transport
// guessing a value.
func ParseReading(payload []byte) (float64, time.Time) {
	var reading ReadingPayload
	if err := json.Unmarshal(payload, &reading); err != nil || reading.Temperature == nil {
		log.Warn().Str("payload", string(payload)).Msg("Malformed sensor payload")
		return math.NaN(), time.Now()
	}

	ts := time.Now()
	if reading.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, reading.Timestamp); err == nil {
			ts = parsed
		}
	}
	return *reading.Temperature, ts
}

func (s *MQTTSource) Close() error {
	s.client.Unsubscribe(s.topic)
	s.client.Disconnect(1000)
	return nil
}
