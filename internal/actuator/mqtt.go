package actuator

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// CommandPayload is the JSON body published for each actuator command.
type CommandPayload struct {
	Actuator  string `json:"actuator"`
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

// MQTTSink publishes actuator commands to a broker. Delivery is QoS 1:
// downstream bridges are assumed at-least-once but may still drop commands,
// which the control loop covers with keepalive resends.
type MQTTSink struct {
	client paho.Client
	topic  string
}

func NewMQTTSink(broker, clientID, topic string) (*MQTTSink, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID + "-actuator").
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

	return &MQTTSink{client: client, topic: topic}, nil
}

func (s *MQTTSink) Set(id string, on bool) error {
	if safeMode {
		log.Warn().Str("actuator", id).Bool("on", on).Msg("Safe mode: suppressing MQTT command")
		return nil
	}

	payload, err := json.Marshal(CommandPayload{
		Actuator:  id,
		State:     stateString(on),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("format command payload: %w", err)
	}

	token := s.client.Publish(s.topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}
	return nil
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(1000)
	return nil
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
