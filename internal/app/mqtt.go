package app

import (
	"encoding/json"
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/bosch_imu/internal/imu"
)

// Publisher sends one retained payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type mqttPublisher struct {
	client mqtt.Client
}

func (p mqttPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, true, payload)
	token.Wait()
	return token.Error()
}

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	if broker == "" {
		return nil, errors.New("MQTT_BROKER is not set")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	log.WithFields(log.Fields{"broker": broker, "client_id": clientID}).Info("connected to MQTT broker")
	return client, nil
}

// subscribeSamples delivers every decodable sample published on topic to fn.
func subscribeSamples(client mqtt.Client, topic string, fn func(imu.Sample)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		s, err := decodeSample(msg.Payload())
		if err != nil {
			log.WithError(err).WithField("topic", msg.Topic()).Warn("dropping message")
			return
		}
		fn(s)
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
	}
	log.WithField("topic", topic).Info("subscribed to MQTT topic")
	return nil
}

func decodeSample(payload []byte) (imu.Sample, error) {
	var s imu.Sample
	if err := json.Unmarshal(payload, &s); err != nil {
		return imu.Sample{}, fmt.Errorf("sample unmarshal: %w", err)
	}
	return s, nil
}
