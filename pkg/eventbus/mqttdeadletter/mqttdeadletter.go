// Package mqttdeadletter implements eventbus.DeadLetterStore by
// publishing undeliverable events to an MQTT broker, in the style of
// the teacher's MQTT protocol binding.
package mqttdeadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/gardenfabric/core/pkg/eventmodel"
)

// DefaultTopicPrefix matches events topics to a dedicated dead-letter
// branch of the broker's topic tree.
const DefaultTopicPrefix = "fabric/deadletter"

// wireEvent mirrors the external event wire shape from spec section 6:
// {eventId, deviceId, sourceId, eventType, timestamp, routingData, payload}.
type wireEvent struct {
	EventID     string      `json:"eventId"`
	DeviceID    string      `json:"deviceId"`
	SourceID    string      `json:"sourceId"`
	EventType   string      `json:"eventType"`
	Timestamp   string      `json:"timestamp"`
	RoutingData wireRouting `json:"routingData"`
	Payload     interface{} `json:"payload"`
	Errors      []string    `json:"errors"`
}

type wireRouting struct {
	TargetIDs              []string `json:"targetIds,omitempty"`
	Persist                bool     `json:"persist"`
	Priority               int      `json:"priority"`
	RequiresAcknowledgment bool     `json:"requiresAcknowledgment"`
	TimeoutMs              int64    `json:"timeoutMs,omitempty"`
}

// Store publishes failed events to a topic under TopicPrefix/<deviceId>.
type Store struct {
	client      mqtt.Client
	topicPrefix string
	qos         byte
	publishWait time.Duration
}

// Options configures a Store.
type Options struct {
	TopicPrefix string        // defaults to DefaultTopicPrefix
	QoS         byte          // defaults to 1 (at-least-once)
	PublishWait time.Duration // defaults to 5s
}

// New wraps an already-connected paho client. Connection lifecycle is
// the caller's responsibility, matching the teacher's pattern of
// injecting a pre-built mqttClient into the protocol binding.
func New(client mqtt.Client, opts Options) *Store {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = DefaultTopicPrefix
	}
	if opts.QoS == 0 {
		opts.QoS = 1
	}
	if opts.PublishWait == 0 {
		opts.PublishWait = 5 * time.Second
	}
	return &Store{
		client:      client,
		topicPrefix: opts.TopicPrefix,
		qos:         opts.QoS,
		publishWait: opts.PublishWait,
	}
}

// PersistFailed publishes event (with its accumulated handler errors)
// to the device's dead-letter topic.
func (s *Store) PersistFailed(ctx context.Context, event eventmodel.Event, errs []error) error {
	payload, err := encode(event, errs)
	if err != nil {
		return fmt.Errorf("mqttdeadletter: encode event %s: %w", event.EventID, err)
	}

	topic := fmt.Sprintf("%s/%s", s.topicPrefix, event.DeviceID.String())
	token := s.client.Publish(topic, s.qos, true, payload)

	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.publishWait):
		return fmt.Errorf("mqttdeadletter: publish to %s timed out after %s", topic, s.publishWait)
	case <-done:
	}

	if err := token.Error(); err != nil {
		logrus.Errorf("mqttdeadletter: publish to %s failed: %s", topic, err)
		return err
	}
	return nil
}

func encode(event eventmodel.Event, errs []error) ([]byte, error) {
	errStrings := make([]string, len(errs))
	for i, e := range errs {
		errStrings[i] = e.Error()
	}

	targetIDs := make([]string, len(event.RoutingData.TargetIDs))
	for i, id := range event.RoutingData.TargetIDs {
		targetIDs[i] = id.String()
	}

	w := wireEvent{
		EventID:   event.EventID.String(),
		DeviceID:  event.DeviceID.String(),
		SourceID:  event.SourceID.String(),
		EventType: event.Type.String(),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		RoutingData: wireRouting{
			TargetIDs:              targetIDs,
			Persist:                event.RoutingData.Persist,
			Priority:               int(event.RoutingData.Priority),
			RequiresAcknowledgment: event.RoutingData.RequiresAcknowledgment,
			TimeoutMs:              event.RoutingData.Timeout.Milliseconds(),
		},
		Payload: event.Payload,
		Errors:  errStrings,
	}
	return json.Marshal(w)
}
