//go:build integration

package mqtt

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/config"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_TimelineRoundtrip(t *testing.T) {
	client, err := Connect(integrationConfig("graystage-int-roundtrip"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var (
		mu       sync.Mutex
		received = make(map[string]string)
		done     = make(chan struct{}, 2)
	)
	err = client.Subscribe(Topics{}.AllTimeline(), 1, func(topic string, payload []byte) error {
		mu.Lock()
		received[TimelineKind(topic)] = string(payload)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(Topics{}.AllTimeline()) {
		t.Fatal("subscription not tracked")
	}

	if err := client.Publish(Topics{}.TimelineObject(), []byte(`{"name":"stand_mic_01"}`), 1, false); err != nil {
		t.Fatalf("Publish(object) error = %v", err)
	}
	if err := client.Publish(Topics{}.TimelineTransform(), []byte(`{"unit_name":"truss"}`), 1, false); err != nil {
		t.Fatalf("Publish(transform) error = %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for timeline messages")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if received[TimelineObject] == "" || received[TimelineTransform] == "" {
		t.Errorf("received = %v", received)
	}
}

func TestIntegration_RetainedNodeState(t *testing.T) {
	pub, err := Connect(integrationConfig("graystage-int-pub"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer pub.Close()

	topic := Topics{}.NodeState("int_test_node")
	if err := pub.PublishJSON(topic, map[string]any{"active": true}, true); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	sub, err := Connect(integrationConfig("graystage-int-sub"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sub.Close()

	got := make(chan []byte, 1)
	if err := sub.Subscribe(topic, 1, func(_ string, payload []byte) error {
		got <- payload
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case payload := <-got:
		if string(payload) != `{"active":true}` {
			t.Errorf("retained payload = %s", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retained node state not delivered")
	}

	// Clear the retained message.
	_ = pub.Publish(topic, nil, 1, true)
}
