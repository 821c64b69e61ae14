package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kwv/lomsac/fitting"
)

func integrationBroker(t *testing.T) string {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}
	if broker := os.Getenv("MQTT_TEST_BROKER"); broker != "" {
		return broker
	}
	return "tcp://localhost:1883"
}

// TestMQTTServiceRoundTrip runs the job service against a real broker and
// submits a job from a second client.
func TestMQTTServiceRoundTrip(t *testing.T) {
	broker := integrationBroker(t)
	prefix := fmt.Sprintf("lomsac-test-%d", time.Now().UnixNano())

	tmpDir := t.TempDir()
	configYAML := fmt.Sprintf(`mqtt:
  broker: %q
  client_id: "lomsac-service-test"
  prefix: %q
  qos: 1
estimator:
  squared_inlier_threshold: 0.01
`, broker, prefix)
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}

	var out strings.Builder
	app := NewApp(&out)
	app.ApplyOptions(AppOptions{
		ConfigFile: configPath,
		MqttMode:   true,
		StorePath:  filepath.Join(tmpDir, "runs.db"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("service returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Service did not shut down within timeout")
		}
	}()

	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID("lomsac-client-test")
	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("Failed to connect test client: %v", token.Error())
	}
	defer client.Disconnect(100)

	results := make(chan []byte, 1)
	token := client.Subscribe(prefix+"/results/job-1", 1, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case results <- msg.Payload():
		default:
		}
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("Failed to subscribe: %v", token.Error())
	}

	payload, err := json.Marshal(map[string]any{
		"kind": "line",
		"data": json.RawMessage(lineGeoJSON(t)),
	})
	if err != nil {
		t.Fatalf("Failed to encode job: %v", err)
	}

	// The service subscribes asynchronously; resend until a result arrives.
	deadline := time.After(10 * time.Second)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		client.Publish(prefix+"/jobs/job-1", 1, false, payload)
		select {
		case data := <-results:
			var res fitting.Result
			if err := json.Unmarshal(data, &res); err != nil {
				t.Fatalf("Failed to decode result: %v", err)
			}
			if res.ID != "job-1" || res.NumInliers != 30 {
				t.Errorf("unexpected result: id=%s inliers=%d", res.ID, res.NumInliers)
			}
			return
		case <-deadline:
			t.Fatalf("No result received.\nService output:\n%s", out.String())
		case <-ticker.C:
		}
	}
}
