package fitting

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned when publishing without a live MQTT connection.
var ErrNotConnected = errors.New("fitting: MQTT client not connected")

const publishTimeout = 2 * time.Second

// Publisher publishes run results to MQTT
type Publisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	retain bool

	mu     sync.RWMutex
	latest *Result
}

// resultSummary is the compact payload of the latest-result topic.
type resultSummary struct {
	ID            string   `json:"id"`
	Kind          Kind     `json:"kind"`
	NumInliers    int      `json:"num_inliers"`
	NumData       int      `json:"num_data"`
	NumIterations uint32   `json:"num_iterations"`
	InlierRatio   float64  `json:"inlier_ratio"`
	Score         *float64 `json:"score"`
	Timestamp     int64    `json:"timestamp"`
}

// NewPublisher creates a result publisher under prefix.
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "lomsac"
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		qos:    1,
		retain: true, // Retain so late subscribers see the last result
	}
}

// latestLevel is the last topic level of the latest-result summary.
const latestLevel = "latest"

// ResultTopic returns the topic of a single result.
func (p *Publisher) ResultTopic(id string) string {
	return fmt.Sprintf("%s/results/%s", p.prefix, id)
}

// LatestTopic returns the topic carrying the summary of the newest result.
func (p *Publisher) LatestTopic() string {
	return p.prefix + "/results/" + latestLevel
}

// ErrorTopic returns the topic for rejected jobs.
func (p *Publisher) ErrorTopic() string {
	return p.prefix + "/errors"
}

// PublishResult publishes the full result to its own topic and a summary to
// the latest topic.
func (p *Publisher) PublishResult(res *Result) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}
	if err := ValidateJobID(res.ID); err != nil {
		return err
	}

	p.mu.Lock()
	p.latest = res
	p.mu.Unlock()

	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := p.publish(p.ResultTopic(res.ID), payload, p.retain); err != nil {
		log.Printf("[MQTT] Error publishing result %s: %v", res.ID, err)
		return err
	}

	summary, err := json.Marshal(resultSummary{
		ID:            res.ID,
		Kind:          res.Kind,
		NumInliers:    res.NumInliers,
		NumData:       res.NumData,
		NumIterations: res.NumIterations,
		InlierRatio:   res.InlierRatio,
		Score:         res.Score,
		Timestamp:     res.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	if err := p.publish(p.LatestTopic(), summary, p.retain); err != nil {
		log.Printf("[MQTT] Error publishing latest summary: %v", err)
		return err
	}

	log.Printf("[MQTT] Published result %s: %s", res.ID, res.Summary())
	return nil
}

// jobError is the payload published for a rejected job.
type jobError struct {
	JobID     string `json:"job_id,omitempty"`
	Topic     string `json:"topic"`
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}

// PublishError reports a job that could not be run. Errors are never retained.
func (p *Publisher) PublishError(jobID, topic string, jobErr error) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(jobError{
		JobID:     jobID,
		Topic:     topic,
		Error:     jobErr.Error(),
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshaling job error: %w", err)
	}
	return p.publish(p.ErrorTopic(), payload, false)
}

func (p *Publisher) publish(topic string, payload []byte, retain bool) error {
	token := p.client.Publish(topic, p.qos, retain, payload)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// Latest returns the last result handed to PublishResult.
func (p *Publisher) Latest() (*Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.latest != nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published results should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
