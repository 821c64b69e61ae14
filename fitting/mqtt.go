package fitting

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// RunRecorder persists finished runs.
type RunRecorder interface {
	RecordRun(res *Result) error
}

// JobService subscribes to job requests over MQTT, runs them and publishes
// the results.
type JobService struct {
	client    mqtt.Client
	config    *Config
	publisher *Publisher
	metrics   *Metrics
	recorder  RunRecorder

	isConnected bool
	mu          sync.RWMutex
}

// NewJobService builds a service connected to config.MQTT.Broker. metrics and
// recorder may be nil.
func NewJobService(config *Config, metrics *Metrics, recorder RunRecorder) *JobService {
	s := &JobService{
		config:   config,
		metrics:  metrics,
		recorder: recorder,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.MQTT.Broker)
	opts.SetClientID(config.MQTT.ClientID)
	if config.MQTT.Username != "" {
		opts.SetUsername(config.MQTT.Username)
		opts.SetPassword(config.MQTT.Password)
	}

	// Connection settings
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // Preserve subscriptions on reconnect
	opts.SetOrderMatters(false) // Jobs are independent

	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(s.onConnectionLost)
	opts.SetReconnectingHandler(s.onReconnecting)

	s.client = mqtt.NewClient(opts)
	s.publisher = s.newPublisher()
	return s
}

// NewJobServiceWithClient wires a service around an existing client, such as
// a MockClient.
func NewJobServiceWithClient(client mqtt.Client, config *Config, metrics *Metrics, recorder RunRecorder) *JobService {
	s := &JobService{
		client:   client,
		config:   config,
		metrics:  metrics,
		recorder: recorder,
	}
	s.publisher = s.newPublisher()
	return s
}

func (s *JobService) newPublisher() *Publisher {
	p := NewPublisher(s.client, s.config.MQTT.Prefix)
	p.SetQoS(s.config.MQTT.QoS)
	p.SetRetain(s.config.MQTT.Retain)
	return p
}

// JobsTopic is the subscription filter for job requests.
func (s *JobService) JobsTopic() string {
	return s.config.MQTT.Prefix + "/jobs/+"
}

// Publisher returns the result publisher.
func (s *JobService) Publisher() *Publisher {
	return s.publisher
}

// Start connects in the background until ctx is done, then disconnects.
func (s *JobService) Start(ctx context.Context) {
	go func() {
		s.connectWithRetry(ctx)
		<-ctx.Done()
		s.Disconnect()
	}()
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (s *JobService) connectWithRetry(ctx context.Context) {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Printf("[MQTT] Connecting to %s...", s.config.MQTT.Broker)

		token := s.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] Successfully connected to broker")
				s.setConnected(true)
				return
			}
			log.Printf("[MQTT] Connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] Connection timeout")
		}

		log.Printf("[MQTT] Retrying connection in %v...", retryDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
		retryDelay = min(retryDelay*2, maxRetryDelay)
	}
}

// onConnect subscribes to the jobs topic on every (re)connection
func (s *JobService) onConnect(client mqtt.Client) {
	s.setConnected(true)

	topic := s.JobsTopic()
	log.Printf("[MQTT] Subscribing to %s", topic)
	token := client.Subscribe(topic, s.config.MQTT.QoS, s.handleMessage)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
		return
	}
	log.Printf("[MQTT] Successfully subscribed to %s", topic)
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (s *JobService) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] Connection interrupted (%v), auto-reconnect will retry", err)
	s.setConnected(false)
}

func (s *JobService) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] Reconnecting...")
}

// handleMessage runs one job. The last topic level names the job when the
// payload carries no id.
func (s *JobService) handleMessage(client mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()
	log.Printf("[MQTT] Received job on %s (%d bytes)", topic, len(payload))

	topicID := topic[strings.LastIndex(topic, "/")+1:]

	job, err := ParseJob(payload, s.config.Estimator)
	if err != nil {
		s.reject(topicID, topic, "", err)
		return
	}
	if job.ID == "" {
		job.ID = topicID
	}
	if err := ValidateJobID(job.ID); err != nil {
		s.reject(job.ID, topic, job.Kind, err)
		return
	}

	res, err := Run(job, s.config.Estimator)
	if err != nil {
		s.reject(job.ID, topic, job.Kind, err)
		return
	}

	if s.metrics != nil {
		s.metrics.Observe(res)
	}
	if s.recorder != nil {
		if err := s.recorder.RecordRun(res); err != nil {
			log.Printf("[MQTT] Error recording run %s: %v", res.ID, err)
		}
	}
	if err := s.publisher.PublishResult(res); err != nil {
		log.Printf("[MQTT] Error publishing result %s: %v", res.ID, err)
	}
}

// ValidateJobID checks that id is usable as the last level of a result
// topic. Wildcards and separators are not allowed in publish topics and
// "latest" would collide with the summary topic.
func ValidateJobID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidJobID)
	case strings.ContainsAny(id, "/+#\x00"):
		return fmt.Errorf("%w: %q contains a topic separator or wildcard", ErrInvalidJobID, id)
	case id == latestLevel:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidJobID, id)
	}
	return nil
}

func (s *JobService) reject(jobID, topic string, kind Kind, jobErr error) {
	log.Printf("[MQTT] Rejected job %s: %v", jobID, jobErr)
	if s.metrics != nil {
		s.metrics.ObserveError(kind)
	}
	if err := s.publisher.PublishError(jobID, topic, jobErr); err != nil {
		log.Printf("[MQTT] Error publishing job error: %v", err)
	}
}

// IsConnected returns true if the MQTT client is connected
func (s *JobService) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

func (s *JobService) setConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (s *JobService) Disconnect() {
	if s.client != nil && s.client.IsConnected() {
		log.Println("[MQTT] Disconnecting from broker...")
		s.client.Disconnect(250) // 250ms quiesce time
	}
	s.setConnected(false)
}
