package fitting

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRecorder keeps recorded runs in memory.
type stubRecorder struct {
	mu   sync.Mutex
	runs []*Result
	err  error
}

func (r *stubRecorder) RecordRun(res *Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, res)
	return r.err
}

func jobPayload(t *testing.T, kind Kind, data []byte) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"kind": kind,
		"data": json.RawMessage(data),
	})
	require.NoError(t, err)
	return payload
}

func testService(t *testing.T) (*JobService, *MockClient, *Metrics, *stubRecorder) {
	t.Helper()
	config := DefaultConfig()
	config.Estimator = testOptions()

	client := NewMockClient()
	metrics := NewMetrics()
	recorder := &stubRecorder{}
	svc := NewJobServiceWithClient(client, config, metrics, recorder)

	client.SetConnected(true)
	svc.onConnect(client)
	return svc, client, metrics, recorder
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"lomsac/jobs/+", "lomsac/jobs/abc", true},
		{"lomsac/jobs/+", "lomsac/jobs", false},
		{"lomsac/jobs/+", "lomsac/jobs/abc/def", false},
		{"lomsac/#", "lomsac/jobs/abc", true},
		{"lomsac/results/latest", "lomsac/results/latest", true},
		{"lomsac/results/latest", "lomsac/results/other", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, topicMatches(tt.filter, tt.topic), "%s vs %s", tt.filter, tt.topic)
	}
}

func TestJobService_SubscribesOnConnect(t *testing.T) {
	svc, client, _, _ := testService(t)
	assert.True(t, svc.IsConnected())
	assert.Equal(t, []string{"lomsac/jobs/+"}, client.Subscriptions())
}

func TestJobService_RunsJob(t *testing.T) {
	svc, client, metrics, recorder := testService(t)

	client.SimulateMessage("lomsac/jobs/abc", jobPayload(t, KindLine, lineFixture(t)))

	msgs := client.MessagesOn("lomsac/results/abc")
	require.Len(t, msgs, 1)
	assert.Equal(t, byte(1), msgs[0].QoS)
	assert.False(t, msgs[0].Retain)

	var res Result
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &res))
	assert.Equal(t, "abc", res.ID, "topic names the job")
	assert.Equal(t, KindLine, res.Kind)
	assert.Equal(t, 40, res.NumInliers)
	l, ok := res.Line()
	require.True(t, ok)
	assert.Greater(t, l.B, 0.0)

	latest := client.MessagesOn("lomsac/results/latest")
	require.Len(t, latest, 1)
	var summary map[string]any
	require.NoError(t, json.Unmarshal(latest[0].Payload, &summary))
	assert.Equal(t, "abc", summary["id"])
	assert.Equal(t, 40.0, summary["num_inliers"])

	got, ok := svc.Publisher().Latest()
	require.True(t, ok)
	assert.Equal(t, "abc", got.ID)

	require.Len(t, recorder.runs, 1)
	assert.Equal(t, "abc", recorder.runs[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("line", OutcomeFound)))
}

func TestJobService_PayloadIDWins(t *testing.T) {
	_, client, _, _ := testService(t)

	payload, err := json.Marshal(map[string]any{
		"id":   "from-payload",
		"kind": KindRigid,
		"data": json.RawMessage(rigidFixture(t)),
	})
	require.NoError(t, err)
	client.SimulateMessage("lomsac/jobs/from-topic", payload)

	assert.Len(t, client.MessagesOn("lomsac/results/from-payload"), 1)
	assert.Empty(t, client.MessagesOn("lomsac/results/from-topic"))
}

func TestJobService_RejectsBadJobs(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		kind    string
	}{
		{"malformed json", []byte(`{"kind":`), "unknown"},
		{"unknown kind", []byte(`{"kind":"circle","data":{"type":"FeatureCollection","features":[]}}`), "circle"},
		{"empty dataset", []byte(`{"kind":"plane","data":{"type":"FeatureCollection","features":[]}}`), "plane"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client, metrics, recorder := testService(t)
			client.SimulateMessage("lomsac/jobs/bad", tt.payload)

			errs := client.MessagesOn("lomsac/errors")
			require.Len(t, errs, 1)
			assert.False(t, errs[0].Retain, "errors are never retained")

			var payload map[string]any
			require.NoError(t, json.Unmarshal(errs[0].Payload, &payload))
			assert.Equal(t, "bad", payload["job_id"])
			assert.Equal(t, "lomsac/jobs/bad", payload["topic"])
			assert.NotEmpty(t, payload["error"])

			assert.Empty(t, client.MessagesOn("lomsac/results/bad"))
			assert.Empty(t, recorder.runs)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(tt.kind, OutcomeError)))
		})
	}
}

func TestJobService_RejectsInvalidJobIDs(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		id    string
	}{
		{"empty topic level", "lomsac/jobs/", ""},
		{"separator", "lomsac/jobs/ok", "a/b"},
		{"single level wildcard", "lomsac/jobs/ok", "a+"},
		{"multi level wildcard", "lomsac/jobs/ok", "a#"},
		{"reserved in payload", "lomsac/jobs/ok", "latest"},
		{"reserved in topic", "lomsac/jobs/latest", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client, metrics, recorder := testService(t)

			payload, err := json.Marshal(map[string]any{
				"id":   tt.id,
				"kind": KindLine,
				"data": json.RawMessage(lineFixture(t)),
			})
			require.NoError(t, err)
			client.SimulateMessage(tt.topic, payload)

			published := client.GetPublishedMessages()
			require.Len(t, published, 1, "only the error is published")
			assert.Equal(t, "lomsac/errors", published[0].Topic)

			var body map[string]any
			require.NoError(t, json.Unmarshal(published[0].Payload, &body))
			assert.Equal(t, tt.topic, body["topic"])
			assert.Contains(t, body["error"], "invalid job id")

			assert.Empty(t, recorder.runs)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("line", OutcomeError)))
		})
	}
}

func TestJobService_CapsJobOptions(t *testing.T) {
	config := DefaultConfig()
	config.Estimator = testOptions()
	config.Estimator.MinIterations = 5
	config.Estimator.MaxIterations = 5

	client := NewMockClient()
	svc := NewJobServiceWithClient(client, config, nil, nil)
	client.SetConnected(true)
	svc.onConnect(client)

	payload, err := json.Marshal(map[string]any{
		"kind":    KindLine,
		"data":    json.RawMessage(lineFixture(t)),
		"options": map[string]any{"min_iterations": 4000, "max_iterations": 4000, "num_lo_steps": 500},
	})
	require.NoError(t, err)
	client.SimulateMessage("lomsac/jobs/greedy", payload)

	msgs := client.MessagesOn("lomsac/results/greedy")
	require.Len(t, msgs, 1)
	var res Result
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &res))
	assert.LessOrEqual(t, res.NumIterations, uint32(5))
}

func TestJobService_RecorderErrorStillPublishes(t *testing.T) {
	_, client, _, recorder := testService(t)
	recorder.err = errors.New("disk full")

	client.SimulateMessage("lomsac/jobs/x", jobPayload(t, KindLine, lineFixture(t)))
	assert.Len(t, client.MessagesOn("lomsac/results/x"), 1)
}

func TestJobService_RetainAndPrefix(t *testing.T) {
	config := DefaultConfig()
	config.Estimator = testOptions()
	config.MQTT.Prefix = "lab"
	config.MQTT.QoS = 0
	config.MQTT.Retain = true

	client := NewMockClient()
	svc := NewJobServiceWithClient(client, config, nil, nil)
	client.SetConnected(true)
	svc.onConnect(client)

	client.SimulateMessage("lab/jobs/r1", jobPayload(t, KindLine, lineFixture(t)))
	msgs := client.MessagesOn("lab/results/r1")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Retain)
	assert.Equal(t, byte(0), msgs[0].QoS)
}

func TestJobService_StartAndStop(t *testing.T) {
	config := DefaultConfig()
	client := NewMockClient()
	svc := NewJobServiceWithClient(client, config, nil, nil)
	client.SetOnConnectHandler(svc.onConnect)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	require.Eventually(t, svc.IsConnected, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"lomsac/jobs/+"}, client.Subscriptions())

	cancel()
	require.Eventually(t, func() bool { return !client.IsConnected() }, time.Second, 10*time.Millisecond)
	assert.False(t, svc.IsConnected())
}

func TestJobService_StartGivesUpOnCancel(t *testing.T) {
	client := NewMockClient()
	client.SetConnectError(errors.New("refused"))
	svc := NewJobServiceWithClient(client, DefaultConfig(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, svc.IsConnected())
}

func TestPublisher_NotConnected(t *testing.T) {
	p := NewPublisher(nil, "")
	assert.Equal(t, "lomsac/results/x", p.ResultTopic("x"))
	assert.ErrorIs(t, p.PublishResult(&Result{ID: "x"}), ErrNotConnected)
	assert.ErrorIs(t, p.PublishError("x", "t", errors.New("boom")), ErrNotConnected)

	client := NewMockClient()
	p = NewPublisher(client, "lomsac")
	assert.ErrorIs(t, p.PublishResult(&Result{ID: "x"}), ErrNotConnected)
	_, ok := p.Latest()
	assert.False(t, ok)
}

func TestPublisher_PublishFailure(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	client.SetPublishError(errors.New("broker gone"))

	p := NewPublisher(client, "lomsac")
	err := p.PublishResult(&Result{ID: "x", Kind: KindLine, Model: json.RawMessage("null"), InlierIndices: []int{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lomsac/results/x")
}

func TestPublisher_RejectsInvalidID(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	p := NewPublisher(client, "lomsac")

	for _, id := range []string{"", "a/b", "a+", "a#", "latest"} {
		err := p.PublishResult(&Result{ID: id, Kind: KindLine, Model: json.RawMessage("null"), InlierIndices: []int{}})
		assert.ErrorIs(t, err, ErrInvalidJobID, "id %q", id)
	}
	assert.Empty(t, client.GetPublishedMessages())
	_, ok := p.Latest()
	assert.False(t, ok)
}

func TestPublisher_SetQoS(t *testing.T) {
	p := NewPublisher(nil, "lomsac")
	p.SetQoS(2)
	assert.Equal(t, byte(2), p.qos)
	p.SetQoS(7)
	assert.Equal(t, byte(2), p.qos, "invalid QoS is ignored")
}
