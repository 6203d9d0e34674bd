package monitoring

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iclim/ml-app/ml"
	"github.com/iclim/ml-app/registry"
)

func TestMetricsObserveLoad(t *testing.T) {
	m := NewMetrics()
	m.OnLoad(registry.Status{ID: "iris", Loaded: true, Kind: ml.KindClassification})
	m.OnLoad(registry.Status{ID: "diabetes", Error: "artifact not found"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelLoaded.WithLabelValues("iris")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.modelLoaded.WithLabelValues("diabetes")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelLoads.WithLabelValues("diabetes", "failure")))

	m.OnLoad(registry.Status{ID: "diabetes", Loaded: true, Kind: ml.KindRegression})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelLoaded.WithLabelValues("diabetes")))
}

func TestMetricsObservePrediction(t *testing.T) {
	m := NewMetrics()
	m.ObservePrediction("iris", "classification", 1)
	m.ObservePrediction("iris", "classification", 3)
	m.ObserveRequest("/api/v1/{model}/predict", http.StatusOK, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.predictions.WithLabelValues("iris", "classification")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.samples.WithLabelValues("iris")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/{model}/predict", "200")))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ObservePrediction("iris", "classification", 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mlapp_prediction_samples_total{model="iris"} 2`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestEventHubBroadcastsModelStatus(t *testing.T) {
	hub := NewEventHub(zaptest.NewLogger(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.OnLoad(registry.Status{ID: "iris", Loaded: false, Error: "artifact not found"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, EventModelStatus, event.Type)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())

	var status ModelStatusEvent
	require.NoError(t, json.Unmarshal(event.Data, &status))
	assert.Equal(t, ModelStatusEvent{Model: "iris", Error: "artifact not found"}, status)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventHubStop(t *testing.T) {
	hub := NewEventHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.NoError(t, hub.Publish(EventModelStatus, ModelStatusEvent{Model: "iris"}))
}
