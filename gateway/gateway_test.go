package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jiadezhende/CleanSightBackend/clientstore"
	"github.com/Jiadezhende/CleanSightBackend/flush"
	"github.com/Jiadezhende/CleanSightBackend/frame"
	"github.com/Jiadezhende/CleanSightBackend/health"
	"github.com/Jiadezhende/CleanSightBackend/pipeline"
	"github.com/Jiadezhende/CleanSightBackend/scheduler"
	"github.com/Jiadezhende/CleanSightBackend/service"
	"github.com/Jiadezhende/CleanSightBackend/storage"
	"github.com/Jiadezhende/CleanSightBackend/task"
)

func fixtureJPEG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.RGBA{R: 80, G: 80, B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type okTask struct{}

func (okTask) Name() string              { return "detection" }
func (okTask) RequiresContext() []string { return nil }
func (okTask) Infer(rec *frame.Record, tctx task.Context) task.Result {
	return task.Result{Success: true}
}
func (okTask) Visualize(rec *frame.Record, result task.Result) *frame.Record { return rec }

type nullEncoder struct{}

func (nullEncoder) Encode(ctx context.Context, path string, frames [][]byte, fps int) error {
	return nil
}

func newTestGateway(t *testing.T) (*Gateway, *service.Service, *clientstore.Store) {
	t.Helper()

	store := clientstore.New()
	reg := task.NewRegistry()
	require.NoError(t, reg.Register(okTask{}))
	pipe := pipeline.New(reg, 2, 8)
	f := flush.New(store, nullEncoder{}, storage.NewMemStore(), t.TempDir(),
		flush.WithSegmentLength(100))
	sched := scheduler.New(store, pipe, f, scheduler.WithIdleSleep(time.Millisecond))
	require.NoError(t, sched.Initialize())

	svc, err := service.New(service.Deps{Store: store, Registry: reg, Scheduler: sched})
	require.NoError(t, err)

	g, err := New(svc, "127.0.0.1:0", WithPushInterval(5*time.Millisecond))
	require.NoError(t, err)
	return g, svc, store
}

func wsDial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, ":8080")
	require.Error(t, err)

	g, _, _ := newTestGateway(t)
	require.NotNil(t, g)

	_, err = New(nil, "")
	require.Error(t, err)
}

func TestStatusEndpoint(t *testing.T) {
	g, svc, _ := newTestGateway(t)
	server := httptest.NewServer(g.Routes())
	defer server.Close()

	require.NoError(t, svc.SubmitFrame("client-1", fixtureJPEG(t)))

	resp, err := http.Get(server.URL + "/ai/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var report service.StatusReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, 1, report.Clients)
	assert.Equal(t, 1, report.Queues["client-1"].Ready)

	// wrong method refused
	postResp, err := http.Post(server.URL+"/ai/status", "application/json", nil)
	require.NoError(t, err)
	postResp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, postResp.StatusCode)
}

func TestHealthEndpointWithoutMonitor(t *testing.T) {
	g, _, _ := newTestGateway(t)
	server := httptest.NewServer(g.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/ai/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report health.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.True(t, report.Healthy)
}

func TestHealthEndpointWithMonitor(t *testing.T) {
	g, _, _ := newTestGateway(t)

	m := health.NewMonitor("cleansight")
	m.Register("scheduler", func() health.Status { return health.NewUnhealthy("", "stopped") })
	WithHealthMonitor(m)(g)

	server := httptest.NewServer(g.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/ai/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var report health.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, health.StateUnhealthy, report.Status)
	require.Len(t, report.SubStatuses, 1)
	assert.Equal(t, "scheduler", report.SubStatuses[0].Component)
}

func TestUploadEndpoint(t *testing.T) {
	g, _, store := newTestGateway(t)
	server := httptest.NewServer(g.Routes())
	defer server.Close()

	conn := wsDial(t, server, "/ai/upload?client_id=client-1")
	payload := base64.StdEncoding.EncodeToString(fixtureJPEG(t))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.ReadyLen("client-1") == 1 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("frame not ingested")
}

func TestUploadRejectsGarbageButKeepsStream(t *testing.T) {
	g, _, store := newTestGateway(t)
	server := httptest.NewServer(g.Routes())
	defer server.Close()

	conn := wsDial(t, server, "/ai/upload?client_id=client-1")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("!!!garbage!!!")))

	// the error reply arrives and the stream stays open for good frames
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var reply map[string]string
	require.NoError(t, json.Unmarshal(msg, &reply))
	assert.NotEmpty(t, reply["error"])

	payload := base64.StdEncoding.EncodeToString(fixtureJPEG(t))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.ReadyLen("client-1") == 1 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("frame not ingested after bad payload")
}

func TestUploadRequiresClientID(t *testing.T) {
	g, _, _ := newTestGateway(t)
	server := httptest.NewServer(g.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/ai/upload")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVideoEndpointPushesDataURL(t *testing.T) {
	g, _, store := newTestGateway(t)
	server := httptest.NewServer(g.Routes())
	defer server.Close()

	jpegData := fixtureJPEG(t)
	store.GetOrCreate("client-1")
	require.NoError(t, store.AppendResult("client-1",
		frame.New("client-1", jpegData), frame.New("client-1", jpegData), nil))

	conn := wsDial(t, server, "/ai/video?client_id=client-1")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(msg), "data:image/jpeg;base64,"))
}

func TestVideoDisconnectRemovesClient(t *testing.T) {
	g, _, store := newTestGateway(t)
	server := httptest.NewServer(g.Routes())
	defer server.Close()

	store.GetOrCreate("client-1")
	conn := wsDial(t, server, "/ai/video?client_id=client-1")
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.ClientIDs()) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("client not removed after disconnect")
}

func TestTerminateTaskEndpoint(t *testing.T) {
	g, svc, _ := newTestGateway(t)
	server := httptest.NewServer(g.Routes())
	defer server.Close()

	ct := svc.BindTask("client-1", "task-1", "")

	resp, err := http.Post(server.URL+"/ai/terminate_task/client-1", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, task.StatusCompleted, ct.Snapshot().Status)

	// no bound task now
	resp2, err := http.Post(server.URL+"/ai/terminate_task/client-1", "application/json", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	// missing id
	resp3, err := http.Post(server.URL+"/ai/terminate_task/", "application/json", nil)
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestGatewayStopWithoutStart(t *testing.T) {
	g, _, _ := newTestGateway(t)
	require.NoError(t, g.Stop(time.Second))
}
