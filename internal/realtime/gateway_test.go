package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
)

type countingRecorder struct {
	connected    atomic.Int64
	disconnected atomic.Int64
	dropped      atomic.Int64
	gaps         atomic.Int64
	replays      atomic.Int64
}

func (r *countingRecorder) ClientConnected()    { r.connected.Add(1) }
func (r *countingRecorder) ClientDisconnected() { r.disconnected.Add(1) }
func (r *countingRecorder) ClientDropped()      { r.dropped.Add(1) }
func (r *countingRecorder) RecordReplay(outcome string) {
	if outcome == "gap" {
		r.gaps.Add(1)
		return
	}
	r.replays.Add(1)
}

func startGateway(t *testing.T, bus *events.Bus, opts Options) (*Gateway, string) {
	t.Helper()
	gateway := NewGateway(bus, opts)
	srv := httptest.NewServer(gateway)
	t.Cleanup(func() {
		gateway.Close()
		srv.Close()
	})
	return gateway, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func publish(t *testing.T, bus *events.Bus, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, bus.Publish(context.Background(), events.Event{
			Type:     events.EventTicketPriorityChanged,
			TicketID: 1,
			Payload:  events.TicketPriorityChangedPayload{Priority: domain.TicketPriorityHigh},
		}))
	}
}

func TestGateway_HelloThenLiveEvents(t *testing.T) {
	bus := events.NewInMemoryDispatcher()
	publish(t, bus, 2)
	recorder := &countingRecorder{}
	gateway, url := startGateway(t, bus, Options{Metrics: recorder})

	conn := dial(t, url)
	hello := readFrame(t, conn)
	require.Equal(t, FrameHello, hello.Type)
	require.Equal(t, uint64(2), hello.Seq)
	require.Eventually(t, func() bool { return gateway.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, int64(1), recorder.connected.Load())

	publish(t, bus, 1)
	got := readFrame(t, conn)
	require.Equal(t, string(events.EventTicketPriorityChanged), got.Type)
	require.Equal(t, uint64(3), got.Seq)
}

func TestGateway_ResumeReplaysMissedEvents(t *testing.T) {
	bus := events.NewBus(events.BusOptions{ReplaySize: 16})
	publish(t, bus, 5)
	recorder := &countingRecorder{}
	_, url := startGateway(t, bus, Options{Metrics: recorder})

	conn := dial(t, url+"?since=2")
	require.Equal(t, uint64(3), readFrame(t, conn).Seq)
	require.Equal(t, uint64(4), readFrame(t, conn).Seq)
	require.Equal(t, uint64(5), readFrame(t, conn).Seq)

	publish(t, bus, 1)
	require.Equal(t, uint64(6), readFrame(t, conn).Seq)
	require.Equal(t, int64(1), recorder.replays.Load())
}

func TestGateway_ResumeBeyondBufferRequestsResync(t *testing.T) {
	bus := events.NewBus(events.BusOptions{ReplaySize: 2})
	publish(t, bus, 6)
	recorder := &countingRecorder{}
	_, url := startGateway(t, bus, Options{Metrics: recorder})

	conn := dial(t, url+"?since=1")
	f := readFrame(t, conn)
	require.Equal(t, FrameResync, f.Type)
	require.Equal(t, uint64(6), f.Seq)
	require.Equal(t, int64(1), recorder.gaps.Load())

	publish(t, bus, 1)
	require.Equal(t, uint64(7), readFrame(t, conn).Seq)
}

func TestGateway_RejectsBadRequests(t *testing.T) {
	bus := events.NewInMemoryDispatcher()
	_, url := startGateway(t, bus, Options{
		Authenticate: func(r *http.Request) (domain.Principal, error) {
			if r.URL.Query().Get("token") != "good" {
				return domain.Principal{}, errors.New("bad token")
			}
			return domain.Principal{UserID: 10, Role: domain.UserRoleEmployee}, nil
		},
	})

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=bad", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=good&since=abc", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	conn := dial(t, url+"?token=good")
	require.Equal(t, FrameHello, readFrame(t, conn).Type)
}

func TestClient_FullBufferDropsClient(t *testing.T) {
	bus := events.NewInMemoryDispatcher()
	recorder := &countingRecorder{}
	gateway := NewGateway(bus, Options{SendBuffer: 1, Metrics: recorder})

	c := &client{id: "slow", send: make(chan []byte, 1), done: make(chan struct{}), gateway: gateway}
	require.True(t, gateway.register(c))
	sub, _, err := bus.SubscribeAllFrom(0, c.handle)
	require.NoError(t, err)
	c.attach(sub)

	publish(t, bus, 1)
	require.Len(t, c.send, 1)
	require.Zero(t, recorder.dropped.Load())

	publish(t, bus, 1)
	require.Equal(t, int64(1), recorder.dropped.Load())
	require.Zero(t, gateway.ClientCount())
	require.Zero(t, bus.SubscriberCount())

	publish(t, bus, 1)
	require.Equal(t, int64(1), recorder.dropped.Load())
}

func TestGateway_CloseDisconnectsClients(t *testing.T) {
	bus := events.NewInMemoryDispatcher()
	gateway, url := startGateway(t, bus, Options{})

	conn := dial(t, url)
	require.Equal(t, FrameHello, readFrame(t, conn).Type)
	require.Eventually(t, func() bool { return gateway.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	gateway.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.Zero(t, gateway.ClientCount())
	require.Zero(t, bus.SubscriberCount())
}
