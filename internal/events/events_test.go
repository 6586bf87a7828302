package events

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Emit(ctx context.Context, s *dispatcher.Settlement) error {
	return m.Called(ctx, s).Error(0)
}

type MockRecorder struct {
	MockSink
}

func (m *MockRecorder) RecordWithdrawal(ctx context.Context, w *dispatcher.FeeWithdrawal) error {
	return m.Called(ctx, w).Error(0)
}

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func settlement(id string, caller common.Address) *dispatcher.Settlement {
	return &dispatcher.Settlement{ID: id, Route: dispatcher.RouteDirect, Caller: caller, Amount: big.NewInt(100)}
}

func TestFanOutDeliversToEveryTarget(t *testing.T) {
	ctx := context.Background()
	s := settlement("s1", alice)

	failing := new(MockSink)
	failing.On("Emit", ctx, s).Return(errors.New("db down"))
	ok := new(MockRecorder)
	ok.On("Emit", ctx, s).Return(nil)

	f := NewFanOut(Target{"db", failing}, Target{"nats", nil}, Target{"ws", ok})
	assert.Equal(t, []string{"db", "ws"}, f.Names())

	err := f.Emit(ctx, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: db down")
	failing.AssertExpectations(t)
	ok.AssertExpectations(t)
}

func TestFanOutWithdrawalsSkipPlainSinks(t *testing.T) {
	ctx := context.Background()
	w := &dispatcher.FeeWithdrawal{ID: "w1", Amount: big.NewInt(5)}

	plain := new(MockSink)
	recorder := new(MockRecorder)
	recorder.On("RecordWithdrawal", ctx, w).Return(nil)

	f := NewFanOut(Target{"plain", plain}, Target{"recorder", recorder})
	require.NoError(t, f.RecordWithdrawal(ctx, w))
	recorder.AssertExpectations(t)
	plain.AssertNotCalled(t, "RecordWithdrawal", mock.Anything, mock.Anything)
}

func dialHub(t *testing.T, hub *Hub, caller common.Address) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(r.Context(), conn, caller)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	readMessage(t, conn, "connected")
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, wantType string) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, wantType, msg["type"])
	return msg
}

func TestHubFiltersByCaller(t *testing.T) {
	hub := NewHub()
	all := dialHub(t, hub, common.Address{})
	onlyBob := dialHub(t, hub, bob)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Emit(context.Background(), settlement("from-alice", alice)))
	require.NoError(t, hub.Emit(context.Background(), settlement("from-bob", bob)))

	msg := readMessage(t, all, "settlement")
	assert.Equal(t, "from-alice", msg["data"].(map[string]interface{})["id"])
	msg = readMessage(t, all, "settlement")
	assert.Equal(t, "from-bob", msg["data"].(map[string]interface{})["id"])

	msg = readMessage(t, onlyBob, "settlement")
	assert.Equal(t, "from-bob", msg["data"].(map[string]interface{})["id"])

	require.NoError(t, hub.RecordWithdrawal(context.Background(), &dispatcher.FeeWithdrawal{ID: "w1", Amount: big.NewInt(1)}))
	readMessage(t, all, "fee_withdrawal")
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, common.Address{})
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubDropsPeerThatStopsAnsweringPings(t *testing.T) {
	hub := NewHub()
	hub.pingPeriod = 50 * time.Millisecond
	hub.pongWait = 200 * time.Millisecond

	// Reading lets the client answer pings; the other connection never reads.
	live := dialHub(t, hub, common.Address{})
	go func() {
		for {
			if _, _, err := live.ReadMessage(); err != nil {
				return
			}
		}
	}()
	dialHub(t, hub, common.Address{})

	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(4 * hub.pongWait)
	assert.Equal(t, 1, hub.Clients())
}
