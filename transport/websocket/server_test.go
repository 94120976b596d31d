package websocket

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rocketscienceinc/tictactoe-board/internal/entity"
	"github.com/rocketscienceinc/tictactoe-board/internal/tictactoe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	clientKey      = "dGhlIHNhbXBsZSBub25jZQ=="
	clientDeadline = 5 * time.Second
	quietPeriod    = 200 * time.Millisecond
)

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func newTestServer(t *testing.T, publisher SnapshotPublisher) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := httptest.NewServer(New(logger, publisher).Handler(ctx))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return srv
}

func dial(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()

	addr := strings.TrimPrefix(srv.URL, "http://")

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetDeadline(time.Now().Add(clientDeadline)))

	_, err = fmt.Fprintf(conn, "GET /ws HTTP/1.1\r\nHost: %s\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n"+
		"Sec-WebSocket-Key: %s\r\nSec-WebSocket-Version: 13\r\n\r\n", addr, clientKey)
	require.NoError(t, err)

	r := bufio.NewReader(conn)

	resp, err := http.ReadResponse(r, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	require.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", resp.Header.Get("Sec-WebSocket-Accept"))

	return &testClient{t: t, conn: conn, r: r}
}

func writeMaskedFrame(t *testing.T, w io.Writer, opCode byte, fin bool, payload []byte) {
	t.Helper()

	mask := [4]byte{0x12, 0x34, 0x56, 0x78}

	header := []byte{opCode, 0x80}
	if fin {
		header[0] |= 0x80
	}

	switch {
	case len(payload) < 126:
		header[1] |= byte(len(payload))
	default:
		header[1] |= 126
		header = binary.BigEndian.AppendUint16(header, uint16(len(payload)))
	}

	masked := make([]byte, len(payload))
	for i := range payload {
		masked[i] = payload[i] ^ mask[i%4]
	}

	header = append(header, mask[:]...)
	_, err := w.Write(append(header, masked...))
	require.NoError(t, err)
}

func (that *testClient) send(action string, payload any) {
	that.t.Helper()

	message := map[string]any{"action": action}
	if payload != nil {
		message["payload"] = payload
	}

	data, err := json.Marshal(message)
	require.NoError(that.t, err)

	writeMaskedFrame(that.t, that.conn, opText, true, data)
}

func (that *testClient) receive() (string, Payload) {
	that.t.Helper()

	f, err := readFrame(that.r)
	require.NoError(that.t, err)
	require.Equal(that.t, opText, f.opCode)

	var message Message
	require.NoError(that.t, json.Unmarshal(f.payload, &message))

	var payload Payload
	require.NoError(that.t, json.Unmarshal(message.Payload, &payload))

	return message.Action, payload
}

func (that *testClient) receiveBoard() Payload {
	that.t.Helper()

	action, payload := that.receive()
	require.Equal(that.t, actionBoardState, action)
	require.NotNil(that.t, payload.Board)

	return payload
}

// expectSilence - asserts the server sends nothing for a short while.
func (that *testClient) expectSilence() {
	that.t.Helper()

	require.NoError(that.t, that.conn.SetReadDeadline(time.Now().Add(quietPeriod)))

	_, err := that.r.Peek(1)

	var netErr net.Error
	require.ErrorAs(that.t, err, &netErr, "expected no message from the server")
	require.True(that.t, netErr.Timeout())

	require.NoError(that.t, that.conn.SetReadDeadline(time.Now().Add(clientDeadline)))
}

func (that *testClient) connect() Payload {
	that.t.Helper()

	action, payload := that.receive()
	require.Equal(that.t, actionConnect, action)

	return payload
}

func TestServer_Connect(t *testing.T) {
	srv := newTestServer(t, nil)

	// When: a browser connects
	client := dial(t, srv)
	payload := client.connect()

	// Then: it gets a session and an empty board with X to move
	assert.NotEmpty(t, payload.Session)
	require.NotNil(t, payload.Board)
	assert.Equal(t, [9]string{}, payload.Board.Cells)
	assert.Equal(t, "Next player: X", payload.Board.Status)
}

func TestServer_Game(t *testing.T) {
	t.Run("Winning game, ignored move and restart", func(t *testing.T) {
		srv := newTestServer(t, nil)
		client := dial(t, srv)
		client.connect()

		// When: X takes the top row
		var last Payload
		for _, cell := range []int{0, 3, 1, 4, 2} {
			client.send(actionBoardSelect, map[string]int{"cell": cell})
			last = client.receiveBoard()
		}

		// Then: X wins
		assert.Equal(t, "Winner: X", last.Board.Status)
		assert.Equal(t, "X", last.Board.Winner)
		assert.True(t, last.Board.Finished)

		// When: another cell is selected after the win
		client.send(actionBoardSelect, map[string]int{"cell": 5})

		// Then: nothing is sent and the board is unchanged
		client.expectSilence()

		client.send(actionBoardGet, nil)
		current := client.receiveBoard()
		assert.Equal(t, last.Board, current.Board)

		// When: the board is restarted
		client.send(actionBoardRestart, nil)

		// Then: the empty board is pushed
		restarted := client.receiveBoard()
		assert.Equal(t, [9]string{}, restarted.Board.Cells)
		assert.Equal(t, "Next player: X", restarted.Board.Status)
	})

	t.Run("Occupied cell is ignored", func(t *testing.T) {
		srv := newTestServer(t, nil)
		client := dial(t, srv)
		client.connect()

		// Given: X on cell 0
		client.send(actionBoardSelect, map[string]int{"cell": 0})
		client.receiveBoard()

		// When: cell 0 is selected again
		client.send(actionBoardSelect, map[string]int{"cell": 0})

		// Then: no update is pushed and O is still to move
		client.expectSilence()

		client.send(actionBoardGet, nil)
		current := client.receiveBoard()
		assert.Equal(t, [9]string{"X"}, current.Board.Cells)
		assert.Equal(t, "Next player: O", current.Board.Status)
	})

	t.Run("Sessions do not share boards", func(t *testing.T) {
		srv := newTestServer(t, nil)

		first := dial(t, srv)
		firstSession := first.connect().Session

		second := dial(t, srv)
		secondSession := second.connect().Session

		// When: only the first session plays
		first.send(actionBoardSelect, map[string]int{"cell": 4})
		first.receiveBoard()

		// Then: the second board is still empty
		second.send(actionBoardGet, nil)
		assert.Equal(t, [9]string{}, second.receiveBoard().Board.Cells)
		assert.NotEqual(t, firstSession, secondSession)
	})
}

func TestServer_Errors(t *testing.T) {
	srv := newTestServer(t, nil)
	client := dial(t, srv)
	client.connect()

	t.Run("Unknown action", func(t *testing.T) {
		client.send("board:undo", nil)

		action, payload := client.receive()
		assert.Equal(t, "board:undo", action)
		assert.Equal(t, "unknown action", payload.Error)
	})

	t.Run("Missing cell", func(t *testing.T) {
		client.send(actionBoardSelect, map[string]string{})

		action, payload := client.receive()
		assert.Equal(t, actionBoardSelect, action)
		assert.Contains(t, payload.Error, "invalid payload")
	})

	t.Run("Malformed message", func(t *testing.T) {
		writeMaskedFrame(t, client.conn, opText, true, []byte("not json"))

		_, payload := client.receive()
		assert.Equal(t, "invalid payload", payload.Error)
	})

	t.Run("Session survives errors", func(t *testing.T) {
		client.send(actionBoardSelect, map[string]int{"cell": 8})

		assert.Equal(t, "X", client.receiveBoard().Board.Cells[8])
	})
}

func TestServer_Ping(t *testing.T) {
	srv := newTestServer(t, nil)
	client := dial(t, srv)
	client.connect()

	// When: the client pings
	writeMaskedFrame(t, client.conn, opPing, true, []byte("ping"))

	// Then: the server pongs with the same payload
	f, err := readFrame(client.r)
	require.NoError(t, err)
	assert.Equal(t, opPong, f.opCode)
	assert.Equal(t, "ping", string(f.payload))
}

func TestServer_RejectsPlainHTTP(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type recordingPublisher struct {
	mu     sync.Mutex
	boards map[string][]entity.Board
}

func (that *recordingPublisher) Observer(_ context.Context, sessionID string) tictactoe.Observer {
	return func(board entity.Board) {
		that.mu.Lock()
		defer that.mu.Unlock()

		that.boards[sessionID] = append(that.boards[sessionID], board)
	}
}

func (that *recordingPublisher) published(sessionID string) []entity.Board {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.boards[sessionID]
}

func TestServer_Publisher(t *testing.T) {
	publisher := &recordingPublisher{boards: map[string][]entity.Board{}}
	srv := newTestServer(t, publisher)

	client := dial(t, srv)
	session := client.connect().Session

	// When: a move is played and the board is restarted
	client.send(actionBoardSelect, map[string]int{"cell": 2})
	client.receiveBoard()
	client.send(actionBoardRestart, nil)
	client.receiveBoard()

	// Then: the publisher saw both snapshots for the session
	boards := publisher.published(session)
	require.Len(t, boards, 2)
	assert.Equal(t, entity.PlayerX, boards[0][2])
	assert.True(t, boards[1].IsEmpty())
}
