package websocket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rocketscienceinc/tictactoe-board/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-board/internal/tictactoe"
)

const shutdownTimeout = 5 * time.Second

// SnapshotPublisher gives every session an extra observer, e.g. a Redis fan-out.
type SnapshotPublisher interface {
	Observer(ctx context.Context, sessionID string) tictactoe.Observer
}

type handlerFunc func(ctx context.Context, sess *session, message *Message) error

type Server struct {
	logger    *slog.Logger
	publisher SnapshotPublisher

	handlers map[string]handlerFunc
}

// New - publisher may be nil.
func New(logger *slog.Logger, publisher SnapshotPublisher) *Server {
	server := &Server{
		logger:    logger.With("component", "websocket"),
		publisher: publisher,

		handlers: make(map[string]handlerFunc),
	}

	server.handlers[actionBoardGet] = server.handleGetBoard
	server.handlers[actionBoardSelect] = server.handleSelect
	server.handlers[actionBoardRestart] = server.handleRestart

	return server
}

// Start - starts WebSocket server and stops it when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.upgradeToWebSocket(ctx, w, r)
	})

	return mux
}

// upgradeToWebSocket - upgrades the connection to WebSocket and serves one game session on it.
func (that *Server) upgradeToWebSocket(ctx context.Context, writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeConnection")

	key := req.Header.Get("Sec-WebSocket-Key")
	if !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") || key == "" {
		http.Error(writer, apperror.ErrNotWebSocket.Error(), http.StatusBadRequest)
		return
	}

	hijacker, ok := writer.(http.Hijacker)
	if !ok {
		log.Error("web server does not support hijacking", "error", http.StatusText(http.StatusInternalServerError))
		http.Error(writer, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	conn, bufrw, err := hijacker.Hijack()
	if err != nil {
		log.Error("failed to hijack connection", "error", err)
		return
	}

	defer conn.Close()

	// the server's deadlines carry over to the hijacked connection
	if err = conn.SetDeadline(time.Time{}); err != nil {
		log.Error("failed to clear deadlines", "error", err)
		return
	}

	if err = writeHandshake(bufrw.Writer, key); err != nil {
		log.Error("failed to write handshake", "error", err)
		return
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// unblock the read loop on shutdown
	go func() {
		<-sessCtx.Done()
		_ = conn.Close()
	}()

	sess := that.newSession(sessCtx, bufrw)
	defer sess.close()

	log.Info("WebSocket connection established", "session", sess.id)

	if err = that.handleConnect(sessCtx, sess); err != nil {
		log.Error("failed to greet session", "session", sess.id, "error", err)
		return
	}

	if err = that.handleMessages(sessCtx, sess); err != nil {
		log.Error("error handling messages", "session", sess.id, "error", err)
	}

	log.Info("WebSocket connection closed", "session", sess.id)
}

// handleMessages - processes messages from the client until the connection closes.
func (that *Server) handleMessages(ctx context.Context, sess *session) error {
	log := that.logger.With("method", "handleMessages", "session", sess.id)

	for {
		reqBody, err := sess.readMessage()
		if errors.Is(err, errConnectionClosed) {
			return nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		var message Message
		if err = json.Unmarshal(reqBody, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)

			if err = sess.sendError("", apperror.ErrInvalidPayload); err != nil {
				return err
			}

			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Error("error processing message", "action", message.Action, "error", apperror.ErrUnknownAction)

			if err = sess.sendError(message.Action, apperror.ErrUnknownAction); err != nil {
				return err
			}

			continue
		}

		if err = handler(ctx, sess, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)

			if err = sess.sendError(message.Action, err); err != nil {
				return err
			}
		}
	}
}

// newSession - gives the connection its own board.
func (that *Server) newSession(ctx context.Context, bufrw *bufio.ReadWriter) *session {
	id := uuid.NewString()

	sess := &session{
		id:         id,
		logger:     that.logger.With("session", id),
		controller: tictactoe.NewGameController(that.logger),
		bufrw:      bufrw,
	}

	// the publisher goes first so it has seen a snapshot by the time the client receives it
	if that.publisher != nil {
		sess.subscribe(that.publisher.Observer(ctx, id))
	}

	sess.subscribe(sess.pushState)

	return sess
}

type session struct {
	id         string
	logger     *slog.Logger
	controller *tictactoe.GameController
	bufrw      *bufio.ReadWriter

	writeMu      sync.Mutex
	unsubscribes []func()
}

func (that *session) subscribe(observer tictactoe.Observer) {
	that.unsubscribes = append(that.unsubscribes, that.controller.Subscribe(observer))
}

func (that *session) close() {
	for _, unsubscribe := range that.unsubscribes {
		unsubscribe()
	}
}
