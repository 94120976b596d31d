package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-board/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-board/internal/viewmodel"
)

const (
	actionConnect      = "connect"
	actionBoardGet     = "board:get"
	actionBoardSelect  = "board:select"
	actionBoardRestart = "board:restart"
	actionBoardState   = "board:state"
)

// handleConnect - greets a new session with its ID and the initial board.
func (that *Server) handleConnect(_ context.Context, sess *session) error {
	view := viewmodel.NewBoardView(sess.controller.Board())

	if err := sess.sendMessage(actionConnect, Payload{Session: sess.id, Board: &view}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	return nil
}

func (that *Server) handleGetBoard(_ context.Context, sess *session, _ *Message) error {
	view := viewmodel.NewBoardView(sess.controller.Board())

	if err := sess.sendMessage(actionBoardState, Payload{Board: &view}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	return nil
}

// handleSelect - an accepted move is pushed by the session observer, a rejected one is silently dropped.
func (that *Server) handleSelect(_ context.Context, sess *session, msg *Message) error {
	var payloadReq Payload

	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrInvalidPayload, err)
	}

	if payloadReq.Cell == nil {
		return fmt.Errorf("%w: cell is required", apperror.ErrInvalidPayload)
	}

	if !sess.controller.Select(*payloadReq.Cell) {
		sess.logger.Debug("move ignored", "cell", *payloadReq.Cell)
	}

	return nil
}

func (that *Server) handleRestart(_ context.Context, sess *session, _ *Message) error {
	sess.controller.Restart()

	return nil
}
