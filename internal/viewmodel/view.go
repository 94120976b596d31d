// Package viewmodel turns a board snapshot into the document a renderer draws from.
package viewmodel

import (
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-board/internal/entity"
)

// BoardView is everything a view needs to draw the 9 cells, the status line and the reset control.
type BoardView struct {
	Cells      [entity.BoardSize]string `json:"cells"`
	Status     string                   `json:"status"`
	StatusKind entity.StatusKind        `json:"status_kind"`
	Winner     string                   `json:"winner,omitempty"`
	NextMark   string                   `json:"next_mark,omitempty"`
	Finished   bool                     `json:"finished"`
}

func NewBoardView(board entity.Board) BoardView {
	nextMark := entity.NextMark(board)
	winner := entity.Winner(board)
	status := entity.Status(winner, board, nextMark)

	view := BoardView{
		Status:     status.String(),
		StatusKind: status.Kind,
		Winner:     string(winner),
		Finished:   status.IsDecided(),
	}

	if !view.Finished {
		view.NextMark = string(nextMark)
	}

	for i, cell := range board {
		view.Cells[i] = string(cell)
	}

	return view
}

// Marshal - encodes the view of the board as JSON.
func Marshal(board entity.Board) ([]byte, error) {
	data, err := json.Marshal(NewBoardView(board))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal board view: %w", err)
	}

	return data, nil
}
