package entity

import "fmt"

type StatusKind string

const (
	StatusWinner   StatusKind = "winner"
	StatusDraw     StatusKind = "draw"
	StatusNextTurn StatusKind = "next_turn"
)

// GameStatus is derived from the board on every read and never stored.
type GameStatus struct {
	Kind StatusKind `json:"kind"`
	Mark Mark       `json:"mark,omitempty"`
}

// NextMark - X moves on an even number of marks, O on an odd one.
func NextMark(board Board) Mark {
	if board.MarksCount()%2 == 0 {
		return PlayerX
	}

	return PlayerO
}

// Winner - returns the mark of the first complete line in WinCombos order, or EmptyCell.
// The board is not required to be reachable by legal play.
func Winner(board Board) Mark {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return a
		}
	}

	return EmptyCell
}

// Status - a win takes precedence over a full board, a full board over the next turn.
func Status(winner Mark, board Board, nextMark Mark) GameStatus {
	switch {
	case winner != EmptyCell:
		return GameStatus{Kind: StatusWinner, Mark: winner}
	case board.IsFull():
		return GameStatus{Kind: StatusDraw}
	default:
		return GameStatus{Kind: StatusNextTurn, Mark: nextMark}
	}
}

// Evaluate - runs the three evaluation functions against the board.
func Evaluate(board Board) GameStatus {
	return Status(Winner(board), board, NextMark(board))
}

func (that GameStatus) IsDecided() bool {
	return that.Kind == StatusWinner || that.Kind == StatusDraw
}

// String - the status line shown above the board.
func (that GameStatus) String() string {
	switch that.Kind {
	case StatusWinner:
		return fmt.Sprintf("Winner: %s", that.Mark)
	case StatusDraw:
		return "Scratch: Cat's game"
	case StatusNextTurn:
		return fmt.Sprintf("Next player: %s", that.Mark)
	default:
		return string(that.Kind)
	}
}
