package tictactoe

import (
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-board/internal/entity"
)

// Observer receives a snapshot of the board every time the controller publishes one.
type Observer func(board entity.Board)

// State is the board together with its derived status.
type State struct {
	Board  entity.Board      `json:"board"`
	Status entity.GameStatus `json:"status"`
}

type subscription struct {
	id       int
	observer Observer
}

// GameController owns the board of one game session and mediates every change to it.
// Turn and winner are never stored, they are recomputed from the board on each read.
type GameController struct {
	logger *slog.Logger

	mu            sync.Mutex
	board         entity.Board
	subscriptions []subscription
	nextID        int
}

func NewGameController(logger *slog.Logger) *GameController {
	return &GameController{
		logger: logger.With("component", "game_controller"),
		board:  entity.NewBoard(),
	}
}

// Board - returns a read-only snapshot of the board.
func (that *GameController) Board() entity.Board {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.board
}

func (that *GameController) State() State {
	board := that.Board()

	return State{
		Board:  board,
		Status: entity.Evaluate(board),
	}
}

// Select - places the next mark on the cell. The move is ignored when the cell is taken
// or the game already has a winner; the result reports whether the board changed.
func (that *GameController) Select(index int) bool {
	log := that.logger.With("method", "Select", "cell", index)

	if !entity.InRange(index) {
		log.Warn("cell index out of range, move ignored")
		return false
	}

	that.mu.Lock()

	if that.board[index] != entity.EmptyCell || entity.Winner(that.board) != entity.EmptyCell {
		that.mu.Unlock()
		log.Debug("move rejected")
		return false
	}

	mark := entity.NextMark(that.board)
	that.board[index] = mark
	snapshot, observers := that.board, that.observers()

	that.mu.Unlock()

	log.Debug("move accepted", "mark", mark)
	publish(snapshot, observers)

	return true
}

// Restart - resets the board to 9 empty cells.
func (that *GameController) Restart() {
	that.mu.Lock()
	that.board = entity.NewBoard()
	snapshot, observers := that.board, that.observers()
	that.mu.Unlock()

	that.logger.Debug("board restarted")
	publish(snapshot, observers)
}

// Subscribe - registers an observer; call the returned func to remove it.
func (that *GameController) Subscribe(observer Observer) func() {
	that.mu.Lock()
	defer that.mu.Unlock()

	id := that.nextID
	that.nextID++
	that.subscriptions = append(that.subscriptions, subscription{id: id, observer: observer})

	return func() {
		that.mu.Lock()
		defer that.mu.Unlock()

		for i, sub := range that.subscriptions {
			if sub.id == id {
				that.subscriptions = append(that.subscriptions[:i:i], that.subscriptions[i+1:]...)
				return
			}
		}
	}
}

// observers - must be called with the lock held.
func (that *GameController) observers() []Observer {
	observers := make([]Observer, 0, len(that.subscriptions))
	for _, sub := range that.subscriptions {
		observers = append(observers, sub.observer)
	}

	return observers
}

// publish runs outside the lock so observers are free to read the controller again.
func publish(board entity.Board, observers []Observer) {
	for _, observer := range observers {
		observer(board)
	}
}
