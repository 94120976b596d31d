package entity

// Mark is the symbol held by a cell. EmptyCell doubles as "no mark", e.g. when there is no winner yet.
type Mark string

const (
	PlayerX   Mark = "X"
	PlayerO   Mark = "O"
	EmptyCell Mark = ""
)

// BoardSize is the number of cells on the 3x3 board.
const BoardSize = 9

// WinCombos lists every winning line in the order they are checked:
// rows top-to-bottom, columns left-to-right, then the two diagonals.
var WinCombos = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Board holds the 9 cells in row-major order. It is a value type, so every copy is a snapshot.
type Board [BoardSize]Mark

func NewBoard() Board {
	return Board{}
}

// MarksCount - returns the number of non-empty cells.
func (that Board) MarksCount() int {
	count := 0
	for _, cell := range that {
		if cell != EmptyCell {
			count++
		}
	}

	return count
}

func (that Board) IsFull() bool {
	return that.MarksCount() == len(that)
}

func (that Board) IsEmpty() bool {
	return that.MarksCount() == 0
}

// InRange - reports whether index addresses a cell of the board.
func InRange(index int) bool {
	return index >= 0 && index < BoardSize
}
