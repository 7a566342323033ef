package tictactoe

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	SymbolX = "X"
	SymbolO = "O"

	// Cells is the number of board positions, numbered row by row from 0.
	Cells = 9
)

// Lines lists every winning row, column and diagonal.
var Lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Board holds one symbol or "" per cell.
type Board [Cells]string

// Winner returns the symbol that owns a full line, or "".
func (b Board) Winner() string {
	for _, line := range Lines {
		first := b[line[0]]
		if first != "" && first == b[line[1]] && first == b[line[2]] {
			return first
		}
	}
	return ""
}

// Full reports whether every cell is taken.
func (b Board) Full() bool {
	for _, cell := range b {
		if cell == "" {
			return false
		}
	}
	return true
}

// Free returns the empty positions in ascending order.
func (b Board) Free() []int {
	free := make([]int, 0, Cells)
	for i, cell := range b {
		if cell == "" {
			free = append(free, i)
		}
	}
	return free
}

// Slice returns the cells as a JSON friendly slice.
func (b Board) Slice() []string {
	return append([]string(nil), b[:]...)
}

// String renders the board compactly, one row per line, with "." for empty
// cells.
func (b Board) String() string {
	var sb strings.Builder
	for row := 0; row < 3; row++ {
		if row > 0 {
			sb.WriteString("\n")
		}
		for col := 0; col < 3; col++ {
			if col > 0 {
				sb.WriteString(" ")
			}
			cell := b[row*3+col]
			if cell == "" {
				cell = "."
			}
			sb.WriteString(cell)
		}
	}
	return sb.String()
}

// Grid renders the board with position numbers in the empty cells.
func (b Board) Grid() string {
	cell := func(i int) string {
		if b[i] == "" {
			return strconv.Itoa(i)
		}
		return b[i]
	}
	var sb strings.Builder
	for row := 0; row < 3; row++ {
		if row > 0 {
			sb.WriteString(" -----------\n")
		}
		fmt.Fprintf(&sb, "  %s | %s | %s\n", cell(row*3), cell(row*3+1), cell(row*3+2))
	}
	return sb.String()
}

// Opponent returns the other symbol.
func Opponent(symbol string) string {
	if symbol == SymbolX {
		return SymbolO
	}
	return SymbolX
}
