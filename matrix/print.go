package matrix

import (
	"bufio"
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// Fprint writes a bold title line and then the matrix, one row per line,
// each element as "%8.4f ". Styling is dropped when w is not a terminal.
func Fprint(w io.Writer, title string, m Matrix) error {
	out := termenv.NewOutput(w)
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, out.String(title).Bold())
	for i := 0; i < m.Size; i++ {
		for j := 0; j < m.Size; j++ {
			fmt.Fprintf(bw, "%8.4f ", m.Data[i*m.Size+j])
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}
