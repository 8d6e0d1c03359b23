// Package prompt implements the operator confirmation channel used by
// confirmation gates. Answers are restricted to yes or no; anything else is
// a usage error rather than a reason to ask again.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/nomis52/gostack/action"
)

// Line reads y/n answers line by line from a reader.
// It is safe for concurrent use; questions are serialized.
type Line struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewLine creates a Line prompter.
func NewLine(in io.Reader, out io.Writer) *Line {
	return &Line{in: bufio.NewReader(in), out: out}
}

// Confirm writes the question and reads one line. Only "y" and "n" are accepted.
func (l *Line) Confirm(ctx context.Context, question string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	fmt.Fprintf(l.out, "%s (y/n): ", question)
	line, err := l.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return false, fmt.Errorf("%w: no answer to %q: %v", action.ErrUsage, question, err)
	}
	return parseAnswer(line)
}

func parseAnswer(line string) (bool, error) {
	switch answer := strings.TrimSpace(line); answer {
	case "y":
		return true, nil
	case "n":
		return false, nil
	default:
		return false, fmt.Errorf("%w: expected y or n, got %q", action.ErrUsage, answer)
	}
}

// Terminal asks with an interactive confirm widget.
type Terminal struct {
	mu sync.Mutex
}

// Confirm shows a yes/no form. An aborted form is a usage error.
func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative("y").
				Negative("n").
				Value(&ok),
		),
	).RunWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", action.ErrUsage, err)
	}
	return ok, nil
}

// Approve confirms every question without asking. Used for --yes.
type Approve struct {
	Out io.Writer
}

// Confirm reports the question as auto-approved.
func (a Approve) Confirm(_ context.Context, question string) (bool, error) {
	if a.Out != nil {
		fmt.Fprintf(a.Out, "%s (y/n): y [auto-approved]\n", question)
	}
	return true, nil
}

// New picks a prompter: Approve when approved, Terminal when stdin and
// stderr are both terminals, otherwise a Line prompter over stdin.
func New(approved bool, in *os.File, out *os.File) action.Prompter {
	if approved {
		return Approve{Out: out}
	}
	if isTerminal(in) && isTerminal(out) {
		return &Terminal{}
	}
	return NewLine(in, out)
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
