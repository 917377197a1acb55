package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/care/painter/internal/types"
)

var errNoTerminal = errors.New("stdin is not a terminal")

// termPrompter asks the operator on the controlling terminal
type termPrompter struct {
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool
	tty       bool
}

func newTermPrompter(in *os.File, out io.Writer, assumeYes bool) *termPrompter {
	return &termPrompter{
		in:        bufio.NewReader(in),
		out:       out,
		assumeYes: assumeYes,
		tty:       term.IsTerminal(int(in.Fd())),
	}
}

// Confirm asks a yes/no question. -yes answers it without a terminal.
func (p *termPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	if p.assumeYes {
		return true, nil
	}
	if !p.tty {
		return false, fmt.Errorf("%w: pass -yes to start unattended", errNoTerminal)
	}

	fmt.Fprintf(p.out, "%s (y,n): ", question)
	answer, err := p.readLine(ctx)
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// SelectMode shows the mode menu until a valid choice is entered
func (p *termPrompter) SelectMode(ctx context.Context) (types.Mode, error) {
	if !p.tty {
		return 0, fmt.Errorf("%w: pass -mode", errNoTerminal)
	}

	for {
		fmt.Fprintln(p.out, "Select mode:")
		fmt.Fprintln(p.out, "  1 - palette test (dip into every well)")
		fmt.Fprintln(p.out, "  2 - canvas test (one smear at the origin)")
		fmt.Fprintln(p.out, "  3 - image preview")
		fmt.Fprintln(p.out, "  4 - paint")
		fmt.Fprint(p.out, "> ")

		answer, err := p.readLine(ctx)
		if err != nil {
			return 0, err
		}
		mode, err := types.ParseMode(answer)
		if err == nil {
			return mode, nil
		}
		fmt.Fprintln(p.out, err)
	}
}

// readLine returns the next trimmed line or ctx.Err() once ctx is done.
// A pending read is abandoned on cancellation.
func (p *termPrompter) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && (r.line == "" || !errors.Is(r.err, io.EOF)) {
			return "", fmt.Errorf("read answer: %w", r.err)
		}
		return strings.TrimSpace(r.line), nil
	}
}
