package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoInput is returned when the input stream ends before an answer.
var ErrNoInput = errors.New("no input")

// Prompter asks line-based questions on a terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Confirm asks a yes/no question. Anything but "y" or "yes" is no.
func (p *Prompter) Confirm(question string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", StyleWarning.Render(question))
	line, _ := p.in.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}

// ConfirmDanger is Confirm styled for destructive actions.
func (p *Prompter) ConfirmDanger(question string) bool {
	return p.Confirm(StyleError.Render("⚠ " + question))
}

// Input reads one trimmed line. It gives up when ctx ends; the pending
// read is abandoned, which is fine for a process-lifetime stdin reader.
func (p *Prompter) Input(ctx context.Context, question string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", StyleValue.Render(question))

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case a := <-ch:
		line := strings.TrimSpace(a.line)
		if a.err != nil && line == "" {
			if errors.Is(a.err, io.EOF) {
				return "", ErrNoInput
			}
			return "", a.err
		}
		return line, nil
	}
}

// PromptOTP asks for the one-time password sent to destination. It
// satisfies inapp.OTPPrompter.
func (p *Prompter) PromptOTP(ctx context.Context, destination string) (string, error) {
	fmt.Fprintln(p.out, Info("A one-time password was sent to "+destination))
	code, err := p.Input(ctx, "Code")
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", fmt.Errorf("%w: empty code", ErrNoInput)
	}
	return code, nil
}
