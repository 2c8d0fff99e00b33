package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/openmined/assetsync/internal/assets"
)

var promptBox = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("9")).
	Padding(0, 1)

// consentFunc decides who approves destructive changes. --yes approves
// everything, a terminal gets a prompt, anything else declines.
func consentFunc(yes, interactive bool, in io.Reader, out io.Writer) assets.ConsentFunc {
	if yes {
		return assets.AlwaysConsent
	}
	if !interactive {
		return func(_ context.Context, summary *assets.ChangeSummary) (bool, error) {
			slog.Warn("destructive changes need confirmation", "deleted", len(summary.Deleted), "replaced", len(summary.Replaced), "unset", len(summary.Unset))
			return false, nil
		}
	}
	answers := newAnswerReader(in)
	return func(ctx context.Context, summary *assets.ChangeSummary) (bool, error) {
		return promptConsent(ctx, answers, out, summary)
	}
}

type answer struct {
	line string
	err  error
}

// answerReader reads lines from a single goroutine so that a prompt given up
// on cancel leaves no reader behind to race with the next one.
type answerReader struct {
	in    *bufio.Reader
	once  sync.Once
	lines chan answer
}

func newAnswerReader(in io.Reader) *answerReader {
	return &answerReader{
		in:    bufio.NewReader(in),
		lines: make(chan answer),
	}
}

// Lines starts the reader on first use. The channel is closed after a read error.
func (r *answerReader) Lines() <-chan answer {
	r.once.Do(func() {
		go func() {
			defer close(r.lines)
			for {
				line, err := r.in.ReadString('\n')
				r.lines <- answer{line, err}
				if err != nil {
					return
				}
			}
		}()
	})
	return r.lines
}

func promptConsent(ctx context.Context, answers *answerReader, out io.Writer, summary *assets.ChangeSummary) (bool, error) {
	fmt.Fprintln(out, promptBox.Render(strings.TrimRight(summary.String(), "\n")))
	fmt.Fprint(out, red.Render("Apply these changes?")+" "+gray.Render("[y/N]")+" ")

	select {
	case <-ctx.Done():
		fmt.Fprintln(out)
		return false, ctx.Err()
	case a, ok := <-answers.Lines():
		if !ok {
			return false, nil
		}
		if a.err != nil && a.err != io.EOF {
			return false, fmt.Errorf("read answer: %w", a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
