package selection

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// Prompt renders options as a table and reads a 1-based choice. An empty
// line picks the default; "q", "0", or end of input cancels.
type Prompt struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt reads answers from in and writes prompts to out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

// ForTerminal returns a Prompt when stdin is a terminal, and First otherwise
// so unattended runs take catalog defaults.
func ForTerminal(in *os.File, out io.Writer) Selector {
	if in != nil && (isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd())) {
		return NewPrompt(in, out)
	}
	return First{}
}

func (p *Prompt) Select(ctx context.Context, req Request) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, ErrCanceled
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out, renderRequest(req))
	for attempt := 0; attempt < 3; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		fmt.Fprintf(p.out, "Choose 1-%d [%d], q to cancel: ", len(req.Options), req.Default+1)
		line, err := p.in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if err != nil && answer == "" {
			return 0, ErrCanceled
		}
		if answer == "" {
			return req.Default, nil
		}
		if strings.EqualFold(answer, "q") || answer == "0" {
			return 0, ErrCanceled
		}
		n, convErr := strconv.Atoi(answer)
		if convErr == nil && n >= 1 && n <= len(req.Options) {
			return n - 1, nil
		}
		fmt.Fprintf(p.out, "%q is not a valid choice\n", answer)
	}
	return 0, ErrCanceled
}

func renderRequest(req Request) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	title := req.Title
	if title == "" {
		title = "Select " + string(req.Kind)
	}
	tw.SetTitle(title)
	tw.AppendHeader(table.Row{"#", "Option"})
	for i, option := range req.Options {
		marker := strconv.Itoa(i + 1)
		if i == req.Default {
			marker += "*"
		}
		tw.AppendRow(table.Row{marker, option})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
	})
	out := tw.Render()
	if msg := strings.TrimSpace(req.Message); msg != "" {
		out = msg + "\n" + out
	}
	return out
}
