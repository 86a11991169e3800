// ABOUTME: ConsoleApprover prompts a human on the terminal with yes/no/full choices.
// ABOUTME: Truncates long content at a preview limit; "full" reprints everything and re-prompts.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// previewLimit is the number of content characters shown before truncation.
const previewLimit = 2000

var (
	gateHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	gateRuleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	approvedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	rejectedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// ConsoleApprover reads approval decisions from an io.Reader and writes
// prompts to an io.Writer. Defaults to os.Stdin and os.Stdout.
type ConsoleApprover struct {
	reader io.Reader
	writer io.Writer
}

// NewConsoleApprover creates a ConsoleApprover on os.Stdin/os.Stdout.
func NewConsoleApprover() *ConsoleApprover {
	return &ConsoleApprover{reader: os.Stdin, writer: os.Stdout}
}

// NewConsoleApproverWithIO creates a ConsoleApprover with a configurable
// reader and writer, used by tests.
func NewConsoleApproverWithIO(r io.Reader, w io.Writer) *ConsoleApprover {
	return &ConsoleApprover{reader: r, writer: w}
}

// RequestApproval prints the checkpoint content (truncated past the
// preview limit) and loops on input until the human answers yes or no.
// Answering "full" reprints the untruncated content and re-prompts
// without resolving the gate. The stdin read runs in a goroutine so a
// cancelled context unblocks the gate.
func (c *ConsoleApprover) RequestApproval(ctx context.Context, checkpoint, content, extra string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	rule := gateRuleStyle.Render(strings.Repeat("=", 72))
	fmt.Fprintf(c.writer, "\n%s\n%s\n%s\n", rule, gateHeaderStyle.Render("APPROVAL REQUIRED: "+checkpoint), rule)

	if extra != "" {
		fmt.Fprintf(c.writer, "\nContext:\n%s\n", extra)
	}

	fmt.Fprintf(c.writer, "\n%s\n", truncateContent(content))
	fmt.Fprintf(c.writer, "%s\n", rule)

	scanner := bufio.NewScanner(c.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.writer, "Approve? (yes/no/full): ")

		line, err := c.readLine(ctx, scanner)
		if err != nil {
			return false, err
		}

		switch strings.ToLower(line) {
		case "yes", "y":
			fmt.Fprintln(c.writer, approvedStyle.Render("approved"))
			return true, nil
		case "no", "n":
			fmt.Fprintln(c.writer, rejectedStyle.Render("rejected"))
			return false, nil
		case "full":
			fmt.Fprintf(c.writer, "\n%s\n", content)
		default:
			fmt.Fprintln(c.writer, `please answer "yes", "no", or "full"`)
		}
	}
}

// readLine reads one line in a goroutine so the context can interrupt it.
func (c *ConsoleApprover) readLine(ctx context.Context, scanner *bufio.Scanner) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		if scanner.Scan() {
			ch <- result{line: strings.TrimSpace(scanner.Text())}
			return
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		ch <- result{err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("reading approval input: %w", r.err)
		}
		return r.line, nil
	}
}

func truncateContent(content string) string {
	if len(content) <= previewLimit {
		return content
	}
	return content[:previewLimit] + "\n\n[... truncated, answer \"full\" to see everything ...]"
}
