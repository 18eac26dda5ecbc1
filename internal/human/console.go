package human

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C"))
)

// Console reviews artifacts on a terminal. Blank, "y" and "yes" approve;
// "n" or "no" asks for feedback on the next line; any other answer is taken
// as the feedback itself.
type Console struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewConsole reads answers from in and writes prompts to out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Console{in: sc, out: out}
}

func (c *Console) readLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(c.out, promptStyle.Render(prompt))
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", fmt.Errorf("read answer: %w", err)
		}
		return "", fmt.Errorf("read answer: %w", io.ErrUnexpectedEOF)
	}
	return strings.TrimSpace(c.in.Text()), nil
}

// Requirements asks for the project requirements until a non-empty line is
// entered.
func (c *Console) Requirements(ctx context.Context) (string, error) {
	for {
		line, err := c.readLine(ctx, "Enter project requirements: ")
		if err != nil {
			return "", err
		}
		if line != "" {
			return line, nil
		}
	}
}

// Review shows the artifact and reads a verdict. For a failed generation it
// asks whether to retry; only blank, "y" and "yes" retry.
func (c *Console) Review(ctx context.Context, req Request) (Response, error) {
	fmt.Fprintln(c.out, titleStyle.Render(req.Title))
	fmt.Fprintln(c.out, panelStyle.Render(strings.TrimSpace(req.Artifact)))

	if req.Failed {
		answer, err := c.readLine(ctx, "Retry? (yes/no): ")
		if err != nil {
			return Response{}, err
		}
		switch strings.ToLower(answer) {
		case "", "y", "yes":
			return Response{Approved: true}, nil
		}
		return Response{}, nil
	}

	answer, err := c.readLine(ctx, "Approve? (yes/no): ")
	if err != nil {
		return Response{}, err
	}
	switch strings.ToLower(answer) {
	case "", "y", "yes":
		return Response{Approved: true}, nil
	case "n", "no":
		fb, err := c.readLine(ctx, "Provide feedback: ")
		if err != nil {
			return Response{}, err
		}
		return Response{Feedback: CleanFeedback(fb)}, nil
	}
	return Response{Feedback: CleanFeedback(answer)}, nil
}
