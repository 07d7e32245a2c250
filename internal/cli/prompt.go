package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter reads answers from the command's input, hiding secrets when the
// input is a terminal.
type prompter struct {
	cmd    *cobra.Command
	reader *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{cmd: cmd, reader: bufio.NewReader(cmd.InOrStdin())}
}

// value returns current if set, otherwise asks for it.
func (p *prompter) value(current, label string) (string, error) {
	if current != "" {
		return current, nil
	}
	fmt.Fprintf(p.cmd.OutOrStdout(), "%s: ", label)
	return p.readLine(label)
}

// secret is value without echo on a terminal.
func (p *prompter) secret(current, label string) (string, error) {
	if current != "" {
		return current, nil
	}
	fmt.Fprintf(p.cmd.OutOrStdout(), "%s: ", label)

	if f, ok := p.cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		data, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
		}
		return string(data), nil
	}
	return p.readLine(label)
}

func (p *prompter) readLine(label string) (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}
