package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/rahataid/rahat-offramp/cmd/offramp/internal/output"
)

var stdin = bufio.NewReader(os.Stdin)

// interactive reports whether prompts can be answered. Tests replace it.
var interactive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// prompt reads one line. It gives up when ctx is cancelled so Ctrl-C is
// not swallowed by a blocked read.
func prompt(ctx context.Context, label string) (string, error) {
	fmt.Fprintf(output.Stdout, "%s: ", label)

	type line struct {
		text string
		err  error
	}
	r := stdin
	ch := make(chan line, 1)
	go func() {
		text, err := r.ReadString('\n')
		ch <- line{text, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(output.Stdout)
		return "", ctx.Err()
	case l := <-ch:
		if l.err != nil && !(l.err == io.EOF && l.text != "") {
			return "", l.err
		}
		return strings.TrimSpace(l.text), nil
	}
}

func promptDefault(ctx context.Context, label, def string) (string, error) {
	if def != "" {
		label = fmt.Sprintf("%s [%s]", label, def)
	}
	v, err := prompt(ctx, label)
	if err != nil {
		return "", err
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}

func confirm(ctx context.Context, label string) (bool, error) {
	v, err := prompt(ctx, label+" [y/N]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(v) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// valueOrPrompt returns flagValue when set, otherwise asks.
func valueOrPrompt(ctx context.Context, flagValue, label string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if !interactive() {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return prompt(ctx, label)
}
