package ecotrack

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/teslashibe/go-ecotrack/pkg/conversation"
)

// Chat runs a typed dialog: each line read from in is sent as a user
// message and the reply is written to out. It returns at EOF or when ctx
// is done.
func (a *App) Chat(ctx context.Context, in io.Reader, out io.Writer) error {
	p := a.pipeline
	p.Wait()
	seen := 0
	seen = printReplies(out, p.Transcript(), seen)

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := p.SendText(ctx, line); err != nil {
				if errors.Is(err, conversation.ErrBusy) {
					fmt.Fprintln(out, "(still thinking)")
					continue
				}
				return err
			}
			p.Wait()
			seen = printReplies(out, p.Transcript(), seen)
		}
	}
}

// printReplies writes assistant utterances after index from and returns
// the new transcript length.
func printReplies(out io.Writer, transcript []conversation.Utterance, from int) int {
	if from > len(transcript) {
		from = 0
	}
	for _, u := range transcript[from:] {
		if u.Role == conversation.RoleAssistant {
			fmt.Fprintf(out, "Green: %s\n", u.Content)
		}
	}
	return len(transcript)
}
