package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"

	"github.com/dbsmedya/gowipe/internal/planner"
)

// confirmPhrase must be typed exactly to approve an erase.
const confirmPhrase = "YES"

// promptConfirmer shows the plan and waits for the operator to type
// confirmPhrase. Anything else declines.
type promptConfirmer struct {
	in  io.Reader
	out io.Writer
}

func (p *promptConfirmer) Confirm(ctx context.Context, plan *planner.ExecutionPlan) (bool, error) {
	printPlan(p.out, plan)

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, color.Red.Sprintf("ALL DATA ON %s WILL BE PERMANENTLY DESTROYED.", plan.Device.Path))
	fmt.Fprintf(p.out, "Type %s to proceed: ", confirmPhrase)

	answer := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(p.in).ReadString('\n')
		if err != nil && line == "" {
			errc <- err
			return
		}
		answer <- strings.TrimSpace(line)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case err := <-errc:
		fmt.Fprintln(p.out)
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	case a := <-answer:
		return a == confirmPhrase, nil
	}
}
