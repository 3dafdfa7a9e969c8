// Package commandtest provides a scripted command.Runner for tests.
package commandtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dbsmedya/gowipe/internal/command"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// Call records one invocation.
type Call struct {
	Timeout time.Duration
	Name    string
	Args    []string
}

// Line returns the command line of the call.
func (c Call) Line() string {
	return command.String(c.Name, c.Args...)
}

// Response is what the fake returns for a matching command line.
type Response struct {
	Result *command.Result
	Err    error
}

// Runner matches invocations by command line prefix. Unmatched commands
// fail with CommandNotFound.
type Runner struct {
	mu        sync.Mutex
	responses []entry
	Calls     []Call
}

type entry struct {
	prefix string
	resp   Response
}

// On registers a response for command lines starting with prefix.
// Later registrations take precedence.
func (r *Runner) On(prefix string, resp Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, entry{prefix: prefix, resp: resp})
	return r
}

// OnStdout registers a successful response with the given stdout.
func (r *Runner) OnStdout(prefix, stdout string) *Runner {
	return r.On(prefix, Response{Result: &command.Result{Stdout: stdout}})
}

// OnError registers a failing response.
func (r *Runner) OnError(prefix string, err error) *Runner {
	return r.On(prefix, Response{Result: &command.Result{ExitCode: 1}, Err: err})
}

// Run implements command.Runner.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*command.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Timeout: timeout, Name: name, Args: append([]string(nil), args...)}
	r.Calls = append(r.Calls, call)

	if err := ctx.Err(); err != nil {
		return nil, wipeerr.Wrap(err, wipeerr.Cancelled, "command %s interrupted", name)
	}

	line := call.Line()
	for i := len(r.responses) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, r.responses[i].prefix) {
			resp := r.responses[i].resp
			if resp.Result == nil {
				resp.Result = &command.Result{}
			}
			return resp.Result, resp.Err
		}
	}
	return nil, wipeerr.New(wipeerr.CommandNotFound, "Command not found: %s", name)
}

// Lines returns every recorded command line.
func (r *Runner) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		out[i] = c.Line()
	}
	return out
}

// String implements fmt.Stringer for test failure output.
func (r *Runner) String() string {
	return fmt.Sprintf("commandtest.Runner%v", r.Lines())
}
