package scenario

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/extbind/abi"
	"github.com/wippyai/extbind/errors"
	"github.com/wippyai/extbind/foreign"
)

// Entry records the outcome of one step.
type Entry struct {
	Op       Op
	Target   string
	Class    string
	Result   string
	Object   abi.ObjectPtr
	RefCount int32
	Step     int
	Freed    bool
}

func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%2d %-11s %-4s %-8s", e.Step, e.Op, e.Target, e.Class)
	if e.Result != "" {
		b.WriteString(" ")
		b.WriteString(e.Result)
	}
	if e.Freed {
		b.WriteString(" [freed]")
	} else {
		fmt.Fprintf(&b, " refs=%d", e.RefCount)
	}
	return b.String()
}

// Transcript is the ordered outcome of a scenario run.
type Transcript struct {
	Name    string
	Entries []Entry
}

func (t *Transcript) String() string {
	var b strings.Builder
	b.WriteString(t.Name)
	b.WriteString("\n")
	for _, e := range t.Entries {
		b.WriteString(e.String())
		b.WriteString("\n")
	}
	return b.String()
}

// Runner plays scenarios one step at a time against a foreign runtime.
type Runner struct {
	rt       *foreign.Runtime
	scenario *Scenario
	objects  map[string]abi.ObjectPtr
	done     []Entry
}

// NewRunner prepares s for rt. Every class the scenario lists must already
// be registered with rt.
func NewRunner(s *Scenario, rt *foreign.Runtime) (*Runner, error) {
	registered := make(map[string]bool)
	for _, name := range rt.ExtensionClasses() {
		registered[name] = true
	}
	for _, name := range s.Classes {
		if !registered[name] {
			return nil, errors.NotFound(errors.PhaseConfig, "class", name)
		}
	}
	return &Runner{
		rt:       rt,
		scenario: s,
		objects:  make(map[string]abi.ObjectPtr),
	}, nil
}

// Done reports whether every step has run.
func (r *Runner) Done() bool {
	return len(r.done) == len(r.scenario.Steps)
}

// Next returns the step that Step would run.
func (r *Runner) Next() (Step, bool) {
	if r.Done() {
		return Step{}, false
	}
	return r.scenario.Steps[len(r.done)], true
}

// Transcript returns the entries recorded so far.
func (r *Runner) Transcript() *Transcript {
	return &Transcript{
		Name:    r.scenario.Name,
		Entries: append([]Entry(nil), r.done...),
	}
}

// Step runs the next step.
func (r *Runner) Step() (Entry, error) {
	step, ok := r.Next()
	if !ok {
		return Entry{}, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("scenario %q has no steps left", r.scenario.Name).
			Build()
	}
	n := len(r.done) + 1

	entry, err := r.exec(step)
	entry.Step = n
	entry.Op = step.Op
	if err != nil {
		Logger().Warn("scenario step failed",
			zap.String("scenario", r.scenario.Name),
			zap.Int("step", n),
			zap.String("op", string(step.Op)),
			zap.Error(err))
		return entry, fmt.Errorf("step %d (%s): %w", n, step.Op, err)
	}

	entry.Freed = r.rt.Freed(entry.Object)
	entry.RefCount = r.rt.RefCount(entry.Object)
	r.done = append(r.done, entry)

	Logger().Debug("scenario step",
		zap.String("scenario", r.scenario.Name),
		zap.Int("step", n),
		zap.String("op", string(step.Op)),
		zap.String("result", entry.Result))
	return entry, nil
}

func (r *Runner) exec(step Step) (Entry, error) {
	if step.Op == OpCreate {
		obj, err := r.rt.Instantiate(step.Class)
		if err != nil {
			return Entry{Target: step.As, Class: step.Class}, err
		}
		r.objects[step.As] = obj
		return Entry{Target: step.As, Class: step.Class, Object: obj, Result: "created"}, nil
	}

	obj, ok := r.objects[step.Target]
	if !ok {
		return Entry{Target: step.Target}, errors.NotFound(errors.PhaseConfig, "object", step.Target)
	}
	e := Entry{Target: step.Target, Class: r.rt.ClassOf(obj), Object: obj}

	switch step.Op {
	case OpReference:
		return e, r.rt.Reference(obj)
	case OpUnreference:
		return e, r.rt.Unreference(obj)
	case OpFree:
		return e, r.rt.Free(obj)
	case OpToString:
		s, implemented, err := r.rt.ToString(obj)
		if err != nil {
			return e, err
		}
		e.Result = fmt.Sprintf("%q", s)
		if !implemented {
			e.Result += " (default)"
		}
		if step.Expect != "" && s != step.Expect {
			return e, fmt.Errorf("to_string = %q, want %q", s, step.Expect)
		}
		return e, nil
	case OpVirtual:
		found, err := r.rt.CallVirtual(obj, step.Method, nil, nil)
		if err != nil {
			return e, err
		}
		if found {
			e.Result = step.Method + " called"
		} else {
			e.Result = step.Method + " not found"
		}
		return e, nil
	}
	return e, errors.InvalidInput(errors.PhaseConfig, "unknown op "+string(step.Op))
}

// Run plays every step of s against rt and returns the transcript. It
// stops at the first failing step or when ctx is done; the transcript then
// holds the steps that completed.
func Run(ctx context.Context, s *Scenario, rt *foreign.Runtime) (*Transcript, error) {
	r, err := NewRunner(s, rt)
	if err != nil {
		return nil, err
	}
	for !r.Done() {
		if err := ctx.Err(); err != nil {
			return r.Transcript(), err
		}
		if _, err := r.Step(); err != nil {
			return r.Transcript(), err
		}
	}
	return r.Transcript(), nil
}

// RuntimeOptions returns the foreign runtime options the scenario asks for.
func (s *Scenario) RuntimeOptions() []foreign.Option {
	var opts []foreign.Option
	if s.AutoFree != nil {
		opts = append(opts, foreign.WithAutoFree(*s.AutoFree))
	}
	return opts
}
