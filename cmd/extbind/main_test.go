package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/extbind/metrics"
	"github.com/wippyai/extbind/scenario"
	"github.com/wippyai/extbind/storage"
)

func TestLayoutTable(t *testing.T) {
	sess, err := newSession()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		class    string
		toString string
	}{
		{"Counter", "present"},
		{"Silent", "absent"},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			ci, ok := sess.registry.Lookup(tt.class)
			if !ok {
				t.Fatalf("%s not registered", tt.class)
			}
			out := layoutTable(ci.Info, false)
			for _, line := range strings.Split(out, "\n") {
				if strings.Contains(line, "to_string_func") && !strings.Contains(line, tt.toString) {
					t.Fatalf("to_string row = %q, want %s", line, tt.toString)
				}
			}
			if n := strings.Count(out, "unsupported"); n != 6 {
				t.Fatalf("unsupported rows = %d, want 6\n%s", n, out)
			}
		})
	}
}

func TestPrinterPlain(t *testing.T) {
	sess, err := newSession()
	if err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	detach := metrics.NewCollector(reg).Attach(storage.Default())
	tr, err := scenario.Run(context.Background(), scenario.Default(), sess.rt)
	detach()
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	p := &printer{w: &buf}
	p.classes(sess.registry.Classes())
	p.transcript(tr)
	if err := p.metrics(reg); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if strings.Contains(out, "\x1b[") {
		t.Fatal("plain output contains escape sequences")
	}
	for _, want := range []string{
		"Counter extends RefCounted",
		"Silent extends Node",
		"methods: increment, add, get_count",
		"Scenario counter-lifecycle",
		`extbind_instances_created_total{class="Counter"} 1`,
		`extbind_instances_live{class="Counter"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestInteractiveStepping(t *testing.T) {
	m := newInteractiveModel("", nil)
	m.Update(m.load("")())
	if m.err != nil || m.scenario == nil {
		t.Fatalf("load: %v", m.err)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if len(m.entries) != 1 {
		t.Fatalf("entries after enter = %d, want 1", len(m.entries))
	}
	if !strings.Contains(m.View(), "> reference c1") {
		t.Fatalf("view does not mark the next step:\n%s", m.View())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	if m.err != nil {
		t.Fatalf("run all: %v", m.err)
	}
	if len(m.entries) != len(m.scenario.Steps) {
		t.Fatalf("entries = %d, want %d", len(m.entries), len(m.scenario.Steps))
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if len(m.entries) != len(m.scenario.Steps) {
		t.Fatal("enter past the last step added an entry")
	}
}

func TestInteractiveIgnoresOtherFiles(t *testing.T) {
	m := newInteractiveModel("", nil)
	m.Update(m.load("")())
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	// The built-in scenario has no file; any change only re-arms the watch.
	_, cmd := m.Update(fileChangedMsg{name: "other.yaml"})
	if cmd == nil {
		t.Fatal("watch not re-armed")
	}
	if len(m.entries) != 1 {
		t.Fatal("unrelated file change reset the run")
	}
}
