package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/extbind/abi"
	"github.com/wippyai/extbind/classdb"
	"github.com/wippyai/extbind/scenario"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	classStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// printer writes reports, styled only when stdout is a terminal.
type printer struct {
	w      io.Writer
	styled bool
}

func newPrinter(styled bool) *printer {
	return &printer{w: os.Stdout, styled: styled}
}

func (p *printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p *printer) classes(classes []classdb.ClassInfo) {
	fmt.Fprintln(p.w, p.render(titleStyle, "Registered classes"))
	fmt.Fprintln(p.w)
	for _, ci := range classes {
		fmt.Fprintf(p.w, "%s extends %s (%s)\n",
			p.render(classStyle, ci.Name),
			p.render(typeStyle, ci.Parent),
			ci.Memory)
		if len(ci.Methods) > 0 {
			fmt.Fprintf(p.w, "methods: %s\n", strings.Join(ci.Methods, ", "))
		}
		fmt.Fprintln(p.w, layoutTable(ci.Info, p.styled))
		fmt.Fprintln(p.w)
	}
}

func layoutTable(info *abi.ClassCreationInfo, styled bool) string {
	layout := info.Layout()
	rows := make([][]string, 0, len(layout))
	for _, e := range layout {
		rows = append(rows, []string{strconv.Itoa(int(e.Slot) + 1), e.Name, e.State.String()})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "slot", "state").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if !styled || col != 2 {
				return cellStyle
			}
			switch layout[row].State {
			case abi.SlotPresent:
				return cellStyle.Foreground(lipgloss.Color("#90EE90"))
			case abi.SlotUnsupported:
				return cellStyle.Foreground(lipgloss.Color("#666666"))
			}
			return cellStyle
		})
	return t.String()
}

func (p *printer) transcript(tr *scenario.Transcript) {
	fmt.Fprintln(p.w, p.render(titleStyle, "Scenario "+tr.Name))
	fmt.Fprintln(p.w)
	for _, e := range tr.Entries {
		line := e.String()
		if e.Freed {
			fmt.Fprintln(p.w, p.render(helpStyle, line))
			continue
		}
		fmt.Fprintln(p.w, p.render(resultStyle, line))
	}
	fmt.Fprintln(p.w)
}

func (p *printer) metrics(g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	fmt.Fprintln(p.w, p.render(titleStyle, "Metrics"))
	fmt.Fprintln(p.w)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+strconv.Quote(l.GetValue()))
			}
			value := m.GetGauge().GetValue()
			if c := m.GetCounter(); c != nil {
				value = c.GetValue()
			}
			fmt.Fprintf(p.w, "%s{%s} %s\n",
				p.render(typeStyle, mf.GetName()),
				strings.Join(labels, ","),
				strconv.FormatFloat(value, 'g', -1, 64))
		}
	}
	return nil
}

func (p *printer) failure(err error) {
	fmt.Fprintln(p.w, p.render(errorStyle, "Error: "+err.Error()))
}
