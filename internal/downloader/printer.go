package downloader

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/lvcoi/ytbatch/internal/model"
)

// Printer is the non-interactive sink: one line per finished task.
type Printer struct {
	mu         sync.Mutex
	out        io.Writer
	quiet      bool
	color      bool
	columns    int
	titleWidth int
	total      int
	finished   int
}

// NewPrinter writes to out. total is the batch size used in line prefixes.
// With quiet set only failures are printed.
func NewPrinter(out io.Writer, total int, quiet bool) *Printer {
	columns := terminalColumns()
	if columns <= 0 {
		columns = 100
	}

	titleWidth := columns - 44
	if titleWidth < 20 {
		titleWidth = 20
	}
	if titleWidth > 60 {
		titleWidth = 60
	}

	return &Printer{
		out:        out,
		quiet:      quiet,
		color:      supportsColor(out),
		columns:    columns,
		titleWidth: titleWidth,
		total:      total,
	}
}

func (p *Printer) Start(model.Task)           {}
func (p *Printer) Report(model.Task, float64) {}

func (p *Printer) Complete(task model.Task, artifact Artifact) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished++
	if p.quiet {
		return
	}
	detail := fmt.Sprintf("%s %s", padLeft(fmt.Sprintf("%.2fMB", artifact.SizeMB), 9), artifact.Name)
	p.line(task, "OK", colorGreen, detail)
}

func (p *Printer) Stop(task model.Task, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished++
	detail := "stopped"
	if err != nil {
		detail = err.Error()
	}
	p.line(task, "FAIL", colorRed, detail)
}

func (p *Printer) prefix(task model.Task) string {
	total := p.total
	if total < p.finished {
		total = p.finished
	}
	if total <= 0 {
		total = 1
	}
	width := len(strconv.Itoa(total))
	idx := fmt.Sprintf("%*d/%d", width, p.finished, total)
	return fmt.Sprintf("[%s] %-*s", idx, p.titleWidth, truncateText(task.String(), p.titleWidth))
}

func (p *Printer) line(task model.Task, statusText, statusColor, detail string) {
	prefix := p.prefix(task)
	maxDetail := p.columns - len(prefix) - len(statusText) - 3
	if maxDetail < 0 {
		maxDetail = 0
	}
	fmt.Fprintf(p.out, "%s %s %s\n", prefix, p.colorize(statusText, statusColor), truncateText(detail, maxDetail))
}

// Summary prints the batch totals.
func (p *Printer) Summary(ok, failed int, sizeMB float64) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	okLabel := p.colorize("OK", colorGreen)
	failLabel := p.colorize("FAIL", colorRed)
	fmt.Fprintf(p.out, "Summary: %s %d | %s %d | TOTAL %d | SIZE %.2fMB\n",
		okLabel, ok, failLabel, failed, ok+failed, sizeMB)
}

func (p *Printer) colorize(text, color string) string {
	if !p.color || color == "" {
		return text
	}
	return color + text + colorReset
}

func padLeft(value string, width int) string {
	if len(value) >= width {
		return value
	}
	return strings.Repeat(" ", width-len(value)) + value
}

func truncateText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	if max <= 3 {
		return text[:max]
	}
	return text[:max-3] + "..."
}

func terminalColumns() int {
	if columns := os.Getenv("COLUMNS"); columns != "" {
		if val, err := strconv.Atoi(columns); err == nil && val > 0 {
			return val
		}
	}
	return 0
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func supportsColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" || os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	return IsTerminal(w)
}

const (
	colorReset = "\x1b[0m"
	colorGreen = "\x1b[32m"
	colorRed   = "\x1b[31m"
)
