package downloader

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lvcoi/ytbatch/internal/model"
)

// ProgressManager renders one progress bar per task using Bubble Tea. It is
// also an io.Writer so log output can be shown above the bars while the
// program owns the terminal.
type ProgressManager struct {
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	program     *tea.Program
	started     bool
	done        chan struct{}
	output      io.Writer
	fallback    io.Writer
	onInterrupt func()
}

// NewProgressManager creates a manager drawing to output. Log lines written
// before Open or after Close go to fallback. onInterrupt, if set, runs when
// the user presses ctrl+c inside the program.
func NewProgressManager(output, fallback io.Writer, onInterrupt func()) *ProgressManager {
	if fallback == nil {
		fallback = io.Discard
	}
	return &ProgressManager{output: output, fallback: fallback, onInterrupt: onInterrupt}
}

// Open begins rendering in a separate goroutine.
func (pm *ProgressManager) Open(ctx context.Context) {
	if pm == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.started {
		return
	}

	program := tea.NewProgram(newProgressModel(),
		tea.WithOutput(pm.output),
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	pm.ctx, pm.cancel = context.WithCancel(ctx)
	pm.program = program
	pm.started = true
	pm.done = make(chan struct{})

	go func() {
		defer close(pm.done)
		final, _ := program.Run()
		if m, ok := final.(*progressModel); ok && m.interrupted && pm.onInterrupt != nil {
			pm.onInterrupt()
		}
		pm.cancel()
	}()

	go func() {
		<-pm.ctx.Done()
		pm.send(quitMsg{})
	}()
}

// Close stops rendering and waits briefly for the program to exit.
func (pm *ProgressManager) Close() error {
	if pm == nil {
		return nil
	}

	pm.mu.Lock()
	program := pm.program
	done := pm.done
	pm.program = nil
	pm.mu.Unlock()

	if program != nil {
		program.Send(quitMsg{})
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
	return nil
}

func (pm *ProgressManager) Start(task model.Task) {
	pm.send(registerMsg{id: task.String(), label: task.String(), start: time.Now()})
}

func (pm *ProgressManager) Report(task model.Task, fraction float64) {
	pm.send(updateMsg{id: task.String(), fraction: fraction})
}

func (pm *ProgressManager) Complete(task model.Task, artifact Artifact) {
	pm.send(finishMsg{id: task.String(), detail: fmt.Sprintf("%s · %.2f MB", artifact.Name, artifact.SizeMB)})
}

func (pm *ProgressManager) Stop(task model.Task, err error) {
	msg := stoppedMsg{id: task.String(), label: task.String()}
	if err != nil {
		msg.reason = err.Error()
	}
	pm.send(msg)
}

// Write renders each non-empty line of p above the progress bars.
func (pm *ProgressManager) Write(p []byte) (int, error) {
	if pm == nil {
		return len(p), nil
	}
	pm.mu.Lock()
	program := pm.program
	pm.mu.Unlock()
	if program == nil {
		return pm.fallback.Write(p)
	}
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		program.Send(logMsg{level: levelOfLine(line), text: line})
	}
	return len(p), nil
}

func (pm *ProgressManager) send(msg tea.Msg) {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	program := pm.program
	pm.mu.Unlock()
	if program != nil {
		program.Send(msg)
	}
}

type logLevel int

const (
	logInfo logLevel = iota
	logWarn
	logError
)

// levelOfLine picks a style for a console-encoded log line.
func levelOfLine(line string) logLevel {
	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, "ERROR"), strings.Contains(upper, "FATAL"), strings.Contains(upper, "PANIC"):
		return logError
	case strings.Contains(upper, "WARN"):
		return logWarn
	}
	return logInfo
}

type registerMsg struct {
	id    string
	label string
	start time.Time
}

type updateMsg struct {
	id       string
	fraction float64
}

type finishMsg struct {
	id     string
	detail string
}

type stoppedMsg struct {
	id     string
	label  string
	reason string
}

type logMsg struct {
	level logLevel
	text  string
}

type quitMsg struct{}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0B0B0B")).
			Background(lipgloss.Color("#FFE66D")).
			Bold(true).
			Padding(0, 1)

	percentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00F5D4")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8F8F2")).
			Bold(true)

	progressBarStyle = lipgloss.NewStyle().
				Bold(true)

	etaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6ADC8")).
			Faint(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D27A")).
			Bold(true)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	logInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7FDBFF")).
			Bold(true)

	logWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD166")).
			Bold(true)

	logErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7FDBFF"))
)

const maxLogLines = 3

type progressModel struct {
	tasks       map[string]*progressTask
	order       []string
	width       int
	height      int
	quit        bool
	interrupted bool
	logs        []string
	vp          viewport.Model
}

type taskState int

const (
	taskRunning taskState = iota
	taskDone
	taskStopped
)

type progressTask struct {
	id       string
	label    string
	started  time.Time
	finished time.Time
	percent  float64
	detail   string
	state    taskState
	bar      progressbar.Model
	spin     spinner.Model
}

func newProgressModel() *progressModel {
	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true
	vp.Style = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7FDBFF"))
	return &progressModel{
		tasks:  make(map[string]*progressTask),
		order:  make([]string, 0),
		width:  80,
		height: 24,
		vp:     vp,
	}
}

func barWidth(total int) int {
	width := total - 10
	if width < 10 {
		return 10
	}
	return width
}

func truncateLine(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}
	if width <= 3 {
		return text[:width]
	}
	return text[:width-3] + "..."
}

func (m *progressModel) Init() tea.Cmd {
	return nil
}

func (m *progressModel) addTask(id, label string, start time.Time) (*progressTask, tea.Cmd) {
	if task, ok := m.tasks[id]; ok {
		return task, nil
	}
	m.order = append(m.order, id)
	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = spinnerStyle
	bar := progressbar.New(
		progressbar.WithGradient("#FF006E", "#00F5FF"),
		progressbar.WithWidth(barWidth(m.width)),
		progressbar.WithoutPercentage(),
	)
	task := &progressTask{
		id:      id,
		label:   label,
		started: start,
		bar:     bar,
		spin:    spin,
	}
	m.tasks[id] = task
	return task, tea.Batch(task.bar.SetPercent(0), task.spin.Tick)
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 2 + len(m.logs)
		borderHeight := 2
		m.vp.Width = msg.Width - 2
		m.vp.Height = msg.Height - headerHeight - borderHeight
		m.vp, _ = m.vp.Update(msg)
		for _, task := range m.tasks {
			task.bar.Width = barWidth(m.width)
		}
	case registerMsg:
		_, cmd := m.addTask(msg.id, msg.label, msg.start)
		return m, cmd
	case updateMsg:
		if task, ok := m.tasks[msg.id]; ok && task.state == taskRunning {
			task.percent = math.Min(1, math.Max(0, msg.fraction))
			return m, task.bar.SetPercent(task.percent)
		}
	case finishMsg:
		if task, ok := m.tasks[msg.id]; ok {
			task.percent = 1
			task.state = taskDone
			task.detail = msg.detail
			task.finished = time.Now()
			return m, task.bar.SetPercent(1)
		}
	case stoppedMsg:
		// Tasks cancelled while queued were never registered.
		task, cmd := m.addTask(msg.id, msg.label, time.Now())
		task.state = taskStopped
		task.detail = msg.reason
		task.finished = time.Now()
		return m, cmd
	case logMsg:
		var style lipgloss.Style
		switch msg.level {
		case logError:
			style = logErrorStyle
		case logWarn:
			style = logWarnStyle
		default:
			style = logInfoStyle
		}
		m.logs = append(m.logs, style.Render(truncateLine(msg.text, m.width)))
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.interrupted = true
			return m, tea.Quit
		case "up", "k":
			m.vp.SetYOffset(m.vp.YOffset - 1)
		case "down", "j":
			m.vp.SetYOffset(m.vp.YOffset + 1)
		case "pgup":
			m.vp.HalfViewUp()
		case "pgdown", "f", " ":
			m.vp.HalfViewDown()
		case "home", "g":
			m.vp.GotoTop()
		case "end", "G":
			m.vp.GotoBottom()
		}
		return m, nil
	case progressbar.FrameMsg:
		cmds := make([]tea.Cmd, 0, len(m.tasks))
		for _, task := range m.tasks {
			next, cmd := task.bar.Update(msg)
			if updated, ok := next.(progressbar.Model); ok {
				task.bar = updated
			}
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
		return m, tea.Batch(cmds...)
	case spinner.TickMsg:
		cmds := make([]tea.Cmd, 0, len(m.tasks))
		for _, task := range m.tasks {
			if task.state != taskRunning {
				continue
			}
			updated, cmd := task.spin.Update(msg)
			task.spin = updated
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
		return m, tea.Batch(cmds...)
	case quitMsg:
		m.quit = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *progressModel) counts() (running, done, stopped int) {
	for _, task := range m.tasks {
		switch task.state {
		case taskDone:
			done++
		case taskStopped:
			stopped++
		default:
			running++
		}
	}
	return running, done, stopped
}

func (m *progressModel) View() string {
	if m.quit {
		return ""
	}

	var b strings.Builder
	for _, line := range m.logs {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(m.order) == 0 {
		return b.String()
	}

	var content strings.Builder
	for _, id := range m.order {
		task, ok := m.tasks[id]
		if !ok {
			continue
		}

		percentText := percentStyle.Render(fmt.Sprintf("%5.1f%%", task.percent*100))
		labelText := labelStyle.Render(task.label)

		var statusText string
		switch task.state {
		case taskDone:
			statusText = doneStyle.Render("✓")
		case taskStopped:
			statusText = stoppedStyle.Render("✗")
		default:
			statusText = spinnerStyle.Render(task.spin.View())
		}
		content.WriteString(fmt.Sprintf("%s %s %s\n", statusText, percentText, labelText))
		content.WriteString(progressBarStyle.Render(task.bar.View()))
		content.WriteString("\n")

		var detail string
		switch task.state {
		case taskDone:
			elapsed := task.finished.Sub(task.started)
			detail = etaStyle.Render(fmt.Sprintf("%s · completed in %s", task.detail, formatDurationShort(elapsed)))
		case taskStopped:
			detail = stoppedStyle.Render(truncateLine("stopped: "+task.detail, m.width-8))
		default:
			elapsed := time.Since(task.started)
			detail = etaStyle.Render(fmt.Sprintf("elapsed %s · eta %s",
				formatDurationShort(elapsed),
				formatDurationShort(estimateETA(task.percent, elapsed))))
		}
		content.WriteString(fmt.Sprintf("        %s\n", detail))
	}

	running, done, stopped := m.counts()
	m.vp.SetContent(content.String())
	b.WriteString(titleStyle.Render(" Downloads"))
	b.WriteString(" ")
	b.WriteString(etaStyle.Render(fmt.Sprintf("(↑/↓ scroll, %d running, %d done, %d failed)", running, done, stopped)))
	b.WriteString("\n")
	b.WriteString(m.vp.View())
	return b.String()
}

func estimateETA(fraction float64, elapsed time.Duration) time.Duration {
	if fraction <= 0 || fraction >= 1 {
		return 0
	}
	return time.Duration(float64(elapsed) * (1 - fraction) / fraction)
}

func formatDurationShort(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(math.Mod(d.Seconds(), 60)))
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(math.Mod(d.Minutes(), 60)))
}
