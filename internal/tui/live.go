package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/dynsph/internal/metrics"
	"github.com/san-kum/dynsph/internal/particles"
	"github.com/san-kum/dynsph/internal/sim"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	blue   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

const (
	historyLen = 240
	frameRate  = 20
)

type sampleMsg metrics.Sample

// point is one particle projected on the xz plane.
type point struct {
	x, z  float64
	class byte
}

type frameMsg struct {
	t   float64
	pts []point
}

type doneMsg struct {
	result *sim.Result
	err    error
}

type model struct {
	title    string
	duration float64
	maxSteps int
	cancel   func()

	last    metrics.Sample
	dts     []float64
	vels    []float64
	frame   []point
	frameT  float64
	started time.Time

	done   bool
	result *sim.Result
	err    error

	width  int
	height int
}

func newModel(title string, duration float64, maxSteps int, cancel func()) model {
	return model{
		title:    title,
		duration: duration,
		maxSteps: maxSteps,
		cancel:   cancel,
		started:  time.Now(),
		width:    80,
		height:   30,
	}
}

func (m model) Init() tea.Cmd { return nil }

func push(h []float64, v float64) []float64 {
	h = append(h, v)
	if len(h) > historyLen {
		h = h[len(h)-historyLen:]
	}
	return h
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case sampleMsg:
		m.last = metrics.Sample(msg)
		m.dts = push(m.dts, msg.Dt)
		m.vels = push(m.vels, msg.Extrema.VelMax)
	case frameMsg:
		m.frame, m.frameT = msg.pts, msg.t
	case doneMsg:
		m.done, m.result, m.err = true, msg.result, msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m model) progress() float64 {
	var p float64
	switch {
	case m.duration > 0:
		p = m.last.Time / m.duration
	case m.maxSteps > 0:
		p = float64(m.last.Step) / float64(m.maxSteps)
	}
	if m.maxSteps > 0 && m.duration > 0 {
		p = max(p, float64(m.last.Step)/float64(m.maxSteps))
	}
	return min(p, 1)
}

func (m model) View() string {
	var b strings.Builder

	icon, status := green.Render("●"), green.Render("running")
	switch {
	case m.done && m.err != nil:
		icon, status = red.Render("●"), red.Render("failed")
	case m.done:
		icon, status = cyan.Render("●"), cyan.Render("done")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s\n", icon, cyan.Render(m.title), status))

	barWidth := 36
	filled := int(m.progress() * float64(barWidth))
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	elapsed := time.Since(m.started).Seconds()
	b.WriteString(fmt.Sprintf("   %s %s  %s\n\n", bar,
		dim.Render(fmt.Sprintf("t=%.4fs step %d", m.last.Time, m.last.Step)),
		dim.Render(fmt.Sprintf("%.1fs wall", elapsed))))

	cw, ch := max(m.width-6, 40), max(m.height-14, 8)
	for _, row := range project(m.frame, cw, ch) {
		b.WriteString("   " + row + "\n")
	}
	if len(m.frame) > 0 {
		b.WriteString("   " + dimmer.Render(fmt.Sprintf("particles at t=%.4fs", m.frameT)) + "\n")
	}

	b.WriteString(fmt.Sprintf("\n   %s%s  %s%s  %s%s  %s%s\n",
		dim.Render("dt="), white.Render(fmt.Sprintf("%.3e", m.last.Dt)),
		dim.Render("np="), white.Render(fmt.Sprintf("%d", m.last.Np)),
		dim.Render("velmax="), white.Render(fmt.Sprintf("%.3f", m.last.Extrema.VelMax)),
		dim.Render("acemax="), white.Render(fmt.Sprintf("%.2f", m.last.Extrema.AceMax))))
	for _, body := range m.last.Bodies {
		b.WriteString(fmt.Sprintf("   %s %s\n", dim.Render(fmt.Sprintf("body %d", body.Id)),
			yellow.Render(fmt.Sprintf("z=%.4f vz=%.4f", body.Center.Z, body.Vel.Z))))
	}
	if len(m.dts) > 1 {
		b.WriteString(fmt.Sprintf("   %s %s\n", dim.Render("dt    "), cyan.Render(sparkline(m.dts, 40))))
		b.WriteString(fmt.Sprintf("   %s %s\n", dim.Render("velmax"), cyan.Render(sparkline(m.vels, 40))))
	}
	if m.err != nil {
		b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n" + dim.Render("   q stop") + "\n")
	return b.String()
}

// project draws the particles on a w x h character canvas scaled to their
// bounding box, z pointing up.
func project(pts []point, w, h int) []string {
	canvas := make([][]rune, h)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", w))
	}
	if len(pts) > 0 {
		x0, x1, z0, z1 := pts[0].x, pts[0].x, pts[0].z, pts[0].z
		for _, p := range pts {
			x0, x1 = min(x0, p.x), max(x1, p.x)
			z0, z1 = min(z0, p.z), max(z1, p.z)
		}
		sx, sz := x1-x0, z1-z0
		if sx == 0 {
			sx = 1
		}
		if sz == 0 {
			sz = 1
		}
		for _, p := range pts {
			cx := int((p.x - x0) / sx * float64(w-1))
			cy := h - 1 - int((p.z-z0)/sz*float64(h-1))
			c := canvas[cy][cx]
			switch p.class {
			case 'b':
				if c == ' ' {
					canvas[cy][cx] = '#'
				}
			case 'f':
				canvas[cy][cx] = '@'
			default:
				if c == ' ' || c == '·' {
					canvas[cy][cx] = '~'
				} else if c != '@' && c != '#' {
					canvas[cy][cx] = '·'
				}
			}
		}
	}

	rows := make([]string, h)
	for i, row := range canvas {
		var sb strings.Builder
		for _, c := range row {
			switch c {
			case '#':
				sb.WriteString(dimmer.Render("#"))
			case '@':
				sb.WriteString(yellow.Render("@"))
			case '~', '·':
				sb.WriteString(blue.Render(string(c)))
			default:
				sb.WriteRune(c)
			}
		}
		rows[i] = sb.String()
	}
	return rows
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal, maxVal = min(minVal, v), max(maxVal, v)
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	step := max(len(data)/width, 1)
	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		idx := int((data[i*step] - minVal) / rang * 7)
		sb.WriteRune(chars[min(max(idx, 0), 7)])
	}
	return sb.String()
}

// Live shows the progress of a running simulation. It is a sim.Observer and
// its OnPart method is a part observer; both may be called from the
// simulation goroutine.
type Live struct {
	program *tea.Program

	mu   sync.Mutex
	last time.Time
}

func NewLive(title string, duration float64, maxSteps int, cancel func(), opts ...tea.ProgramOption) *Live {
	return &Live{program: tea.NewProgram(newModel(title, duration, maxSteps, cancel), opts...)}
}

func (l *Live) OnStep(s metrics.Sample) {
	l.mu.Lock()
	now := time.Now()
	if now.Sub(l.last) < time.Second/frameRate {
		l.mu.Unlock()
		return
	}
	l.last = now
	l.mu.Unlock()
	l.program.Send(sampleMsg(s))
}

func (l *Live) OnPart(_ int, t float64, sn *particles.Snapshot) error {
	pts := make([]point, 0, sn.Len())
	for i, code := range sn.Code {
		p := point{x: sn.Pos[i].X, z: sn.Pos[i].Z, class: 'w'}
		switch {
		case code.IsBound():
			p.class = 'b'
		case code.IsFloating():
			p.class = 'f'
		}
		pts = append(pts, p)
	}
	l.program.Send(frameMsg{t: t, pts: pts})
	return nil
}

// Done reports the end of the run and closes the view.
func (l *Live) Done(res *sim.Result, err error) {
	l.program.Send(doneMsg{result: res, err: err})
}

// Run blocks until the run is done or the user quits.
func (l *Live) Run() error {
	_, err := l.program.Run()
	return err
}
