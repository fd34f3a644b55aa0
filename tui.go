package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI message types
type RecordingStartMsg struct{}
type RecordingStopMsg struct{}
type RecordingTickMsg struct{ Duration float64 }
type AudioLevelMsg struct{ Level float64 }
type NoVoiceWarningMsg struct{}
type VoiceClearedMsg struct{}
type ProcessingMsg struct{ Provider string }
type TranscriptionMsg TranscriptionEvent
type ErrorMsg struct{ Text string }
type ModeLineMsg struct{ Text string }
type DeviceLineMsg struct{ Text string }
type tickMsg time.Time

type tuiState int

const (
	tuiStateIdle tuiState = iota
	tuiStateRecording
	tuiStateProcessing
)

const meterWidth = 30

type tuiModel struct {
	state             tuiState
	frame             int
	recordingDuration float64
	audioLevel        float64
	noVoice           bool
	provider          string
	msgCount          int
	width, height     int
	holdKey           string
	modeLine          string
	deviceLine        string
	errText           string
	last              TranscriptionEvent
	hasLast           bool
	onAction          func(action)
}

var (
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	busyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	pastedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	metricsStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle = helpStyle.Bold(true)
	meterOn      = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	meterHot     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	meterOff     = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
)

func NewTUIProgram(holdKey string, onAction func(action)) *tea.Program {
	m := tuiModel{holdKey: holdKey, onAction: onAction}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "+", "=":
			m.act(actionGainUp)
		case "-":
			m.act(actionGainDown)
		case "a":
			m.act(actionToggleAutoPaste)
		case "p":
			m.act(actionCycleProvider)
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case RecordingStartMsg:
		m.state = tuiStateRecording
		m.recordingDuration = 0
		m.audioLevel = 0
		m.noVoice = false
		m.errText = ""

	case RecordingStopMsg:
		m.state = tuiStateIdle
		m.audioLevel = 0
		m.noVoice = false

	case RecordingTickMsg:
		m.recordingDuration = msg.Duration

	case AudioLevelMsg:
		if m.state == tuiStateRecording {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
		}

	case NoVoiceWarningMsg:
		m.noVoice = true

	case VoiceClearedMsg:
		m.noVoice = false

	case ProcessingMsg:
		m.state = tuiStateProcessing
		m.provider = msg.Provider

	case TranscriptionMsg:
		m.state = tuiStateIdle
		m.msgCount++
		m.last = TranscriptionEvent(msg)
		m.hasLast = true

	case ErrorMsg:
		m.state = tuiStateIdle
		m.errText = msg.Text

	case ModeLineMsg:
		m.modeLine = msg.Text

	case DeviceLineMsg:
		m.deviceLine = msg.Text
	}
	return m, nil
}

func (m tuiModel) act(a action) {
	if m.onAction != nil {
		m.onAction(a)
	}
}

func (m tuiModel) statusLine() string {
	switch m.state {
	case tuiStateRecording:
		dot := "●"
		if m.frame%10 >= 5 {
			dot = " "
		}
		return recStyle.Render(fmt.Sprintf("%s REC %.1fs", dot, m.recordingDuration))
	case tuiStateProcessing:
		spinner := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		return busyStyle.Render(spinner[m.frame%len(spinner)] + " transcribing (" + m.provider + ")")
	}
	return idleStyle.Render("○ STANDBY")
}

// renderMeter draws the input level on a log scale from -60 dBFS to 0.
func renderMeter(level float64) string {
	filled := 0
	if level > 0 {
		db := 20 * math.Log10(level)
		filled = int(math.Round((db + 60) / 60 * meterWidth))
		filled = min(max(filled, 0), meterWidth)
	}
	var b strings.Builder
	for i := range meterWidth {
		switch {
		case i >= filled:
			b.WriteString(meterOff.Render("▁"))
		case i >= meterWidth*9/10:
			b.WriteString(meterHot.Render("█"))
		default:
			b.WriteString(meterOn.Render("█"))
		}
	}
	return b.String()
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	left := []string{m.statusLine(), renderMeter(m.audioLevel)}
	if m.noVoice {
		left = append(left, warnStyle.Render("⚠ no voice detected"))
	}
	if m.modeLine != "" {
		left = append(left, infoStyle.Render(m.modeLine))
	}
	if m.deviceLine != "" {
		left = append(left, idleStyle.Render(m.deviceLine))
	}
	if m.errText != "" {
		for _, line := range wrapText("error: "+m.errText, meterWidth+10) {
			left = append(left, errStyle.Render(line))
		}
	}
	left = append(left, "",
		helpKeyStyle.Render("hold "+m.holdKey)+helpStyle.Render(" to dictate"),
		helpStyle.Render("+/- gain  a paste  p provider  q quit"),
		helpStyle.Render("voicein "+version),
	)
	leftPanel := panelStyle.Width(meterWidth + 12).Render(strings.Join(left, "\n"))

	rightWidth := max(m.width-lipgloss.Width(leftPanel)-2, 20)
	wrapWidth := max(rightWidth-4, 10)

	var right strings.Builder
	if !m.hasLast {
		right.WriteString(idleStyle.Render("No transcriptions yet"))
	} else {
		right.WriteString(infoStyle.Render(fmt.Sprintf("Last transcription (#%d)", m.msgCount)) + "\n\n")
		if m.last.NoSpeech {
			right.WriteString(warnStyle.Render("(no speech detected)") + "\n")
		} else {
			lines := wrapText(m.last.Text, wrapWidth)
			for i, line := range lines {
				right.WriteString(textStyle.Render(line))
				if i == len(lines)-1 && m.last.Pasted {
					right.WriteString(" " + pastedStyle.Render("[✓ pasted]"))
				}
				right.WriteString("\n")
			}
		}
		if len(m.last.Metrics) > 0 {
			right.WriteString("\n")
			for _, metric := range m.last.Metrics {
				right.WriteString(metricsStyle.Render(metric) + "\n")
			}
		}
	}
	rightPanel := panelStyle.Width(rightWidth).Render(right.String())

	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
}

// wrapText breaks text on spaces so no line exceeds width runes. Words
// longer than width are split.
func wrapText(text string, width int) []string {
	if text == "" {
		return []string{""}
	}
	width = max(width, 1)

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		runes := []rune(para)
		for len(runes) > width {
			splitAt := width
			for i := width; i > 0; i-- {
				if runes[i] == ' ' {
					splitAt = i
					break
				}
			}
			lines = append(lines, string(runes[:splitAt]))
			runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
		}
		lines = append(lines, string(runes))
	}
	return lines
}

// tuiSink forwards events to the bubbletea program.
type tuiSink struct {
	p *tea.Program
}

func (s tuiSink) RecordingStart()                     { s.p.Send(RecordingStartMsg{}) }
func (s tuiSink) RecordingStop()                      { s.p.Send(RecordingStopMsg{}) }
func (s tuiSink) RecordingTick(d float64)             { s.p.Send(RecordingTickMsg{Duration: d}) }
func (s tuiSink) AudioLevel(l float64)                { s.p.Send(AudioLevelMsg{Level: l}) }
func (s tuiSink) NoVoiceWarning()                     { s.p.Send(NoVoiceWarningMsg{}) }
func (s tuiSink) VoiceCleared()                       { s.p.Send(VoiceClearedMsg{}) }
func (s tuiSink) Processing(p string)                 { s.p.Send(ProcessingMsg{Provider: p}) }
func (s tuiSink) Transcription(ev TranscriptionEvent) { s.p.Send(TranscriptionMsg(ev)) }
func (s tuiSink) Error(msg string)                    { s.p.Send(ErrorMsg{Text: msg}) }
func (s tuiSink) ModeLine(text string)                { s.p.Send(ModeLineMsg{Text: text}) }
func (s tuiSink) DeviceLine(text string)              { s.p.Send(DeviceLineMsg{Text: text}) }
