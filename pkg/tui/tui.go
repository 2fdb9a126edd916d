// Package tui provides a terminal user interface for hum2midi
package tui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/james-see/hum2midi/pkg/capture"
	"github.com/james-see/hum2midi/pkg/transcriber"
	"github.com/james-see/hum2midi/pkg/wavfile"
	"go.uber.org/zap"
)

// Acid-inspired color scheme
var (
	// Primary colors - acid green and silver
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)
)

// ErrNoInputDevice is shown when recording is picked without a recorder
var ErrNoInputDevice = errors.New("no input device configured")

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateRecording
	StateTranscribing
	StateResult
)

// Action is what a menu item does
type Action int

const (
	ActionTranscribeFile Action = iota
	ActionRecord
	ActionExit
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	Action      Action
}

var menuItems = []MenuItem{
	{Title: "WAV → MIDI", Description: "Transcribe a recorded WAV take to a MIDI file", Action: ActionTranscribeFile},
	{Title: "Record → MIDI", Description: "Hum or tap into the microphone, then transcribe", Action: ActionRecord},
	{Title: "Exit", Description: "Exit the application", Action: ActionExit},
}

// Config wires the TUI to the engine
type Config struct {
	Settings transcriber.Settings
	Logger   *zap.Logger
	// Recorder backs the record menu entry. Nil disables recording.
	Recorder *capture.Recorder
	// RecordOutput is the MIDI file written for a recorded take
	RecordOutput string
}

// Model represents the TUI model
type Model struct {
	cfg          Config
	state        State
	menuIndex    int
	filePicker   filepicker.Model
	spinner      spinner.Model
	selectedFile string
	outputFile   string
	action       MenuItem
	result       *transcriber.Result
	recorded     int
	err          error
	width        int
	height       int
}

// transcriptionDoneMsg signals transcription completion
type transcriptionDoneMsg struct {
	outputFile string
	result     *transcriber.Result
	err        error
}

// recordStartedMsg reports whether the recorder started
type recordStartedMsg struct {
	err error
}

// recordTickMsg refreshes the recording view
type recordTickMsg time.Time

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick)
}

// New creates a new TUI model
func New(cfg Config) Model {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RecordOutput == "" {
		cfg.RecordOutput = "out.mid"
	}

	// Initialize file picker
	fp := filepicker.New()
	fp.AllowedTypes = []string{".wav", ".wave"}
	fp.CurrentDirectory, _ = os.Getwd()

	// Initialize spinner
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	return Model{
		cfg:        cfg,
		state:      StateMenu,
		menuIndex:  0,
		filePicker: fp,
		spinner:    s,
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle file picker state first - it needs to receive all messages
	if m.state == StateFilePicker {
		// Check for escape/quit keys first
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMenu
				return m, nil
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

		// Pass all other messages to the file picker
		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		// Check if file was selected
		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.selectedFile = path
			m.state = StateTranscribing
			return m, tea.Batch(m.spinner.Tick, m.transcribeFile())
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateRecording:
			return m.updateRecording(msg)
		case StateResult:
			return m.updateResult(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case recordStartedMsg:
		if msg.err != nil {
			m.state = StateResult
			m.err = msg.err
			return m, nil
		}
		m.state = StateRecording
		m.recorded = 0
		return m, tea.Batch(m.spinner.Tick, recordTick())

	case recordTickMsg:
		if m.state != StateRecording {
			return m, nil
		}
		m.recorded = m.cfg.Recorder.Len()
		select {
		case <-m.cfg.Recorder.Full():
			m.state = StateTranscribing
			return m, m.stopAndTranscribe()
		default:
		}
		return m, recordTick()

	case transcriptionDoneMsg:
		m.state = StateResult
		m.outputFile = msg.outputFile
		m.result = msg.result
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(menuItems)-1 {
			m.menuIndex++
		}
	case "enter":
		m.action = menuItems[m.menuIndex]
		switch m.action.Action {
		case ActionExit:
			return m, tea.Quit
		case ActionRecord:
			if m.cfg.Recorder == nil {
				m.state = StateResult
				m.err = ErrNoInputDevice
				return m, nil
			}
			return m, m.startRecording()
		default:
			m.state = StateFilePicker
			return m, m.filePicker.Init()
		}
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateRecording(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "s":
		m.state = StateTranscribing
		return m, tea.Batch(m.spinner.Tick, m.stopAndTranscribe())
	case "esc":
		_, _ = m.cfg.Recorder.Stop()
		m.state = StateMenu
		return m, nil
	case "ctrl+c":
		_, _ = m.cfg.Recorder.Stop()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.state = StateMenu
		m.err = nil
		m.result = nil
		m.selectedFile = ""
		m.outputFile = ""
		return m, nil
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func recordTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return recordTickMsg(t)
	})
}

func (m Model) startRecording() tea.Cmd {
	rec := m.cfg.Recorder
	return func() tea.Msg {
		return recordStartedMsg{err: rec.Start()}
	}
}

func (m Model) transcriber() *transcriber.Transcriber {
	return transcriber.New(
		transcriber.WithSettings(m.cfg.Settings),
		transcriber.WithLogger(m.cfg.Logger),
	)
}

func (m Model) stopAndTranscribe() tea.Cmd {
	rec := m.cfg.Recorder
	tr := m.transcriber()
	output := m.cfg.RecordOutput
	logger := m.cfg.Logger
	return func() tea.Msg {
		take, err := rec.Stop()
		if take == nil {
			return transcriptionDoneMsg{err: err}
		}
		if err != nil {
			logger.Warn("capture did not stop cleanly", zap.Error(err))
		}
		if err := take.Err(); err != nil {
			logger.Warn("take truncated", zap.Error(err))
		}

		res, err := tr.TranscribeToFile(take.Float64(), take.SampleRate, output)
		if err != nil {
			return transcriptionDoneMsg{err: err}
		}
		return transcriptionDoneMsg{outputFile: output, result: res}
	}
}

func (m Model) transcribeFile() tea.Cmd {
	path := m.selectedFile
	tr := m.transcriber()
	return func() tea.Msg {
		sound, err := wavfile.Load(path)
		if err != nil {
			return transcriptionDoneMsg{err: err}
		}

		// Generate output filename
		outputFile := strings.TrimSuffix(path, filepath.Ext(path)) + ".mid"

		res, err := tr.TranscribeToFile(sound.Mono(), sound.SampleRate(), outputFile)
		if err != nil {
			return transcriptionDoneMsg{err: err}
		}
		return transcriptionDoneMsg{outputFile: outputFile, result: res}
	}
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	// Header
	header := asciiLogo()
	s.WriteString(header)
	s.WriteString("\n")

	switch m.state {
	case StateMenu:
		s.WriteString(m.viewMenu())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateRecording:
		s.WriteString(m.viewRecording())
	case StateTranscribing:
		s.WriteString(m.viewTranscribing())
	case StateResult:
		s.WriteString(m.viewResult())
	}

	// Footer help
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • q: quit"))

	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT SOURCE "))
	s.WriteString("\n\n")

	for i, item := range menuItems {
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", item.Title)))
			s.WriteString("\n")
			s.WriteString(lipgloss.NewStyle().Foreground(acidYellow).PaddingLeft(4).Render(item.Description))
		} else {
			s.WriteString(menuStyle.Render(fmt.Sprintf("  %s", item.Title)))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT WAV FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return s.String()
}

func (m Model) viewRecording() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" RECORDING "))
	s.WriteString("\n\n")
	rate := m.cfg.Recorder.SampleRate()
	elapsed := 0.0
	if rate > 0 {
		elapsed = float64(m.recorded) / float64(rate)
	}
	limit := float64(m.cfg.Recorder.Capacity()) / float64(max(rate, 1))
	s.WriteString(fmt.Sprintf("%s Listening... %.1fs / %.0fs\n", m.spinner.View(), elapsed, limit))
	s.WriteString(statusStyle.Render("  enter: stop and transcribe • esc: discard"))

	return boxStyle.Render(s.String())
}

func (m Model) viewTranscribing() string {
	var s strings.Builder

	source := "recording"
	if m.selectedFile != "" {
		source = filepath.Base(m.selectedFile)
	}
	s.WriteString(titleStyle.Render(" TRANSCRIBING "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s Transcribing %s...\n", m.spinner.View(), source))
	s.WriteString(statusStyle.Render("  audio → midi"))

	return boxStyle.Render(s.String())
}

func (m Model) viewResult() string {
	var s strings.Builder

	if m.err != nil {
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Transcription failed: %s", m.err.Error())))
	} else {
		s.WriteString(titleStyle.Render(" SUCCESS "))
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render("✓ Transcription complete!"))
		s.WriteString("\n\n")
		if m.selectedFile != "" {
			s.WriteString(fmt.Sprintf("Input:  %s\n", filepath.Base(m.selectedFile)))
		}
		s.WriteString(fmt.Sprintf("Output: %s\n", filepath.Base(m.outputFile)))
		if m.result != nil {
			s.WriteString(fmt.Sprintf("Tempo:  %.2f BPM over %d bar(s)\n", m.result.Tempo.BPM, m.result.Tempo.Bars))
			s.WriteString(fmt.Sprintf("Notes:  %d", len(m.result.Events)))
		}
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
  _   _ _   _ __  __ ____  __  __ ___ ____ ___
 | | | | | | |  \/  |___ \|  \/  |_ _|  _ \_ _|
 | |_| | | | | |\/| | __) | |\/| || || | | | |
 |  _  | |_| | |  | |/ __/| |  | || || |_| | |
 |_| |_|\___/|_|  |_|_____|_|  |_|___|____/___|
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}

// Run starts the TUI application
func Run(cfg Config) error {
	p := tea.NewProgram(New(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
