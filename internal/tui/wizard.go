package tui

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gitmzc/claude-code-bridge/internal/core"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
	"github.com/gitmzc/claude-code-bridge/internal/core/terminal"
)

// wizardNextMsg is emitted by a step model when it is ready to advance.
type wizardNextMsg struct{}

// wizardDoneMsg is emitted by wizardModel when the last step completes.
type wizardDoneMsg struct{}

// wizardBackMsg is emitted by wizardModel when esc is pressed on step 0.
type wizardBackMsg struct{}

// wizardStep defines one step in a wizard flow.
type wizardStep struct {
	name    string    // shown in the step indicator
	content tea.Model // the step's own model
}

// wizardModel is a multi-step wrapper with a breadcrumb indicator. Step
// models emit wizardNextMsg to advance; esc goes back one step.
type wizardModel struct {
	width, height int

	steps     []wizardStep
	activeIdx int
}

func newWizardModel(steps []wizardStep) wizardModel {
	return wizardModel{steps: steps}
}

func (m wizardModel) setSize(width, height int) wizardModel {
	m.width = width
	m.height = height
	return m
}

func (m wizardModel) activeStep() *wizardStep {
	if m.activeIdx >= 0 && m.activeIdx < len(m.steps) {
		return &m.steps[m.activeIdx]
	}
	return nil
}

func (m wizardModel) update(msg tea.Msg) (wizardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case wizardNextMsg:
		if m.activeIdx >= len(m.steps)-1 {
			return m, func() tea.Msg { return wizardDoneMsg{} }
		}
		m.activeIdx++
		return m, m.steps[m.activeIdx].content.Init()

	case tea.KeyMsg:
		if key.Matches(msg, keys.Back) {
			if m.activeIdx > 0 {
				m.activeIdx--
				return m, m.steps[m.activeIdx].content.Init()
			}
			return m, func() tea.Msg { return wizardBackMsg{} }
		}
	}

	if step := m.activeStep(); step != nil {
		var cmd tea.Cmd
		step.content, cmd = step.content.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m wizardModel) view() string {
	if len(m.steps) == 0 {
		return ""
	}
	content := lipgloss.JoinVertical(lipgloss.Left, m.renderStepIndicator(), "", m.steps[m.activeIdx].content.View())
	return wizardContentStyle.Render(content)
}

// renderStepIndicator draws the breadcrumb strip:
//
//	Terminal → Providers → Mode → Heartbeat → Review
//	           ─────────
func (m wizardModel) renderStepIndicator() string {
	var parts []string
	for i, step := range m.steps {
		if i == m.activeIdx {
			parts = append(parts, wizardStepActiveStyle.Render(step.name))
		} else {
			parts = append(parts, wizardStepInactiveStyle.Render(step.name))
		}
	}
	sep := wizardStepSeparatorStyle.Render(" → ")

	offset := 0
	for i := 0; i < m.activeIdx; i++ {
		offset += lipgloss.Width(m.steps[i].name) + lipgloss.Width(sep)
	}
	underline := wizardStepActiveStyle.Render(strings.Repeat("─", lipgloss.Width(m.steps[m.activeIdx].name)))
	return strings.Join(parts, sep) + "\n" + strings.Repeat(" ", offset) + underline
}

// ---------------------------------------------------------------------------
// Step models
// ---------------------------------------------------------------------------

type choiceItem struct {
	value string
	title string
	desc  string
}

func (i choiceItem) Title() string       { return i.title }
func (i choiceItem) Description() string { return i.desc }
func (i choiceItem) FilterValue() string { return i.value }

// choiceStep picks one value from a list.
type choiceStep struct {
	prompt string
	list   list.Model
	chosen string
}

func newChoiceStep(prompt string, items []choiceItem, initial string) choiceStep {
	var li []list.Item
	selected := 0
	for i, it := range items {
		li = append(li, it)
		if it.value == initial {
			selected = i
		}
	}
	l := list.New(li, newChoiceDelegate(), 60, len(items)*2+1)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetShowPagination(false)
	l.SetFilteringEnabled(false)
	l.Select(selected)
	return choiceStep{prompt: prompt, list: l, chosen: items[selected].value}
}

func (s choiceStep) Init() tea.Cmd { return nil }

func (s choiceStep) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, keys.Enter) {
		if it, ok := s.list.SelectedItem().(choiceItem); ok {
			s.chosen = it.value
		}
		return s, func() tea.Msg { return wizardNextMsg{} }
	}
	var cmd tea.Cmd
	s.list, cmd = s.list.Update(msg)
	if it, ok := s.list.SelectedItem().(choiceItem); ok {
		s.chosen = it.value
	}
	return s, cmd
}

func (s choiceStep) View() string {
	return sectionHeaderStyle.Render(s.prompt) + "\n\n" + s.list.View()
}

// multiStep toggles any number of options; at least one must stay on.
type multiStep struct {
	prompt   string
	options  []string
	selected map[string]bool
	cursor   int
	err      string
}

func newMultiStep(prompt string, options, initial []string) multiStep {
	sel := make(map[string]bool)
	for _, o := range initial {
		sel[o] = true
	}
	return multiStep{prompt: prompt, options: options, selected: sel}
}

// values returns the selected options in display order.
func (s multiStep) values() []string {
	var out []string
	for _, o := range s.options {
		if s.selected[o] {
			out = append(out, o)
		}
	}
	return out
}

func (s multiStep) Init() tea.Cmd { return nil }

func (s multiStep) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return s, nil
	}
	switch {
	case key.Matches(k, keys.Up):
		if s.cursor > 0 {
			s.cursor--
		}
	case key.Matches(k, keys.Down):
		if s.cursor < len(s.options)-1 {
			s.cursor++
		}
	case key.Matches(k, keys.Toggle):
		// selected is shared with earlier copies; clone before writing.
		sel := make(map[string]bool, len(s.selected))
		for o, v := range s.selected {
			sel[o] = v
		}
		o := s.options[s.cursor]
		sel[o] = !sel[o]
		s.selected = sel
		s.err = ""
	case key.Matches(k, keys.Enter):
		if len(s.values()) == 0 {
			s.err = "Select at least one provider"
			return s, nil
		}
		return s, func() tea.Msg { return wizardNextMsg{} }
	}
	return s, nil
}

func (s multiStep) View() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render(s.prompt) + "\n\n")
	for i, o := range s.options {
		box := "[ ]"
		if s.selected[o] {
			box = installedStyle.Render("[✓]")
		}
		line := fmt.Sprintf("%s %s", box, o)
		if i == s.cursor {
			b.WriteString(selectedItemStyle.Render("> "+line) + "\n")
		} else {
			b.WriteString(normalItemStyle.Render("  "+line) + "\n")
		}
	}
	if s.err != "" {
		b.WriteString("\n" + errorStyle.Render(s.err) + "\n")
	}
	return b.String()
}

// inputStep reads one validated line of text.
type inputStep struct {
	prompt   string
	input    textinput.Model
	validate func(string) error
	err      string
}

func newInputStep(prompt, placeholder, initial string, validate func(string) error) inputStep {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 16
	ti.Width = 20
	ti.SetValue(initial)
	ti.Focus()
	return inputStep{prompt: prompt, input: ti, validate: validate}
}

func (s inputStep) value() string { return strings.TrimSpace(s.input.Value()) }

func (s inputStep) Init() tea.Cmd { return textinput.Blink }

func (s inputStep) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, keys.Enter) {
		if s.validate != nil {
			if err := s.validate(s.value()); err != nil {
				s.err = err.Error()
				return s, nil
			}
		}
		s.err = ""
		return s, func() tea.Msg { return wizardNextMsg{} }
	}
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd
}

func (s inputStep) View() string {
	out := sectionHeaderStyle.Render(s.prompt) + "\n\n" + s.input.View()
	if s.err != "" {
		out += "\n\n" + errorStyle.Render(s.err)
	}
	return out
}

// summaryStep shows the config about to be written.
type summaryStep struct {
	text string
}

func (s summaryStep) Init() tea.Cmd { return nil }

func (s summaryStep) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, keys.Enter) {
		return s, func() tea.Msg { return wizardNextMsg{} }
	}
	return s, nil
}

func (s summaryStep) View() string {
	return sectionHeaderStyle.Render("Review") + "\n\n" + s.text + "\n" + mutedStyle.Render("Press enter to write the config.")
}

// ---------------------------------------------------------------------------
// Init wizard
// ---------------------------------------------------------------------------

const (
	stepTerminal = iota
	stepProviders
	stepMode
	stepHeartbeat
	stepReview
)

// InitOptions configure the `ccb init` wizard.
type InitOptions struct {
	WorkDir string
	Exists  bool         // a project config is already present
	Initial *core.Config // preselected answers
	// Save writes the config, returning its path and the .gitignore
	// entries added.
	Save func(cfg *core.Config, overwrite bool) (string, []string, error)
}

// InitResult is the outcome of the wizard.
type InitResult struct {
	Config    *core.Config
	Path      string
	Ignored   []string
	Cancelled bool
	Err       error
}

type initSaveMsg struct {
	overwrite bool
}

type initSavedMsg struct {
	path    string
	ignored []string
	err     error
}

// InitWizard is the bubbletea model of `ccb init`.
type InitWizard struct {
	opts    InitOptions
	wizard  wizardModel
	confirm confirmModel
	help    help.Model
	width   int
	result  InitResult
	done    bool
}

// NewInitWizard builds the five wizard steps from opts.Initial.
func NewInitWizard(opts InitOptions) InitWizard {
	cfg := opts.Initial
	if cfg == nil {
		cfg = &core.Config{}
	}

	termItems := []choiceItem{{value: "auto", title: "auto", desc: "Detect from the environment"}}
	for _, n := range terminal.Names() {
		termItems = append(termItems, choiceItem{value: n, title: n, desc: "Always use " + n + " panes"})
	}
	termInitial := cfg.Terminal
	if termInitial == "" {
		termInitial = "auto"
	}

	modeInitial := "ask"
	if cfg.AutoMode {
		modeInitial = "auto"
	}
	modeItems := []choiceItem{
		{value: "ask", title: "Ask", desc: "Providers ask before editing files"},
		{value: "auto", title: "Full auto", desc: "Start providers with approvals disabled"},
	}

	heartbeat := ""
	if cfg.HeartbeatInterval > 0 {
		heartbeat = strconv.FormatFloat(cfg.HeartbeatInterval, 'f', -1, 64)
	}

	steps := []wizardStep{
		{name: "Terminal", content: newChoiceStep("Which terminal should host the panes?", termItems, termInitial)},
		{name: "Providers", content: newMultiStep("Which providers start with `ccb up`?", provider.Names(provider.All()), cfg.Providers())},
		{name: "Mode", content: newChoiceStep("How much autonomy do providers get?", modeItems, modeInitial)},
		{name: "Heartbeat", content: newInputStep("Session heartbeat in seconds (empty or 0 disables)", "0", heartbeat, validateHeartbeat)},
		{name: "Review", content: summaryStep{}},
	}

	h := help.New()
	h.ShortSeparator = "  |  "

	return InitWizard{
		opts:    opts,
		wizard:  newWizardModel(steps),
		confirm: newConfirmModel(),
		help:    h,
	}
}

func validateHeartbeat(s string) error {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return errors.New("Enter a number of seconds, 0 or more")
	}
	return nil
}

// Config assembles the answers given so far.
func (m InitWizard) Config() *core.Config {
	cfg := &core.Config{}
	if opts := m.opts.Initial; opts != nil {
		*cfg = *opts
		cfg.DefaultProviders = slices.Clone(opts.DefaultProviders)
	}
	steps := m.wizard.steps
	if s, ok := steps[stepTerminal].content.(choiceStep); ok {
		cfg.Terminal = s.chosen
		if cfg.Terminal == "auto" {
			cfg.Terminal = ""
		}
	}
	if s, ok := steps[stepProviders].content.(multiStep); ok {
		cfg.DefaultProviders = s.values()
	}
	if s, ok := steps[stepMode].content.(choiceStep); ok {
		cfg.AutoMode = s.chosen == "auto"
	}
	if s, ok := steps[stepHeartbeat].content.(inputStep); ok {
		cfg.HeartbeatInterval, _ = strconv.ParseFloat(s.value(), 64)
	}
	return cfg
}

// Result reports the outcome once the program has exited.
func (m InitWizard) Result() InitResult { return m.result }

func (m InitWizard) summary() string {
	cfg := m.Config()
	term := cfg.Terminal
	if term == "" {
		term = "auto"
	}
	mode := "ask"
	if cfg.AutoMode {
		mode = "full auto"
	}
	heartbeat := "off"
	if d := cfg.Heartbeat(); d > 0 {
		heartbeat = d.String()
	}
	rows := [][2]string{
		{"Terminal", term},
		{"Providers", strings.Join(cfg.Providers(), ", ")},
		{"Mode", mode},
		{"Heartbeat", heartbeat},
		{"File", core.ProjectConfigPath(m.opts.WorkDir)},
	}
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-10s", r[0])), r[1])
	}
	return b.String()
}

func (m InitWizard) Init() tea.Cmd { return nil }

func (m InitWizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if c, cmd, consumed := m.confirm.update(msg); consumed {
		m.confirm = c
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.wizard = m.wizard.setSize(msg.Width, msg.Height)
		m.confirm = m.confirm.setSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.result.Cancelled = true
			return m, tea.Quit
		}

	case wizardBackMsg:
		m.result.Cancelled = true
		return m, tea.Quit

	case wizardDoneMsg:
		if m.opts.Exists {
			m.confirm = m.confirm.show(".ccb-config.json exists. Overwrite it?", "Overwrite", "Keep", func() tea.Msg {
				return initSaveMsg{overwrite: true}
			})
			return m, nil
		}
		return m, m.save(false)

	case initSaveMsg:
		return m, m.save(msg.overwrite)

	case confirmResultMsg:
		if !msg.confirmed {
			m.result.Cancelled = true
			return m, tea.Quit
		}
		return m, nil

	case initSavedMsg:
		m.result.Config = m.Config()
		m.result.Path, m.result.Ignored, m.result.Err = msg.path, msg.ignored, msg.err
		m.done = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.wizard, cmd = m.wizard.update(msg)
	if m.wizard.activeIdx == stepReview {
		m.wizard.steps[stepReview].content = summaryStep{text: m.summary()}
	}
	return m, cmd
}

func (m InitWizard) save(overwrite bool) tea.Cmd {
	cfg, save := m.Config(), m.opts.Save
	return func() tea.Msg {
		if save == nil {
			return initSavedMsg{err: errors.New("no config writer")}
		}
		path, ignored, err := save(cfg, overwrite)
		return initSavedMsg{path: path, ignored: ignored, err: err}
	}
}

func (m InitWizard) View() string {
	if m.done {
		return ""
	}
	if m.confirm.active {
		return m.confirm.view()
	}

	var hk help.KeyMap = choiceHelpKeyMap{}
	switch m.wizard.activeIdx {
	case stepProviders:
		hk = multiHelpKeyMap{}
	case stepHeartbeat, stepReview:
		hk = inputHelpKeyMap{}
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		logoStyle.Render("ccb init")+headerPathStyle.Render(m.opts.WorkDir),
		"",
		m.wizard.view(),
		"",
		helpStyle.Render(m.help.View(hk)),
	)
}

// RunInitWizard runs the wizard inline and returns its result.
func RunInitWizard(opts InitOptions) (InitResult, error) {
	final, err := tea.NewProgram(NewInitWizard(opts)).Run()
	if err != nil {
		return InitResult{}, err
	}
	return final.(InitWizard).Result(), nil
}
