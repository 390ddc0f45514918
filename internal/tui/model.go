package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"antbot/internal/chunker"
	"antbot/internal/domain"
	"antbot/internal/session"
)

// ChatPort is the TUI-facing subset of a conversation session.
type ChatPort interface {
	Ask(ctx context.Context, query string) (session.Turn, error)
	Turns() []session.Turn
	Reset()
}

type answerMsg struct {
	turn session.Turn
	err  error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx         context.Context
	chat        ChatPort
	input       textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	title       string
	summary     string
	welcome     string
	status      string
	pending     string
	thinking    bool
	ready       bool
	showSources bool
	sources     []domain.ScoredChunk
	cursor      int
	lastQuery   string
}

// New creates a chat model. summary is shown under the title; welcome fills an empty conversation.
func New(ctx context.Context, chat ChatPort, title, summary, welcome string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		ctx:      ctx,
		chat:     chat,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		title:    title,
		summary:  summary,
		welcome:  welcome,
		status:   "Ready. Enter to ask, Tab for sources, Ctrl+R to reset.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := boxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + summary, status, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.thinking = false
		m.pending = ""
		m.sources = msg.turn.Sources
		m.cursor = 0
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Answered from %d manual sections.", len(m.sources))
		}
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.thinking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.thinking {
				return m, nil
			}
			m.input.Reset()
			m.thinking = true
			m.pending = q
			m.lastQuery = q
			m.showSources = false
			m.status = "Searching the manual..."
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		case "ctrl+r":
			if m.thinking {
				return m, nil
			}
			m.chat.Reset()
			m.sources = nil
			m.showSources = false
			m.status = "Conversation reset."
			m.refresh()
			return m, nil
		case "tab":
			m.showSources = !m.showSources
			m.refresh()
			return m, nil
		case "down":
			if m.showSources && len(m.sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.sources)
				m.refresh()
				return m, nil
			}
		case "up":
			if m.showSources && len(m.sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.sources)) % len(m.sources)
				m.refresh()
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	ctx, chat := m.ctx, m.chat
	return func() tea.Msg {
		turn, err := chat.Ask(ctx, q)
		return answerMsg{turn: turn, err: err}
	}
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	body := boxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.thinking {
		status = m.spinner.View() + " " + status
	}
	status = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(status)
	return header + "\n" + summary + "\n" + body + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	if m.showSources {
		m.viewport.SetContent(m.renderCurrentSource())
		m.viewport.GotoTop()
		return
	}
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m Model) renderConversation() string {
	turns := m.chat.Turns()
	if len(turns) == 0 && m.pending == "" {
		return welcomeStyle.Render(m.welcome)
	}
	width := max(10, m.viewport.Width-2)
	wrap := lipgloss.NewStyle().Width(width)
	var sb strings.Builder
	for _, t := range turns {
		if t.Role == domain.RoleUser {
			sb.WriteString(userStyle.Render("You") + "\n")
		} else {
			sb.WriteString(botStyle.Render("AntBot") + "\n")
		}
		sb.WriteString(wrap.Render(t.Content) + "\n\n")
	}
	if m.pending != "" && (len(turns) == 0 || turns[len(turns)-1].Content != m.pending) {
		sb.WriteString(userStyle.Render("You") + "\n" + wrap.Render(m.pending) + "\n\n")
	}
	if m.thinking {
		sb.WriteString(botStyle.Render("AntBot") + "\n" + m.spinner.View())
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m Model) renderCurrentSource() string {
	if len(m.sources) == 0 {
		return "No sources for the last answer."
	}
	r := m.sources[m.cursor]
	title := fmt.Sprintf("Source %d/%d  score=%.0f  section #%d", m.cursor+1, len(m.sources), r.Score, r.Chunk.Index+1)
	body := highlightBestSentence(r.Chunk.Text, m.lastQuery)
	return title + "\n\n" + lipgloss.NewStyle().Width(max(10, m.viewport.Width-2)).Render(body)
}

var (
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	welcomeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := chunker.SplitSentences(strings.TrimSpace(text))
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	out := make([]string, len(sentences))
	for i, sent := range sentences {
		sent = strings.TrimSpace(sent)
		if i == bestIdx && bestScore > 0 {
			sent = highlightStyle.Render(sent)
		}
		out[i] = sent
	}
	return strings.Join(out, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
