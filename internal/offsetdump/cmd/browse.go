package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/spf13/cobra"

	"offsetdump/internal/dump"
	"offsetdump/internal/logging"
	"offsetdump/internal/netvars"
	"offsetdump/internal/offsetdump/styles"
	"offsetdump/internal/output"
	"offsetdump/internal/trace"
	"offsetdump/internal/ui/colorize"
)

type viewMode int

const (
	viewReport viewMode = iota
	viewTables
	viewSignatures
	viewDetail
)

// maxTreeDepth bounds the nested table rendering in the detail view.
const maxTreeDepth = 8

type tableItem struct {
	name  string
	props int
}

func (i tableItem) Title() string       { return i.name }
func (i tableItem) Description() string { return "" }
func (i tableItem) FilterValue() string { return i.name }

type signatureItem struct {
	name    string
	module  string
	address uint64
	ok      bool
}

func (i signatureItem) Title() string       { return i.name }
func (i signatureItem) Description() string { return i.module }
func (i signatureItem) FilterValue() string { return i.name + " " + i.module }

// itemDelegate renders both list kinds on a single line.
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	indicator := " "
	nameStyle := styles.Dim
	if index == m.Index() {
		indicator = ">"
		nameStyle = styles.Selected
	}

	var str string
	switch i := listItem.(type) {
	case tableItem:
		str = fmt.Sprintf(" %s  %s  %s", indicator, nameStyle.Render(i.name),
			styles.Dim.Render(fmt.Sprintf("%d props", i.props)))
	case signatureItem:
		value := styles.Fail.Render("failed")
		if i.ok {
			value = styles.Offset.Render(fmt.Sprintf("0x%X", i.address))
		}
		str = fmt.Sprintf(" %s  %-32s %s  %s", indicator, nameStyle.Render(i.name), value,
			styles.Dim.Render(i.module))
	default:
		return
	}
	fmt.Fprint(w, str)
}

type dumpDoneMsg struct {
	report  *dump.Report
	written []string
	events  []trace.Event
	err     error
}

// dumpCmd runs the scan off the UI goroutine. Trace events are recorded
// instead of logged so they do not tear the alt screen.
func dumpCmd(ctx context.Context, s *session, formats []output.Format) tea.Cmd {
	return func() tea.Msg {
		rec := &trace.Recorder{}
		rep, err := dump.Run(ctx, s.proc, s.cfg, s.dumpOptions(rec))
		if err != nil {
			return dumpDoneMsg{events: rec.Events, err: err}
		}
		written, err := output.FromReport(rep, time.Now()).WriteFiles(s.cfg.Filename, formats)
		if err != nil {
			err = fmt.Errorf("write results: %w", err)
		}
		return dumpDoneMsg{report: rep, written: written, events: rec.Events, err: err}
	}
}

type model struct {
	ctx     context.Context
	session *session
	formats []output.Format

	viewport   viewport.Model
	detail     viewport.Model
	tablesList list.Model
	sigsList   list.Model
	spinner    spinner.Model
	mode       viewMode
	back       viewMode

	loading bool
	report  *dump.Report
	written []string
	events  []trace.Event
	err     error

	width  int
	height int
}

func newList(title string) list.Model {
	l := list.New([]list.Item{}, itemDelegate{}, 80, 24)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Title = title
	l.Styles.Title = styles.Title
	l.SetShowHelp(true)
	return l
}

func newModel(ctx context.Context, s *session, formats []output.Format) model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	dvp := viewport.New()
	dvp.SetWidth(80)
	dvp.SetHeight(24)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Selected

	m := model{
		ctx:        ctx,
		session:    s,
		formats:    formats,
		viewport:   vp,
		detail:     dvp,
		tablesList: newList("Tables"),
		sigsList:   newList("Signatures"),
		spinner:    sp,
		mode:       viewReport,
		loading:    true,
		width:      80,
		height:     24,
	}
	m.updateContent()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		dumpCmd(m.ctx, m.session, m.formats),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case dumpDoneMsg:
		m.loading = false
		m.report = msg.report
		m.written = msg.written
		m.events = msg.events
		m.err = msg.err
		if m.report != nil {
			m.updateLists()
		}
		m.updateContent()
		return m, nil

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		if m.loading {
			m.updateContent()
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.viewport.SetWidth(msg.Width)
			m.viewport.SetHeight(msg.Height - 2)
			m.detail.SetWidth(msg.Width)
			m.detail.SetHeight(msg.Height - 2)
			m.tablesList.SetWidth(msg.Width)
			m.tablesList.SetHeight(msg.Height - 2)
			m.sigsList.SetWidth(msg.Width)
			m.sigsList.SetHeight(msg.Height - 2)
			m.updateContent()
		}

	case tea.KeyMsg:
		if m.filtering() {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			}
		} else {
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			case "r":
				m.mode = viewReport
				return m, nil
			case "t":
				if m.report != nil {
					m.mode = viewTables
				}
				return m, nil
			case "s":
				if m.report != nil {
					m.mode = viewSignatures
				}
				return m, nil
			case "esc":
				if m.mode == viewDetail {
					m.mode = m.back
					return m, nil
				}
			case "enter":
				if m.showDetail() {
					return m, nil
				}
			case "tab":
				if m.report != nil {
					switch m.mode {
					case viewReport:
						m.mode = viewTables
					case viewTables:
						m.mode = viewSignatures
					default:
						m.mode = viewReport
					}
				}
				return m, nil
			case "shift+tab":
				if m.report != nil {
					switch m.mode {
					case viewReport:
						m.mode = viewSignatures
					case viewSignatures:
						m.mode = viewTables
					default:
						m.mode = viewReport
					}
				}
				return m, nil
			}
		}
	}

	switch m.mode {
	case viewTables:
		m.tablesList, cmd = m.tablesList.Update(msg)
	case viewSignatures:
		m.sigsList, cmd = m.sigsList.Update(msg)
	case viewDetail:
		m.detail, cmd = m.detail.Update(msg)
	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) filtering() bool {
	switch m.mode {
	case viewTables:
		return m.tablesList.FilterState() == list.Filtering
	case viewSignatures:
		return m.sigsList.FilterState() == list.Filtering
	}
	return false
}

// showDetail opens the selected table or signature. It reports whether the
// view changed.
func (m *model) showDetail() bool {
	var content string
	switch m.mode {
	case viewTables:
		item, ok := m.tablesList.SelectedItem().(tableItem)
		if !ok {
			return false
		}
		content = tableDetail(m.report, item.name)
	case viewSignatures:
		item, ok := m.sigsList.SelectedItem().(signatureItem)
		if !ok {
			return false
		}
		content = signatureDetail(m.report, item.name)
	default:
		return false
	}
	m.back = m.mode
	m.mode = viewDetail
	m.detail.SetContent(content)
	m.detail.GotoTop()
	return true
}

func (m model) View() string {
	var content string
	switch m.mode {
	case viewTables:
		content = m.tablesList.View()
	case viewSignatures:
		content = m.sigsList.View()
	case viewDetail:
		content = m.detail.View()
	default:
		content = m.viewport.View()
	}

	var menu string
	switch m.mode {
	case viewTables, viewSignatures:
		menu = " Enter: details • /: filter • R: report • Tab: cycle • Q: quit "
	case viewDetail:
		menu = " Esc: back • R: report • Q: quit "
	default:
		if m.report != nil {
			menu = " T: tables • S: signatures • Tab: cycle • Q: quit "
		} else {
			menu = " Q: quit "
		}
	}

	return content + "\n" + styles.Menu.Width(m.width).Render(menu)
}

func (m *model) updateContent() {
	var markdown string
	switch {
	case m.loading:
		markdown = fmt.Sprintf("# %s\n\n%s Scanning pid %d...",
			m.session.target.Name, m.spinner.View(), m.session.target.PID)
	case m.report == nil:
		markdown = fmt.Sprintf("# %s\n\nScan failed: %v", m.session.target.Name, m.err)
	default:
		markdown = reportMarkdown(m.report, m.session.target)
		if len(m.written) > 0 {
			markdown += "## Written\n\n"
			for _, f := range m.written {
				markdown += fmt.Sprintf("- %s\n", f)
			}
		}
		if m.err != nil {
			markdown += fmt.Sprintf("\n**%v**\n", m.err)
		}
	}

	width := m.width
	if width == 0 {
		width = 80
	}
	renderer := styles.GetMarkdownRenderer(width - 2)
	rendered, err := renderer.Render(markdown)
	if err != nil {
		rendered = markdown
	}
	m.viewport.SetContent(strings.TrimSuffix(rendered, "\n"))
}

func (m *model) updateLists() {
	var tables []list.Item
	if ix := m.report.Index; ix != nil {
		for _, name := range ix.Names() {
			t, _ := ix.Table(name)
			tables = append(tables, tableItem{name: name, props: len(t.Props)})
		}
	}
	m.tablesList.SetItems(tables)
	m.tablesList.Title = fmt.Sprintf("Tables (%d)", len(tables))

	sigs := make([]list.Item, 0, len(m.report.Signatures))
	for _, s := range m.report.Signatures {
		sigs = append(sigs, signatureItem{
			name:    s.Name,
			module:  s.Module,
			address: s.Address,
			ok:      s.OK(),
		})
	}
	m.sigsList.SetItems(sigs)
	m.sigsList.Title = fmt.Sprintf("Signatures (%d/%d)", m.report.SignaturesOK(), len(sigs))
}

// tableDetail renders a table and everything nested below it.
func tableDetail(rep *dump.Report, name string) string {
	if rep.Index == nil {
		return name + ": not found"
	}
	t, ok := rep.Index.Table(name)
	if !ok {
		return name + ": not found"
	}
	var b strings.Builder
	b.WriteString(styles.Title.Render(t.Name))
	b.WriteString(styles.Dim.Render(fmt.Sprintf("  0x%X", t.Addr)))
	b.WriteString("\n\n")
	writeTable(&b, rep.Tree, t, 1)
	return b.String()
}

func writeTable(b *strings.Builder, tree *netvars.Tree, t *netvars.PropertyTable, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, p := range t.Props {
		fmt.Fprintf(b, "%s%s  %s", indent, styles.Offset.Render(fmt.Sprintf("0x%04X", p.Offset)), p.Name)
		nested := tree.Table(p.Table)
		if nested == nil {
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(b, " %s\n", styles.Dim.Render("-> "+nested.Name))
		if depth < maxTreeDepth {
			writeTable(b, tree, nested, depth+1)
		}
	}
}

func signatureDetail(rep *dump.Report, name string) string {
	var b strings.Builder
	for _, s := range rep.Signatures {
		if s.Name != name {
			continue
		}
		b.WriteString(styles.Title.Render(s.Name))
		b.WriteString("  " + styles.Dim.Render(s.Module) + "\n\n")
		if !s.OK() {
			b.WriteString(styles.Fail.Render(s.Err.Error()) + "\n")
			return b.String()
		}
		fmt.Fprintf(&b, "  value     %s\n", styles.Offset.Render(fmt.Sprintf("0x%X", s.Address)))
		fmt.Fprintf(&b, "  absolute  0x%X\n", s.Absolute())
		fmt.Fprintf(&b, "  match     0x%X\n", s.Match)
		if s.Matches > 0 {
			fmt.Fprintf(&b, "  matches   %d\n", s.Matches)
		}
		if code := rep.Code[s.Name]; len(code) > 0 {
			b.WriteString("\n")
			for _, inst := range code {
				b.WriteString("  " + colorize.InstructionLine(inst.String()) + "\n")
			}
		}
		return b.String()
	}
	return name + ": not found"
}

func runBrowser(cmd *cobra.Command, s *session, formats []output.Format) error {
	program := tea.NewProgram(
		newModel(cmd.Context(), s, formats),
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
	)

	final, err := program.Run()
	if err != nil {
		slog.Error("TUI run error", "error", err)
		return fmt.Errorf("TUI error: %v", err)
	}

	m, ok := final.(model)
	if !ok {
		return nil
	}
	// Replay what the scan traced while the alt screen was up.
	sink := logging.TraceSink(s.logger.Logger)
	for _, e := range m.events {
		sink.Emit(e)
	}
	if len(m.written) > 0 {
		s.logger.Info("results written", "files", strings.Join(m.written, ", "))
	}
	return m.err
}
