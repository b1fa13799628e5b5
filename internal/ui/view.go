package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"restorepick/internal/domain"
	"restorepick/internal/filetree"
	"restorepick/internal/state"
)

const maxPanelEntries = 8

type uiStyles struct {
	headerStyle  lipgloss.Style
	mutedStyle   lipgloss.Style
	statusStyle  lipgloss.Style
	warnStyle    lipgloss.Style
	cursorStyle  lipgloss.Style
	checkedStyle lipgloss.Style
	mixedStyle   lipgloss.Style
	panelBorder  lipgloss.Style
}

func stylesFor(model Model) uiStyles {
	if strings.ToLower(model.state.Prefs.Theme) == "light" {
		return uiStyles{
			headerStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("235")),
			mutedStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
			statusStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("25")).Bold(true),
			warnStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("124")).Bold(true),
			cursorStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("90")).Bold(true),
			checkedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("28")).Bold(true),
			mixedStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("130")).Bold(true),
			panelBorder:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		}
	}
	return uiStyles{
		headerStyle:  lipgloss.NewStyle().Bold(true),
		mutedStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		statusStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("69")).Bold(true),
		warnStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Bold(true),
		cursorStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		checkedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		mixedStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		panelBorder:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

func (model Model) View() string {
	styles := stylesFor(model)
	if model.showHelp {
		return renderHelpView(model, styles)
	}
	body := renderBody(model, styles)
	footer := renderFooter(model, styles)
	return strings.Join([]string{body, footer}, "\n")
}

func renderBody(model Model, styles uiStyles) string {
	visible := model.state.VisibleNodes()
	bodyHeight := maxInt(model.listHeight(), 3)

	leftWidth, rightWidth, showRight := splitPanels(model.width)
	left := renderTreePanel(model, styles, visible, bodyHeight, leftWidth)
	if !showRight {
		return left
	}
	sep := lipgloss.NewStyle().Foreground(lipgloss.Color("238")).Render("│")
	right := renderSidePanel(model, styles, rightWidth, bodyHeight)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, sep, right)
}

func renderFooter(model Model, styles uiStyles) string {
	statusLine := trimStatus(model.status, model.width)
	if model.running {
		statusLine = fmt.Sprintf("%s  %s", statusLine, progressBar(model.progressCount, 18))
	}
	statusStyle := styles.mutedStyle
	lower := strings.ToLower(model.status)
	if strings.Contains(lower, "error") || strings.Contains(lower, "warning") || strings.Contains(lower, "not in snapshot") {
		statusStyle = styles.warnStyle
	}
	statusLine = statusStyle.Render(statusLine)

	list := model.state.SelectionSummary()
	selection := fmt.Sprintf("Selected: %d  Include: %d  Exclude: %d  Items: %s",
		len(model.state.Tree.SelectedList()), len(list.IncludeList), len(list.ExcludeList), humanize.Comma(int64(list.TotalItems)))
	order := fmt.Sprintf("Order: %s", strings.ToUpper(string(model.state.Prefs.SortMode)))
	hidden := "Hidden: off"
	if model.state.Prefs.ShowHidden {
		hidden = "Hidden: on"
	}
	search := ""
	if model.state.SearchQuery != "" {
		search = fmt.Sprintf("  Search[%s]", model.state.SearchQuery)
	}
	left := fmt.Sprintf("%s  %s  %s%s", selection, order, hidden, search)
	keys := "↑/↓ move  enter expand  ← collapse  space check  r restore  d download  s snapshot  / search  ? help  q quit"
	switch {
	case model.confirming:
		keys = "y confirm  n cancel"
	case model.mode != inputNone:
		keys = "enter apply  esc cancel"
	}
	footerLine := padLine(left, keys, model.width)
	return strings.Join([]string{statusLine, styles.mutedStyle.Render(footerLine)}, "\n")
}

func renderTreePanel(model Model, styles uiStyles, visible []state.VisibleNode, height, width int) string {
	if width < 20 {
		width = 20
	}
	contentWidth := maxInt(width-2, 10)
	snapshot := model.state.RewindID
	if snapshot == "" {
		snapshot = "-"
	}
	status := "READY"
	if len(model.state.Loading) > 0 {
		status = "LOADING"
	}
	if model.running {
		status = kindLabel(model.pendingKind)
	}
	headerLine := padLine(styles.headerStyle.Render("restorepick")+"  snapshot "+snapshot, styles.statusStyle.Render(status), contentWidth)
	listHeight := maxInt(height-1, 1)

	start := clamp(model.viewTop, 0, maxInt(len(visible)-1, 0))
	end := start + listHeight
	if end > len(visible) {
		end = len(visible)
	}

	lines := make([]string, 0, height)
	lines = append(lines, headerLine)
	for index := start; index < end; index++ {
		item := visible[index]
		line := renderRow(model, styles, item)
		if index == model.state.Cursor {
			line = styles.cursorStyle.Render(line)
		}
		lines = append(lines, line)
	}
	if len(visible) == 1 && model.state.IsLoading(model.state.Tree.Root()) {
		lines = append(lines, styles.mutedStyle.Render("  loading..."))
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return styles.panelBorder.Width(contentWidth).Render(strings.Join(lines, "\n"))
}

func renderRow(model Model, styles uiStyles, item state.VisibleNode) string {
	node := item.Node
	indent := strings.Repeat("  ", item.Depth)
	arrow := " "
	if node.HasChildren {
		arrow = "▸"
		if model.state.IsExpanded(node.Index) {
			arrow = "▾"
		}
	}
	name := node.Path
	if node.HasChildren && !node.IsRoot() {
		name += "/"
	}
	suffix := ""
	if model.state.IsLoading(node) {
		suffix = "  …"
	}
	return fmt.Sprintf("%9s %s %s%s %s%s", amountLabel(node), checkMarker(styles, node.CheckState), indent, arrow, name, suffix)
}

func checkMarker(styles uiStyles, checkState domain.CheckState) string {
	switch checkState {
	case domain.Checked:
		return styles.checkedStyle.Render("[x]")
	case domain.Mixed:
		return styles.mixedStyle.Render("[-]")
	default:
		return "[ ]"
	}
}

func amountLabel(node *filetree.Node) string {
	if node.IsRoot() {
		return ""
	}
	if node.HasChildren {
		if node.TotalItems == 0 {
			return "--"
		}
		return humanize.Comma(int64(node.TotalItems))
	}
	return humanize.Bytes(uint64(maxInt64(node.Size, 0)))
}

func renderSidePanel(model Model, styles uiStyles, width, height int) string {
	if model.confirming {
		return renderConfirmPanel(model, styles, width, height)
	}
	if model.mode != inputNone {
		return renderInputPanel(model, styles, width, height)
	}
	return renderDetailPanel(model, styles, width, height)
}

func renderDetailPanel(model Model, styles uiStyles, width, height int) string {
	contentWidth := maxInt(width-2, 10)
	node := model.state.CurrentNode()
	if node == nil {
		return styles.panelBorder.Width(contentWidth).Render("No selection")
	}
	modified := "-"
	if !node.ModTime.IsZero() {
		modified = fmt.Sprintf("%s (%s)", node.ModTime.Format("2006-01-02 15:04"), humanize.Time(node.ModTime))
	}
	id := node.ID
	if id == "" {
		id = "-"
	}
	lines := []string{
		styles.headerStyle.Render("Path"),
		model.state.Tree.FullPath(node),
		"",
		fmt.Sprintf("ID   : %s", id),
		fmt.Sprintf("Type : %s", node.Type),
		fmt.Sprintf("Check: %s", node.CheckState),
	}
	if node.HasChildren {
		loaded := "no"
		if node.ChildrenLoaded {
			loaded = fmt.Sprintf("yes (%d)", len(node.Children))
		}
		lines = append(lines,
			fmt.Sprintf("Items: %s", humanize.Comma(int64(node.TotalItems))),
			fmt.Sprintf("Loaded: %s", loaded),
		)
	} else {
		lines = append(lines, fmt.Sprintf("Size : %s", humanize.Bytes(uint64(maxInt64(node.Size, 0)))))
	}
	lines = append(lines, "", styles.headerStyle.Render("Modified"), modified)

	content := lipgloss.NewStyle().Width(contentWidth).Height(height).Render(strings.Join(lines, "\n"))
	return styles.panelBorder.Width(contentWidth).Render(content)
}

func renderConfirmPanel(model Model, styles uiStyles, width, height int) string {
	list := model.pendingList
	lines := []string{
		styles.headerStyle.Render(kindLabel(model.pendingKind) + " preview"),
		fmt.Sprintf("Snapshot: %s", model.state.RewindID),
		fmt.Sprintf("Items   : %s", humanize.Comma(int64(list.TotalItems))),
	}
	if model.pendingDestination != "" {
		lines = append(lines, fmt.Sprintf("Dest    : %s", model.pendingDestination))
	}
	lines = append(lines, "", styles.headerStyle.Render("Include"))
	lines = append(lines, entryLines(list.IncludeList)...)
	if len(list.ExcludeList) > 0 {
		lines = append(lines, "", styles.headerStyle.Render("Exclude"))
		lines = append(lines, entryLines(list.ExcludeList)...)
	}
	lines = append(lines, "", styles.warnStyle.Render("Press y to confirm, n to cancel"))
	contentWidth := maxInt(width-2, 10)
	content := lipgloss.NewStyle().Width(contentWidth).Height(height).Render(strings.Join(lines, "\n"))
	return styles.panelBorder.Width(contentWidth).Render(content)
}

func entryLines(entries []domain.PathEntry) []string {
	limit := len(entries)
	if limit > maxPanelEntries {
		limit = maxPanelEntries
	}
	lines := make([]string, 0, limit+1)
	for _, entry := range entries[:limit] {
		lines = append(lines, fmt.Sprintf("%s (%s)", entry.Path, entry.Type))
	}
	if len(entries) > limit {
		lines = append(lines, fmt.Sprintf("... %d more", len(entries)-limit))
	}
	return lines
}

func renderInputPanel(model Model, styles uiStyles, width, height int) string {
	contentWidth := maxInt(width-2, 10)
	lines := []string{
		styles.headerStyle.Render(inputLabel(model.mode)),
		model.input.View(),
	}
	switch model.mode {
	case inputDestination:
		lines = append(lines, "", styles.mutedStyle.Render("Directory for restores, archive path for downloads"))
	case inputSnapshot:
		lines = append(lines, "", styles.mutedStyle.Render("Switching drops the current selection"))
	}
	content := lipgloss.NewStyle().Width(contentWidth).Height(height).Render(strings.Join(lines, "\n"))
	return styles.panelBorder.Width(contentWidth).Render(content)
}

func renderHelpView(model Model, styles uiStyles) string {
	bindings := []key.Binding{
		model.keys.Up,
		model.keys.Down,
		model.keys.Expand,
		model.keys.Collapse,
		model.keys.Toggle,
		model.keys.SelectAll,
		model.keys.SelectNone,
		model.keys.Restore,
		model.keys.Download,
		model.keys.Snapshot,
		model.keys.Refresh,
		model.keys.Sort,
		model.keys.Hidden,
		model.keys.Search,
		model.keys.ClearFilter,
		model.keys.Confirm,
		model.keys.Cancel,
		model.keys.Help,
		model.keys.Quit,
	}

	lines := []string{styles.headerStyle.Render("restorepick help"), ""}
	lines = append(lines, styles.headerStyle.Render("Selection"))
	lines = append(lines, "[x] checked  [-] partly checked  [ ] unchecked", "checking a folder checks everything below it")
	lines = append(lines, "", styles.headerStyle.Render("Safety"))
	lines = append(lines, "safe mode asks before every restore", "blocked destinations: /, $HOME, /etc, /usr, /var")
	lines = append(lines, "", styles.headerStyle.Render("Keys"))
	for _, binding := range bindings {
		lines = append(lines, fmt.Sprintf("%-18s %s", binding.Help().Key, binding.Help().Desc))
	}
	lines = append(lines, "", "Press ? to close help")
	width := model.width
	if width <= 0 {
		width = 80
	}
	return styles.panelBorder.Width(maxInt(width-2, 10)).Render(strings.Join(lines, "\n"))
}

func padLine(left, right string, width int) string {
	if width <= 0 {
		return left
	}
	space := width - lipgloss.Width(left) - lipgloss.Width(right)
	if space < 1 {
		return left + " " + right
	}
	return left + strings.Repeat(" ", space) + right
}

func splitPanels(width int) (int, int, bool) {
	if width < 80 {
		return width, 0, false
	}
	left := int(float64(width) * 0.6)
	if left < 40 {
		left = 40
	}
	right := width - left - 1
	if right < 30 {
		return width, 0, false
	}
	return left, right, true
}

func progressBar(count, width int) string {
	if width <= 0 {
		return ""
	}
	pos := count % width
	return fmt.Sprintf("[%s%s]", strings.Repeat("█", pos), strings.Repeat("░", width-pos))
}

func trimStatus(message string, width int) string {
	if width <= 0 {
		return message
	}
	limit := width - 4
	if limit <= 0 || len(message) <= limit {
		return message
	}
	return message[:limit] + "..."
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
