package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"restorepick/internal/config"
	"restorepick/internal/domain"
	"restorepick/internal/logging"
	"restorepick/internal/services"
	"restorepick/internal/state"
)

type inputMode string

const (
	inputNone        inputMode = ""
	inputSearch      inputMode = "search"
	inputDestination inputMode = "destination"
	inputSnapshot    inputMode = "snapshot"
)

// progressPolls bounds how long a progress poll waits for a restore to
// publish its channel.
const progressPolls = 100

type Model struct {
	state              *state.State
	base               config.Config
	lister             services.Lister
	restorer           services.Restorer
	progress           services.ProgressProvider
	invalid            services.Invalidator
	needsDestination   bool
	keys               KeyMap
	input              textinput.Model
	mode               inputMode
	showHelp           bool
	status             string
	sessionCtx         context.Context
	cancel             context.CancelFunc
	width              int
	height             int
	viewTop            int
	confirming         bool
	pendingKind        domain.RestoreKind
	pendingList        domain.CheckList
	pendingDestination string
	running            bool
	progressCount      int
	log                *zap.Logger
}

type ConfigProvider interface {
	ConfigSnapshot() config.Config
}

func NewModel(cfg config.Config, appState *state.State, lister services.Lister, restorer services.Restorer) Model {
	ctx, cancel := context.WithCancel(context.Background())
	input := textinput.New()
	input.CharLimit = 1024
	return Model{
		state:            appState,
		base:             cfg,
		lister:           lister,
		restorer:         restorer,
		progress:         progressProvider(restorer),
		invalid:          invalidator(lister),
		needsDestination: requiresDestination(restorer),
		keys:             DefaultKeyMap(),
		input:            input,
		status:           "Loading snapshot...",
		sessionCtx:       ctx,
		cancel:           cancel,
		width:            100,
		height:           30,
		log:              logging.Named("ui"),
	}
}

func (model Model) WithStatus(message string) Model {
	if message != "" {
		model.status = message
	}
	return model
}

func (model Model) ConfigSnapshot() config.Config {
	cfg := model.base
	cfg.RewindID = model.state.RewindID
	cfg.Destination = model.state.Destination
	cfg.SafeMode = model.state.Prefs.SafeMode
	cfg.ShowHidden = model.state.Prefs.ShowHidden
	cfg.Theme = model.state.Prefs.Theme
	return cfg
}

func (model Model) Init() tea.Cmd {
	if !model.state.BeginLoad("/") {
		return nil
	}
	return model.listCmd("/")
}

func (model Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		return model.handleKey(typed)
	case tea.WindowSizeMsg:
		model.width = typed.Width
		model.height = typed.Height
		model.input.Width = maxInt(typed.Width/2, 20)
		model.ensureCursorVisible()
		return model, nil
	case listingMsg:
		return model.applyListing(typed)
	case restoreResultMsg:
		model.running = false
		model.progressCount = 0
		if typed.err != nil {
			if errors.Is(typed.err, services.ErrNothingSelected) {
				model.status = "Nothing selected"
				return model, nil
			}
			model.log.Error("restore failed", zap.String("kind", string(model.pendingKind)), zap.Error(typed.err))
			model.status = fmt.Sprintf("%s error: %v", kindLabel(model.pendingKind), typed.err)
			return model, nil
		}
		result := typed.result
		model.status = fmt.Sprintf("%s (%s ok, %d failed)", result.Message, humanize.Comma(int64(result.SuccessCount)), result.FailureCount)
		if len(result.Errors) > 0 {
			model.status = fmt.Sprintf("%s - warning: %s", model.status, result.Errors[0])
		}
		return model, nil
	case restoreProgressMsg:
		if !model.running {
			return model, nil
		}
		if typed.progress.ErrMessage != "" {
			model.status = fmt.Sprintf("%s warning: %s", kindLabel(typed.progress.Kind), typed.progress.ErrMessage)
			return model, model.progressCmd()
		}
		if typed.progress.Completed {
			return model, nil
		}
		model.progressCount = typed.progress.Processed
		model.status = fmt.Sprintf("%s %s items", kindLabel(typed.progress.Kind), humanize.Comma(int64(typed.progress.Processed)))
		return model, model.progressCmd()
	default:
		if model.mode != inputNone {
			var cmd tea.Cmd
			model.input, cmd = model.input.Update(msg)
			return model, cmd
		}
		return model, nil
	}
}

func (model Model) applyListing(msg listingMsg) (tea.Model, tea.Cmd) {
	if msg.session != model.state.Session {
		return model, nil
	}
	if msg.err != nil {
		model.state.FailLoad(msg.path)
		switch {
		case errors.Is(msg.err, context.Canceled):
			model.status = "Listing cancelled"
		case errors.Is(msg.err, services.ErrNotFound):
			model.status = fmt.Sprintf("Not in snapshot: %s", msg.path)
		default:
			model.status = fmt.Sprintf("List error: %v", msg.err)
		}
		model.log.Warn("listing failed", zap.String("path", msg.path), zap.Error(msg.err))
		return model, nil
	}
	model.state.ApplyListing(msg.path, msg.result.Items)
	source := ""
	if msg.result.Cached {
		source = " (cached)"
	}
	model.status = fmt.Sprintf("Loaded %s items in %s%s", humanize.Comma(int64(len(msg.result.Items))), msg.path, source)
	model.ensureCursorVisible()
	return model, nil
}

func (model Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		model.cancel()
		return model, tea.Quit
	}
	if model.mode != inputNone {
		return model.handleInput(msg)
	}
	switch {
	case key.Matches(msg, model.keys.Quit):
		model.cancel()
		return model, tea.Quit
	case key.Matches(msg, model.keys.Help):
		model.showHelp = !model.showHelp
		return model, nil
	case model.confirming && key.Matches(msg, model.keys.Confirm):
		return model.runRestore()
	case model.confirming && key.Matches(msg, model.keys.Cancel):
		model.confirming = false
		model.status = fmt.Sprintf("%s cancelled", kindLabel(model.pendingKind))
		return model, nil
	case model.confirming:
		return model, nil
	case key.Matches(msg, model.keys.Up):
		model.state.MoveCursor(-1)
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Down):
		model.state.MoveCursor(1)
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Toggle):
		if node := model.state.CurrentNode(); node != nil {
			model.state.ToggleCheck(node.Index)
		}
		return model, nil
	case key.Matches(msg, model.keys.SelectAll):
		model.state.SelectAll(true)
		return model, nil
	case key.Matches(msg, model.keys.SelectNone):
		model.state.SelectAll(false)
		return model, nil
	case key.Matches(msg, model.keys.Expand):
		return model.expand()
	case key.Matches(msg, model.keys.Collapse):
		node := model.state.CurrentNode()
		if node != nil && node.HasChildren && model.state.IsExpanded(node.Index) {
			model.state.ToggleExpanded(node.Index)
		} else {
			model.state.FocusParent()
		}
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Restore):
		return model.beginRestore(domain.KindRestore)
	case key.Matches(msg, model.keys.Download):
		return model.beginRestore(domain.KindDownload)
	case key.Matches(msg, model.keys.Snapshot):
		return model.openInput(inputSnapshot, model.state.RewindID)
	case key.Matches(msg, model.keys.Refresh):
		if model.invalid != nil {
			model.invalid.Invalidate(model.state.RewindID, "")
		}
		next, cmd := model.switchSnapshot(model.state.RewindID)
		next.status = "Reloading snapshot..."
		return next, cmd
	case key.Matches(msg, model.keys.Sort):
		mode := model.state.ToggleSortMode()
		model.status = fmt.Sprintf("Order: %s", mode)
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Hidden):
		if model.state.ToggleShowHidden() {
			model.status = "Hidden entries shown"
		} else {
			model.status = "Hidden entries hidden"
		}
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Search):
		return model.openInput(inputSearch, model.state.SearchQuery)
	case key.Matches(msg, model.keys.ClearFilter):
		model.state.ClearFilters()
		model.status = "Search cleared"
		model.ensureCursorVisible()
		return model, nil
	default:
		return model, nil
	}
}

func (model Model) expand() (tea.Model, tea.Cmd) {
	node := model.state.CurrentNode()
	if node == nil || !node.HasChildren {
		return model, nil
	}
	if node.ChildrenLoaded {
		model.state.ToggleExpanded(node.Index)
		model.ensureCursorVisible()
		return model, nil
	}
	path := model.state.Tree.FullPath(node)
	model.state.Expand(node.Index)
	model.status = fmt.Sprintf("Loading %s...", path)
	if !model.state.BeginLoad(path) {
		return model, nil
	}
	return model, model.listCmd(path)
}

func (model Model) listCmd(path string) tea.Cmd {
	ctx := model.sessionCtx
	lister := model.lister
	session := model.state.Session
	request := services.ListRequest{RewindID: model.state.RewindID, Path: path}
	return func() tea.Msg {
		result, err := lister.List(ctx, request)
		return listingMsg{session: session, path: path, result: result, err: err}
	}
}

func (model Model) switchSnapshot(rewindID string) (Model, tea.Cmd) {
	model.cancel()
	model.sessionCtx, model.cancel = context.WithCancel(context.Background())
	model.state.Reset(rewindID)
	model.viewTop = 0
	model.confirming = false
	model.status = fmt.Sprintf("Switched to snapshot %s", rewindID)
	model.log.Info("snapshot selected", zap.String("rewind", rewindID))
	if !model.state.BeginLoad("/") {
		return model, nil
	}
	return model, model.listCmd("/")
}

func (model Model) beginRestore(kind domain.RestoreKind) (tea.Model, tea.Cmd) {
	if model.running {
		model.status = "Restore already running"
		return model, nil
	}
	list := model.state.SelectionSummary()
	if list.Empty() {
		model.status = "Nothing selected"
		return model, nil
	}
	model.pendingKind = kind
	model.pendingList = list
	model.pendingDestination = ""
	if model.needsDestination {
		return model.openInput(inputDestination, model.state.Destination)
	}
	return model.confirmOrRun()
}

func (model Model) confirmOrRun() (tea.Model, tea.Cmd) {
	if model.state.Prefs.SafeMode {
		model.confirming = true
		model.status = confirmPrompt(model.pendingKind, model.pendingList)
		return model, nil
	}
	return model.runRestore()
}

func (model Model) runRestore() (tea.Model, tea.Cmd) {
	model.confirming = false
	model.running = true
	model.progressCount = 0
	model.status = fmt.Sprintf("%s in progress", kindLabel(model.pendingKind))
	request := services.RestoreRequest{
		Kind:        model.pendingKind,
		RewindID:    model.state.RewindID,
		Destination: model.pendingDestination,
		CheckList:   model.pendingList,
		SafeMode:    model.state.Prefs.SafeMode,
	}
	model.log.Info("restore submitted",
		zap.String("kind", string(request.Kind)),
		zap.String("rewind", request.RewindID),
		zap.Int("include", len(request.CheckList.IncludeList)),
		zap.Int("exclude", len(request.CheckList.ExcludeList)),
		zap.Int("items", request.CheckList.TotalItems),
	)
	restore := model.restoreCmd(request)
	if progress := model.progressCmd(); progress != nil {
		return model, tea.Batch(restore, progress)
	}
	return model, restore
}

func (model Model) restoreCmd(request services.RestoreRequest) tea.Cmd {
	restorer := model.restorer
	return func() tea.Msg {
		result, err := restorer.Restore(context.Background(), request)
		return restoreResultMsg{result: result, err: err}
	}
}

func (model Model) progressCmd() tea.Cmd {
	if model.progress == nil {
		return nil
	}
	provider := model.progress
	return func() tea.Msg {
		for attempt := 0; attempt < progressPolls; attempt++ {
			channel := provider.Progress()
			if channel == nil {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			progress, ok := <-channel
			if !ok {
				break
			}
			return restoreProgressMsg{progress: progress}
		}
		return restoreProgressMsg{progress: services.RestoreProgress{Completed: true}}
	}
}

func (model Model) openInput(mode inputMode, value string) (tea.Model, tea.Cmd) {
	model.mode = mode
	model.input.Prompt = inputLabel(mode) + ": "
	model.input.SetValue(value)
	model.input.CursorEnd()
	model.status = fmt.Sprintf("%s: enter to apply, esc to cancel", inputLabel(mode))
	cmd := model.input.Focus()
	return model, cmd
}

func (model *Model) closeInput() {
	model.mode = inputNone
	model.input.Blur()
}

func (model Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		mode := model.mode
		model.closeInput()
		if mode == inputSearch {
			model.state.ClearFilters()
		}
		model.status = fmt.Sprintf("%s cancelled", inputLabel(mode))
		model.ensureCursorVisible()
		return model, nil
	case tea.KeyEnter:
		mode := model.mode
		value := strings.TrimSpace(model.input.Value())
		model.closeInput()
		return model.submitInput(mode, value)
	}
	var cmd tea.Cmd
	model.input, cmd = model.input.Update(msg)
	if model.mode == inputSearch {
		model.state.SearchQuery = strings.TrimSpace(model.input.Value())
		model.ensureCursorVisible()
	}
	return model, cmd
}

func (model Model) submitInput(mode inputMode, value string) (tea.Model, tea.Cmd) {
	switch mode {
	case inputSearch:
		model.state.SearchQuery = value
		model.ensureCursorVisible()
		if value == "" {
			model.status = "Search cleared"
		} else {
			model.status = fmt.Sprintf("Search: %s", value)
		}
		return model, nil
	case inputDestination:
		if value == "" {
			model.status = "Destination required"
			return model, nil
		}
		model.state.Destination = value
		model.pendingDestination = value
		return model.confirmOrRun()
	case inputSnapshot:
		if value == "" || value == model.state.RewindID {
			model.status = "Snapshot unchanged"
			return model, nil
		}
		return model.switchSnapshot(value)
	}
	return model, nil
}

func progressProvider(restorer services.Restorer) services.ProgressProvider {
	provider, _ := restorer.(services.ProgressProvider)
	return provider
}

func invalidator(lister services.Lister) services.Invalidator {
	provider, _ := lister.(services.Invalidator)
	return provider
}

func requiresDestination(restorer services.Restorer) bool {
	requirer, ok := restorer.(services.DestinationRequirer)
	return ok && requirer.RequiresDestination()
}

func confirmPrompt(kind domain.RestoreKind, list domain.CheckList) string {
	summary := fmt.Sprintf("%s %d paths, %s items", kindLabel(kind), len(list.IncludeList), humanize.Comma(int64(list.TotalItems)))
	if len(list.ExcludeList) > 0 {
		summary += fmt.Sprintf(", excluding %d", len(list.ExcludeList))
	}
	return summary + " - confirm (y/n)"
}

func kindLabel(kind domain.RestoreKind) string {
	if kind == "" {
		return "RESTORE"
	}
	return strings.ToUpper(string(kind))
}

func inputLabel(mode inputMode) string {
	switch mode {
	case inputSearch:
		return "Search"
	case inputDestination:
		return "Destination"
	case inputSnapshot:
		return "Snapshot"
	default:
		return "Input"
	}
}

func (model *Model) ensureCursorVisible() {
	visible := model.state.VisibleNodes()
	if len(visible) == 0 {
		model.state.Cursor = 0
		model.viewTop = 0
		return
	}
	model.state.ClampCursor()
	listHeight := model.listHeight()
	if listHeight <= 0 {
		return
	}
	if model.state.Cursor < model.viewTop {
		model.viewTop = model.state.Cursor
	}
	if model.state.Cursor >= model.viewTop+listHeight {
		model.viewTop = model.state.Cursor - listHeight + 1
	}
	maxTop := len(visible) - listHeight
	if maxTop < 0 {
		maxTop = 0
	}
	if model.viewTop > maxTop {
		model.viewTop = maxTop
	}
}

func (model *Model) listHeight() int {
	return model.height - 6
}
