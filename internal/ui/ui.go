// Package ui renders the intake dashboard in the terminal: a case table, a
// detail pane, the notification tray, and a status bar. All data comes from
// store snapshots; all mutations go through the store and console, so the UI
// is just another subscriber.
package ui

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/caseops/intake-console/internal/console"
	"github.com/caseops/intake-console/internal/filter"
	"github.com/caseops/intake-console/internal/model"
	"github.com/caseops/intake-console/internal/state"
)

// Options configures the dashboard UI.
type Options struct {
	Console *console.Console
	Logger  *log.Logger
}

// UI represents the terminal dashboard.
type UI struct {
	app     *tview.Application
	console *console.Console
	store   *state.Store
	logger  *log.Logger

	// Layout components
	layout        *tview.Flex
	caseTable     *tview.Table
	detailView    *tview.TextView
	notifications *tview.List
	statusBar     *tview.TextView
	searchInput   *tview.InputField
	pages         *tview.Pages

	// View state
	criteria filter.Criteria
	visible  []model.CaseRecord

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the dashboard UI and subscribes it to store changes.
func New(opts Options) *UI {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ui := &UI{
		app:     tview.NewApplication(),
		console: opts.Console,
		store:   opts.Console.Store(),
		logger:  logger,
	}
	ui.setupLayout()
	ui.store.Subscribe(ui.onChange)
	return ui
}

func (ui *UI) setupLayout() {
	ui.caseTable = tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	ui.caseTable.SetBorder(true).SetTitle(" Cases ")
	ui.caseTable.SetSelectedFunc(func(row, _ int) {
		if row >= 1 && row-1 < len(ui.visible) {
			ui.store.SelectCase(ui.visible[row-1].IncidentID)
		}
	})

	ui.detailView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	ui.detailView.SetBorder(true).SetTitle(" Case Detail ")

	ui.notifications = tview.NewList().
		ShowSecondaryText(true)
	ui.notifications.SetBorder(true).SetTitle(" Notifications ")

	ui.statusBar = tview.NewTextView().
		SetDynamicColors(true)
	ui.statusBar.SetBackgroundColor(tcell.ColorDarkSlateGray)

	ui.searchInput = tview.NewInputField().
		SetLabel("Search: ").
		SetFieldWidth(40)
	ui.searchInput.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			ui.criteria.SearchText = strings.TrimSpace(ui.searchInput.GetText())
		} else {
			ui.searchInput.SetText(ui.criteria.SearchText)
		}
		ui.pages.HidePage("search")
		ui.app.SetFocus(ui.caseTable)
		ui.render(ui.store.Snapshot())
	})

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.detailView, 0, 2, false).
		AddItem(ui.notifications, 0, 1, false)

	body := tview.NewFlex().
		AddItem(ui.caseTable, 0, 3, true).
		AddItem(right, 0, 2, false)

	ui.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(ui.statusBar, 1, 0, false)

	searchBar := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(ui.searchInput, 3, 0, true)

	ui.pages = tview.NewPages().
		AddPage("main", ui.layout, true, true).
		AddPage("search", searchBar, true, false)

	ui.app.SetInputCapture(ui.handleKey)
}

func (ui *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if ui.app.GetFocus() == ui.searchInput {
		return event
	}
	switch event.Rune() {
	case 'q':
		ui.Stop()
		return nil
	case 'f':
		snapshot := ui.store.Snapshot()
		ui.store.SetFeedEnabled(!snapshot.LiveFeed.Enabled)
		return nil
	case 'd':
		ui.dismissSelected()
		return nil
	case 'n':
		ui.app.SetFocus(ui.notifications)
		return nil
	case 'c':
		ui.app.SetFocus(ui.caseTable)
		return nil
	case '/':
		ui.searchInput.SetText(ui.criteria.SearchText)
		ui.pages.ShowPage("search")
		ui.app.SetFocus(ui.searchInput)
		return nil
	case 'i':
		ui.triggerImport()
		return nil
	}
	if event.Key() == tcell.KeyEscape {
		ui.criteria = filter.Criteria{}
		ui.render(ui.store.Snapshot())
		return nil
	}
	return event
}

// dismissSelected dismisses the highlighted notification.
func (ui *UI) dismissSelected() {
	idx := ui.notifications.GetCurrentItem()
	snapshot := ui.store.Snapshot()
	if idx < 0 || idx >= len(snapshot.Notifications) {
		return
	}
	ui.store.DismissNotification(snapshot.Notifications[idx].ID)
}

// triggerImport re-imports the bound sheet, if one exists.
func (ui *UI) triggerImport() {
	snapshot := ui.store.Snapshot()
	if snapshot.Sheet.SheetID == "" {
		ui.setStatus("No sheet bound; import one via the API or the import command")
		return
	}
	go func() {
		ui.queueStatus(fmt.Sprintf("Importing from %s...", snapshot.Sheet.SheetName))
		ctx, cancel := context.WithTimeout(ui.ctx, 60*time.Second)
		defer cancel()
		if _, err := ui.console.ImportFromSheet(ctx, snapshot.Sheet.SheetID, snapshot.Sheet.SheetName); err != nil {
			ui.logger.Printf("import failed: %v", err)
			ui.queueStatus(fmt.Sprintf("[red]Import failed: %v", err))
		}
	}()
}

// onChange re-renders on every applied transition. The queued update runs on
// its own goroutine because transitions can originate from the UI event loop
// itself, where a synchronous QueueUpdateDraw would deadlock. Rendering from a
// fresh snapshot keeps late-arriving updates from painting stale state.
func (ui *UI) onChange(state.Change) {
	go ui.app.QueueUpdateDraw(func() {
		ui.render(ui.store.Snapshot())
	})
}

func (ui *UI) setStatus(msg string) {
	ui.statusBar.SetText(" " + msg)
}

func (ui *UI) queueStatus(msg string) {
	ui.app.QueueUpdateDraw(func() {
		ui.setStatus(msg)
	})
}

// render repaints every widget from a snapshot.
func (ui *UI) render(snapshot model.DashboardState) {
	ui.visible = filter.Apply(snapshot.Cases, ui.criteria)
	ui.renderCases(snapshot)
	ui.renderDetail(snapshot)
	ui.renderNotifications(snapshot)
	ui.renderStatus(snapshot)
}

func (ui *UI) renderCases(snapshot model.DashboardState) {
	selectedRow, _ := ui.caseTable.GetSelection()
	ui.caseTable.Clear()

	headers := []string{"Incident", "Name", "Category", "Jurisdiction", "Injury", "Property"}
	for col, h := range headers {
		ui.caseTable.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold))
	}

	for i, c := range ui.visible {
		color := tcell.ColorWhite
		if c.IncidentID == snapshot.ActiveCaseID {
			color = tcell.ColorAqua
		}
		ui.caseTable.SetCell(i+1, 0, tview.NewTableCell(c.IncidentID).SetTextColor(color))
		ui.caseTable.SetCell(i+1, 1, tview.NewTableCell(c.FullName).SetTextColor(color))
		ui.caseTable.SetCell(i+1, 2, tview.NewTableCell(c.IncidentCategory).SetTextColor(color))
		ui.caseTable.SetCell(i+1, 3, tview.NewTableCell(c.Jurisdiction).SetTextColor(color))
		ui.caseTable.SetCell(i+1, 4, tview.NewTableCell(yesNo(c.InjuryReported)).SetTextColor(color))
		ui.caseTable.SetCell(i+1, 5, tview.NewTableCell(yesNo(c.PropertyDamage)).SetTextColor(color))
	}

	title := fmt.Sprintf(" Cases (%d", len(ui.visible))
	if summary := filter.Summarize(ui.criteria); summary != "" {
		title += " · " + summary
	}
	title += ") "
	ui.caseTable.SetTitle(title)

	if selectedRow >= 1 && selectedRow <= len(ui.visible) {
		ui.caseTable.Select(selectedRow, 0)
	} else if len(ui.visible) > 0 {
		ui.caseTable.Select(1, 0)
	}
}

func (ui *UI) renderDetail(snapshot model.DashboardState) {
	active, ok := snapshot.ActiveCase()
	if !ok {
		ui.detailView.SetText("[gray]No case selected")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]%s[-]  %s\n\n", active.IncidentID, active.FullName)
	fmt.Fprintf(&b, "[aqua]Category:[-]     %s\n", active.IncidentCategory)
	fmt.Fprintf(&b, "[aqua]Jurisdiction:[-] %s\n", active.Jurisdiction)
	fmt.Fprintf(&b, "[aqua]Location:[-]     %s\n", active.Location)
	fmt.Fprintf(&b, "[aqua]When:[-]         %s %s\n", active.IncidentDate, active.IncidentTime)
	fmt.Fprintf(&b, "[aqua]Phone:[-]        %s\n", active.PhoneNumber)
	fmt.Fprintf(&b, "[aqua]Address:[-]      %s\n", active.HomeAddress)
	fmt.Fprintf(&b, "[aqua]Injury:[-]       %s\n", yesNo(active.InjuryReported))
	fmt.Fprintf(&b, "[aqua]Property:[-]     %s\n", yesNo(active.PropertyDamage))
	fmt.Fprintf(&b, "[aqua]Fault:[-]        %s\n", active.FaultDetermination)
	fmt.Fprintf(&b, "[aqua]Resolution:[-]   %s\n\n", active.Resolution)
	fmt.Fprintf(&b, "%s\n", active.IncidentDescription)
	ui.detailView.SetText(b.String())
	ui.detailView.ScrollToBeginning()
}

func (ui *UI) renderNotifications(snapshot model.DashboardState) {
	current := ui.notifications.GetCurrentItem()
	ui.notifications.Clear()
	for _, n := range snapshot.Notifications {
		main := n.Message
		if n.Acknowledged {
			main = "[gray]" + main
		}
		secondary := n.CreatedAt
		if n.IncidentID != "" {
			secondary = n.IncidentID + "  " + secondary
		}
		ui.notifications.AddItem(main, secondary, 0, nil)
	}
	ui.notifications.SetTitle(fmt.Sprintf(" Notifications (%d) ", len(snapshot.Notifications)))
	if current >= 0 && current < ui.notifications.GetItemCount() {
		ui.notifications.SetCurrentItem(current)
	}
}

func (ui *UI) renderStatus(snapshot model.DashboardState) {
	feed := "[red]OFF[-]"
	if snapshot.LiveFeed.Enabled {
		feed = fmt.Sprintf("[green]ON[-] (%s)", snapshot.LiveFeed.Interval())
	}
	sheet := "none"
	if snapshot.Sheet.SheetName != "" {
		sheet = snapshot.Sheet.SheetName
	}
	ui.setStatus(fmt.Sprintf(
		"Feed %s │ Queue %d │ Sheet %s │ %s │ [gray]q quit  f feed  / search  d dismiss  i import[-]",
		feed, len(snapshot.QueuedCases), sheet, snapshot.LastAction))
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// Run starts the UI event loop and blocks until Stop or ctx cancellation.
func (ui *UI) Run(ctx context.Context) error {
	ui.ctx, ui.cancel = context.WithCancel(ctx)
	defer ui.cancel()

	go func() {
		<-ui.ctx.Done()
		ui.app.Stop()
	}()

	ui.render(ui.store.Snapshot())
	ui.app.SetRoot(ui.pages, true).SetFocus(ui.caseTable)
	return ui.app.Run()
}

// Stop terminates the UI event loop.
func (ui *UI) Stop() {
	if ui.cancel != nil {
		ui.cancel()
	} else {
		ui.app.Stop()
	}
}
