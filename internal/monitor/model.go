package monitor

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rileyhilliard/nodewatch/internal/codec"
	"github.com/rileyhilliard/nodewatch/internal/inventory"
	"github.com/rileyhilliard/nodewatch/internal/lifecycle"
	"github.com/rileyhilliard/nodewatch/internal/logger"
	"github.com/rileyhilliard/nodewatch/internal/mux"
	"github.com/rileyhilliard/nodewatch/internal/session"
)

// Component names used for lifecycle bindings.
const (
	componentSidebar = "sidebar"
	componentPage    = "page"
)

// spinnerInterval is the animation frame rate for the connecting spinner.
const spinnerInterval = 150 * time.Millisecond

// inventoryTimeout bounds the disk list request.
const inventoryTimeout = 5 * time.Second

// Options configures the dashboard.
type Options struct {
	Mux         *mux.Multiplexer
	Coordinator *lifecycle.Coordinator
	Node        string
	// Pages defaults to DefaultPages.
	Pages []Page
	// Inventory, when set, labels the disk page with the node's disk list.
	Inventory  *inventory.Client
	RetryDelay time.Duration
	Logger     logger.Logger
}

// Model is the Bubble Tea model for the streaming dashboard.
type Model struct {
	mux        *mux.Multiplexer
	coord      *lifecycle.Coordinator
	node       string
	pages      []Page
	inventory  *inventory.Client
	retryDelay time.Duration
	log        logger.Logger

	// activity is signalled by stream callbacks; it holds at most one
	// pending wakeup.
	activity chan struct{}

	current int
	page    *streamView
	side    *streamView

	disks   map[int]inventory.Disk
	diskErr error

	width        int
	height       int
	spinnerFrame int
	showHelp     bool
	quitting     bool
}

// streamView tracks what a stream consumer has been told. Callbacks arrive on
// session goroutines, so fields are guarded by mu.
type streamView struct {
	sub     *mux.Subscription
	binding *lifecycle.Binding

	mu      sync.Mutex
	lastErr error
	samples int
}

func (v *streamView) handlers(nudge func()) session.Handlers {
	return session.Handlers{
		OnData: func(session.Update) {
			v.mu.Lock()
			v.samples++
			v.mu.Unlock()
			nudge()
		},
		OnError: func(err error) {
			v.setErr(err)
			nudge()
		},
		OnConnectivity: func(connected bool) {
			if connected {
				v.setErr(nil)
			}
			nudge()
		},
		OnState: func(session.State) { nudge() },
	}
}

func (v *streamView) setErr(err error) {
	v.mu.Lock()
	v.lastErr = err
	v.mu.Unlock()
}

func (v *streamView) err() error {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

// Samples returns how many samples the view has received.
func (v *streamView) Samples() int {
	if v == nil {
		return 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.samples
}

type startMsg struct{}

// activityMsg wakes the model after one or more stream events.
type activityMsg struct{}

type spinnerTickMsg time.Time

type disksMsg struct {
	disks []inventory.Disk
	err   error
}

// NewModel creates the dashboard. Streams are opened when the program
// starts, not here.
func NewModel(opts Options) Model {
	pages := opts.Pages
	if len(pages) == 0 {
		pages = DefaultPages
	}
	log := opts.Logger
	if log == nil {
		log = logger.Noop()
	}
	coord := opts.Coordinator
	if coord == nil {
		coord = lifecycle.New(log)
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = session.DefaultRetryDelay
	}

	return Model{
		mux:        opts.Mux,
		coord:      coord,
		node:       opts.Node,
		pages:      pages,
		inventory:  opts.Inventory,
		retryDelay: retryDelay,
		log:        log,
		activity:   make(chan struct{}, 1),
		disks:      make(map[int]inventory.Disk),
	}
}

// Init opens the sidebar and the first page.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return startMsg{} },
		m.waitForActivity(),
		m.spinnerTickCmd(),
	)
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if handled, cmd := m.HandleKeyMsg(msg); handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case startMsg:
		m.connectSidebar()
		return m, m.openPage(m.current)

	case activityMsg:
		return m, m.waitForActivity()

	case spinnerTickMsg:
		m.spinnerFrame = (m.spinnerFrame + 1) % 10000
		return m, m.spinnerTickCmd()

	case disksMsg:
		m.diskErr = msg.err
		if msg.err == nil {
			m.disks = make(map[int]inventory.Disk, len(msg.disks))
			for _, d := range msg.disks {
				m.disks[d.Index] = d
			}
		}
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// nudge wakes the UI without blocking the session goroutine. Events that
// arrive while a wakeup is pending are coalesced; the view reads current
// state from the sessions anyway.
func (m Model) nudge() {
	select {
	case m.activity <- struct{}{}:
	default:
	}
}

func (m Model) waitForActivity() tea.Cmd {
	ch := m.activity
	return func() tea.Msg {
		<-ch
		return activityMsg{}
	}
}

func (m Model) spinnerTickCmd() tea.Cmd {
	return tea.Tick(spinnerInterval, func(t time.Time) tea.Msg {
		return spinnerTickMsg(t)
	})
}

// connectSidebar (re)attaches the sidebar to the aggregate stream. The
// binding has no route so it survives page navigation.
func (m *Model) connectSidebar() {
	if m.side != nil && m.side.binding != nil {
		m.side.binding.Close()
	}

	v := &streamView{}
	m.side = v
	remove := m.mux.AddListener(v.handlers(m.nudge))
	if err := m.mux.Connect(m.node); err != nil {
		v.setErr(err)
	}

	mx := m.mux
	v.binding = m.coord.Bind(componentSidebar, "", lifecycle.CloserFunc(func(bool) {
		remove()
		mx.Disconnect()
	}))
}

// openPage navigates to page i and subscribes to its stream. Bindings of the
// previous route are closed by the navigation.
func (m *Model) openPage(i int) tea.Cmd {
	if i < 0 || i >= len(m.pages) {
		return nil
	}
	if m.page != nil && m.page.binding != nil {
		m.page.binding.Close()
	}

	m.current = i
	page := m.pages[i]
	m.coord.Navigate(page.Route())

	v := &streamView{}
	m.page = v
	sub, err := m.mux.Subscribe(m.mux.Endpoint(string(page.Category), m.node), v.handlers(m.nudge))
	if err != nil {
		v.setErr(err)
		return nil
	}
	v.sub = sub
	v.binding = m.coord.Bind(componentPage, page.Route(), sub)

	if page.Category == codec.CategoryDisk && m.inventory != nil {
		return m.fetchDisksCmd()
	}
	return nil
}

func (m Model) fetchDisksCmd() tea.Cmd {
	client, node := m.inventory, m.node
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), inventoryTimeout)
		defer cancel()
		disks, err := client.Disks(ctx, node)
		return disksMsg{disks: disks, err: err}
	}
}

// restart reconnects both streams from scratch, rewinding their buffers.
func (m *Model) restart() tea.Cmd {
	if !m.mux.MonitoringEnabled() {
		return nil
	}

	if s := m.mux.SidebarSession(); s != nil {
		m.side.setErr(nil)
		if err := s.Restart(); err != nil {
			m.log.Debug("restart sidebar: %v", err)
		}
	} else {
		m.connectSidebar()
	}

	if m.page == nil || m.page.sub == nil {
		return m.openPage(m.current)
	}
	m.page.setErr(nil)
	if err := m.page.sub.Session().Restart(); err != nil {
		m.log.Debug("restart %s: %v", m.pages[m.current].Route(), err)
	}
	return nil
}

// toggleMonitoring flips the global switch. Switching off tears down every
// stream; switching back on reconnects the visible ones.
func (m *Model) toggleMonitoring() tea.Cmd {
	enabled := !m.mux.MonitoringEnabled()
	m.mux.SetMonitoringEnabled(enabled)
	if !enabled {
		m.log.Info("monitoring paused")
		return nil
	}
	m.log.Info("monitoring resumed")
	m.connectSidebar()
	return m.openPage(m.current)
}

// quit releases every stream before the program exits.
func (m *Model) quit() tea.Cmd {
	m.coord.Unload()
	m.quitting = true
	return tea.Quit
}

// CurrentPage returns the page being shown.
func (m Model) CurrentPage() Page {
	return m.pages[m.current]
}

// PageStatus returns the status of the current page's stream.
func (m Model) PageStatus() Status {
	var s *session.Session
	if m.page != nil && m.page.sub != nil {
		s = m.page.sub.Session()
	}
	return deriveStatus(m.mux.MonitoringEnabled(), s, m.page.err())
}

// SidebarStatus returns the status of the aggregate stream.
func (m Model) SidebarStatus() Status {
	return deriveStatus(m.mux.MonitoringEnabled(), m.mux.SidebarSession(), m.side.err())
}

// ConnectingSpinner returns the current spinner frame.
func (m Model) ConnectingSpinner() string {
	return ConnectingSpinnerFrames[m.spinnerFrame%len(ConnectingSpinnerFrames)]
}

// ConnectingText returns the current animated connecting label.
func (m Model) ConnectingText() string {
	return ConnectingTextFrames[(m.spinnerFrame/ConnectingTextSlowdown)%len(ConnectingTextFrames)]
}
