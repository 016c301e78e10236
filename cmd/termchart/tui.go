package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/chaitanyamurarka/trading-platform-v3.1/backend"
	"github.com/chaitanyamurarka/trading-platform-v3.1/config"
	"github.com/chaitanyamurarka/trading-platform-v3.1/indicator"
	"github.com/chaitanyamurarka/trading-platform-v3.1/lazyload"
	"github.com/chaitanyamurarka/trading-platform-v3.1/live"
	"github.com/chaitanyamurarka/trading-platform-v3.1/loader"
	"github.com/chaitanyamurarka/trading-platform-v3.1/model/candle"
	"github.com/chaitanyamurarka/trading-platform-v3.1/session"
	"github.com/chaitanyamurarka/trading-platform-v3.1/settings"
)

const (
	panStep    = 5
	noticeTTL  = 5 * time.Second
	retryDelay = 300 * time.Millisecond
)

// ── messages ──────────────────────────────────────────────────────────────────

// sessionReadyMsg: a fresh session exists and fetching may begin.
type sessionReadyMsg struct{}

// sessionStartErrMsg: the initiate request itself failed.
type sessionStartErrMsg struct{ err error }

// sessionLostMsg arrives over the event channel when the heartbeat dies.
type sessionLostMsg struct{ err error }

// dataMsg is the outcome of one guarded fetch.
type dataMsg struct {
	res     *loader.Result
	err     error
	prepend bool
}

// liveBarMsg arrives over the event channel for every streamed update.
type liveBarMsg struct{ bar live.Bar }

type noticeExpireMsg struct{ id int }

type retryInitialMsg struct{}

// ── model ─────────────────────────────────────────────────────────────────────

type model struct {
	ctx       context.Context
	cfg       *config.Config
	prefs     *settings.Settings
	prefsPath string
	mgr       *session.Manager
	loader    *loader.Loader
	lazy      *lazyload.Controller
	events    chan tea.Msg

	baseQuery backend.Query

	styles *styles
	width  int
	height int

	candles []candle.Candle
	volume  []candle.VolumePoint
	overlay *indicator.Series
	indKind indicator.Kind

	viewFrom  int
	loading   bool
	sessionUp bool
	fetchErr  string
	liveStop  func()

	notice    string
	noticeErr bool
	noticeID  int
}

func newModel(ctx context.Context, cfg *config.Config, prefs *settings.Settings, prefsPath string,
	mgr *session.Manager, ld *loader.Loader, q backend.Query, events chan tea.Msg) model {
	kind, _ := indicator.ParseKind(cfg.Indicator.Kind)
	return model{
		ctx:       ctx,
		cfg:       cfg,
		prefs:     prefs,
		prefsPath: prefsPath,
		mgr:       mgr,
		loader:    ld,
		lazy:      lazyload.New(q.Start),
		events:    events,
		baseQuery: q,
		styles:    stylesFor(prefs.Theme),
		indKind:   kind,
		loading:   true,
	}
}

// ── Init / Update ─────────────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	return tea.Batch(m.startSessionCmd(), m.waitEvent())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.clampView()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionReadyMsg:
		m.sessionUp = true
		m.loading = true
		load := m.loadCmd(m.baseQuery.Start, m.baseQuery.End, false)
		if m.cfg.Live.Enabled {
			if cmd := m.startLive(); cmd != nil {
				return m, tea.Batch(cmd, load)
			}
		}
		return m, load

	case sessionStartErrMsg:
		m.sessionUp = false
		m.loading = false
		return m, m.setNotice("Session unavailable: "+errorLine(msg.err)+". Press r to retry.", true)

	case sessionLostMsg:
		m.sessionUp = false
		cmd := m.setNotice("Session lost: "+errorLine(msg.err)+". Press r to reconnect.", true)
		return m, tea.Batch(cmd, m.waitEvent())

	case dataMsg:
		return m.applyData(msg)

	case liveBarMsg:
		if m.loader.ApplyLive(msg.bar.Candle()) {
			m.refreshData()
		}
		return m, m.waitEvent()

	case noticeExpireMsg:
		if msg.id == m.noticeID {
			m.notice = ""
		}
		return m, nil

	case retryInitialMsg:
		m.loading = true
		return m, m.loadCmd(m.baseQuery.Start, m.baseQuery.End, false)
	}

	return m, nil
}

// ── key handling ──────────────────────────────────────────────────────────────

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.liveStop != nil {
			m.liveStop()
		}
		return m, tea.Quit

	case "left", "h":
		return m.pan(-panStep)
	case "right", "l":
		return m.pan(panStep)
	case "shift+left", "H":
		return m.pan(-m.visibleCount())
	case "shift+right", "L":
		return m.pan(m.visibleCount())

	case "home", "g":
		if len(m.candles) == 0 {
			return m, nil
		}
		m.viewFrom = 0
		return m, m.evaluateScroll()

	case "end", "G":
		m.showTail()
		return m, nil

	case "t":
		theme := m.prefs.ToggleTheme()
		m.styles = stylesFor(theme)
		if err := m.prefs.Save(m.prefsPath); err != nil {
			log.Warn().Err(err).Msg("could not save settings")
			return m, m.setNotice("Theme: "+theme+" (not saved)", true)
		}
		return m, m.setNotice("Theme: "+theme, false)

	case "i":
		m.indKind = m.indKind.Next()
		m.overlay = indicator.Compute(m.indKind, m.cfg.Indicator.Period, m.candles)
		switch {
		case m.indKind == indicator.None:
			return m, m.setNotice("Indicator off", false)
		case m.overlay == nil:
			return m, m.setNotice("Not enough data for the indicator", false)
		default:
			return m, m.setNotice(m.overlay.Name, false)
		}

	case "r":
		return m.reload()
	}

	return m, nil
}

// pan shifts the visible window by delta bars and lets the scroll
// controller react.
func (m model) pan(delta int) (tea.Model, tea.Cmd) {
	if len(m.candles) == 0 {
		return m, nil
	}
	m.viewFrom += delta
	m.clampView()
	return m, m.evaluateScroll()
}

// reload drops everything and starts over with a fresh session, the way
// the page reload worked in the browser client.
func (m model) reload() (tea.Model, tea.Cmd) {
	if m.liveStop != nil {
		m.liveStop()
		m.liveStop = nil
	}

	q, err := m.cfg.Query(time.Now())
	if err != nil {
		return m, m.setNotice(errorLine(err), true)
	}
	m.baseQuery = q
	m.lazy = lazyload.New(q.Start)
	m.loader.Reset(q)
	m.candles, m.volume, m.overlay = nil, nil, nil
	m.viewFrom = 0
	m.sessionUp = false
	m.fetchErr = ""
	m.loading = true

	cmd := m.setNotice("Reloading…", false)
	return m, tea.Batch(cmd, m.startSessionCmd())
}

// ── data handling ─────────────────────────────────────────────────────────────

func (m model) applyData(msg dataMsg) (tea.Model, tea.Cmd) {
	m.loading = false

	if msg.err != nil {
		if errors.Is(msg.err, loader.ErrFetchInFlight) {
			if !msg.prepend {
				// The initial load raced a leftover fetch; retry shortly.
				return m, tea.Tick(retryDelay, func(time.Time) tea.Msg { return retryInitialMsg{} })
			}
			return m, nil
		}
		// The error stays in the header until the next load succeeds.
		m.fetchErr = errorLine(msg.err)
		return m, m.setNotice(m.fetchErr, true)
	}

	res := msg.res
	if res.Stale {
		return m, nil
	}

	m.fetchErr = ""
	m.refreshData()

	var noticeCmd tea.Cmd
	if res.Message != "" {
		noticeCmd = m.setNotice(res.Message, false)
	}

	if res.Replaced {
		if res.Empty {
			m.viewFrom = 0
			if noticeCmd == nil {
				noticeCmd = m.setNotice("No data for the requested range.", false)
			}
			return m, noticeCmd
		}
		m.showTail()
		return m, noticeCmd
	}

	// A prepend grew the dataset in front; shift the view so the same
	// bars stay on screen.
	if res.Prepended > 0 {
		m.viewFrom += res.Prepended
	}
	if res.Empty && noticeCmd == nil {
		noticeCmd = m.setNotice("No more historical data.", false)
	}
	return m, noticeCmd
}

// refreshData pulls a fresh snapshot and recomputes the overlay.
func (m *model) refreshData() {
	m.candles, m.volume = m.loader.Snapshot()
	m.overlay = indicator.Compute(m.indKind, m.cfg.Indicator.Period, m.candles)
}

// evaluateScroll forwards the visible range to the controller and acts on
// its decision.
func (m *model) evaluateScroll() tea.Cmd {
	view := lazyload.View{From: m.viewFrom, To: m.viewFrom + m.visibleCount()}
	switch act := m.lazy.Evaluate(view, m.loader.State()); act.Op {
	case lazyload.OpClamp:
		m.viewFrom = 0
	case lazyload.OpExhausted:
		m.loader.MarkExhausted()
	case lazyload.OpPrepend:
		m.loading = true
		return m.loadCmd(act.Start, act.End, true)
	}
	return nil
}

// showTail positions the view on the most recent bars.
func (m *model) showTail() {
	n := m.cfg.Chart.VisibleBars
	if c := m.visibleCount(); c < n {
		n = c
	}
	m.viewFrom = len(m.candles) - n
	if m.viewFrom < 0 {
		m.viewFrom = 0
	}
}

// clampView keeps the window anchored to the dataset: never beyond the
// newest bar, and at most one screen into the void on the left.
func (m *model) clampView() {
	vis := m.visibleCount()
	maxFrom := len(m.candles) - vis
	if maxFrom < 0 {
		maxFrom = 0
	}
	if m.viewFrom > maxFrom {
		m.viewFrom = maxFrom
	}
	if minFrom := -(vis - 1); m.viewFrom < minFrom {
		m.viewFrom = minFrom
	}
}

// ── commands ──────────────────────────────────────────────────────────────────

// waitEvent relays the next channel event (live bar or heartbeat loss)
// into the update loop. Re-armed after each delivery.
func (m model) waitEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

func (m model) startSessionCmd() tea.Cmd {
	ctx, mgr := m.ctx, m.mgr
	return func() tea.Msg {
		if err := mgr.Start(ctx); err != nil {
			return sessionStartErrMsg{err}
		}
		return sessionReadyMsg{}
	}
}

func (m model) loadCmd(start, end time.Time, prepend bool) tea.Cmd {
	ctx, ld := m.ctx, m.loader
	return func() tea.Msg {
		res, err := ld.Load(ctx, start, end, prepend)
		return dataMsg{res: res, err: err, prepend: prepend}
	}
}

// startLive subscribes to the update stream for the active query, feeding
// bars into the event channel without ever blocking the producer. A bad
// stream URL disables the stream and reports it; transient disconnects
// are retried inside the subscription.
func (m *model) startLive() tea.Cmd {
	u, err := live.StreamURL(m.cfg.Server.BaseURL, m.cfg.Live.URL, m.mgr.Token(), m.baseQuery)
	if err != nil {
		log.Warn().Err(err).Msg("live stream disabled")
		return m.setNotice("Live stream unavailable: "+err.Error(), true)
	}
	events := m.events
	m.liveStop = live.Subscribe(m.ctx, u, func(b live.Bar) {
		select {
		case events <- liveBarMsg{bar: b}:
		default:
		}
	})
	return nil
}

// ── notices ───────────────────────────────────────────────────────────────────

// setNotice shows a transient line that dismisses itself unless a newer
// notice replaced it first.
func (m *model) setNotice(text string, isErr bool) tea.Cmd {
	m.notice = text
	m.noticeErr = isErr
	m.noticeID++
	id := m.noticeID
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeExpireMsg{id} })
}

func errorLine(err error) string {
	var se *backend.StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("backend %d: %s", se.Code, se.Detail)
	}
	return err.Error()
}
