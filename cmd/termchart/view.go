package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/chaitanyamurarka/trading-platform-v3.1/loader"
	"github.com/chaitanyamurarka/trading-platform-v3.1/model/candle"
	"github.com/chaitanyamurarka/trading-platform-v3.1/settings"
)

// ── styles ────────────────────────────────────────────────────────────────────

type styles struct {
	bull    lipgloss.Style
	bear    lipgloss.Style
	wick    lipgloss.Style
	axis    lipgloss.Style
	header  lipgloss.Style
	footer  lipgloss.Style
	notice  lipgloss.Style
	errLine lipgloss.Style
	overlay lipgloss.Style
	volUp   lipgloss.Style
	volDown lipgloss.Style
}

func stylesFor(theme string) *styles {
	if theme == settings.ThemeLight {
		return &styles{
			bull:    lipgloss.NewStyle().Foreground(lipgloss.Color("#1a7f37")),
			bear:    lipgloss.NewStyle().Foreground(lipgloss.Color("#cf222e")),
			wick:    lipgloss.NewStyle().Foreground(lipgloss.Color("#57606a")),
			axis:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7781")),
			header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#24292f")),
			footer:  lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7781")),
			notice:  lipgloss.NewStyle().Foreground(lipgloss.Color("#9a6700")),
			errLine: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#cf222e")),
			overlay: lipgloss.NewStyle().Foreground(lipgloss.Color("#8250df")),
			volUp:   lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color("#1a7f37")),
			volDown: lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color("#cf222e")),
		}
	}
	return &styles{
		bull:    lipgloss.NewStyle().Foreground(lipgloss.Color("#26a641")),
		bear:    lipgloss.NewStyle().Foreground(lipgloss.Color("#e05c5c")),
		wick:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		axis:    lipgloss.NewStyle().Foreground(lipgloss.Color("#555555")),
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#aaaaaa")),
		footer:  lipgloss.NewStyle().Foreground(lipgloss.Color("#555555")),
		notice:  lipgloss.NewStyle().Foreground(lipgloss.Color("#d29922")),
		errLine: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e05c5c")),
		overlay: lipgloss.NewStyle().Foreground(lipgloss.Color("#bc8cff")),
		volUp:   lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color("#26a641")),
		volDown: lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color("#e05c5c")),
	}
}

// ── layout ────────────────────────────────────────────────────────────────────

const yAxisWidth = 11 // "  12345.67 │"

// chartCols is how many 2-char candle columns fit beside the axis.
func (m model) chartCols() int {
	cols := (m.width - yAxisWidth) / 2
	if cols < 1 {
		cols = 1
	}
	return cols
}

// visibleCount is the logical window size used for panning and scroll
// decisions.
func (m model) visibleCount() int {
	if m.width == 0 {
		return m.cfg.Chart.VisibleBars
	}
	return m.chartCols()
}

// ── View ──────────────────────────────────────────────────────────────────────

const footerText = "←/→ pan  shift+←/→ page  g start  G latest  i indicator  t theme  r reload  q quit"

func (m model) View() string {
	if m.width == 0 {
		return "connecting…"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')
	b.WriteString(m.renderChart())
	b.WriteString(m.renderNotice())
	b.WriteByte('\n')
	b.WriteString(m.styles.footer.Render(footerText))
	return b.String()
}

// ── header ────────────────────────────────────────────────────────────────────

func (m model) renderHeader() string {
	s, ok := m.loader.Summary()
	var b strings.Builder
	if !ok {
		b.WriteString(m.styles.header.Render(fmt.Sprintf("%s:%s  %s  waiting for data…",
			m.baseQuery.Exchange, m.baseQuery.Token, m.baseQuery.Interval)))
	} else {
		last := s.Last
		b.WriteString(m.styles.header.Render(fmt.Sprintf("%s:%s %s  O:%.2f H:%.2f L:%.2f C:%.2f V:%s  ",
			s.Exchange, s.Token, s.Interval,
			last.Open, last.High, last.Low, last.Close, loader.FormatVolume(last.Volume))))

		chgStyle := m.styles.bull
		if s.Change < 0 {
			chgStyle = m.styles.bear
		}
		b.WriteString(chgStyle.Render(fmt.Sprintf("%+.2f (%+.2f%%)", s.Change, s.ChangePct)))
		b.WriteString(m.styles.header.Render("  " + time.Unix(last.Time, 0).UTC().Format("2006-01-02 15:04:05")))
	}

	if m.loading {
		b.WriteString(m.styles.notice.Render("  loading…"))
	}
	if !m.sessionUp {
		b.WriteString(m.styles.errLine.Render("  [no session]"))
	}
	if m.fetchErr != "" {
		b.WriteString(m.styles.errLine.Render("  " + m.fetchErr))
	}
	if m.loader.State().Exhausted {
		b.WriteString(m.styles.axis.Render("  [history complete]"))
	}
	return b.String()
}

// ── chart ─────────────────────────────────────────────────────────────────────

// renderChart draws the price pane, the volume pane, the x-axis and the
// time labels. Columns left of the first loaded bar stay blank when the
// user pans into the void.
func (m model) renderChart() string {
	// Reserve: 1 header + panes + 1 x-axis line + 1 time-label line
	// + 1 notice line + 1 footer.
	total := m.height - 5
	if total < 3 {
		total = 3
	}
	volH := total / 5
	if volH < 2 {
		volH = 2
	}
	if total < 8 {
		volH = 0
	}
	priceH := total - volH

	vis := m.visibleCount()
	from, pad := m.viewFrom, 0
	if from < 0 {
		pad = -from
		if pad > vis {
			pad = vis
		}
		from = 0
	}
	to := m.viewFrom + vis
	if to > len(m.candles) {
		to = len(m.candles)
	}
	var view []candle.Candle
	var vols []candle.VolumePoint
	if from < to {
		view = m.candles[from:to]
		vols = m.volume[from:to]
	}

	cols := (pad + len(view)) * 2
	if cols < 2 {
		cols = 2
	}

	hi, lo := m.priceRange(view)
	if hi == lo {
		hi = lo + 1
	}

	grid := newGrid(priceH, cols)
	for i, c := range view {
		m.renderCandle(grid, c, (pad+i)*2, priceH, hi, lo)
	}
	m.renderOverlay(grid, view, pad, priceH, hi, lo)

	var b strings.Builder
	for row := 0; row < priceH; row++ {
		price := rowToPrice(row, priceH, hi, lo)
		b.WriteString(m.styles.axis.Render(fmt.Sprintf("%9.2f │", price)))
		b.WriteString(strings.Join(grid[row], ""))
		b.WriteByte('\n')
	}

	if volH > 0 {
		b.WriteString(m.renderVolume(view, vols, pad, volH, cols))
	}

	// X-axis separator.
	b.WriteString(m.styles.axis.Render(strings.Repeat("─", yAxisWidth+cols)))
	b.WriteByte('\n')

	b.WriteString(strings.Repeat(" ", yAxisWidth))
	b.WriteString(m.renderTimeLabels(view, pad, cols))
	b.WriteByte('\n')
	return b.String()
}

func newGrid(rows, cols int) [][]string {
	grid := make([][]string, rows)
	for r := range grid {
		grid[r] = make([]string, cols)
		for c := range grid[r] {
			grid[r][c] = " "
		}
	}
	return grid
}

// renderCandle paints one candle into the grid at column x (2 wide).
func (m model) renderCandle(grid [][]string, c candle.Candle, x, chartH int, hi, lo float64) {
	style := m.styles.bear
	if c.Up() {
		style = m.styles.bull
	}

	fH := float64(chartH)
	bodyTop := priceToRow(math.Max(c.Open, c.Close), fH, hi, lo)
	bodyBot := priceToRow(math.Min(c.Open, c.Close), fH, hi, lo)
	wickTop := priceToRow(c.High, fH, hi, lo)
	wickBot := priceToRow(c.Low, fH, hi, lo)

	for row := 0; row < chartH; row++ {
		inBody := row >= bodyTop && row <= bodyBot
		inWick := row >= wickTop && row <= wickBot

		var left, right string
		switch {
		case inBody:
			left = style.Render("█")
			right = style.Render("█")
		case inWick:
			left = m.styles.wick.Render("│")
			right = " "
		default:
			left = " "
			right = " "
		}

		if x < len(grid[row]) {
			grid[row][x] = left
		}
		if x+1 < len(grid[row]) {
			grid[row][x+1] = right
		}
	}
}

// renderOverlay draws the indicator line over the candles.
func (m model) renderOverlay(grid [][]string, view []candle.Candle, pad, chartH int, hi, lo float64) {
	if m.overlay == nil {
		return
	}
	for i, c := range view {
		v, ok := m.overlay.At(c.Time)
		if !ok {
			continue
		}
		row := priceToRow(v, float64(chartH), hi, lo)
		for dx := 0; dx < 2; dx++ {
			if x := (pad+i)*2 + dx; x < len(grid[row]) {
				grid[row][x] = m.styles.overlay.Render("─")
			}
		}
	}
}

// renderVolume draws the volume pane: bars scaled against the largest
// visible volume, tinted by candle direction.
func (m model) renderVolume(view []candle.Candle, vols []candle.VolumePoint, pad, volH, cols int) string {
	var maxV float64
	for _, v := range vols {
		if v.Value > maxV {
			maxV = v.Value
		}
	}

	heights := make([]int, len(vols))
	for i, v := range vols {
		if maxV <= 0 || v.Value <= 0 {
			continue
		}
		h := int(math.Round(v.Value / maxV * float64(volH)))
		if h < 1 {
			h = 1
		}
		heights[i] = h
	}

	var b strings.Builder
	for row := 0; row < volH; row++ {
		label := strings.Repeat(" ", yAxisWidth-1) + "│"
		if row == 0 && maxV > 0 {
			label = fmt.Sprintf("%9s │", loader.FormatVolume(maxV))
		}
		b.WriteString(m.styles.axis.Render(label))

		line := make([]string, cols)
		for c := range line {
			line[c] = " "
		}
		for i, h := range heights {
			if h < volH-row {
				continue
			}
			style := m.styles.volDown
			if vols[i].Up {
				style = m.styles.volUp
			}
			x := (pad + i) * 2
			if x < cols {
				line[x] = style.Render("█")
			}
		}
		b.WriteString(strings.Join(line, ""))
		b.WriteByte('\n')
	}
	return b.String()
}

// renderTimeLabels anchors a timestamp under every tenth candle.
func (m model) renderTimeLabels(view []candle.Candle, pad, cols int) string {
	row := []byte(strings.Repeat(" ", cols))

	format := "15:04"
	switch sec := m.baseQuery.Interval.Seconds(); {
	case sec >= 86400:
		format = "Jan02"
	case sec < 60:
		format = "15:04:05"
	}

	for i := 0; i < len(view); i += 10 {
		label := time.Unix(view[i].Time, 0).UTC().Format(format)
		x := (pad + i) * 2
		if x+len(label) <= cols {
			copy(row[x:], label)
		}
	}
	return m.styles.axis.Render(string(row))
}

// ── notice line ───────────────────────────────────────────────────────────────

func (m model) renderNotice() string {
	if m.notice == "" {
		return ""
	}
	style := m.styles.notice
	if m.noticeErr {
		style = m.styles.errLine
	}
	return style.Render(m.notice)
}

// ── price scale ───────────────────────────────────────────────────────────────

// priceRange covers the visible candles and any overlay points drawn with
// them, so the line never clips.
func (m model) priceRange(view []candle.Candle) (hi, lo float64) {
	hi = -math.MaxFloat64
	lo = math.MaxFloat64
	for _, c := range view {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
		if m.overlay != nil {
			if v, ok := m.overlay.At(c.Time); ok {
				if v > hi {
					hi = v
				}
				if v < lo {
					lo = v
				}
			}
		}
	}
	if hi == -math.MaxFloat64 {
		hi = 0
	}
	if lo == math.MaxFloat64 {
		lo = 0
	}
	return
}

// priceToRow converts a price to a grid row (0 = top = high).
func priceToRow(price, chartH float64, hi, lo float64) int {
	if hi == lo {
		return int(chartH) / 2
	}
	row := (hi - price) / (hi - lo) * (chartH - 1)
	r := int(math.Round(row))
	if r < 0 {
		r = 0
	}
	if r >= int(chartH) {
		r = int(chartH) - 1
	}
	return r
}

// rowToPrice is the inverse of priceToRow.
func rowToPrice(row, chartH int, hi, lo float64) float64 {
	if chartH <= 1 {
		return hi
	}
	return hi - float64(row)/float64(chartH-1)*(hi-lo)
}
