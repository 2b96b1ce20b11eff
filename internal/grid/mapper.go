// Package grid re-projects time/price contract rectangles into the
// renderer's scrolling pixel world space, smoothing jitter in the
// renderer's own column-width estimates.
package grid

import (
	"math"

	"boxhit-client/internal/protocol"
)

const (
	// widthSmoothing is the EMA factor applied to measured column
	// widths; renderer-side estimation noise otherwise shows up as
	// visible cell jitter.
	widthSmoothing = 0.2
	// minWidthFraction clamps measured contract widths so a contract
	// never degenerates into a sliver narrower than a quarter column.
	minWidthFraction = 0.25
)

// Config holds the per-session mapping parameters.
type Config struct {
	// Timeframe is the duration of one grid column in milliseconds.
	Timeframe int64
	// PriceStep is the height of one price band.
	PriceStep float64
	// MsPerPoint and PixelsPerPoint describe the renderer's data
	// cadence, used to estimate column width when the renderer cannot
	// be probed.
	MsPerPoint     int64
	PixelsPerPoint float64
	// CellHeight is the pixel height of one price band.
	CellHeight float64
	// VisibleColumns and VisibleRows bound the drawable area.
	VisibleColumns int
	VisibleRows    int
	// ColumnsBehind is how many expired columns stay drawable before a
	// contract is culled.
	ColumnsBehind int
}

// AnchorState is the only mutable state the mapper carries between
// updates. It is scoped to one rendering session and must be reset
// whenever the timeframe changes or the renderer is re-created.
type AnchorState struct {
	// Anchor is the pixel x of the start of the current time column,
	// nil until first derived.
	Anchor *float64
	// Timeframe the anchor was computed for; a mismatch with the
	// config invalidates the whole state.
	Timeframe int64
	// ColumnIdx is floor(now / timeframe) at the last update.
	ColumnIdx int64
	// ColumnWidth is the EMA-smoothed pixel width of one column.
	ColumnWidth float64
}

// Reset clears the state for a new timeframe. Stale pixel anchors from
// a different column width are never reused.
func (a *AnchorState) Reset(timeframe int64) {
	*a = AnchorState{Timeframe: timeframe}
}

// Probe is the slice of the renderer the mapper reads: its current
// scroll position and, when already scrolled there, the world x of an
// arbitrary timestamp.
type Probe interface {
	CurrentWorldX() float64
	WorldXForTimestamp(ts int64) (float64, bool)
}

// Geometry is one contract cell in grid indices and continuous world
// pixels.
type Geometry struct {
	ContractID string
	Column     int64
	Row        int64
	WorldX     float64
	WorldY     float64
	Width      float64
	Height     float64
}

// Map computes per-contract geometry for one update. basePrice anchors
// the vertical band quantization, usually the latest tick. The anchor
// state is the explicit carrier of all mutable mapping state; equal
// inputs (including an equal anchor state) always produce equal
// geometry.
func Map(cfg Config, st *AnchorState, contracts []protocol.Contract, nowMs int64, basePrice float64, probe Probe) map[string]Geometry {
	if cfg.Timeframe <= 0 {
		return nil
	}
	if st.Timeframe != cfg.Timeframe {
		st.Reset(cfg.Timeframe)
	}

	colIdx := floorDiv(nowMs, cfg.Timeframe)
	updateColumnWidth(cfg, st, nowMs, probe)
	updateAnchor(cfg, st, nowMs, colIdx, probe)
	st.ColumnIdx = colIdx

	quantBase := math.Floor(basePrice/cfg.PriceStep) * cfg.PriceStep
	maxVisible := quantBase + float64(cfg.VisibleRows/2)*cfg.PriceStep

	out := make(map[string]Geometry, len(contracts))
	for _, c := range contracts {
		contractCol := floorDiv(c.StartTime, cfg.Timeframe)
		colOffset := contractCol - colIdx
		if c.EndTime < nowMs-cfg.Timeframe*int64(cfg.ColumnsBehind) {
			continue
		}
		if cfg.VisibleColumns > 0 && colOffset > int64(cfg.VisibleColumns) {
			continue
		}

		durCols := durationColumns(c.StartTime, c.EndTime, cfg.Timeframe)
		worldX, width := contractSpan(cfg, st, c, colOffset, durCols, probe)

		center := (c.LowerStrike + c.UpperStrike) / 2
		row := int64(math.Floor((maxVisible - center) / cfg.PriceStep))
		worldY := (maxVisible - c.UpperStrike) / cfg.PriceStep * cfg.CellHeight
		height := (c.UpperStrike - c.LowerStrike) / cfg.PriceStep * cfg.CellHeight

		out[c.ContractID] = Geometry{
			ContractID: c.ContractID,
			Column:     colOffset,
			Row:        row,
			WorldX:     worldX,
			WorldY:     worldY,
			Width:      width,
			Height:     height,
		}
	}
	return out
}

// updateColumnWidth derives one column's pixel width from the
// renderer's own world-x delta across a single timeframe, falling back
// to the configured data cadence, then smooths it.
func updateColumnWidth(cfg Config, st *AnchorState, nowMs int64, probe Probe) {
	measured := 0.0
	if probe != nil {
		x0, ok0 := probe.WorldXForTimestamp(nowMs)
		x1, ok1 := probe.WorldXForTimestamp(nowMs + cfg.Timeframe)
		if ok0 && ok1 && x1 > x0 {
			measured = x1 - x0
		}
	}
	if measured <= 0 && cfg.MsPerPoint > 0 {
		measured = float64(cfg.Timeframe) / float64(cfg.MsPerPoint) * cfg.PixelsPerPoint
	}
	if measured <= 0 {
		return
	}
	if st.ColumnWidth <= 0 {
		st.ColumnWidth = measured
		return
	}
	st.ColumnWidth += widthSmoothing * (measured - st.ColumnWidth)
}

// updateAnchor snaps the anchor to a fresh renderer measurement when
// one is available, otherwise advances it by the number of columns the
// clock has crossed since the last update.
func updateAnchor(cfg Config, st *AnchorState, nowMs, colIdx int64, probe Probe) {
	colStart := colIdx * cfg.Timeframe
	if probe != nil {
		if x, ok := probe.WorldXForTimestamp(colStart); ok {
			st.Anchor = &x
			return
		}
	}
	if st.Anchor != nil {
		advanced := *st.Anchor + float64(colIdx-st.ColumnIdx)*st.ColumnWidth
		st.Anchor = &advanced
		return
	}
	if probe != nil && st.ColumnWidth > 0 {
		// No prior anchor and no direct measurement: back out the
		// column start from the renderer's current position and the
		// fraction of the column already elapsed.
		frac := float64(nowMs-colStart) / float64(cfg.Timeframe)
		derived := probe.CurrentWorldX() - frac*st.ColumnWidth
		st.Anchor = &derived
	}
}

func contractSpan(cfg Config, st *AnchorState, c protocol.Contract, colOffset, durCols int64, probe Probe) (worldX, width float64) {
	haveStart := false
	var startX, endX float64
	var haveEnd bool
	if probe != nil {
		startX, haveStart = probe.WorldXForTimestamp(c.StartTime)
		endX, haveEnd = probe.WorldXForTimestamp(c.EndTime)
	}

	if haveStart {
		worldX = startX
	} else if st.Anchor != nil {
		worldX = *st.Anchor + float64(colOffset)*st.ColumnWidth
	} else {
		worldX = float64(colOffset) * st.ColumnWidth
	}

	if haveStart && haveEnd && endX > startX {
		width = endX - startX
		if min := minWidthFraction * st.ColumnWidth; width < min {
			width = min
		}
	} else {
		width = float64(durCols) * st.ColumnWidth
	}
	return worldX, width
}

// durationColumns counts the columns a contract spans, inclusive of
// the column its end boundary falls on; a zero-duration contract still
// occupies one column.
func durationColumns(start, end, timeframe int64) int64 {
	if end <= start {
		return 1
	}
	return (end-start)/timeframe + 1
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
