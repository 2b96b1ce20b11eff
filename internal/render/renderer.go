// Package render drives an external grid renderer through its narrow
// interface: the renderer paints cells and the price line, this
// package decides what it paints and when.
package render

import (
	"sync"

	"boxhit-client/internal/grid"
	"boxhit-client/internal/protocol"
)

// Renderer is the contract presented by the low-level 2D grid game.
// Event registration is typed rather than string-keyed so the boundary
// stays checkable at compile time.
type Renderer interface {
	AddPriceData(p protocol.PricePoint)
	UpdateMultipliers(cells map[string]Cell)
	SetGridScale(columnWidthPx, priceStep float64)
	SetGridOrigin(anchorX, anchorPrice float64)
	CurrentWorldX() float64
	WorldXForTimestamp(ts int64) (float64, bool)
	OnSquareSelected(fn func(squareID string))
	OnCameraFollowingChanged(fn func(following bool))
	Destroy()
}

// Cell is one drawable contract: its geometry plus the display fields
// the renderer paints into the box.
type Cell struct {
	Geometry         grid.Geometry
	ReturnMultiplier float64
	TotalVolume      float64
	Expired          bool
	HasPosition      bool
}

// Headless is a renderer that draws nothing. It backs the CLI client
// and tests, and stands in until the real canvas renderer attaches.
type Headless struct {
	mu          sync.Mutex
	prices      []protocol.PricePoint
	cells       map[string]Cell
	columnWidth float64
	priceStep   float64
	anchorX     float64
	anchorPrice float64
	worldX      float64
	selected    []func(string)
	following   []func(bool)
	destroyed   bool
}

func NewHeadless() *Headless {
	return &Headless{cells: make(map[string]Cell)}
}

func (h *Headless) AddPriceData(p protocol.PricePoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prices = append(h.prices, p)
	h.worldX += 1
}

func (h *Headless) UpdateMultipliers(cells map[string]Cell) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cells = cells
}

func (h *Headless) SetGridScale(columnWidthPx, priceStep float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.columnWidth = columnWidthPx
	h.priceStep = priceStep
}

func (h *Headless) SetGridOrigin(anchorX, anchorPrice float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.anchorX = anchorX
	h.anchorPrice = anchorPrice
}

func (h *Headless) CurrentWorldX() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.worldX
}

// WorldXForTimestamp always misses: a headless renderer has no scroll
// history, so the mapper runs on its extrapolation path.
func (h *Headless) WorldXForTimestamp(int64) (float64, bool) {
	return 0, false
}

func (h *Headless) OnSquareSelected(fn func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selected = append(h.selected, fn)
}

func (h *Headless) OnCameraFollowingChanged(fn func(bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.following = append(h.following, fn)
}

// SelectSquare simulates a user tapping a cell.
func (h *Headless) SelectSquare(squareID string) {
	h.mu.Lock()
	var subs []func(string)
	subs = append(subs, h.selected...)
	h.mu.Unlock()
	for _, fn := range subs {
		fn(squareID)
	}
}

func (h *Headless) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyed = true
	h.cells = map[string]Cell{}
	h.prices = nil
}

// Cells returns the last painted cell set, for inspection.
func (h *Headless) Cells() map[string]Cell {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]Cell, len(h.cells))
	for id, c := range h.cells {
		out[id] = c
	}
	return out
}

// PriceCount returns how many points have been fed to the price line.
func (h *Headless) PriceCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.prices)
}

// Destroyed reports whether Destroy has been called.
func (h *Headless) Destroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}
