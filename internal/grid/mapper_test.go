package grid

import (
	"math"
	"reflect"
	"testing"

	"boxhit-client/internal/protocol"
)

type fakeProbe struct {
	worldX float64
	xs     map[int64]float64
}

func (f *fakeProbe) CurrentWorldX() float64 {
	return f.worldX
}

func (f *fakeProbe) WorldXForTimestamp(ts int64) (float64, bool) {
	x, ok := f.xs[ts]
	return x, ok
}

func testConfig() Config {
	return Config{
		Timeframe:      2000,
		PriceStep:      0.5,
		MsPerPoint:     500,
		PixelsPerPoint: 5,
		CellHeight:     40,
		VisibleColumns: 20,
		VisibleRows:    20,
		ColumnsBehind:  2,
	}
}

func TestMapScenarioTwoColumnsAhead(t *testing.T) {
	cfg := testConfig()
	now := int64(1_000_000) // multiple of the timeframe
	contracts := []protocol.Contract{{
		ContractID:  "c1",
		StartTime:   now + 4000,
		EndTime:     now + 6000,
		LowerStrike: 99.5,
		UpperStrike: 100.5,
		Status:      protocol.ContractActive,
	}}

	var st AnchorState
	geometry := Map(cfg, &st, contracts, now, 100, nil)
	geo, ok := geometry["c1"]
	if !ok {
		t.Fatalf("contract missing from geometry")
	}
	if geo.Column != 2 {
		t.Fatalf("expected column offset 2, got %d", geo.Column)
	}
	// Fallback column width: 2000ms / 500ms per point * 5px = 20px.
	if st.ColumnWidth != 20 {
		t.Fatalf("expected fallback column width 20, got %v", st.ColumnWidth)
	}
	if geo.Width != 40 {
		t.Fatalf("expected two columns of width, got %v", geo.Width)
	}
	// basePrice 100 quantizes to 100; 20 visible rows put the top band
	// at 105, so the 100.0 center lands 10 bands down.
	if geo.Row != 10 {
		t.Fatalf("expected row 10, got %d", geo.Row)
	}
	if geo.WorldY != (105-100.5)/0.5*40 {
		t.Fatalf("unexpected worldY %v", geo.WorldY)
	}
	if geo.Height != 80 {
		t.Fatalf("expected height 80, got %v", geo.Height)
	}
	// No anchor and no probe: the left edge extrapolates from the
	// column offset alone.
	if geo.WorldX != 2*20 {
		t.Fatalf("expected worldX 40, got %v", geo.WorldX)
	}
}

func TestMapIsIdempotentForEqualInputs(t *testing.T) {
	cfg := testConfig()
	now := int64(500_000)
	contracts := []protocol.Contract{
		{ContractID: "a", StartTime: now + 2000, EndTime: now + 4000, LowerStrike: 99, UpperStrike: 100},
		{ContractID: "b", StartTime: now + 6000, EndTime: now + 8000, LowerStrike: 100, UpperStrike: 101},
	}
	probe := &fakeProbe{worldX: 1234, xs: map[int64]float64{now: 1234, now + 2000: 1260}}

	st1 := AnchorState{Timeframe: 2000, ColumnIdx: now / 2000, ColumnWidth: 25}
	st2 := st1
	g1 := Map(cfg, &st1, contracts, now, 99.7, probe)
	g2 := Map(cfg, &st2, contracts, now, 99.7, probe)
	if !reflect.DeepEqual(g1, g2) {
		t.Fatalf("equal inputs produced different geometry:\n%v\n%v", g1, g2)
	}
	if !reflect.DeepEqual(st1, st2) {
		t.Fatalf("equal inputs produced different anchor state:\n%+v\n%+v", st1, st2)
	}
}

func TestTimeframeChangeResetsAnchorState(t *testing.T) {
	cfg := testConfig()
	anchor := 500.0
	st := AnchorState{Anchor: &anchor, Timeframe: 5000, ColumnIdx: 7, ColumnWidth: 90}

	Map(cfg, &st, nil, 10_000, 100, nil)
	if st.Timeframe != cfg.Timeframe {
		t.Fatalf("expected timeframe %d, got %d", cfg.Timeframe, st.Timeframe)
	}
	if st.Anchor != nil {
		t.Fatalf("stale anchor from a different timeframe must not be reused")
	}
	if st.ColumnWidth != 20 {
		t.Fatalf("column width must be re-derived, got %v", st.ColumnWidth)
	}
}

func TestColumnWidthSmoothing(t *testing.T) {
	cfg := testConfig()
	now := int64(100_000)
	probe := &fakeProbe{xs: map[int64]float64{now: 0, now + 2000: 30}}

	var st AnchorState
	Map(cfg, &st, nil, now, 100, probe)
	if st.ColumnWidth != 30 {
		t.Fatalf("first measurement should seed the width, got %v", st.ColumnWidth)
	}

	probe.xs[now+2000] = 50
	Map(cfg, &st, nil, now, 100, probe)
	want := 30 + 0.2*(50-30)
	if math.Abs(st.ColumnWidth-want) > 1e-9 {
		t.Fatalf("expected smoothed width %v, got %v", want, st.ColumnWidth)
	}
}

func TestAnchorSnapsToProbeMeasurement(t *testing.T) {
	cfg := testConfig()
	now := int64(100_000) // column start == now
	probe := &fakeProbe{xs: map[int64]float64{now: 777, now + 2000: 797}}

	var st AnchorState
	Map(cfg, &st, nil, now, 100, probe)
	if st.Anchor == nil || *st.Anchor != 777 {
		t.Fatalf("anchor should snap to the renderer measurement, got %v", st.Anchor)
	}
}

func TestAnchorAdvancesByColumnsWhenUnmeasurable(t *testing.T) {
	cfg := testConfig()
	anchor := 100.0
	st := AnchorState{Anchor: &anchor, Timeframe: 2000, ColumnIdx: 49, ColumnWidth: 20}

	// One column later, no probe: the anchor advances one smoothed
	// column width.
	Map(cfg, &st, nil, 100_000, 100, nil)
	if st.ColumnIdx != 50 {
		t.Fatalf("expected column index 50, got %d", st.ColumnIdx)
	}
	if st.Anchor == nil || *st.Anchor != 120 {
		t.Fatalf("expected anchor 120, got %v", st.Anchor)
	}
}

func TestVisibilityCulling(t *testing.T) {
	cfg := testConfig()
	now := int64(1_000_000)
	contracts := []protocol.Contract{
		{ContractID: "expired", StartTime: now - 20_000, EndTime: now - 10_000},
		{ContractID: "edge", StartTime: now - 4000, EndTime: now - 2000},
		{ContractID: "far", StartTime: now + 100_000, EndTime: now + 102_000},
		{ContractID: "near", StartTime: now + 2000, EndTime: now + 4000},
	}

	var st AnchorState
	geometry := Map(cfg, &st, contracts, now, 100, nil)
	if _, ok := geometry["expired"]; ok {
		t.Fatalf("contract behind the retention window must be culled")
	}
	if _, ok := geometry["far"]; ok {
		t.Fatalf("contract beyond the visible columns must be culled")
	}
	if _, ok := geometry["edge"]; !ok {
		t.Fatalf("contract within columns_behind must be kept")
	}
	if _, ok := geometry["near"]; !ok {
		t.Fatalf("upcoming contract must be kept")
	}
}

func TestMeasuredWidthClampedToQuarterColumn(t *testing.T) {
	cfg := testConfig()
	now := int64(100_000)
	start := now + 2000
	end := now + 2100
	probe := &fakeProbe{xs: map[int64]float64{
		now:   0,
		start: 20, // also measures the column width: one timeframe ahead of now
		end:   21, // a 1px sliver
	}}
	contracts := []protocol.Contract{{ContractID: "s", StartTime: start, EndTime: end, LowerStrike: 99, UpperStrike: 100}}

	var st AnchorState
	geometry := Map(cfg, &st, contracts, now, 100, probe)
	geo := geometry["s"]
	if geo.Width != 0.25*st.ColumnWidth {
		t.Fatalf("expected clamped width %v, got %v", 0.25*st.ColumnWidth, geo.Width)
	}
	if geo.WorldX != 20 {
		t.Fatalf("left edge should come from the renderer, got %v", geo.WorldX)
	}
}

func TestZeroDurationContractOccupiesOneColumn(t *testing.T) {
	cfg := testConfig()
	now := int64(100_000)
	contracts := []protocol.Contract{{ContractID: "z", StartTime: now + 2000, EndTime: now + 2000, LowerStrike: 99, UpperStrike: 100}}

	var st AnchorState
	geometry := Map(cfg, &st, contracts, now, 100, nil)
	if geo := geometry["z"]; geo.Width != st.ColumnWidth {
		t.Fatalf("zero-duration contract should be one column wide, got %v", geo.Width)
	}
}

func TestAnchorDerivedFromCurrentWorldX(t *testing.T) {
	cfg := testConfig()
	now := int64(101_000) // halfway into the 100_000 column
	probe := &fakeProbe{worldX: 400, xs: map[int64]float64{}}

	var st AnchorState
	Map(cfg, &st, nil, now, 100, probe)
	// Fallback width is 20; half a column has elapsed.
	if st.Anchor == nil || *st.Anchor != 390 {
		t.Fatalf("expected derived anchor 390, got %v", st.Anchor)
	}
}
