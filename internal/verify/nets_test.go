package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schsync/internal/fault"
	"schsync/internal/host"
	"schsync/internal/host/memhost"
	"schsync/internal/ir"
)

func ptr[T any](v T) *T { return &v }

func xy(x, y float64) Point { return Point{X: &x, Y: &y} }

type fakeSource struct {
	host.Pins
	sourceFn func(ctx context.Context, page host.Page, maxChars int) (host.Text, error)
}

func (fakeSource) EnsurePage(context.Context, host.PageIntent) error { return nil }

func (fakeSource) CurrentPage(context.Context) (host.Page, error) {
	return host.Page{DocumentID: "doc"}, nil
}

func (f fakeSource) DocumentSource(ctx context.Context, page host.Page, maxChars int) (host.Text, error) {
	return f.sourceFn(ctx, page, maxChars)
}

// staircase draws (0,0)-(10,0)-(10,10)-(20,10) as three wires on N1.
func staircase(t *testing.T) (*memhost.Host, []string) {
	t.Helper()
	ctx := context.Background()
	h := memhost.New()
	require.NoError(t, h.EnsurePage(ctx, host.PageIntent{}))
	page, err := h.CurrentPage(ctx)
	require.NoError(t, err)

	var refs []string
	for _, line := range []ir.Line{ir.FlatLine(0, 0, 10, 0), ir.FlatLine(10, 0, 10, 10), ir.FlatLine(10, 10, 20, 10)} {
		ref, err := h.Create(ctx, page, host.WireSpec{Line: line, Net: "N1"})
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	return h, refs
}

func TestThreeSegmentPathIsConnected(t *testing.T) {
	h, _ := staircase(t)
	rep, err := New(h, nil, nil).VerifyNets(context.Background(), Request{
		Nets: []Net{{Name: "N1", Points: []Point{xy(0, 0), xy(20, 10)}}},
	})
	require.NoError(t, err)
	assert.True(t, rep.OK)

	res := rep.Results["N1"]
	assert.Equal(t, 3, res.Wires)
	assert.Equal(t, 3, res.Segments)
	assert.Empty(t, res.MissingPoints)
	assert.Empty(t, res.Disconnected)
	assert.False(t, rep.Doc.Truncated)
}

func TestRemovingMiddleSegmentDisconnects(t *testing.T) {
	ctx := context.Background()
	h, refs := staircase(t)
	page, err := h.CurrentPage(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Delete(ctx, page, host.ClassWire, []string{refs[1]}))

	rep, err := New(h, nil, nil).VerifyNets(ctx, Request{
		Nets: []Net{{Name: "N1", Points: []Point{xy(0, 0), {Ref: "end", X: ptr(20.0), Y: ptr(10.0)}}}},
	})
	require.NoError(t, err)
	assert.False(t, rep.OK)
	res := rep.Results["N1"]
	assert.Empty(t, res.MissingPoints)
	assert.Equal(t, []string{"end@20,-10"}, res.Disconnected)
}

func TestMissingPointAndOptionalConnectivity(t *testing.T) {
	h, _ := staircase(t)
	rep, err := New(h, nil, nil).VerifyNets(context.Background(), Request{
		Nets:             []Net{{Name: "N1", Points: []Point{xy(0, 0), xy(50, 50)}}},
		RequireConnected: ptr(false),
	})
	require.NoError(t, err)
	res := rep.Results["N1"]
	assert.False(t, res.OK)
	assert.Equal(t, []string{"(50,50)@50,-50"}, res.MissingPoints)
	assert.Empty(t, res.Disconnected)
}

func TestNoPointOnGraphReportsAllDisconnected(t *testing.T) {
	h, _ := staircase(t)
	rep, err := New(h, nil, nil).VerifyNets(context.Background(), Request{
		Nets: []Net{{Name: "N2", Points: []Point{xy(0, 0), xy(20, 10)}}},
	})
	require.NoError(t, err)
	res := rep.Results["N2"]
	assert.Zero(t, res.Wires)
	assert.Len(t, res.MissingPoints, 2)
	assert.Equal(t, []string{"(0,0)@0,0", "(20,10)@20,-10"}, res.Disconnected)
}

func TestExplicitWireIDs(t *testing.T) {
	ctx := context.Background()
	h, refs := staircase(t)
	page, err := h.CurrentPage(ctx)
	require.NoError(t, err)
	other, err := h.Create(ctx, page, host.WireSpec{Line: ir.FlatLine(20, 10, 30, 10), Net: "N9"})
	require.NoError(t, err)

	rep, err := New(h, nil, nil).VerifyNets(ctx, Request{
		Nets: []Net{{
			Name:    "N1",
			WireIDs: append(append([]string{}, refs...), other, "w404"),
			Points:  []Point{xy(0, 0), xy(30, 10)},
		}},
	})
	require.NoError(t, err)
	res := rep.Results["N1"]
	assert.False(t, res.OK)
	assert.Equal(t, 5, res.Wires)
	assert.Equal(t, []string{"w404"}, res.MissingWireIDs)
	assert.Equal(t, []Mismatch{{WireID: other, Expected: "N1", Actual: "N9"}}, res.NetMismatch)
	assert.Empty(t, res.MissingPoints)
	assert.Empty(t, res.Disconnected)
}

func TestPinPointsUseSourceFrame(t *testing.T) {
	ctx := context.Background()
	h := memhost.New(memhost.TwoPinResistor("res"))
	require.NoError(t, h.EnsurePage(ctx, host.PageIntent{}))
	page, err := h.CurrentPage(ctx)
	require.NoError(t, err)
	r1, err := h.Create(ctx, page, host.ComponentSpec{DeviceUUID: "res", X: ptr(0.0), Y: ptr(0.0)})
	require.NoError(t, err)
	r2, err := h.Create(ctx, page, host.ComponentSpec{DeviceUUID: "res", X: ptr(100.0), Y: ptr(50.0)})
	require.NoError(t, err)
	_, err = h.Create(ctx, page, host.WireSpec{Line: ir.FlatLine(40, 0, 70, 0, 70, 50, 100, 50), Net: "MID"})
	require.NoError(t, err)

	rep, err := New(h, nil, nil).VerifyNets(ctx, Request{
		Nets: []Net{{Name: "MID", Points: []Point{
			{PrimitiveID: r1, PinNumber: "2"},
			{PrimitiveID: r2, PinName: "A"},
		}}},
	})
	require.NoError(t, err)
	assert.True(t, rep.OK, "%+v", rep.Results["MID"])

	rep, err = New(h, nil, nil).VerifyNets(ctx, Request{
		Nets: []Net{{Name: "MID", Points: []Point{{PrimitiveID: r1, PinNumber: "1"}, {PrimitiveID: r2, PinName: "A"}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{r1 + ".A@0,0"}, rep.Results["MID"].MissingPoints)
}

func TestUnknownPinIsAnError(t *testing.T) {
	ctx := context.Background()
	h := memhost.New(memhost.TwoPinResistor("res"))
	require.NoError(t, h.EnsurePage(ctx, host.PageIntent{}))
	page, err := h.CurrentPage(ctx)
	require.NoError(t, err)
	r1, err := h.Create(ctx, page, host.ComponentSpec{DeviceUUID: "res", X: ptr(0.0), Y: ptr(0.0)})
	require.NoError(t, err)

	_, err = New(h, nil, nil).VerifyNets(ctx, Request{
		Nets: []Net{{Name: "N", Points: []Point{{PrimitiveID: r1, PinName: "Z"}}}},
	})
	assert.Equal(t, fault.PinNotFound, fault.CodeOf(err))
}

func TestEmptySourceIsUnavailable(t *testing.T) {
	var gotMax int
	src := fakeSource{sourceFn: func(_ context.Context, _ host.Page, maxChars int) (host.Text, error) {
		gotMax = maxChars
		return host.Text{}, nil
	}}
	_, err := New(src, nil, nil).VerifyNets(context.Background(), Request{Nets: []Net{{Name: "N", Points: []Point{xy(0, 0)}}}})
	assert.Equal(t, fault.SourceUnavailable, fault.CodeOf(err))
	assert.Equal(t, DefaultMaxChars, gotMax)
}

func TestRequestValidation(t *testing.T) {
	v := New(fakeSource{}, nil, nil)
	_, err := v.VerifyNets(context.Background(), Request{})
	assert.Equal(t, fault.InvalidParams, fault.CodeOf(err))

	_, err = v.VerifyNets(context.Background(), Request{Nets: []Net{{Name: "N", Points: []Point{{PrimitiveID: "c1"}}}}})
	assert.Equal(t, fault.InvalidParams, fault.CodeOf(err))
}
