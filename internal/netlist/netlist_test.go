package netlist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schsync/internal/fault"
	"schsync/internal/host"
	"schsync/internal/host/memhost"
	"schsync/internal/ir"
)

func TestParseComponentCentricJSON(t *testing.T) {
	p := Parse(`{"components":{
		"c1":{"props":{"Designator":"R1"},"pins":{"1":"VCC","2":"MID"}},
		"c2":{"props":{"Designator":"R2"},"pins":{"1":"MID","2":""}}
	}}`)
	require.True(t, p.OK)
	assert.Equal(t, FormatJSONComponents, p.FormatGuess)
	assert.Equal(t, []Endpoint{{Ref: "R1", Pin: "1"}}, p.Nets["VCC"])
	assert.ElementsMatch(t, []Endpoint{{Ref: "R1", Pin: "2"}, {Ref: "R2", Pin: "1"}}, p.Nets["MID"])
	assert.Len(t, p.Nets, 2)
}

func TestParseNetCentricJSON(t *testing.T) {
	p := Parse(`{"nets":{"GND":[{"ref":"U1","pin":"4"},"C1.2","R9-1"]}}`)
	require.True(t, p.OK)
	assert.Equal(t, FormatJSONNets, p.FormatGuess)
	assert.Equal(t, []Endpoint{{Ref: "U1", Pin: "4"}, {Ref: "C1", Pin: "2"}, {Ref: "R9", Pin: "1"}}, p.Nets["GND"])
}

func TestParseProtel2(t *testing.T) {
	p := Parse("[\nR1\nR0603\n10k\n]\n(\nVCC\nR1-1\nU1-8\n)\n(\n\"NET 2\"\nR1-2\n)\n")
	require.True(t, p.OK)
	assert.Equal(t, FormatProtel2, p.FormatGuess)
	assert.Equal(t, []Endpoint{{Ref: "R1", Pin: "1"}, {Ref: "U1", Pin: "8"}}, p.Nets["VCC"])
	assert.Equal(t, []Endpoint{{Ref: "R1", Pin: "2"}}, p.Nets[`"NET 2"`])
}

func TestParsePADS(t *testing.T) {
	p := Parse("!PADS-POWERPCB-V9.0-MILS!\n*PART*\nR1 R0603\n*NET*\n*SIGNAL* VCC\nR1.1 U1.8\nC1.1\n*SIGNAL* GND\nU1.4\n*END*\n")
	require.True(t, p.OK)
	assert.Equal(t, FormatPADS, p.FormatGuess)
	assert.Equal(t, []Endpoint{{Ref: "R1", Pin: "1"}, {Ref: "U1", Pin: "8"}, {Ref: "C1", Pin: "1"}}, p.Nets["VCC"])
	assert.Equal(t, []Endpoint{{Ref: "U1", Pin: "4"}}, p.Nets["GND"])
}

func TestParseGenericLines(t *testing.T) {
	p := Parse("VCC: R1.1, U1.8\nGND: U1.4 C1-2\nnot a net line\n")
	require.True(t, p.OK)
	assert.Equal(t, FormatGeneric, p.FormatGuess)
	assert.Len(t, p.Nets["VCC"], 2)
	assert.Equal(t, []Endpoint{{Ref: "U1", Pin: "4"}, {Ref: "C1", Pin: "2"}}, p.Nets["GND"])
}

func TestParseUnknown(t *testing.T) {
	for _, text := range []string{"", "hello world", `{"something":"else"}`} {
		p := Parse(text)
		assert.False(t, p.OK, text)
		assert.Equal(t, FormatUnknown, p.FormatGuess, text)
		assert.NotEmpty(t, p.Warnings, text)
	}
}

func TestVerifyNormalizesNamesAndEndpoints(t *testing.T) {
	p := Parse("(\n\"VCC\"\nR1-2\n)\n")
	require.True(t, p.OK)

	v := Verify(p, []ExpectedNet{{Name: "vcc", Endpoints: []Endpoint{{Ref: " r1", Pin: "2 "}}}})
	assert.True(t, v.OK)
	res := v.Results["vcc"]
	assert.True(t, res.NetFound)
	assert.Empty(t, res.MissingEndpoints)
	assert.Empty(t, res.WrongNet)
}

func TestVerifyDistinguishesMissingFromWrongNet(t *testing.T) {
	p := Parse(`{"nets":{"VCC":["R1.1"],"GND":["R1.2","C1.2"]}}`)
	v := Verify(p, []ExpectedNet{
		{Name: "VCC", Endpoints: []Endpoint{{Ref: "R1", Pin: "1"}, {Ref: "R1", Pin: "2"}, {Ref: "U7", Pin: "1"}}},
		{Name: "AGND", Endpoints: []Endpoint{{Ref: "C1", Pin: "2"}}},
	})
	assert.False(t, v.OK)

	vcc := v.Results["VCC"]
	assert.True(t, vcc.NetFound)
	assert.Equal(t, []WrongNet{{Ref: "R1", Pin: "2", Actual: []string{"GND"}}}, vcc.WrongNet)
	assert.Equal(t, []Endpoint{{Ref: "U7", Pin: "1"}}, vcc.MissingEndpoints)

	agnd := v.Results["AGND"]
	assert.False(t, agnd.NetFound)
	assert.False(t, agnd.OK)
	assert.Equal(t, []WrongNet{{Ref: "C1", Pin: "2", Actual: []string{"GND"}}}, agnd.WrongNet)
}

func TestNormalizeNet(t *testing.T) {
	assert.Equal(t, "VCC", NormalizeNet(` "vcc" `))
	assert.Equal(t, `"A"`, NormalizeNet(`""a""`))
	assert.Equal(t, `"`, NormalizeNet(`"`))
}

type fakeSource struct {
	netlistFn func(ctx context.Context, netlistType string, maxChars int) (host.Text, error)
	exportFn  func(ctx context.Context, netlistType string, maxChars int) (host.Text, error)
}

func (fakeSource) EnsurePage(context.Context, host.PageIntent) error { return nil }

func (fakeSource) CurrentPage(context.Context) (host.Page, error) {
	return host.Page{DocumentID: "doc"}, nil
}

func (f fakeSource) Netlist(ctx context.Context, _ host.Page, netlistType string, maxChars int) (host.Text, error) {
	return f.netlistFn(ctx, netlistType, maxChars)
}

func (f fakeSource) ExportNetlistFile(ctx context.Context, _ host.Page, netlistType string, maxChars int) (host.Text, error) {
	return f.exportFn(ctx, netlistType, maxChars)
}

type fakeArtifacts struct {
	putFn func(ctx context.Context, documentID, fileName string, text []byte) (string, error)
}

func (f fakeArtifacts) PutNetlist(ctx context.Context, documentID, fileName string, text []byte) (string, error) {
	return f.putFn(ctx, documentID, fileName, text)
}

func TestFetchUsesDirectCall(t *testing.T) {
	src := fakeSource{netlistFn: func(_ context.Context, netlistType string, maxChars int) (host.Text, error) {
		assert.Equal(t, DefaultType, netlistType)
		assert.Equal(t, DefaultMaxChars, maxChars)
		return host.Text{Text: "VCC: R1.1", TotalChars: 9}, nil
	}}
	got, err := NewChecker(src, nil, nil, nil).Fetch(context.Background(), host.Page{DocumentID: "doc"}, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "api", got.Source)
	assert.Equal(t, "VCC: R1.1", got.Text)
}

func TestFetchFallsBackOnTimeoutAndNotSupported(t *testing.T) {
	for _, code := range []string{fault.Timeout, fault.NotSupported} {
		var stored string
		src := fakeSource{
			netlistFn: func(context.Context, string, int) (host.Text, error) {
				return host.Text{}, fault.New(code, "unavailable")
			},
			exportFn: func(_ context.Context, netlistType string, _ int) (host.Text, error) {
				assert.Equal(t, "Protel2", netlistType)
				return host.Text{Text: "(\nVCC\nR1-1\n)\n", TotalChars: 13}, nil
			},
		}
		arts := fakeArtifacts{putFn: func(_ context.Context, documentID, fileName string, _ []byte) (string, error) {
			stored = documentID + "/" + fileName
			return "s3://netlists/" + fileName, nil
		}}
		got, err := NewChecker(src, arts, nil, nil).Fetch(context.Background(), host.Page{DocumentID: "doc"}, "Protel2", 0, 0)
		require.NoError(t, err, code)
		assert.Equal(t, "export", got.Source)
		assert.Contains(t, stored, "doc/schsync_netlist_")
		assert.Contains(t, got.Artifact, "s3://netlists/schsync_netlist_")
	}
}

func TestFetchPropagatesOtherErrors(t *testing.T) {
	boom := errors.New("bridge exploded")
	src := fakeSource{
		netlistFn: func(context.Context, string, int) (host.Text, error) { return host.Text{}, boom },
		exportFn: func(context.Context, string, int) (host.Text, error) {
			t.Fatal("export must not be called")
			return host.Text{}, nil
		},
	}
	_, err := NewChecker(src, nil, nil, nil).Fetch(context.Background(), host.Page{}, "", 0, 0)
	assert.ErrorIs(t, err, boom)
}

func TestVerifyNetlistAgainstMemoryHost(t *testing.T) {
	ctx := context.Background()
	h := memhost.New(memhost.TwoPinResistor("res"))
	h.NetlistUnsupported = true
	require.NoError(t, h.EnsurePage(ctx, host.PageIntent{}))
	page, err := h.CurrentPage(ctx)
	require.NoError(t, err)

	r1, r2 := "R1", "R2"
	x0, x1, y := 0.0, 100.0, 0.0
	_, err = h.Create(ctx, page, host.ComponentSpec{DeviceUUID: "res", X: &x0, Y: &y, Designator: &r1})
	require.NoError(t, err)
	_, err = h.Create(ctx, page, host.ComponentSpec{DeviceUUID: "res", X: &x1, Y: &y, Designator: &r2})
	require.NoError(t, err)
	_, err = h.Create(ctx, page, host.WireSpec{Line: ir.FlatLine(40, 0, 100, 0), Net: "MID"})
	require.NoError(t, err)

	rep, err := NewChecker(h, nil, nil, nil).VerifyNetlist(ctx, Request{Nets: []ExpectedNet{
		{Name: "mid", Endpoints: []Endpoint{{Ref: "r1", Pin: "2"}, {Ref: "R2", Pin: "1"}}},
	}})
	require.NoError(t, err)
	assert.True(t, rep.OK, "%+v", rep.Results)
	assert.Equal(t, "export", rep.Netlist.Source)
	assert.Equal(t, FormatJSONComponents, rep.Parsed.FormatGuess)
	assert.Equal(t, 1, rep.Parsed.Nets)
	assert.NotEmpty(t, rep.Excerpt)
}

func TestVerifyNetlistRejectsBadRequest(t *testing.T) {
	_, err := NewChecker(fakeSource{}, nil, nil, nil).VerifyNetlist(context.Background(), Request{NetlistType: "Gerber", Nets: []ExpectedNet{{Name: "A", Endpoints: []Endpoint{{Ref: "R1", Pin: "1"}}}}})
	assert.Equal(t, fault.InvalidParams, fault.CodeOf(err))

	_, err = NewChecker(fakeSource{}, nil, nil, nil).VerifyNetlist(context.Background(), Request{Nets: []ExpectedNet{{Name: "A"}}})
	assert.Equal(t, fault.InvalidParams, fault.CodeOf(err))
}
