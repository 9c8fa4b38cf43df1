package wiregraph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{"type":"DOCHEAD"}||{"docType":"SCH_PAGE"}|
{"type":"WIRE","id":"w1"}||{"zIndex":1}|
{"type":"LINE","id":"l1"}||{"lineGroup":"w1","startX":0,"startY":0,"endX":10,"endY":0}|
{"type":"LINE","id":"l2"}||{"lineGroup":"w1","startX":10,"startY":0,"endX":10,"endY":-20}|
{"type":"ATTR","id":"a1"}||{"parentId":"w1","key":"NET","value":"VCC"}|
{"type":"WIRE","id":"w2"}||{}|
{"type":"LINE","id":"l3"}||{"lineGroup":"w2","startX":"50","startY":"0","endX":60,"endY":0}|
{"type":"ATTR","id":"a2"}||{"parentId":"w2","key":"NET","value":"GND"}|
{"type":"WIRE","id":"w3"}||{}
{"type":"LINE","id":"l4"}||{"lineGroup":"w3","startX":0,"startY":0,"endX":"oops","endY":0}|
{"type":"ATTR","id":"a3"}||{"parentId":"w3","key":"COLOR","value":"red"}|
not a record
{"type":"LINE"}||{broken json|
`

func TestParseAllWires(t *testing.T) {
	wires := Parse(sample, Filter{})
	require.Equal(t, []string{"w1", "w2", "w3"}, SortedIDs(wires))

	assert.Equal(t, "VCC", wires["w1"].Net)
	assert.Len(t, wires["w1"].Segments, 2)
	assert.Equal(t, Segment{X1: 50, Y1: 0, X2: 60, Y2: 0}, wires["w2"].Segments[0])
	assert.Empty(t, wires["w3"].Segments, "non-numeric coordinate skipped")
	assert.Empty(t, wires["w3"].Net, "non-NET attribute ignored")
}

func TestParseByWireIDs(t *testing.T) {
	wires := Parse(sample, Filter{WireIDs: Set("w2")})
	require.Len(t, wires, 1)
	assert.Equal(t, "GND", wires["w2"].Net)
}

func TestParseByNetNamesPrunesUnmatched(t *testing.T) {
	wires := Parse(sample, Filter{NetNames: Set("VCC")})
	require.Equal(t, []string{"w1"}, SortedIDs(wires))
}

func TestParseByWireIDsAndNetNamesKeepsWire(t *testing.T) {
	wires := Parse(sample, Filter{WireIDs: Set("w2"), NetNames: Set("VCC")})
	require.Len(t, wires, 1)
	assert.Empty(t, wires["w2"].Net, "net outside the filter is not recorded")
}

func TestParseHandlesCRLF(t *testing.T) {
	src := strings.ReplaceAll(sample, "\n", "\r\n")
	assert.Len(t, Parse(src, Filter{}), 3)
}

func TestPointKeyRoundsHalfUp(t *testing.T) {
	assert.Equal(t, "3,-2", PointKey(2.5, -2.5))
	assert.Equal(t, "0,0", PointKey(-0.4, 0.4))
	assert.Equal(t, "10,-20", PointKey(9.6, -19.7))
}

func TestAdjacencyAndReachability(t *testing.T) {
	// three-segment manhattan path
	path := []Segment{
		{0, 0, 50, 0},
		{50, 0, 50, 40},
		{50, 40, 100, 40},
	}
	g := BuildAdjacency(path)
	assert.True(t, g.Has("0,0"))
	assert.True(t, g["50,0"]["0,0"], "edges are undirected")

	reach := Reachable(g, "0,0")
	assert.True(t, reach["100,40"])
	assert.True(t, reach["0,0"], "start is included")

	broken := BuildAdjacency([]Segment{path[0], path[2]})
	assert.False(t, Reachable(broken, "0,0")["100,40"])
}

func TestReachableFromUnknownStart(t *testing.T) {
	reach := Reachable(Graph{}, "1,1")
	assert.Equal(t, map[string]bool{"1,1": true}, reach)
}
