// Package wiregraph rebuilds wire connectivity from raw document source.
//
// A document source is a sequence of records, one per line, shaped
// HEAD||BODY with an optional trailing '|'. HEAD and BODY are JSON objects.
// Three record types matter here:
//
//	{"type":"WIRE","id":"w1"}||{...}
//	{"type":"LINE",...}||{"lineGroup":"w1","startX":0,"startY":0,"endX":10,"endY":0}
//	{"type":"ATTR",...}||{"parentId":"w1","key":"NET","value":"VCC"}
//
// Everything else is ignored, as are malformed records and segments with
// non-finite coordinates.
package wiregraph

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

type Segment struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type Wire struct {
	ID       string    `json:"wireId"`
	Net      string    `json:"net,omitempty"`
	Segments []Segment `json:"segments"`
}

// Filter restricts parsing. WireIDs keeps only the named wires. NetNames
// ignores NET attributes outside the set and, when WireIDs is empty, drops
// every wire that ends up without a listed net.
type Filter struct {
	WireIDs  map[string]bool
	NetNames map[string]bool
}

func Set(values ...string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}

// Parse extracts wires keyed by wire id.
func Parse(source string, f Filter) map[string]*Wire {
	wires := map[string]*Wire{}
	ensure := func(id string) *Wire {
		w, ok := wires[id]
		if !ok {
			w = &Wire{ID: id}
			wires[id] = w
		}
		return w
	}
	byWire := len(f.WireIDs) > 0
	byNet := len(f.NetNames) > 0

	for _, raw := range strings.Split(source, "\n") {
		head, body, ok := splitRecord(raw)
		if !ok {
			continue
		}
		switch head.Get("type").String() {
		case "WIRE":
			id := str(head.Get("id"))
			if id == "" || (byWire && !f.WireIDs[id]) {
				continue
			}
			ensure(id)
		case "LINE":
			group := str(body.Get("lineGroup"))
			if group == "" || (byWire && !f.WireIDs[group]) {
				continue
			}
			x1, ok1 := num(body.Get("startX"))
			y1, ok2 := num(body.Get("startY"))
			x2, ok3 := num(body.Get("endX"))
			y2, ok4 := num(body.Get("endY"))
			if !ok1 || !ok2 || !ok3 || !ok4 {
				continue
			}
			w := ensure(group)
			w.Segments = append(w.Segments, Segment{X1: x1, Y1: y1, X2: x2, Y2: y2})
		case "ATTR":
			parent := str(body.Get("parentId"))
			if parent == "" || (byWire && !f.WireIDs[parent]) {
				continue
			}
			if str(body.Get("key")) != "NET" {
				continue
			}
			value := str(body.Get("value"))
			if value == "" || (byNet && !f.NetNames[value]) {
				continue
			}
			ensure(parent).Net = value
		}
	}

	if byNet && !byWire {
		for id, w := range wires {
			if w.Net == "" || !f.NetNames[w.Net] {
				delete(wires, id)
			}
		}
	}
	return wires
}

func splitRecord(raw string) (head, body gjson.Result, ok bool) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return head, body, false
	}
	sep := strings.Index(line, "||")
	if sep < 0 {
		return head, body, false
	}
	headStr := line[:sep]
	bodyStr := strings.TrimSuffix(line[sep+2:], "|")
	if !gjson.Valid(headStr) || !gjson.Valid(bodyStr) {
		return head, body, false
	}
	return gjson.Parse(headStr), gjson.Parse(bodyStr), true
}

func str(r gjson.Result) string {
	if !r.Exists() || r.Type == gjson.Null {
		return ""
	}
	return r.String()
}

func num(r gjson.Result) (float64, bool) {
	var v float64
	switch r.Type {
	case gjson.Number:
		v = r.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		v = parsed
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// PointKey quantizes a point to integer coordinates, rounding halves up.
func PointKey(x, y float64) string {
	return strconv.FormatInt(int64(math.Floor(x+0.5)), 10) + "," + strconv.FormatInt(int64(math.Floor(y+0.5)), 10)
}

// Graph is an undirected adjacency set over point keys.
type Graph map[string]map[string]bool

func BuildAdjacency(segments []Segment) Graph {
	g := Graph{}
	add := func(a, b string) {
		if g[a] == nil {
			g[a] = map[string]bool{}
		}
		g[a][b] = true
	}
	for _, s := range segments {
		a := PointKey(s.X1, s.Y1)
		b := PointKey(s.X2, s.Y2)
		add(a, b)
		add(b, a)
	}
	return g
}

func (g Graph) Has(key string) bool {
	_, ok := g[key]
	return ok
}

// Reachable returns every key reachable from start, start included.
func Reachable(g Graph, start string) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range g[cur] {
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}
	return visited
}

// SortedIDs returns wire ids in lexical order.
func SortedIDs(wires map[string]*Wire) []string {
	ids := make([]string, 0, len(wires))
	for id := range wires {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Segments flattens the segments of several wires.
func Segments(wires ...*Wire) []Segment {
	var out []Segment
	for _, w := range wires {
		out = append(out, w.Segments...)
	}
	return out
}
