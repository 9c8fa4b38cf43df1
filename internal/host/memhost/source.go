package memhost

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"schsync/internal/fault"
	"schsync/internal/host"
	"schsync/internal/ir"
	"schsync/internal/wiregraph"
)

// DocumentSource renders the page as HEAD||BODY records. Source records use
// a y-down frame, so every y is negated relative to the primitive API.
func (h *Host) DocumentSource(_ context.Context, p host.Page, maxChars int) (host.Text, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pg, err := h.page(p)
	if err != nil {
		return host.Text{}, err
	}

	var b strings.Builder
	writeRecord(&b, map[string]any{"type": "DOCHEAD"}, map[string]any{"docType": "SCH_PAGE", "uuid": pg.id})
	for _, prim := range pg.sorted() {
		switch prim.kind {
		case ir.KindComponent:
			c := prim.component
			writeRecord(&b, map[string]any{"type": "COMPONENT", "id": prim.ref},
				map[string]any{"partId": c.DeviceUUID, "x": deref(c.X), "y": -deref(c.Y), "rotation": deref(c.Rotation)})
			writeAttr(&b, prim.ref, "Designator", h.designator(prim))
		case ir.KindNetFlag, ir.KindNetPort:
			x, y, net := prim.flag.X, prim.flag.Y, prim.flag.Net
			if prim.kind == ir.KindNetPort {
				x, y, net = prim.port.X, prim.port.Y, prim.port.Net
			}
			writeRecord(&b, map[string]any{"type": "COMPONENT", "id": prim.ref}, map[string]any{"x": x, "y": -y})
			writeAttr(&b, prim.ref, "Global Net Name", net)
		case ir.KindText:
			t := prim.text
			writeRecord(&b, map[string]any{"type": "TEXT", "id": prim.ref},
				map[string]any{"x": t.X, "y": -t.Y, "value": t.Content})
		case ir.KindWire:
			writeRecord(&b, map[string]any{"type": "WIRE", "id": prim.ref}, map[string]any{"zIndex": prim.order})
			for i, s := range segmentsOf(prim.wire.Line) {
				writeRecord(&b, map[string]any{"type": "LINE", "id": fmt.Sprintf("%s_l%d", prim.ref, i)}, map[string]any{
					"lineGroup": prim.ref,
					"startX":    s.X1, "startY": -s.Y1,
					"endX": s.X2, "endY": -s.Y2,
				})
			}
			if prim.wire.Net != "" {
				writeAttr(&b, prim.ref, "NET", prim.wire.Net)
			}
		}
	}
	return host.Truncate(b.String(), maxChars), nil
}

func writeRecord(b *strings.Builder, head, body map[string]any) {
	hj, _ := json.Marshal(head)
	bj, _ := json.Marshal(body)
	b.Write(hj)
	b.WriteString("||")
	b.Write(bj)
	b.WriteString("|\n")
}

func writeAttr(b *strings.Builder, parent, key, value string) {
	writeRecord(b, map[string]any{"type": "ATTR", "id": parent + "_" + key},
		map[string]any{"parentId": parent, "key": key, "value": value})
}

func segmentsOf(line ir.Line) []wiregraph.Segment {
	var out []wiregraph.Segment
	for _, pl := range line.Polylines {
		for i := 0; i+3 < len(pl); i += 2 {
			out = append(out, wiregraph.Segment{X1: pl[i], Y1: pl[i+1], X2: pl[i+2], Y2: pl[i+3]})
		}
	}
	return out
}

func (h *Host) designator(prim *primitive) string {
	if d := prim.component.Designator; d != nil && *d != "" {
		return *d
	}
	if dev, ok := h.devices[prim.component.DeviceUUID]; ok && dev.Designator != "" {
		return dev.Designator
	}
	return prim.ref
}

func (h *Host) Netlist(ctx context.Context, p host.Page, netlistType string, maxChars int) (host.Text, error) {
	if h.NetlistUnsupported {
		return host.Text{}, fault.New(fault.NotSupported, "netlist export is not available on this host")
	}
	return h.ExportNetlistFile(ctx, p, netlistType, maxChars)
}

// ExportNetlistFile derives nets from wire endpoints touching pins and flags.
// JLCEDA and EasyEDA produce component-centric JSON; Protel2 produces
// bracketed net blocks.
func (h *Host) ExportNetlistFile(_ context.Context, p host.Page, netlistType string, maxChars int) (host.Text, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pg, err := h.page(p)
	if err != nil {
		return host.Text{}, err
	}
	nets := h.computeNets(pg)

	switch strings.ToUpper(netlistType) {
	case "", "JLCEDA", "EASYEDA":
		type comp struct {
			Props map[string]string `json:"props"`
			Pins  map[string]string `json:"pins"`
		}
		out := map[string]map[string]comp{"components": {}}
		for _, cp := range nets.components {
			out["components"][cp.ref] = comp{Props: map[string]string{"Designator": cp.designator}, Pins: cp.pins}
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return host.Text{}, err
		}
		return host.Truncate(string(data), maxChars), nil
	case "PROTEL2":
		var b strings.Builder
		for _, name := range sortedNetNames(nets.members) {
			fmt.Fprintf(&b, "(\n%s\n", name)
			for _, m := range nets.members[name] {
				fmt.Fprintf(&b, "%s\n", m)
			}
			b.WriteString(")\n")
		}
		return host.Truncate(b.String(), maxChars), nil
	}
	return host.Text{}, fault.Newf(fault.NotSupported, "netlist type %s is not supported", netlistType)
}

type componentPins struct {
	ref        string
	designator string
	pins       map[string]string
}

type netTable struct {
	components []componentPins
	members    map[string][]string
}

func (h *Host) computeNets(pg *page) netTable {
	prims := pg.sorted()

	var segments []wiregraph.Segment
	for _, prim := range prims {
		if prim.kind == ir.KindWire {
			segments = append(segments, segmentsOf(prim.wire.Line)...)
		}
	}
	graph := wiregraph.BuildAdjacency(segments)

	keys := make([]string, 0, len(graph))
	for key := range graph {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	group := map[string]int{}
	next := 0
	for _, key := range keys {
		if _, seen := group[key]; seen {
			continue
		}
		for k := range wiregraph.Reachable(graph, key) {
			group[k] = next
		}
		next++
	}

	names := map[int]string{}
	for _, prim := range prims {
		if prim.kind != ir.KindWire || prim.wire.Net == "" {
			continue
		}
		for _, s := range segmentsOf(prim.wire.Line) {
			if g, ok := group[wiregraph.PointKey(s.X1, s.Y1)]; ok && names[g] == "" {
				names[g] = prim.wire.Net
			}
		}
	}
	flagNets := map[string]string{}
	for _, prim := range prims {
		var key, net string
		switch prim.kind {
		case ir.KindNetFlag:
			key, net = wiregraph.PointKey(prim.flag.X, prim.flag.Y), prim.flag.Net
		case ir.KindNetPort:
			key, net = wiregraph.PointKey(prim.port.X, prim.port.Y), prim.port.Net
		default:
			continue
		}
		flagNets[key] = net
		if g, ok := group[key]; ok && names[g] == "" {
			names[g] = net
		}
	}

	table := netTable{members: map[string][]string{}}
	for _, prim := range prims {
		if prim.kind != ir.KindComponent {
			continue
		}
		cp := componentPins{ref: prim.ref, designator: h.designator(prim), pins: map[string]string{}}
		for _, pin := range h.pinsOf(prim) {
			key := wiregraph.PointKey(pin.X, pin.Y)
			net := ""
			if g, ok := group[key]; ok {
				net = names[g]
				if net == "" {
					net = fmt.Sprintf("$N%d", g+1)
					names[g] = net
				}
			} else if fn, ok := flagNets[key]; ok {
				net = fn
			}
			cp.pins[pin.Number] = net
			if net != "" {
				table.members[net] = append(table.members[net], cp.designator+"-"+pin.Number)
			}
		}
		table.components = append(table.components, cp)
	}
	return table
}

func sortedNetNames(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
