package ir

// Kind names one managed entity collection. The values double as JSON keys
// in descriptions, mappings and apply results.
type Kind string

const (
	KindComponent  Kind = "components"
	KindNetFlag    Kind = "netFlags"
	KindNetPort    Kind = "netPorts"
	KindText       Kind = "texts"
	KindWire       Kind = "wires"
	KindConnection Kind = "connections"
)

// Kinds lists every kind in upsert order.
var Kinds = []Kind{KindComponent, KindNetFlag, KindNetPort, KindText, KindWire, KindConnection}

// SchUnitsPerMM converts millimetres to native schematic units (0.254 mm each).
const SchUnitsPerMM = 1 / 0.254

// IDs returns the logical ids of one collection in submission order.
func (d *Description) IDs(kind Kind) []string {
	var ids []string
	switch kind {
	case KindComponent:
		for _, c := range d.Components {
			ids = append(ids, c.ID)
		}
	case KindNetFlag:
		for _, f := range d.NetFlags {
			ids = append(ids, f.ID)
		}
	case KindNetPort:
		for _, p := range d.NetPorts {
			ids = append(ids, p.ID)
		}
	case KindText:
		for _, t := range d.Texts {
			ids = append(ids, t.ID)
		}
	case KindWire:
		for _, w := range d.Wires {
			ids = append(ids, w.ID)
		}
	case KindConnection:
		for _, c := range d.Connections {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Deletes returns the patch.delete ids for one kind.
func (d *Description) Deletes(kind Kind) []string {
	if d.Patch == nil || d.Patch.Delete == nil {
		return nil
	}
	del := d.Patch.Delete
	switch kind {
	case KindComponent:
		return del.Components
	case KindNetFlag:
		return del.NetFlags
	case KindNetPort:
		return del.NetPorts
	case KindText:
		return del.Texts
	case KindWire:
		return del.Wires
	case KindConnection:
		return del.Connections
	}
	return nil
}

// EntityCount is the number of upserts the description requests.
func (d *Description) EntityCount() int {
	return len(d.Components) + len(d.NetFlags) + len(d.NetPorts) + len(d.Texts) + len(d.Wires) + len(d.Connections)
}

// Native returns a copy of d with all geometry expressed in native schematic
// units. Font sizes are not geometry and are left alone.
func (d *Description) Native() *Description {
	out := *d
	if d.Units != UnitsMM {
		return &out
	}
	f := SchUnitsPerMM
	out.Components = make([]Component, len(d.Components))
	for i, c := range d.Components {
		c.X, c.Y = c.X*f, c.Y*f
		out.Components[i] = c
	}
	out.NetFlags = make([]NetFlag, len(d.NetFlags))
	for i, nf := range d.NetFlags {
		nf.X, nf.Y = nf.X*f, nf.Y*f
		out.NetFlags[i] = nf
	}
	out.NetPorts = make([]NetPort, len(d.NetPorts))
	for i, np := range d.NetPorts {
		np.X, np.Y = np.X*f, np.Y*f
		out.NetPorts[i] = np
	}
	out.Texts = make([]Text, len(d.Texts))
	for i, t := range d.Texts {
		t.X, t.Y = t.X*f, t.Y*f
		out.Texts[i] = t
	}
	out.Wires = make([]Wire, len(d.Wires))
	for i, w := range d.Wires {
		w.Line = w.Line.Scaled(f)
		out.Wires[i] = w
	}
	out.Connections = make([]Connection, len(d.Connections))
	for i, c := range d.Connections {
		if c.MidX != nil {
			m := *c.MidX * f
			c.MidX = &m
		}
		out.Connections[i] = c
	}
	return &out
}
