package reconcile

import (
	"context"

	"schsync/internal/fault"
	"schsync/internal/host"
	"schsync/internal/ir"
	"schsync/internal/schematicmap"
)

func (r *run) applied(kind ir.Kind, id, ref string, action Action) {
	r.result.Applied[kind][id] = Applied{PrimitiveID: ref, Action: action}
	r.progress.bump()
}

// resolveDevice fills in the library of a component that named only its
// device.
func (r *run) resolveDevice(ctx context.Context, c ir.Component) (host.Device, error) {
	if c.LibraryUUID != "" {
		return host.Device{UUID: c.DeviceUUID, LibraryUUID: c.LibraryUUID}, nil
	}
	dev, ok, err := r.engine.doc.LookupDevice(ctx, c.DeviceUUID)
	if err != nil {
		return host.Device{}, err
	}
	if !ok {
		return host.Device{}, fault.Newf(fault.NotFound, "Device not found: %s", c.DeviceUUID)
	}
	if dev.UUID == "" {
		dev.UUID = c.DeviceUUID
	}
	return dev, nil
}

func componentSpec(c ir.Component, dev host.Device) host.ComponentSpec {
	x, y := c.X, c.Y
	return host.ComponentSpec{
		DeviceUUID:  dev.UUID,
		LibraryUUID: dev.LibraryUUID,
		X:           &x,
		Y:           &y,
		SubPartName: c.SubPartName,
		Rotation:    c.Rotation,
		Mirror:      c.Mirror,
		AddIntoBOM:  c.AddIntoBOM,
		AddIntoPCB:  c.AddIntoPCB,
		Designator:  c.Designator,
		Name:        c.Name,
		Props: map[string]string{
			host.PropID:          c.ID,
			host.PropDeviceUUID:  dev.UUID,
			host.PropLibraryUUID: dev.LibraryUUID,
		},
	}
}

func (r *run) upsertComponents(ctx context.Context, d *ir.Description) error {
	for _, c := range d.Components {
		dev, err := r.resolveDevice(ctx, c)
		if err != nil {
			return err
		}
		spec := componentSpec(c, dev)

		action := Created
		if prev, ok := r.mapping.Components[c.ID]; ok {
			if prev.DeviceUUID == dev.UUID && prev.LibraryUUID == dev.LibraryUUID && r.tryModify(ctx, prev.PrimitiveID, spec) {
				r.applied(ir.KindComponent, c.ID, prev.PrimitiveID, Updated)
				continue
			}
			r.dropStale(ctx, ir.KindComponent, prev.PrimitiveID)
			action = Replaced
		}

		ref, err := r.create(ctx, spec, fault.PlaceFailed, "Failed to place component "+c.ID)
		if err != nil {
			return err
		}
		// Some hosts ignore metadata on placement.
		r.tryModify(ctx, ref, host.ComponentSpec{Designator: c.Designator, Name: c.Name, Props: spec.Props})

		r.mapping.Components[c.ID] = schematicmap.ComponentEntry{PrimitiveID: ref, DeviceUUID: dev.UUID, LibraryUUID: dev.LibraryUUID}
		r.applied(ir.KindComponent, c.ID, ref, action)
	}
	return nil
}

func (r *run) upsertNetFlags(ctx context.Context, d *ir.Description) error {
	for _, f := range d.NetFlags {
		spec := host.NetFlagSpec{
			Identification: f.Identification,
			Net:            f.Net,
			X:              f.X,
			Y:              f.Y,
			Rotation:       f.Rotation,
			Mirror:         f.Mirror,
			Props:          map[string]string{host.PropID: f.ID, host.PropType: "netFlag"},
		}

		action := Created
		if prev, ok := r.mapping.NetFlags[f.ID]; ok {
			if prev.Identification == f.Identification && prev.Net == f.Net && r.tryModify(ctx, prev.PrimitiveID, spec) {
				r.mapping.NetFlags[f.ID] = schematicmap.NetFlagEntry{PrimitiveID: prev.PrimitiveID, Identification: f.Identification, Net: f.Net}
				r.applied(ir.KindNetFlag, f.ID, prev.PrimitiveID, Updated)
				continue
			}
			r.dropStale(ctx, ir.KindNetFlag, prev.PrimitiveID)
			action = Replaced
		}

		ref, err := r.create(ctx, spec, fault.PlaceFailed, "Failed to place net flag "+f.ID)
		if err != nil {
			return err
		}
		r.mapping.NetFlags[f.ID] = schematicmap.NetFlagEntry{PrimitiveID: ref, Identification: f.Identification, Net: f.Net}
		r.applied(ir.KindNetFlag, f.ID, ref, action)
	}
	return nil
}

func (r *run) upsertNetPorts(ctx context.Context, d *ir.Description) error {
	for _, p := range d.NetPorts {
		spec := host.NetPortSpec{
			Direction: p.Direction,
			Net:       p.Net,
			X:         p.X,
			Y:         p.Y,
			Rotation:  p.Rotation,
			Mirror:    p.Mirror,
			Props:     map[string]string{host.PropID: p.ID, host.PropType: "netPort"},
		}

		action := Created
		if prev, ok := r.mapping.NetPorts[p.ID]; ok {
			if prev.Direction == p.Direction && prev.Net == p.Net && r.tryModify(ctx, prev.PrimitiveID, spec) {
				r.mapping.NetPorts[p.ID] = schematicmap.NetPortEntry{PrimitiveID: prev.PrimitiveID, Direction: p.Direction, Net: p.Net}
				r.applied(ir.KindNetPort, p.ID, prev.PrimitiveID, Updated)
				continue
			}
			r.dropStale(ctx, ir.KindNetPort, prev.PrimitiveID)
			action = Replaced
		}

		ref, err := r.create(ctx, spec, fault.PlaceFailed, "Failed to place net port "+p.ID)
		if err != nil {
			return err
		}
		r.mapping.NetPorts[p.ID] = schematicmap.NetPortEntry{PrimitiveID: ref, Direction: p.Direction, Net: p.Net}
		r.applied(ir.KindNetPort, p.ID, ref, action)
	}
	return nil
}

func (r *run) upsertTexts(ctx context.Context, d *ir.Description) error {
	for _, t := range d.Texts {
		spec := host.TextSpec{
			X:         t.X,
			Y:         t.Y,
			Content:   t.Content,
			Rotation:  t.Rotation,
			TextColor: t.TextColor,
			FontName:  t.FontName,
			FontSize:  t.FontSize,
			Bold:      t.Bold,
			Italic:    t.Italic,
			UnderLine: t.UnderLine,
			AlignMode: t.AlignMode,
		}
		if err := r.upsertSimple(ctx, ir.KindText, t.ID, spec, fault.CreateFailed, "Failed to create text "+t.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) upsertWires(ctx context.Context, d *ir.Description) error {
	for _, w := range d.Wires {
		spec := host.WireSpec{Line: w.Line, Net: w.Net}
		if err := r.upsertSimple(ctx, ir.KindWire, w.ID, spec, fault.CreateFailed, "Failed to create wire "+w.ID); err != nil {
			return err
		}
	}
	return nil
}

// upsertSimple handles kinds without a discriminant: modify in place, else
// replace.
func (r *run) upsertSimple(ctx context.Context, kind ir.Kind, id string, spec host.Primitive, code, msg string) error {
	action := Created
	if prev, ok := r.mapping.PrimitiveID(kind, id); ok {
		if r.tryModify(ctx, prev, spec) {
			r.applied(kind, id, prev, Updated)
			return nil
		}
		r.dropStale(ctx, kind, prev)
		action = Replaced
	}
	ref, err := r.create(ctx, spec, code, msg)
	if err != nil {
		return err
	}
	r.mapping.SetSimple(kind, id, ref)
	r.applied(kind, id, ref, action)
	return nil
}

func (r *run) upsertConnections(ctx context.Context, d *ir.Description) error {
	for _, c := range d.Connections {
		from, err := r.endpointPin(ctx, c.From, "from")
		if err != nil {
			return err
		}
		to, err := r.endpointPin(ctx, c.To, "to")
		if err != nil {
			return err
		}
		spec := host.WireSpec{Line: route(from, to, c.Style, c.MidX), Net: c.Net}
		if err := r.upsertSimple(ctx, ir.KindConnection, c.ID, spec, fault.WireCreateFailed, "Failed to create wire for connection "+c.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) endpointPin(ctx context.Context, ep ir.Endpoint, label string) (host.Pin, error) {
	pins, err := r.componentPins(ctx, ep.ComponentID)
	if err != nil {
		return host.Pin{}, err
	}
	return host.SelectPin(pins, host.PinSelector{Number: ep.PinNumber, Name: ep.PinName}, label)
}

// componentPins reads pins through the mapping, once per component per run.
func (r *run) componentPins(ctx context.Context, componentID string) ([]host.Pin, error) {
	if pins, ok := r.pins[componentID]; ok {
		return pins, nil
	}
	entry, ok := r.mapping.Components[componentID]
	if !ok {
		return nil, fault.Newf(fault.InvalidIR, "Unknown componentId: %s", componentID)
	}
	pins, err := r.engine.doc.ComponentPins(ctx, r.page, entry.PrimitiveID)
	if err != nil {
		return nil, err
	}
	if pins == nil {
		return nil, fault.Newf(fault.PinNotFound, "Pins not found for component %s", componentID)
	}
	r.pins[componentID] = pins
	return pins, nil
}

// route draws a connection between two pins. Manhattan routes run
// horizontal, vertical, horizontal through midX.
func route(from, to host.Pin, style ir.RouteStyle, midX *float64) ir.Line {
	if style == ir.StyleStraight {
		return ir.FlatLine(from.X, from.Y, to.X, to.Y)
	}
	mid := (from.X + to.X) / 2
	if midX != nil {
		mid = *midX
	}
	return ir.FlatLine(from.X, from.Y, mid, from.Y, mid, to.Y, to.X, to.Y)
}
