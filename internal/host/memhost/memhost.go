// Package memhost is an in-memory CAD document host. It backs the plan
// command and end-to-end tests, and renders its pages in the same source
// record format a real host exports.
package memhost

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"schsync/internal/fault"
	"schsync/internal/host"
	"schsync/internal/ir"
)

// DevicePin places a pin relative to the component origin, unrotated.
type DevicePin struct {
	Number string
	Name   string
	DX, DY float64
}

type Device struct {
	UUID        string
	LibraryUUID string
	Designator  string
	Pins        []DevicePin
}

// Call records one mutating host call.
type Call struct {
	Op   string
	Kind ir.Kind
	Ref  string
}

type primitive struct {
	ref   string
	kind  ir.Kind
	order int

	component host.ComponentSpec
	flag      host.NetFlagSpec
	port      host.NetPortSpec
	text      host.TextSpec
	wire      host.WireSpec
}

type page struct {
	id         string
	primitives map[string]*primitive
}

// Host implements host.Host over in-memory pages. The zero value is not
// usable; call New.
type Host struct {
	mu      sync.Mutex
	pages   map[string]*page
	current string
	devices map[string]Device
	seq     int
	calls   []Call

	// Refuse makes Create fail for the listed kinds.
	Refuse map[ir.Kind]bool
	// ReadOnly makes Modify report failure for every primitive.
	ReadOnly bool
	// NetlistUnsupported makes Netlist fail with NOT_SUPPORTED so callers
	// exercise the file export path.
	NetlistUnsupported bool
	DRCPasses          bool
	// FailPost makes a post action fail: "zoomToAll", "drc", "save" or
	// "capturePng".
	FailPost map[string]error
}

func New(devices ...Device) *Host {
	h := &Host{
		pages:     map[string]*page{},
		devices:   map[string]Device{},
		Refuse:    map[ir.Kind]bool{},
		DRCPasses: true,
	}
	for _, d := range devices {
		h.devices[d.UUID] = d
	}
	return h
}

// TwoPinResistor is a convenience device: pin 1 at the origin, pin 2 at +40.
func TwoPinResistor(uuid string) Device {
	return Device{
		UUID:        uuid,
		LibraryUUID: "lib-" + uuid,
		Designator:  "R?",
		Pins: []DevicePin{
			{Number: "1", Name: "A", DX: 0, DY: 0},
			{Number: "2", Name: "B", DX: 40, DY: 0},
		},
	}
}

func (h *Host) AddDevice(d Device) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.devices[d.UUID] = d
}

// Calls returns the mutating calls made so far.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call(nil), h.calls...)
}

// Count returns the number of live primitives of kind on the current page.
func (h *Host) Count(kind ir.Kind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pages[h.current]
	if p == nil {
		return 0
	}
	n := 0
	for _, prim := range p.primitives {
		if prim.kind == kind {
			n++
		}
	}
	return n
}

// Spec returns the current state of a primitive on the current page.
func (h *Host) Spec(ref string) (host.Primitive, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pages[h.current]
	if p == nil {
		return nil, false
	}
	prim, ok := p.primitives[ref]
	if !ok {
		return nil, false
	}
	switch prim.kind {
	case ir.KindComponent:
		return prim.component, true
	case ir.KindNetFlag:
		return prim.flag, true
	case ir.KindNetPort:
		return prim.port, true
	case ir.KindText:
		return prim.text, true
	}
	return prim.wire, true
}

func pageID(intent host.PageIntent) string {
	parts := []string{intent.BoardName, intent.SchematicName, intent.PageName}
	for i, p := range parts {
		if p == "" {
			parts[i] = "default"
		}
	}
	return strings.Join(parts, "/")
}

func (h *Host) EnsurePage(_ context.Context, intent host.PageIntent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := pageID(intent)
	if _, ok := h.pages[id]; !ok {
		h.pages[id] = &page{id: id, primitives: map[string]*primitive{}}
	}
	h.current = id
	return nil
}

func (h *Host) CurrentPage(context.Context) (host.Page, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == "" {
		return host.Page{}, fault.New(fault.NoActiveDocument, "No active document")
	}
	return host.Page{DocumentID: h.current, TabID: "tab:" + h.current}, nil
}

func (h *Host) page(p host.Page) (*page, error) {
	pg, ok := h.pages[p.DocumentID]
	if !ok {
		return nil, fault.Newf(fault.NotInSchematicPage, "unknown schematic page %s", p.DocumentID)
	}
	return pg, nil
}

func (h *Host) nextRef(prefix string) string {
	h.seq++
	return fmt.Sprintf("%s%d", prefix, h.seq)
}

func (h *Host) Create(_ context.Context, p host.Page, spec host.Primitive) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pg, err := h.page(p)
	if err != nil {
		return "", err
	}
	if h.Refuse[spec.Kind()] {
		h.calls = append(h.calls, Call{Op: "create-refused", Kind: spec.Kind()})
		return "", nil
	}

	prim := &primitive{kind: spec.Kind()}
	switch s := spec.(type) {
	case host.ComponentSpec:
		if _, ok := h.devices[s.DeviceUUID]; !ok {
			return "", nil
		}
		prim.ref = h.nextRef("c")
		prim.component = s
	case host.NetFlagSpec:
		prim.ref = h.nextRef("f")
		prim.flag = s
	case host.NetPortSpec:
		prim.ref = h.nextRef("p")
		prim.port = s
	case host.TextSpec:
		prim.ref = h.nextRef("t")
		prim.text = s
	case host.WireSpec:
		prim.ref = h.nextRef("w")
		prim.wire = s
	default:
		return "", fmt.Errorf("unsupported primitive %T", spec)
	}
	prim.order = h.seq
	pg.primitives[prim.ref] = prim
	h.calls = append(h.calls, Call{Op: "create", Kind: prim.kind, Ref: prim.ref})
	return prim.ref, nil
}

func (h *Host) Modify(_ context.Context, p host.Page, ref string, spec host.Primitive) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pg, err := h.page(p)
	if err != nil {
		return false, err
	}
	prim, ok := pg.primitives[ref]
	if !ok || h.ReadOnly {
		return false, nil
	}
	if spec.Kind() != prim.kind {
		return false, nil
	}

	switch s := spec.(type) {
	case host.ComponentSpec:
		c := &prim.component
		if s.DeviceUUID != "" && s.DeviceUUID != c.DeviceUUID {
			return false, nil
		}
		if s.X != nil {
			c.X = s.X
		}
		if s.Y != nil {
			c.Y = s.Y
		}
		if s.Rotation != nil {
			c.Rotation = s.Rotation
		}
		if s.Mirror != nil {
			c.Mirror = s.Mirror
		}
		if s.AddIntoBOM != nil {
			c.AddIntoBOM = s.AddIntoBOM
		}
		if s.AddIntoPCB != nil {
			c.AddIntoPCB = s.AddIntoPCB
		}
		if s.Designator != nil {
			c.Designator = s.Designator
		}
		if s.Name.Set {
			c.Name = s.Name
		}
		if s.Props != nil {
			c.Props = s.Props
		}
	case host.NetFlagSpec:
		prim.flag = s
	case host.NetPortSpec:
		prim.port = s
	case host.TextSpec:
		prim.text = s
	case host.WireSpec:
		prim.wire.Line = s.Line
		if s.Net != "" {
			prim.wire.Net = s.Net
		}
	}
	h.calls = append(h.calls, Call{Op: "modify", Kind: prim.kind, Ref: ref})
	return true, nil
}

func (h *Host) Delete(_ context.Context, p host.Page, class host.Class, refs []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	pg, err := h.page(p)
	if err != nil {
		return err
	}
	var missing []string
	for _, ref := range refs {
		prim, ok := pg.primitives[ref]
		if !ok || host.ClassOf(prim.kind) != class {
			missing = append(missing, ref)
			continue
		}
		delete(pg.primitives, ref)
		h.calls = append(h.calls, Call{Op: "delete", Kind: prim.kind, Ref: ref})
	}
	if len(missing) > 0 {
		return fault.Newf(fault.NotFound, "primitives not found: %s", strings.Join(missing, ","))
	}
	return nil
}

func (h *Host) List(_ context.Context, p host.Page, class host.Class) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pg, err := h.page(p)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, prim := range pg.sorted() {
		if host.ClassOf(prim.kind) == class {
			refs = append(refs, prim.ref)
		}
	}
	return refs, nil
}

func (pg *page) sorted() []*primitive {
	out := make([]*primitive, 0, len(pg.primitives))
	for _, prim := range pg.primitives {
		out = append(out, prim)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

func (h *Host) ComponentPins(_ context.Context, p host.Page, ref string) ([]host.Pin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pg, err := h.page(p)
	if err != nil {
		return nil, err
	}
	prim, ok := pg.primitives[ref]
	if !ok || prim.kind != ir.KindComponent {
		return nil, nil
	}
	return h.pinsOf(prim), nil
}

func (h *Host) pinsOf(prim *primitive) []host.Pin {
	dev, ok := h.devices[prim.component.DeviceUUID]
	if !ok || len(dev.Pins) == 0 {
		return nil
	}
	c := prim.component
	x, y := deref(c.X), deref(c.Y)
	rot := deref(c.Rotation)
	mirror := c.Mirror != nil && *c.Mirror
	pins := make([]host.Pin, 0, len(dev.Pins))
	for i, dp := range dev.Pins {
		dx, dy := dp.DX, dp.DY
		if mirror {
			dx = -dx
		}
		dx, dy = rotate(dx, dy, rot)
		pins = append(pins, host.Pin{
			PrimitiveID: fmt.Sprintf("%s.pin%d", prim.ref, i+1),
			X:           x + dx,
			Y:           y + dy,
			Number:      dp.Number,
			Name:        dp.Name,
		})
	}
	return pins
}

// rotate turns (dx, dy) counter-clockwise by a multiple of 90 degrees.
func rotate(dx, dy, degrees float64) (float64, float64) {
	switch int(math.Mod(math.Round(degrees/90), 4)+4) % 4 {
	case 1:
		return -dy, dx
	case 2:
		return -dx, -dy
	case 3:
		return dy, -dx
	}
	return dx, dy
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

func (h *Host) LookupDevice(_ context.Context, uuid string) (host.Device, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.devices[uuid]
	if !ok {
		return host.Device{}, false, nil
	}
	return host.Device{UUID: d.UUID, LibraryUUID: d.LibraryUUID}, true, nil
}

func (h *Host) ZoomToAll(context.Context, host.Page) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.FailPost["zoomToAll"]
}

func (h *Host) CheckDRC(_ context.Context, p host.Page, _, _ bool) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.FailPost["drc"]; err != nil {
		return false, err
	}
	if _, err := h.page(p); err != nil {
		return false, err
	}
	return h.DRCPasses, nil
}

func (h *Host) Save(_ context.Context, p host.Page) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.FailPost["save"]; err != nil {
		return false, err
	}
	if _, err := h.page(p); err != nil {
		return false, err
	}
	h.calls = append(h.calls, Call{Op: "save"})
	return true, nil
}

// CapturePNG returns a fixed 1x1 PNG.
func (h *Host) CapturePNG(_ context.Context, _ host.Page, req host.CaptureRequest) (host.Capture, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.FailPost["capturePng"]; err != nil {
		return host.Capture{}, err
	}
	return host.Capture{FileName: req.FileName, PNG: append([]byte(nil), onePixelPNG...)}, nil
}

var onePixelPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
