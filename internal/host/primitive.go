package host

import "schsync/internal/ir"

// Primitive is the create/modify payload for one kind. Pointer fields left
// nil keep the host default (on create) or the current value (on modify).
type Primitive interface {
	Kind() ir.Kind
}

// Tag keys written into other-properties of managed primitives.
const (
	PropID          = "__mcp_id"
	PropType        = "__mcp_type"
	PropDeviceUUID  = "__mcp_deviceUuid"
	PropLibraryUUID = "__mcp_libraryUuid"
)

type ComponentSpec struct {
	DeviceUUID  string            `json:"deviceUuid"`
	LibraryUUID string            `json:"libraryUuid"`
	X           *float64          `json:"x,omitempty"`
	Y           *float64          `json:"y,omitempty"`
	SubPartName string            `json:"subPartName,omitempty"`
	Rotation    *float64          `json:"rotation,omitempty"`
	Mirror      *bool             `json:"mirror,omitempty"`
	AddIntoBOM  *bool             `json:"addIntoBom,omitempty"`
	AddIntoPCB  *bool             `json:"addIntoPcb,omitempty"`
	Designator  *string           `json:"designator,omitempty"`
	Name        ir.NullableString `json:"name,omitzero"`
	Props       map[string]string `json:"otherProperty,omitempty"`
}

type NetFlagSpec struct {
	Identification string            `json:"identification"`
	Net            string            `json:"net"`
	X              float64           `json:"x"`
	Y              float64           `json:"y"`
	Rotation       *float64          `json:"rotation,omitempty"`
	Mirror         *bool             `json:"mirror,omitempty"`
	Props          map[string]string `json:"otherProperty,omitempty"`
}

type NetPortSpec struct {
	Direction string            `json:"direction"`
	Net       string            `json:"net"`
	X         float64           `json:"x"`
	Y         float64           `json:"y"`
	Rotation  *float64          `json:"rotation,omitempty"`
	Mirror    *bool             `json:"mirror,omitempty"`
	Props     map[string]string `json:"otherProperty,omitempty"`
}

type TextSpec struct {
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Content   string   `json:"content"`
	Rotation  *float64 `json:"rotation,omitempty"`
	TextColor *string  `json:"textColor,omitempty"`
	FontName  *string  `json:"fontName,omitempty"`
	FontSize  *float64 `json:"fontSize,omitempty"`
	Bold      *bool    `json:"bold,omitempty"`
	Italic    *bool    `json:"italic,omitempty"`
	UnderLine *bool    `json:"underLine,omitempty"`
	AlignMode *int     `json:"alignMode,omitempty"`
}

// WireSpec also carries connection wires. Net is left unchanged when empty.
type WireSpec struct {
	Line ir.Line `json:"line"`
	Net  string  `json:"net,omitempty"`
}

func (ComponentSpec) Kind() ir.Kind { return ir.KindComponent }
func (NetFlagSpec) Kind() ir.Kind   { return ir.KindNetFlag }
func (NetPortSpec) Kind() ir.Kind   { return ir.KindNetPort }
func (TextSpec) Kind() ir.Kind      { return ir.KindText }
func (WireSpec) Kind() ir.Kind      { return ir.KindWire }
