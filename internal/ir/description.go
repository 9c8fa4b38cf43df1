// Package ir defines the versioned schematic description callers submit for
// synchronization, together with its decoding and validation rules.
package ir

import (
	"bytes"
	"encoding/json"

	"github.com/invopop/jsonschema"
)

const Version = 1

type Units string

const (
	UnitsSch Units = "sch"
	UnitsMM  Units = "mm"
)

type ClearMode string

const (
	ClearManaged ClearMode = "mcp"
	ClearAll     ClearMode = "all"
)

type RouteStyle string

const (
	StyleManhattan RouteStyle = "manhattan"
	StyleStraight  RouteStyle = "straight"
)

// Description is schema version 1 of a schematic submission.
type Description struct {
	Version     int          `json:"version" validate:"required,eq=1" jsonschema:"enum=1"`
	Units       Units        `json:"units,omitempty" validate:"omitempty,oneof=sch mm" jsonschema:"enum=sch,enum=mm"`
	Page        *Page        `json:"page,omitempty"`
	Patch       *Patch       `json:"patch,omitempty"`
	Components  []Component  `json:"components,omitempty" validate:"dive"`
	NetFlags    []NetFlag    `json:"netFlags,omitempty" validate:"dive"`
	NetPorts    []NetPort    `json:"netPorts,omitempty" validate:"dive"`
	Texts       []Text       `json:"texts,omitempty" validate:"dive"`
	Wires       []Wire       `json:"wires,omitempty" validate:"dive"`
	Connections []Connection `json:"connections,omitempty" validate:"dive"`
	Post        *Post        `json:"post,omitempty"`
}

type Page struct {
	Ensure        *bool     `json:"ensure,omitempty"`
	BoardName     string    `json:"boardName,omitempty" validate:"omitempty,min=1"`
	SchematicName string    `json:"schematicName,omitempty" validate:"omitempty,min=1"`
	PageName      string    `json:"pageName,omitempty" validate:"omitempty,min=1"`
	Clear         bool      `json:"clear,omitempty"`
	ClearMode     ClearMode `json:"clearMode,omitempty" validate:"omitempty,oneof=mcp all" jsonschema:"enum=mcp,enum=all"`
}

// ShouldEnsure reports whether the page intent asks for a schematic page to be
// opened or created. An absent intent means yes.
func (p *Page) ShouldEnsure() bool {
	if p == nil || p.Ensure == nil {
		return true
	}
	return *p.Ensure
}

type Patch struct {
	Delete *DeleteSet `json:"delete,omitempty"`
}

func (p *Patch) DeleteCount() int {
	if p == nil {
		return 0
	}
	return p.Delete.Count()
}

type DeleteSet struct {
	Components  []string `json:"components,omitempty" validate:"dive,min=1"`
	NetFlags    []string `json:"netFlags,omitempty" validate:"dive,min=1"`
	NetPorts    []string `json:"netPorts,omitempty" validate:"dive,min=1"`
	Texts       []string `json:"texts,omitempty" validate:"dive,min=1"`
	Wires       []string `json:"wires,omitempty" validate:"dive,min=1"`
	Connections []string `json:"connections,omitempty" validate:"dive,min=1"`
}

func (d *DeleteSet) Count() int {
	if d == nil {
		return 0
	}
	return len(d.Components) + len(d.NetFlags) + len(d.NetPorts) + len(d.Texts) + len(d.Wires) + len(d.Connections)
}

type Component struct {
	ID          string         `json:"id" validate:"required"`
	DeviceUUID  string         `json:"deviceUuid" validate:"required"`
	LibraryUUID string         `json:"libraryUuid,omitempty" validate:"omitempty,min=1"`
	X           float64        `json:"x"`
	Y           float64        `json:"y"`
	SubPartName string         `json:"subPartName,omitempty" validate:"omitempty,min=1"`
	Rotation    *float64       `json:"rotation,omitempty"`
	Mirror      *bool          `json:"mirror,omitempty"`
	AddIntoBOM  *bool          `json:"addIntoBom,omitempty"`
	AddIntoPCB  *bool          `json:"addIntoPcb,omitempty"`
	Designator  *string        `json:"designator,omitempty"`
	Name        NullableString `json:"name,omitzero"`
}

type NetFlag struct {
	ID             string   `json:"id" validate:"required"`
	Identification string   `json:"identification" validate:"required,oneof=Power Ground AnalogGround ProtectGround" jsonschema:"enum=Power,enum=Ground,enum=AnalogGround,enum=ProtectGround"`
	Net            string   `json:"net" validate:"required"`
	X              float64  `json:"x"`
	Y              float64  `json:"y"`
	Rotation       *float64 `json:"rotation,omitempty"`
	Mirror         *bool    `json:"mirror,omitempty"`
}

type NetPort struct {
	ID        string   `json:"id" validate:"required"`
	Direction string   `json:"direction" validate:"required,oneof=IN OUT BI" jsonschema:"enum=IN,enum=OUT,enum=BI"`
	Net       string   `json:"net" validate:"required"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Rotation  *float64 `json:"rotation,omitempty"`
	Mirror    *bool    `json:"mirror,omitempty"`
}

type Text struct {
	ID        string   `json:"id" validate:"required"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Content   string   `json:"content" validate:"required"`
	Rotation  *float64 `json:"rotation,omitempty"`
	TextColor *string  `json:"textColor,omitempty"`
	FontName  *string  `json:"fontName,omitempty"`
	FontSize  *float64 `json:"fontSize,omitempty"`
	Bold      *bool    `json:"bold,omitempty"`
	Italic    *bool    `json:"italic,omitempty"`
	UnderLine *bool    `json:"underLine,omitempty"`
	AlignMode *int     `json:"alignMode,omitempty"`
}

type Wire struct {
	ID   string `json:"id" validate:"required"`
	Net  string `json:"net,omitempty" validate:"omitempty,min=1"`
	Line Line   `json:"line"`
}

type Endpoint struct {
	ComponentID string `json:"componentId" validate:"required"`
	PinNumber   string `json:"pinNumber,omitempty" validate:"omitempty,min=1"`
	PinName     string `json:"pinName,omitempty" validate:"omitempty,min=1"`
}

type Connection struct {
	ID    string     `json:"id" validate:"required"`
	From  Endpoint   `json:"from"`
	To    Endpoint   `json:"to"`
	Net   string     `json:"net,omitempty" validate:"omitempty,min=1"`
	Style RouteStyle `json:"style,omitempty" validate:"omitempty,oneof=manhattan straight" jsonschema:"enum=manhattan,enum=straight"`
	MidX  *float64   `json:"midX,omitempty"`
}

type Post struct {
	DRC        *DRCOptions     `json:"drc,omitempty"`
	Save       bool            `json:"save,omitempty"`
	ZoomToAll  bool            `json:"zoomToAll,omitempty"`
	CapturePNG *CaptureOptions `json:"capturePng,omitempty"`
}

type DRCOptions struct {
	Strict        bool `json:"strict,omitempty"`
	UserInterface bool `json:"userInterface,omitempty"`
}

type CaptureOptions struct {
	SavePath string `json:"savePath,omitempty" validate:"omitempty,min=1"`
	FileName string `json:"fileName,omitempty" validate:"omitempty,min=1"`
	Force    *bool  `json:"force,omitempty"`
}

// NullableString distinguishes an absent field from an explicit JSON null.
type NullableString struct {
	Set   bool
	Valid bool
	Value string
}

func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Valid = false
		n.Value = ""
		return nil
	}
	n.Valid = true
	return json.Unmarshal(data, &n.Value)
}

func (n NullableString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n NullableString) IsZero() bool {
	return !n.Set
}

func (NullableString) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		AnyOf: []*jsonschema.Schema{{Type: "string"}, {Type: "null"}},
	}
}
