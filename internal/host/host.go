// Package host declares the ports through which the engine and verifiers
// reach a live CAD document. Every call names its document explicitly.
package host

import (
	"context"

	"schsync/internal/ir"
)

// Page identifies the schematic page a run operates on.
type Page struct {
	DocumentID string `json:"documentId"`
	TabID      string `json:"tabId,omitempty"`
}

type PageIntent struct {
	BoardName     string `json:"boardName,omitempty"`
	SchematicName string `json:"schematicName,omitempty"`
	PageName      string `json:"pageName,omitempty"`
}

type Pages interface {
	// EnsurePage opens or creates the schematic page the intent names.
	EnsurePage(ctx context.Context, intent PageIntent) error
	// CurrentPage fails with NO_ACTIVE_DOCUMENT or NOT_IN_SCHEMATIC_PAGE.
	CurrentPage(ctx context.Context) (Page, error)
}

// Class groups kinds by the host primitive family that stores them.
type Class string

const (
	ClassComponent Class = "component"
	ClassText      Class = "text"
	ClassWire      Class = "wire"
)

func ClassOf(kind ir.Kind) Class {
	switch kind {
	case ir.KindText:
		return ClassText
	case ir.KindWire, ir.KindConnection:
		return ClassWire
	default:
		return ClassComponent
	}
}

// Primitives mutates primitives by reference.
//
// Create returns the new reference; an empty reference or an error means the
// host refused. Modify reports ok=false when the reference no longer resolves
// or the host cannot apply the change in place.
type Primitives interface {
	Create(ctx context.Context, page Page, spec Primitive) (string, error)
	Modify(ctx context.Context, page Page, ref string, spec Primitive) (bool, error)
	Delete(ctx context.Context, page Page, class Class, refs []string) error
	List(ctx context.Context, page Page, class Class) ([]string, error)
}

type Pin struct {
	PrimitiveID string  `json:"primitiveId,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Number      string  `json:"pinNumber"`
	Name        string  `json:"pinName"`
}

type Pins interface {
	// ComponentPins returns nil pins when the component has none or is gone.
	ComponentPins(ctx context.Context, page Page, componentRef string) ([]Pin, error)
}

type Device struct {
	UUID        string `json:"uuid"`
	LibraryUUID string `json:"libraryUuid"`
}

type Devices interface {
	// LookupDevice reports ok=false for an unknown device.
	LookupDevice(ctx context.Context, deviceUUID string) (Device, bool, error)
}

type CaptureRequest struct {
	SavePath string `json:"savePath,omitempty"`
	FileName string `json:"fileName"`
	Force    bool   `json:"force,omitempty"`
}

type Capture struct {
	FileName string `json:"fileName"`
	SavedTo  string `json:"savedTo,omitempty"`
	PNG      []byte `json:"png,omitempty"`
}

type PostActions interface {
	ZoomToAll(ctx context.Context, page Page) error
	CheckDRC(ctx context.Context, page Page, strict, userInterface bool) (bool, error)
	Save(ctx context.Context, page Page) (bool, error)
	CapturePNG(ctx context.Context, page Page, req CaptureRequest) (Capture, error)
}

// Text is host-provided text, possibly cut at a requested character limit.
type Text struct {
	Text       string `json:"text"`
	Truncated  bool   `json:"truncated"`
	TotalChars int    `json:"totalChars"`
}

type SourceReader interface {
	DocumentSource(ctx context.Context, page Page, maxChars int) (Text, error)
}

type NetlistExporter interface {
	Netlist(ctx context.Context, page Page, netlistType string, maxChars int) (Text, error)
	// ExportNetlistFile produces the same netlist through the host's file
	// export path, for hosts whose direct netlist call is unavailable.
	ExportNetlistFile(ctx context.Context, page Page, netlistType string, maxChars int) (Text, error)
}

// Host is a complete CAD document host.
type Host interface {
	Pages
	Primitives
	Pins
	Devices
	PostActions
	SourceReader
	NetlistExporter
}

// Truncate cuts s to maxChars runes when maxChars is positive.
func Truncate(s string, maxChars int) Text {
	r := []rune(s)
	t := Text{Text: s, TotalChars: len(r)}
	if maxChars > 0 && len(r) > maxChars {
		t.Text = string(r[:maxChars])
		t.Truncated = true
	}
	return t
}
