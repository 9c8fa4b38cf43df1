package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"schsync/internal/fault"
	"schsync/internal/host"
	"schsync/internal/ir"
)

// Caller sends one request to the CAD host. *Server implements it.
type Caller interface {
	Call(ctx context.Context, method string, params, out any) error
}

const schematicPageType = 1

// Host implements every host port as requests over the bridge.
type Host struct {
	c         Caller
	exportDir string
}

var _ host.Host = (*Host)(nil)

type HostOption func(*Host)

// WithExportDir makes netlist exports land in dir instead of the CAD
// host's default path.
func WithExportDir(dir string) HostOption { return func(h *Host) { h.exportDir = dir } }

func NewHost(c Caller, opts ...HostOption) *Host {
	h := &Host{c: c}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type pageParams struct {
	DocumentID string `json:"documentId"`
	TabID      string `json:"tabId,omitempty"`
}

func at(p host.Page) pageParams {
	return pageParams{DocumentID: p.DocumentID, TabID: p.TabID}
}

type documentInfo struct {
	DocumentType int    `json:"documentType"`
	UUID         string `json:"uuid"`
	TabID        string `json:"tabId"`
}

func (h *Host) EnsurePage(ctx context.Context, intent host.PageIntent) error {
	return h.c.Call(ctx, "ensureSchematicPage", intent, nil)
}

func (h *Host) CurrentPage(ctx context.Context) (host.Page, error) {
	var info *documentInfo
	if err := h.c.Call(ctx, "getCurrentDocumentInfo", nil, &info); err != nil {
		return host.Page{}, err
	}
	if info == nil || info.UUID == "" {
		return host.Page{}, fault.New(fault.NoActiveDocument, "No active document")
	}
	if info.DocumentType != schematicPageType {
		return host.Page{}, fault.Newf(fault.NotInSchematicPage, "Active document %s is not a schematic page", info.UUID)
	}
	return host.Page{DocumentID: info.UUID, TabID: info.TabID}, nil
}

func (h *Host) Create(ctx context.Context, p host.Page, spec host.Primitive) (string, error) {
	var out struct {
		PrimitiveID string `json:"primitiveId"`
	}
	err := h.c.Call(ctx, "schematic.createPrimitive", struct {
		pageParams
		Kind ir.Kind        `json:"kind"`
		Spec host.Primitive `json:"spec"`
	}{at(p), spec.Kind(), spec}, &out)
	return out.PrimitiveID, err
}

func (h *Host) Modify(ctx context.Context, p host.Page, ref string, spec host.Primitive) (bool, error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err := h.c.Call(ctx, "schematic.modifyPrimitive", struct {
		pageParams
		Kind        ir.Kind        `json:"kind"`
		PrimitiveID string         `json:"primitiveId"`
		Spec        host.Primitive `json:"spec"`
	}{at(p), spec.Kind(), ref, spec}, &out)
	return out.OK, err
}

func (h *Host) Delete(ctx context.Context, p host.Page, class host.Class, refs []string) error {
	return h.c.Call(ctx, "schematic.deletePrimitives", struct {
		pageParams
		Class        host.Class `json:"class"`
		PrimitiveIDs []string   `json:"primitiveIds"`
	}{at(p), class, refs}, nil)
}

func (h *Host) List(ctx context.Context, p host.Page, class host.Class) ([]string, error) {
	var out struct {
		PrimitiveIDs []string `json:"primitiveIds"`
	}
	err := h.c.Call(ctx, "schematic.listPrimitives", struct {
		pageParams
		Class host.Class `json:"class"`
	}{at(p), class}, &out)
	return out.PrimitiveIDs, err
}

func (h *Host) ComponentPins(ctx context.Context, p host.Page, componentRef string) ([]host.Pin, error) {
	var out struct {
		Pins []host.Pin `json:"pins"`
	}
	err := h.c.Call(ctx, "schematic.getComponentPins", struct {
		pageParams
		PrimitiveID string `json:"primitiveId"`
	}{at(p), componentRef}, &out)
	return out.Pins, err
}

func (h *Host) LookupDevice(ctx context.Context, deviceUUID string) (host.Device, bool, error) {
	var out *host.Device
	err := h.c.Call(ctx, "library.getDevice", map[string]string{"uuid": deviceUUID}, &out)
	if fault.Is(err, fault.NotFound) {
		return host.Device{}, false, nil
	}
	if err != nil {
		return host.Device{}, false, err
	}
	if out == nil || out.UUID == "" {
		return host.Device{}, false, nil
	}
	return *out, true, nil
}

func (h *Host) ZoomToAll(ctx context.Context, p host.Page) error {
	return h.c.Call(ctx, "schematic.zoomToAll", at(p), nil)
}

func (h *Host) CheckDRC(ctx context.Context, p host.Page, strict, userInterface bool) (bool, error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err := h.c.Call(ctx, "schematic.drc", struct {
		pageParams
		Strict        bool `json:"strict"`
		UserInterface bool `json:"userInterface"`
	}{at(p), strict, userInterface}, &out)
	return out.OK, err
}

func (h *Host) Save(ctx context.Context, p host.Page) (bool, error) {
	var out struct {
		Saved bool `json:"saved"`
	}
	err := h.c.Call(ctx, "schematic.save", at(p), &out)
	return out.Saved, err
}

func (h *Host) CapturePNG(ctx context.Context, p host.Page, req host.CaptureRequest) (host.Capture, error) {
	var out struct {
		FileName string `json:"fileName"`
		SavedTo  string `json:"savedTo"`
		Base64   string `json:"base64"`
	}
	err := h.c.Call(ctx, "captureRenderedAreaImage", struct {
		pageParams
		host.CaptureRequest
		ZoomToAll    bool `json:"zoomToAll"`
		ReturnBase64 bool `json:"returnBase64"`
	}{at(p), req, false, req.SavePath == ""}, &out)
	if err != nil {
		return host.Capture{}, err
	}
	capture := host.Capture{FileName: out.FileName, SavedTo: out.SavedTo}
	if out.Base64 != "" {
		png, err := base64.StdEncoding.DecodeString(out.Base64)
		if err != nil {
			return host.Capture{}, fmt.Errorf("decode capture: %w", err)
		}
		capture.PNG = png
	}
	return capture, nil
}

type sourceReply struct {
	Source     string `json:"source"`
	Truncated  bool   `json:"truncated"`
	TotalChars int    `json:"totalChars"`
}

func (h *Host) DocumentSource(ctx context.Context, p host.Page, maxChars int) (host.Text, error) {
	var out sourceReply
	err := h.c.Call(ctx, "getDocumentSource", struct {
		pageParams
		MaxChars int `json:"maxChars"`
	}{at(p), maxChars}, &out)
	return host.Text{Text: out.Source, Truncated: out.Truncated, TotalChars: out.TotalChars}, err
}

type netlistParams struct {
	pageParams
	NetlistType string `json:"netlistType"`
	MaxChars    int    `json:"maxChars"`
}

type netlistReply struct {
	NetlistType string `json:"netlistType"`
	Netlist     string `json:"netlist"`
	Truncated   bool   `json:"truncated"`
	TotalChars  int    `json:"totalChars"`
}

func (h *Host) Netlist(ctx context.Context, p host.Page, netlistType string, maxChars int) (host.Text, error) {
	var out netlistReply
	err := h.c.Call(ctx, "schematic.getNetlist", netlistParams{at(p), netlistType, maxChars}, &out)
	return host.Text{Text: out.Netlist, Truncated: out.Truncated, TotalChars: out.TotalChars}, err
}

type exportParams struct {
	pageParams
	NetlistType string `json:"netlistType"`
	FileName    string `json:"fileName"`
	SavePath    string `json:"savePath,omitempty"`
	Force       bool   `json:"force"`
}

type exportReply struct {
	SavedTo           string `json:"savedTo"`
	FileName          string `json:"fileName"`
	DownloadTriggered bool   `json:"downloadTriggered"`
}

// ExportNetlistFile asks the extension to write the netlist to disk and reads
// the file back. The extension and the server share a filesystem.
func (h *Host) ExportNetlistFile(ctx context.Context, p host.Page, netlistType string, maxChars int) (host.Text, error) {
	params := exportParams{
		pageParams:  at(p),
		NetlistType: netlistType,
		FileName:    fmt.Sprintf("schsync_netlist_%d.net", time.Now().UnixMilli()),
		Force:       true,
	}
	if h.exportDir != "" {
		params.SavePath = h.exportDir + string(filepath.Separator)
	}
	var out exportReply
	if err := h.c.Call(ctx, "exportSchematicNetlistFile", params, &out); err != nil {
		return host.Text{}, err
	}
	if out.SavedTo == "" {
		return host.Text{}, fault.New(fault.SourceUnavailable, "Netlist export returned no file path")
	}
	raw, err := os.ReadFile(out.SavedTo)
	if err != nil {
		return host.Text{}, fault.Wrap(fault.SourceUnavailable, err, "read exported netlist: "+err.Error())
	}
	text := string(raw)
	res := host.Text{Text: text, TotalChars: len(text)}
	if maxChars > 0 && len(text) > maxChars {
		res.Text, res.Truncated = text[:maxChars], true
	}
	return res, nil
}
