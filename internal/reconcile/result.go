package reconcile

import (
	"errors"

	"schsync/internal/fault"
	"schsync/internal/host"
	"schsync/internal/ir"
)

type Action string

const (
	Created  Action = "created"
	Updated  Action = "updated"
	Replaced Action = "replaced"
)

type Applied struct {
	PrimitiveID string `json:"primitiveId"`
	Action      Action `json:"action"`
}

// Counts reports how many primitives a page clear targeted per family.
type Counts struct {
	Wires      int `json:"wires"`
	Texts      int `json:"texts"`
	Components int `json:"components"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorInfo(err error) *ErrorInfo {
	var f *fault.Fault
	if errors.As(err, &f) {
		return &ErrorInfo{Code: f.Code, Message: f.Message}
	}
	return &ErrorInfo{Code: fault.Internal, Message: err.Error()}
}

type Outcome struct {
	OK    bool       `json:"ok"`
	Error *ErrorInfo `json:"error,omitempty"`
}

type CaptureOutcome struct {
	FileName string     `json:"fileName,omitempty"`
	SavedTo  string     `json:"savedTo,omitempty"`
	Artifact string     `json:"artifact,omitempty"`
	Bytes    int        `json:"bytes,omitempty"`
	Error    *ErrorInfo `json:"error,omitempty"`
}

type PostResult struct {
	ZoomToAll  *Outcome        `json:"zoomToAll,omitempty"`
	DRC        *Outcome        `json:"drc,omitempty"`
	Save       *Outcome        `json:"save,omitempty"`
	CapturePNG *CaptureOutcome `json:"capturePng,omitempty"`
}

type JournalInfo struct {
	Commit string     `json:"commit,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

type Result struct {
	OK      bool                           `json:"ok"`
	Page    host.Page                      `json:"page"`
	Units   ir.Units                       `json:"units"`
	Cleared *Counts                        `json:"cleared,omitempty"`
	Deleted map[ir.Kind][]string           `json:"deleted,omitempty"`
	Applied map[ir.Kind]map[string]Applied `json:"applied"`
	Post    *PostResult                    `json:"post,omitempty"`
	Journal *JournalInfo                   `json:"journal,omitempty"`
}

func newResult(units ir.Units) *Result {
	r := &Result{OK: true, Units: units, Applied: map[ir.Kind]map[string]Applied{}}
	for _, k := range ir.Kinds {
		r.Applied[k] = map[string]Applied{}
	}
	return r
}
