package ir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"schsync/internal/fault"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterStructValidation(validateWire, Wire{})
	validate.RegisterStructValidation(validateEndpoint, Endpoint{})
}

// validateWire enforces the evenline rule on wire geometry.
func validateWire(sl validator.StructLevel) {
	w := sl.Current().Interface().(Wire)
	if !w.Line.Valid() {
		sl.ReportError(w.Line, "line", "Line", "evenline", "")
	}
}

func validateEndpoint(sl validator.StructLevel) {
	ep := sl.Current().Interface().(Endpoint)
	if ep.PinNumber == "" && ep.PinName == "" {
		sl.ReportError(ep.PinNumber, "pinNumber", "PinNumber", "pinselector", "")
	}
}

// Issue is one rejected field of a description.
type Issue struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Parse decodes and validates a JSON description. Units default to sch.
// Rejections carry INVALID_IR or DUPLICATE_ID.
func Parse(data []byte) (*Description, error) {
	var d Description
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fault.Wrap(fault.InvalidIR, err, "decode description: "+err.Error())
	}
	if err := Validate(&d); err != nil {
		return nil, err
	}
	if d.Units == "" {
		d.Units = UnitsSch
	}
	return &d, nil
}

// ParseYAML accepts the same document written as YAML.
func ParseYAML(data []byte) (*Description, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fault.Wrap(fault.InvalidIR, err, "decode yaml description: "+err.Error())
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidIR, err, "convert yaml description: "+err.Error())
	}
	return Parse(raw)
}

// ReadFile loads a description from disk, choosing the decoder by extension.
// It returns the description and its canonical JSON encoding.
func ReadFile(path string) (*Description, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read description: %w", err)
	}
	var d *Description
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		d, err = ParseYAML(data)
	default:
		d, err = Parse(data)
	}
	if err != nil {
		return nil, nil, err
	}
	canonical, err := json.Marshal(d)
	if err != nil {
		return nil, nil, fmt.Errorf("encode description: %w", err)
	}
	return d, canonical, nil
}

func Validate(d *Description) error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fault.Wrap(fault.InvalidIR, err, err.Error())
		}
		issues := make([]Issue, 0, len(verrs))
		for _, fe := range verrs {
			issues = append(issues, Issue{
				Field: strings.TrimPrefix(fe.Namespace(), "Description."),
				Rule:  fe.Tag(),
				Param: fe.Param(),
			})
		}
		return fault.Newf(fault.InvalidIR, "invalid description: %s failed %s", issues[0].Field, issues[0].Rule).WithDetails(issues)
	}
	return EnsureUniqueIDs(d)
}

// EnsureUniqueIDs rejects a description that reuses a logical id within one kind.
func EnsureUniqueIDs(d *Description) error {
	check := func(kind string, ids []string) error {
		seen := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				return fault.Newf(fault.DuplicateID, "duplicate %s id: %s", kind, id).
					WithDetails(map[string]string{"kind": kind, "id": id})
			}
			seen[id] = struct{}{}
		}
		return nil
	}
	for _, kind := range Kinds {
		if err := check(string(kind), d.IDs(kind)); err != nil {
			return err
		}
	}
	return nil
}
