// Package verify checks that expected nets exist as connected wire geometry
// in a live document.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"schsync/internal/fault"
	"schsync/internal/host"
	"schsync/internal/metrics"
	"schsync/internal/wiregraph"
)

const (
	DefaultMaxChars = 800_000
	DefaultTimeout  = 60 * time.Second
)

// Point is an expected location on a net: either explicit coordinates or a
// pin of a placed component.
type Point struct {
	Ref         string   `json:"ref,omitempty"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	PrimitiveID string   `json:"primitiveId,omitempty"`
	PinNumber   string   `json:"pinNumber,omitempty"`
	PinName     string   `json:"pinName,omitempty"`
	AllowMany   bool     `json:"allowMany,omitempty"`
}

type Net struct {
	Name    string   `json:"name" validate:"required"`
	WireIDs []string `json:"wirePrimitiveIds,omitempty" validate:"dive,required"`
	Points  []Point  `json:"points" validate:"dive"`
}

type Request struct {
	Nets             []Net `json:"nets" validate:"required,min=1,dive"`
	RequireConnected *bool `json:"requireConnected,omitempty"`
	MaxChars         int   `json:"maxChars,omitempty" validate:"gte=0"`
	TimeoutMS        int   `json:"timeoutMs,omitempty" validate:"gte=0"`
}

type Mismatch struct {
	WireID   string `json:"wireId"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
}

type NetResult struct {
	OK             bool       `json:"ok"`
	Wires          int        `json:"wires"`
	Segments       int        `json:"segments"`
	MissingWireIDs []string   `json:"missingWireIds"`
	NetMismatch    []Mismatch `json:"netMismatch"`
	MissingPoints  []string   `json:"missingPoints"`
	Disconnected   []string   `json:"disconnected"`
}

type DocInfo struct {
	Truncated  bool `json:"truncated"`
	TotalChars int  `json:"totalChars"`
}

type Report struct {
	OK      bool                 `json:"ok"`
	Page    host.Page            `json:"page"`
	Results map[string]NetResult `json:"results"`
	Doc     DocInfo              `json:"doc"`
}

// Source is what net verification reads from a host.
type Source interface {
	host.Pages
	host.SourceReader
	host.Pins
}

var validate = validator.New()

func init() {
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		p := sl.Current().Interface().(Point)
		hasXY := p.X != nil && p.Y != nil
		hasPin := p.PrimitiveID != "" && (p.PinNumber != "" || p.PinName != "")
		if !hasXY && !hasPin {
			sl.ReportError(p.PrimitiveID, "primitiveId", "PrimitiveID", "point", "")
		}
	}, Point{})
}

type Verifier struct {
	src     Source
	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(src Source, m *metrics.Metrics, log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	return &Verifier{src: src, metrics: m, log: log}
}

// ValidateRequest reports INVALID_PARAMS for malformed requests.
func ValidateRequest(req Request) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fault.Newf(fault.InvalidParams, "invalid request: %s failed %s", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fault.Wrap(fault.InvalidParams, err, err.Error())
	}
	return nil
}

// VerifyNets reads the current page once and checks every requested net.
// Missing and disconnected points are reported, not returned as errors.
func (v *Verifier) VerifyNets(ctx context.Context, req Request) (rep *Report, err error) {
	defer func() {
		v.metrics.CountVerification("nets", rep != nil && rep.OK, err)
	}()
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	maxChars := req.MaxChars
	if maxChars == 0 {
		maxChars = DefaultMaxChars
	}
	timeout := DefaultTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := v.src.CurrentPage(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := v.src.DocumentSource(ctx, page, maxChars)
	if err != nil {
		return nil, err
	}
	if doc.Text == "" {
		return nil, fault.New(fault.SourceUnavailable, "No document source returned")
	}

	wireIDs := map[string]bool{}
	netNames := map[string]bool{}
	for _, n := range req.Nets {
		netNames[n.Name] = true
		for _, id := range n.WireIDs {
			wireIDs[id] = true
		}
	}
	filter := wiregraph.Filter{NetNames: netNames}
	if len(wireIDs) > 0 {
		filter = wiregraph.Filter{WireIDs: wireIDs}
	}
	parsed := wiregraph.Parse(doc.Text, filter)

	c := &checker{src: v.src, page: page, pins: map[string][]host.Pin{}}
	rep = &Report{OK: true, Page: page, Results: map[string]NetResult{}, Doc: DocInfo{Truncated: doc.Truncated, TotalChars: doc.TotalChars}}
	requireConnected := req.RequireConnected == nil || *req.RequireConnected
	for _, n := range req.Nets {
		res, err := c.check(ctx, n, parsed, requireConnected)
		if err != nil {
			return nil, err
		}
		rep.Results[n.Name] = res
		rep.OK = rep.OK && res.OK
	}
	v.log.Debug("nets verified", "document", page.DocumentID, "nets", len(req.Nets), "wires", len(parsed), "ok", rep.OK)
	return rep, nil
}

type checker struct {
	src  Source
	page host.Page
	pins map[string][]host.Pin
}

type expected struct {
	key string
	ref string
}

func (e expected) String() string { return e.ref + "@" + e.key }

func (c *checker) componentPins(ctx context.Context, primitiveID string) ([]host.Pin, error) {
	if pins, ok := c.pins[primitiveID]; ok {
		return pins, nil
	}
	pins, err := c.src.ComponentPins(ctx, c.page, primitiveID)
	if err != nil {
		return nil, err
	}
	c.pins[primitiveID] = pins
	return pins, nil
}

// points resolves a net's expected points into the source frame, where y
// grows downward.
func (c *checker) points(ctx context.Context, n Net) ([]expected, error) {
	var out []expected
	for _, p := range n.Points {
		if p.X != nil && p.Y != nil {
			ref := p.Ref
			if ref == "" {
				ref = fmt.Sprintf("(%s,%s)", formatCoord(*p.X), formatCoord(*p.Y))
			}
			out = append(out, expected{key: wiregraph.PointKey(*p.X, -*p.Y), ref: ref})
			continue
		}
		pins, err := c.componentPins(ctx, p.PrimitiveID)
		if err != nil {
			return nil, err
		}
		selected, err := host.SelectPins(pins, host.PinSelector{Number: p.PinNumber, Name: p.PinName}, p.AllowMany, p.PrimitiveID)
		if err != nil {
			return nil, err
		}
		for _, pin := range selected {
			ref := p.Ref
			if ref == "" {
				label := pin.Name
				if label == "" {
					label = pin.Number
				}
				ref = p.PrimitiveID + "." + label
			}
			out = append(out, expected{key: wiregraph.PointKey(pin.X, -pin.Y), ref: ref})
		}
	}
	return out, nil
}

func (c *checker) check(ctx context.Context, n Net, parsed map[string]*wiregraph.Wire, requireConnected bool) (NetResult, error) {
	points, err := c.points(ctx, n)
	if err != nil {
		return NetResult{}, err
	}
	res := NetResult{
		MissingWireIDs: []string{},
		NetMismatch:    []Mismatch{},
		MissingPoints:  []string{},
		Disconnected:   []string{},
	}

	var segments []wiregraph.Segment
	if len(n.WireIDs) > 0 {
		res.Wires = len(n.WireIDs)
		for _, id := range n.WireIDs {
			w, ok := parsed[id]
			if !ok {
				res.MissingWireIDs = append(res.MissingWireIDs, id)
				continue
			}
			if w.Net != "" && w.Net != n.Name {
				res.NetMismatch = append(res.NetMismatch, Mismatch{WireID: id, Expected: n.Name, Actual: w.Net})
			}
			segments = append(segments, w.Segments...)
		}
	} else {
		for _, id := range wiregraph.SortedIDs(parsed) {
			if w := parsed[id]; w.Net == n.Name {
				res.Wires++
				segments = append(segments, w.Segments...)
			}
		}
	}
	res.Segments = len(segments)

	graph := wiregraph.BuildAdjacency(segments)
	for _, p := range points {
		if !graph.Has(p.key) {
			res.MissingPoints = append(res.MissingPoints, p.String())
		}
	}

	if requireConnected && len(points) >= 2 {
		start := ""
		for _, p := range points {
			if graph.Has(p.key) {
				start = p.key
				break
			}
		}
		if start == "" {
			for _, p := range points {
				res.Disconnected = append(res.Disconnected, p.String())
			}
		} else {
			reached := wiregraph.Reachable(graph, start)
			for _, p := range points {
				if graph.Has(p.key) && !reached[p.key] {
					res.Disconnected = append(res.Disconnected, p.String())
				}
			}
		}
	}

	res.OK = len(res.MissingWireIDs) == 0 && len(res.NetMismatch) == 0 && len(res.MissingPoints) == 0 && len(res.Disconnected) == 0
	return res, nil
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%g", v)
}
