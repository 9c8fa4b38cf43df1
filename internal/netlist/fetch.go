package netlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"schsync/internal/fault"
	"schsync/internal/host"
	"schsync/internal/metrics"
)

const (
	DefaultType     = "JLCEDA"
	DefaultMaxChars = 1_000_000
	DefaultTimeout  = 30 * time.Second
	excerptChars    = 20_000
)

type Request struct {
	NetlistType string        `json:"netlistType,omitempty" validate:"omitempty,oneof=JLCEDA EasyEDA Protel2 PADS Allegro DISA"`
	TimeoutMS   int           `json:"timeoutMs,omitempty" validate:"gte=0"`
	MaxChars    int           `json:"maxChars,omitempty" validate:"gte=0"`
	Nets        []ExpectedNet `json:"nets" validate:"required,min=1,dive"`
}

// Fetched is netlist text and where it came from: "api" for the direct
// netlist call, "export" for the file export fallback.
type Fetched struct {
	NetlistType string `json:"netlistType"`
	Truncated   bool   `json:"truncated"`
	TotalChars  int    `json:"totalChars"`
	Source      string `json:"source"`
	Artifact    string `json:"artifact,omitempty"`
	Text        string `json:"-"`
}

type ParsedSummary struct {
	OK          bool     `json:"ok"`
	FormatGuess string   `json:"formatGuess"`
	Warnings    []string `json:"warnings"`
	Nets        int      `json:"nets"`
}

type Report struct {
	OK      bool                 `json:"ok"`
	Page    host.Page            `json:"page"`
	Netlist Fetched              `json:"netlist"`
	Parsed  ParsedSummary        `json:"parsed"`
	Results map[string]NetResult `json:"results"`
	Excerpt string               `json:"excerpt"`
}

type Source interface {
	host.Pages
	host.NetlistExporter
}

// Artifacts keeps a copy of netlists obtained through the export path.
type Artifacts interface {
	PutNetlist(ctx context.Context, documentID, fileName string, text []byte) (string, error)
}

type Checker struct {
	src       Source
	artifacts Artifacts
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewChecker(src Source, artifacts Artifacts, m *metrics.Metrics, log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{src: src, artifacts: artifacts, metrics: m, log: log}
}

var validate = validator.New()

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

// VerifyNetlist fetches the current page's netlist and checks the requested
// memberships.
func (c *Checker) VerifyNetlist(ctx context.Context, req Request) (rep *Report, err error) {
	defer func() {
		c.metrics.CountVerification("netlist", rep != nil && rep.OK, err)
	}()
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	page, err := c.src.CurrentPage(ctx)
	if err != nil {
		return nil, err
	}
	fetched, err := c.Fetch(ctx, page, req.NetlistType, req.MaxChars, time.Duration(req.TimeoutMS)*time.Millisecond)
	if err != nil {
		return nil, err
	}

	parsed := Parse(fetched.Text)
	v := Verify(parsed, req.Nets)
	excerpt := fetched.Text
	if r := []rune(excerpt); len(r) > excerptChars {
		excerpt = string(r[:excerptChars])
	}
	return &Report{
		OK:      v.OK,
		Page:    page,
		Netlist: fetched,
		Parsed: ParsedSummary{
			OK:          parsed.OK,
			FormatGuess: parsed.FormatGuess,
			Warnings:    parsed.Warnings,
			Nets:        len(parsed.Nets),
		},
		Results: v.Results,
		Excerpt: excerpt,
	}, nil
}

// Fetch asks the host for a netlist and falls back to the file export path
// when the direct call times out or is unsupported.
func (c *Checker) Fetch(ctx context.Context, page host.Page, netlistType string, maxChars int, timeout time.Duration) (Fetched, error) {
	if netlistType == "" {
		netlistType = DefaultType
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	apiCtx, cancel := context.WithTimeout(ctx, timeout)
	text, err := c.src.Netlist(apiCtx, page, netlistType, maxChars)
	cancel()
	if err == nil {
		return fetched(netlistType, "api", text), nil
	}
	if !fault.Is(err, fault.Timeout) && !fault.Is(err, fault.NotSupported) && !errors.Is(err, context.DeadlineExceeded) {
		return Fetched{}, err
	}
	if ctx.Err() != nil {
		return Fetched{}, ctx.Err()
	}
	c.log.Info("netlist call unavailable, using file export", "document", page.DocumentID, "code", fault.CodeOf(err))

	text, err = c.src.ExportNetlistFile(ctx, page, netlistType, maxChars)
	if err != nil {
		return Fetched{}, fmt.Errorf("export netlist file: %w", err)
	}
	out := fetched(netlistType, "export", text)
	if c.artifacts != nil {
		name := fmt.Sprintf("schsync_netlist_%d_%s.net", time.Now().UnixMilli(), uuid.NewString()[:8])
		loc, err := c.artifacts.PutNetlist(ctx, page.DocumentID, name, []byte(text.Text))
		if err != nil {
			c.log.Warn("netlist artifact upload failed", "document", page.DocumentID, "error", err)
		} else {
			out.Artifact = loc
		}
	}
	return out, nil
}

func fetched(netlistType, source string, t host.Text) Fetched {
	return Fetched{
		NetlistType: netlistType,
		Truncated:   t.Truncated,
		TotalChars:  t.TotalChars,
		Source:      source,
		Text:        t.Text,
	}
}
