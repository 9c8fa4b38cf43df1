// Package netlist reads exported netlists into a net membership table and
// checks expected pin memberships against it.
package netlist

import (
	"bufio"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	FormatJSONComponents = "json-components"
	FormatJSONNets       = "json-nets"
	FormatProtel2        = "protel2"
	FormatPADS           = "pads"
	FormatGeneric        = "generic"
	FormatUnknown        = "unknown"
)

type Endpoint struct {
	Ref string `json:"ref" validate:"required"`
	Pin string `json:"pin" validate:"required"`
}

// Parsed is a net name to endpoint table. Names and endpoints are kept as
// they appear in the source.
type Parsed struct {
	OK          bool                  `json:"ok"`
	FormatGuess string                `json:"formatGuess"`
	Warnings    []string              `json:"warnings"`
	Nets        map[string][]Endpoint `json:"nets"`
}

// NetNames returns the parsed net names in lexical order.
func (p Parsed) NetNames() []string {
	names := make([]string, 0, len(p.Nets))
	for n := range p.Nets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Parse guesses the netlist format and extracts its nets. It never fails;
// unreadable input yields OK=false and a warning.
func Parse(text string) Parsed {
	trimmed := strings.TrimSpace(text)
	p := Parsed{Warnings: []string{}, Nets: map[string][]Endpoint{}}
	if trimmed == "" {
		p.FormatGuess = FormatUnknown
		p.Warnings = append(p.Warnings, "empty netlist")
		return p
	}

	switch {
	case strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed):
		parseJSON(trimmed, &p)
	case strings.Contains(trimmed, "*SIGNAL*"):
		p.FormatGuess = FormatPADS
		parsePADS(trimmed, &p)
	case strings.HasPrefix(trimmed, "(") || strings.HasPrefix(trimmed, "["):
		p.FormatGuess = FormatProtel2
		parseProtel(trimmed, &p)
	default:
		p.FormatGuess = FormatGeneric
		parseGeneric(trimmed, &p)
	}

	if len(p.Nets) == 0 {
		if p.FormatGuess == FormatGeneric {
			p.FormatGuess = FormatUnknown
		}
		p.Warnings = append(p.Warnings, "no nets found")
		return p
	}
	p.OK = true
	return p
}

func (p *Parsed) add(net string, ep Endpoint) {
	net = strings.TrimSpace(net)
	ep.Ref = strings.TrimSpace(ep.Ref)
	ep.Pin = strings.TrimSpace(ep.Pin)
	if net == "" || ep.Ref == "" || ep.Pin == "" {
		return
	}
	p.Nets[net] = append(p.Nets[net], ep)
}

func parseJSON(text string, p *Parsed) {
	doc := gjson.Parse(text)
	switch {
	case doc.Get("components").IsObject() || doc.Get("components").IsArray():
		p.FormatGuess = FormatJSONComponents
		doc.Get("components").ForEach(func(key, c gjson.Result) bool {
			ref := firstString(c, "props.Designator", "designator", "Designator", "ref")
			if ref == "" && key.Type == gjson.String {
				ref = key.String()
			}
			if ref == "" {
				p.Warnings = append(p.Warnings, "component without designator skipped")
				return true
			}
			c.Get("pins").ForEach(func(pin, net gjson.Result) bool {
				name := net.String()
				if net.IsObject() {
					name = firstString(net, "net", "name")
				}
				p.add(name, Endpoint{Ref: ref, Pin: pin.String()})
				return true
			})
			return true
		})
	case doc.Get("nets").Exists():
		p.FormatGuess = FormatJSONNets
		doc.Get("nets").ForEach(func(name, eps gjson.Result) bool {
			eps.ForEach(func(_, ep gjson.Result) bool {
				if ep.Type == gjson.String {
					if e, ok := splitEndpoint(ep.String(), ".-"); ok {
						p.add(name.String(), e)
					}
					return true
				}
				p.add(name.String(), Endpoint{Ref: firstString(ep, "ref", "designator"), Pin: firstString(ep, "pin", "pinNumber")})
				return true
			})
			return true
		})
	default:
		p.FormatGuess = FormatUnknown
		p.Warnings = append(p.Warnings, "unrecognized JSON netlist layout")
	}
}

func firstString(r gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := r.Get(path); v.Exists() && v.Type != gjson.Null {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// splitEndpoint cuts REF.PIN or REF-PIN at the last separator.
func splitEndpoint(token, seps string) (Endpoint, bool) {
	token = strings.TrimSpace(token)
	i := strings.LastIndexAny(token, seps)
	if i <= 0 || i == len(token)-1 {
		return Endpoint{}, false
	}
	return Endpoint{Ref: token[:i], Pin: token[i+1:]}, true
}

// parseProtel reads "( NAME REF-PIN ... )" net blocks and skips "[ ... ]"
// component blocks.
func parseProtel(text string, p *Parsed) {
	var (
		inNet, inComp bool
		name          string
	)
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case inComp:
			if line == "]" {
				inComp = false
			}
		case line == "[":
			inComp = true
		case line == "(":
			inNet, name = true, ""
		case line == ")":
			inNet = false
		case inNet && name == "":
			name = line
		case inNet:
			if ep, ok := splitEndpoint(line, "-"); ok {
				p.add(name, ep)
			} else {
				p.Warnings = append(p.Warnings, "unreadable net member: "+line)
			}
		}
	}
}

// parsePADS reads "*SIGNAL* NAME" sections followed by REF.PIN tokens.
func parsePADS(text string, p *Parsed) {
	name := ""
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if strings.HasPrefix(fields[0], "*") {
			name = ""
			if strings.EqualFold(fields[0], "*SIGNAL*") && len(fields) > 1 {
				name = fields[1]
			}
			continue
		}
		if name == "" {
			continue
		}
		for _, tok := range fields {
			if ep, ok := splitEndpoint(tok, "."); ok {
				p.add(name, ep)
			}
		}
	}
}

// parseGeneric reads "NAME: REF.PIN REF.PIN" lines.
func parseGeneric(text string, p *Parsed) {
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		name, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		for _, tok := range strings.FieldsFunc(rest, func(r rune) bool { return r == ' ' || r == '\t' || r == ',' }) {
			if ep, ok := splitEndpoint(tok, ".-"); ok {
				p.add(name, ep)
			}
		}
	}
}
