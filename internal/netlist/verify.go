package netlist

import (
	"slices"
	"strings"
)

type ExpectedNet struct {
	Name      string     `json:"name" validate:"required"`
	Endpoints []Endpoint `json:"endpoints" validate:"required,min=1,dive"`
}

type WrongNet struct {
	Ref    string   `json:"ref"`
	Pin    string   `json:"pin"`
	Actual []string `json:"actual"`
}

type NetResult struct {
	OK               bool       `json:"ok"`
	NetFound         bool       `json:"netFound"`
	MissingEndpoints []Endpoint `json:"missingEndpoints"`
	WrongNet         []WrongNet `json:"wrongNet"`
}

type Verification struct {
	OK      bool                 `json:"ok"`
	Results map[string]NetResult `json:"results"`
}

// NormalizeNet trims, drops one pair of surrounding quotes and upper-cases.
func NormalizeNet(name string) string {
	name = strings.TrimSpace(name)
	if len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) {
		name = name[1 : len(name)-1]
	}
	return strings.ToUpper(name)
}

func endpointKey(ref, pin string) string {
	return strings.ToUpper(strings.TrimSpace(ref)) + "." + strings.ToUpper(strings.TrimSpace(pin))
}

// Verify checks expected memberships against a parsed netlist. An endpoint
// absent from the expected net is reported as on the wrong net when it
// appears under any other net, and as missing otherwise.
func Verify(p Parsed, expected []ExpectedNet) Verification {
	members := map[string]map[string]bool{}
	where := map[string][]string{}
	for _, name := range p.NetNames() {
		norm := NormalizeNet(name)
		if members[norm] == nil {
			members[norm] = map[string]bool{}
		}
		for _, ep := range p.Nets[name] {
			key := endpointKey(ep.Ref, ep.Pin)
			members[norm][key] = true
			if !slices.Contains(where[key], name) {
				where[key] = append(where[key], name)
			}
		}
	}

	out := Verification{OK: p.OK, Results: map[string]NetResult{}}
	for _, n := range expected {
		set, found := members[NormalizeNet(n.Name)]
		res := NetResult{NetFound: found, MissingEndpoints: []Endpoint{}, WrongNet: []WrongNet{}}
		for _, ep := range n.Endpoints {
			key := endpointKey(ep.Ref, ep.Pin)
			if found && set[key] {
				continue
			}
			if actual := where[key]; len(actual) > 0 {
				res.WrongNet = append(res.WrongNet, WrongNet{Ref: ep.Ref, Pin: ep.Pin, Actual: actual})
				continue
			}
			res.MissingEndpoints = append(res.MissingEndpoints, ep)
		}
		res.OK = found && len(res.MissingEndpoints) == 0 && len(res.WrongNet) == 0
		out.Results[n.Name] = res
		out.OK = out.OK && res.OK
	}
	return out
}
