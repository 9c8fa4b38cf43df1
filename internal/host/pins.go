package host

import "schsync/internal/fault"

// PinSelector picks pins of one component by number, then by name.
type PinSelector struct {
	Number string
	Name   string
}

// SelectPin resolves sel to exactly one pin. label names the endpoint in
// fault messages.
func SelectPin(pins []Pin, sel PinSelector, label string) (Pin, error) {
	selected, err := SelectPins(pins, sel, false, label)
	if err != nil {
		return Pin{}, err
	}
	return selected[0], nil
}

// SelectPins tries an exact number match, then an exact name match. With
// allowMany, several name matches are all returned instead of being ambiguous.
func SelectPins(pins []Pin, sel PinSelector, allowMany bool, label string) ([]Pin, error) {
	if sel.Number != "" {
		matches := filterPins(pins, func(p Pin) bool { return p.Number == sel.Number })
		switch {
		case len(matches) == 1:
			return matches, nil
		case len(matches) > 1:
			return nil, fault.Newf(fault.AmbiguousPin, "Multiple pins match %s.pinNumber=%s", label, sel.Number)
		}
	}
	if sel.Name != "" {
		matches := filterPins(pins, func(p Pin) bool { return p.Name == sel.Name })
		switch {
		case len(matches) == 1:
			return matches, nil
		case len(matches) > 1 && allowMany:
			return matches, nil
		case len(matches) > 1:
			return nil, fault.Newf(fault.AmbiguousPin, "Multiple pins match %s.pinName=%s", label, sel.Name)
		}
	}
	return nil, fault.Newf(fault.PinNotFound, "Pin not found for %s (provide pinNumber or pinName)", label)
}

func filterPins(pins []Pin, keep func(Pin) bool) []Pin {
	var out []Pin
	for _, p := range pins {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
