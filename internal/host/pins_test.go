package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schsync/internal/fault"
	"schsync/internal/ir"
)

var dualGate = []Pin{
	{Number: "1", Name: "A", X: 0, Y: 0},
	{Number: "2", Name: "B", X: 10, Y: 0},
	{Number: "3", Name: "GND", X: 20, Y: 0},
	{Number: "4", Name: "GND", X: 30, Y: 0},
	{Number: "5", Name: "5", X: 40, Y: 0},
}

func TestSelectPinByNumberFirst(t *testing.T) {
	p, err := SelectPin(dualGate, PinSelector{Number: "2", Name: "A"}, "from")
	require.NoError(t, err)
	assert.Equal(t, "B", p.Name)
}

func TestSelectPinFallsBackToName(t *testing.T) {
	p, err := SelectPin(dualGate, PinSelector{Number: "99", Name: "A"}, "from")
	require.NoError(t, err)
	assert.Equal(t, "1", p.Number)
}

func TestSelectPinAmbiguousName(t *testing.T) {
	_, err := SelectPin(dualGate, PinSelector{Name: "GND"}, "to")
	require.Error(t, err)
	assert.Equal(t, fault.AmbiguousPin, fault.CodeOf(err))
	assert.Contains(t, err.Error(), "to.pinName=GND")
}

func TestSelectPinsAllowMany(t *testing.T) {
	got, err := SelectPins(dualGate, PinSelector{Name: "GND"}, true, "point")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSelectPinNotFound(t *testing.T) {
	_, err := SelectPin(dualGate, PinSelector{Name: "gnd"}, "from")
	assert.Equal(t, fault.PinNotFound, fault.CodeOf(err))

	_, err = SelectPin(nil, PinSelector{Number: "1"}, "from")
	assert.Equal(t, fault.PinNotFound, fault.CodeOf(err))
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, ClassWire, ClassOf(ir.KindConnection))
	assert.Equal(t, ClassText, ClassOf(ir.KindText))
	assert.Equal(t, ClassComponent, ClassOf(ir.KindNetPort))
}

func TestTruncate(t *testing.T) {
	txt := Truncate("héllo", 2)
	assert.Equal(t, "hé", txt.Text)
	assert.True(t, txt.Truncated)
	assert.Equal(t, 5, txt.TotalChars)

	assert.False(t, Truncate("abc", 0).Truncated)
}
