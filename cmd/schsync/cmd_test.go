package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schsync/internal/ir"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

const planDescription = `
version: 1
components:
  - id: U1
    deviceUuid: mcu
    x: 0
    y: 0
  - id: R1
    deviceUuid: res
    x: 100
    y: 0
connections:
  - id: c1
    from: {componentId: U1, pinName: VCC}
    to: {componentId: R1, pinNumber: "1"}
    net: VCC
  - id: c2
    from: {componentId: U1, pinNumber: "4"}
    to: {componentId: R1, pinNumber: "2"}
`

func TestPlanDevicesCoverReferencedPins(t *testing.T) {
	d, err := ir.ParseYAML([]byte(planDescription))
	require.NoError(t, err)
	devices := planDevices(d)
	require.Len(t, devices, 2)
	assert.Equal(t, "mcu", devices[0].UUID)
	assert.Equal(t, "res", devices[1].UUID)

	mcu := devices[0]
	require.Len(t, mcu.Pins, 2)
	assert.Equal(t, "VCC", mcu.Pins[0].Name)
	assert.Equal(t, "P1", mcu.Pins[0].Number)
	assert.Equal(t, "4", mcu.Pins[1].Number)
	assert.EqualValues(t, 10, mcu.Pins[1].DX, "pins are spaced 10 apart")
}

func TestPlanPrintsApplyResult(t *testing.T) {
	path := writeFile(t, "board.yaml", planDescription)
	out, err := run(t, "plan", path)
	require.NoError(t, err)
	var res struct {
		OK      bool                                  `json:"ok"`
		Applied map[string]map[string]map[string]any `json:"applied"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.True(t, res.OK, out)
	assert.Equal(t, "created", res.Applied["connections"]["c2"]["action"])
}

func TestValidateReportsFault(t *testing.T) {
	path := writeFile(t, "bad.json", `{"version":1,"components":[{"id":"R1"}]}`)
	_, err := run(t, "validate", path)
	assert.Error(t, err)

	path = writeFile(t, "good.json", `{"version":1,"components":[{"id":"R1","deviceUuid":"res","x":0,"y":0}]}`)
	out, err := run(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok, 1 entities, units sch")
}

const padsNetlist = `*PADS-PCB*
*NET*
*SIGNAL* GND
U1.4 R1.2
*SIGNAL* VCC
U1.1 R1.1
*END*
`

func TestNetlistVerify(t *testing.T) {
	netlistPath := writeFile(t, "board.net", padsNetlist)
	expect := writeFile(t, "expect.yaml", "nets:\n  - name: gnd\n    endpoints:\n      - {ref: U1, pin: \"4\"}\n      - {ref: R1, pin: \"2\"}\n")
	_, err := run(t, "netlist", "verify", netlistPath, "--expect", expect)
	require.NoError(t, err)

	expect = writeFile(t, "expect.json", `[{"name":"VCC","endpoints":[{"ref":"R1","pin":"2"}]}]`)
	out, err := run(t, "netlist", "verify", netlistPath, "--expect", expect)
	assert.ErrorIs(t, err, errVerificationFailed)
	assert.Contains(t, out, `"actual"`, "wrong-net report")
}

func TestNetlistParseUnknownFormat(t *testing.T) {
	path := writeFile(t, "junk.txt", "nothing to see")
	out, err := run(t, "netlist", "parse", path)
	assert.Error(t, err, "unknown format")
	assert.Contains(t, out, `"formatGuess": "unknown"`)
}
