package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"schsync/internal/netlist"
)

var netlistExpect string

var errVerificationFailed = errors.New("netlist verification failed")

var netlistCmd = &cobra.Command{
	Use:   "netlist",
	Short: "Parse and verify exported netlist files",
}

var netlistParseCmd = &cobra.Command{
	Use:   "parse FILE",
	Short: "Print the nets found in a netlist file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		parsed := netlist.Parse(string(text))
		if err := printJSON(cmd.OutOrStdout(), parsed); err != nil {
			return err
		}
		if !parsed.OK {
			return fmt.Errorf("%s: unrecognized netlist format", args[0])
		}
		return nil
	},
}

var netlistVerifyCmd = &cobra.Command{
	Use:   "verify FILE",
	Short: "Check expected pin memberships against a netlist file",
	Long: `Reads the expected nets from --expect, a JSON or YAML list of
{name, endpoints: [{ref, pin}]}, and reports missing endpoints and
endpoints found on another net. Exits non-zero when any net fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runNetlistVerify,
}

func init() {
	netlistVerifyCmd.Flags().StringVar(&netlistExpect, "expect", "", "file with the expected nets")
	_ = netlistVerifyCmd.MarkFlagRequired("expect")
	netlistCmd.AddCommand(netlistParseCmd, netlistVerifyCmd)
}

func runNetlistVerify(cmd *cobra.Command, args []string) error {
	text, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	expected, err := readExpectedNets(netlistExpect)
	if err != nil {
		return err
	}
	if err := netlist.ValidateRequest(netlist.Request{Nets: expected}); err != nil {
		return describeFault(cmd.ErrOrStderr(), err)
	}

	v := netlist.Verify(netlist.Parse(string(text)), expected)
	if err := printJSON(cmd.OutOrStdout(), v); err != nil {
		return err
	}
	if !v.OK {
		return errVerificationFailed
	}
	return nil
}

// readExpectedNets accepts a bare list or an object with a "nets" key.
func readExpectedNets(path string) ([]netlist.ExpectedNet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// YAML is a superset of JSON, so one decoder covers both.
	var nets []netlist.ExpectedNet
	if err := yaml.Unmarshal(data, &nets); err == nil {
		return nets, nil
	}
	var wrapped struct {
		Nets []netlist.ExpectedNet `yaml:"nets"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if len(wrapped.Nets) == 0 && strings.TrimSpace(string(data)) != "" {
		return nil, fmt.Errorf("%s: no nets", filepath.Base(path))
	}
	return wrapped.Nets, nil
}
