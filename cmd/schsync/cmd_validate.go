package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"schsync/internal/fault"
	"schsync/internal/ir"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Check a JSON or YAML description without touching a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _, err := ir.ReadFile(args[0])
		if err != nil {
			return describeFault(cmd.ErrOrStderr(), err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d entities, units %s\n", args[0], d.EntityCount(), d.Units)
		return err
	},
}

// describeFault prints the code and details of a fault and returns it.
func describeFault(w io.Writer, err error) error {
	var f *fault.Fault
	if !errors.As(err, &f) {
		return err
	}
	fmt.Fprintf(w, "%s: %s\n", f.Code, f.Message)
	if f.Details != nil {
		if data, merr := json.MarshalIndent(f.Details, "  ", "  "); merr == nil {
			fmt.Fprintf(w, "  %s\n", data)
		}
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
