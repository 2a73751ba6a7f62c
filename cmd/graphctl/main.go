// Command graphctl inspects entity graph schemas, snapshot dumps and the
// snapshot archive.
//
//	graphctl schema validate <schema.yaml>
//	graphctl schema fingerprint <schema.yaml>
//	graphctl dump inspect --schema <schema.yaml> [--codec json|msgpack] <dump>
//	graphctl archive list --lineage main
//	graphctl archive prune --lineage main --keep 10
//
// Archive commands read the blob settings from ENTITYGRAPH_* variables.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitOK       = 0
	exitProblems = 1
	exitError    = 2
)

var (
	exitFn              = os.Exit
	errWriter io.Writer = os.Stderr
)

// problemsError reports findings that were printed already.
type problemsError struct{ count int }

func (e problemsError) Error() string { return fmt.Sprintf("%d problem(s) found", e.count) }

func main() {
	exitFn(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errWriter)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var problems problemsError
	if errors.As(err, &problems) {
		fmt.Fprintln(errWriter, err)
		return exitProblems
	}
	fmt.Fprintf(errWriter, "graphctl: %v\n", err)
	return exitError
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "graphctl",
		Short:         "Inspect entity graph schemas, dumps and archives",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSchemaCmd(), newDumpCmd(), newArchiveCmd())
	return root
}
