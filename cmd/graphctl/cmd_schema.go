package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"entitygraph/pkg/schema"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Validate and fingerprint YAML schema documents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <schema.yaml>",
		Short: "Report every problem in a schema document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := decodeSchemaFile(args[0])
			if err != nil {
				return err
			}
			problems := schema.Problems(doc)
			for _, p := range problems {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], p)
			}
			if len(problems) > 0 {
				return problemsError{count: len(problems)}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d kinds)\n", args[0], len(doc.Kinds))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "fingerprint <schema.yaml>",
		Short: "Print the schema fingerprint recorded in dumps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadSchemaFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reg.Fingerprint())
			return nil
		},
	})
	return cmd
}

func decodeSchemaFile(path string) (schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return schema.Document{}, err
	}
	defer f.Close()
	return schema.DecodeDocument(f)
}

func loadSchemaFile(path string) (*schema.Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reg, err := schema.LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}
