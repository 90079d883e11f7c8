package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/leasing-assistant/internal/application"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <properties.yaml>",
		Short: "Upsert properties from a YAML list of {slug, address}",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}
}

// readPropertyFile parses a YAML sequence of properties.
func readPropertyFile(path string) ([]application.PropertyInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var inputs []application.PropertyInput
	if err := yaml.Unmarshal(raw, &inputs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%s lists no properties", path)
	}
	return inputs, nil
}

func runSeed(ctx context.Context, opts *rootOptions, path string, out io.Writer) error {
	inputs, err := readPropertyFile(path)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	for i, input := range inputs {
		property, err := a.properties.UpsertProperty(ctx, input)
		if err != nil {
			return fmt.Errorf("property %d (%q): %w", i+1, input.Slug, err)
		}
		fmt.Fprintf(out, "%d\t%s\t%s\n", property.ID, property.Slug, property.Address)
	}
	return nil
}
