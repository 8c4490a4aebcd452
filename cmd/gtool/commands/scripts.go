// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gtool/cmd/gtool/cli"
	"github.com/bureau-foundation/gtool/lib/dispatch"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

func scriptsCommand(env Env) *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:    "scripts",
		Summary: "List the behaviors and task scripts workers can run",
		Flags:   func() *pflag.FlagSet { return params.newFlagSet("scripts") },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args); err != nil {
				return err
			}
			var catalog dispatch.Catalog
			if err := params.call(ctx, fleet.ActionScripts, nil, &catalog); err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.Stdout, catalog); done {
				return err
			}
			styles := cli.NewStyles(env.Stdout)
			for _, section := range []struct {
				title string
				names []string
			}{
				{"Behaviors", catalog.Behaviors},
				{"Tasks", catalog.Tasks},
			} {
				fmt.Fprintln(env.Stdout, styles.Header.Render(section.title+":"))
				if len(section.names) == 0 {
					fmt.Fprintln(env.Stdout, "  (none)")
					continue
				}
				fmt.Fprintln(env.Stdout, "  "+strings.Join(section.names, "\n  "))
			}
			return nil
		},
	}
}
