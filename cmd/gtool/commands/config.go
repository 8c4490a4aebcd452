// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gtool/cmd/gtool/cli"
	"github.com/bureau-foundation/gtool/lib/fleetfile"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

func configCommand(env Env) *cli.Command {
	return &cli.Command{
		Name:    "config",
		Summary: "Show, add, update, or delete worker configs",
		Description: `Manage the worker specs the controller keeps in its fleet file.
Changes to a running worker's spec apply when it is next started.`,
		Subcommands: []*cli.Command{
			configGetCommand(env),
			configSetCommand(env),
			configDeleteCommand(env),
		},
	}
}

func configGetCommand(env Env) *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:    "get",
		Summary: "Print a worker's spec as JSON",
		Usage:   "gtool config get <name> [flags]",
		Flags:   func() *pflag.FlagSet { return params.newFlagSet("get") },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args, "name"); err != nil {
				return err
			}
			var event fleet.Event
			if err := params.callForWorker(ctx, args[0], fleet.ActionConfigGet, map[string]any{"name": args[0]}, &event); err != nil {
				return err
			}
			if event.Config == nil {
				return fmt.Errorf("controller returned no config for %q", args[0])
			}
			// A spec is always printed as JSON; --json is accepted for symmetry.
			return cli.WriteJSON(env.Stdout, event.Config)
		},
	}
}

// specFlags are the spec fields settable from the command line. Only
// flags the user actually passed override the file.
type specFlags struct {
	name           string
	username       string
	host           string
	port           int
	version        string
	auth           string
	behavior       string
	autoReconnect  bool
	reconnectDelay int
	params         []string
	autoEat        bool
	foods          []string
	proxy          string
	noProxy        bool

	parsedParams map[string]any
	parsedProxy  *fleet.Proxy
}

func (flags *specFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&flags.name, "name", "", "worker name")
	flagSet.StringVar(&flags.username, "username", "", "in-game username")
	flagSet.StringVar(&flags.host, "host", "", "game server host")
	flagSet.IntVar(&flags.port, "port", 0, "game server port (default 25565)")
	flagSet.StringVar(&flags.version, "game-version", "", "game protocol version")
	flagSet.StringVar(&flags.auth, "auth", "", "authentication mode (default offline)")
	flagSet.StringVar(&flags.behavior, "behavior", "", "behavior to load after spawning (default idle)")
	flagSet.BoolVar(&flags.autoReconnect, "auto-reconnect", false, "restart the worker after it exits with an error")
	flagSet.IntVar(&flags.reconnectDelay, "reconnect-delay", 0, "restart backoff in seconds (default 30)")
	flagSet.StringArrayVar(&flags.params, "param", nil, "behavior parameter as key=value (repeatable)")
	flagSet.BoolVar(&flags.autoEat, "auto-eat", false, "eat when hungry while idle")
	flagSet.StringSliceVar(&flags.foods, "food", nil, "foods to eat, in order of preference")
	flagSet.StringVar(&flags.proxy, "proxy", "", "SOCKS5 proxy as host:port")
	flagSet.BoolVar(&flags.noProxy, "no-proxy", false, "connect directly, clearing any proxy")
}

// parse validates the flag values that need more than pflag's own
// parsing. It runs before anything is fetched from the controller.
func (flags *specFlags) parse(flagSet *pflag.FlagSet) error {
	if flagSet.Changed("param") {
		params, err := parseAssignments(flags.params)
		if err != nil {
			return err
		}
		flags.parsedParams = params
	}
	if flagSet.Changed("proxy") {
		host, portText, err := net.SplitHostPort(flags.proxy)
		if err != nil {
			return cli.Usagef("--proxy: %v", err)
		}
		port, err := strconv.Atoi(portText)
		if err != nil {
			return cli.Usagef("--proxy: port %q is not a number", portText)
		}
		flags.parsedProxy = &fleet.Proxy{Host: host, Port: port}
	}
	return nil
}

// apply overlays the flags the user set onto spec.
func (flags *specFlags) apply(flagSet *pflag.FlagSet, spec *fleet.WorkerSpec) {
	changed := flagSet.Changed
	if changed("name") {
		spec.Name = flags.name
	}
	if changed("username") {
		spec.Username = flags.username
	}
	if changed("host") {
		spec.Host = flags.host
	}
	if changed("port") {
		spec.Port = flags.port
	}
	if changed("game-version") {
		spec.Version = flags.version
	}
	if changed("auth") {
		spec.Auth = flags.auth
	}
	if changed("behavior") {
		spec.Behavior = flags.behavior
	}
	if changed("auto-reconnect") {
		spec.AutoReconnect = flags.autoReconnect
	}
	if changed("reconnect-delay") {
		spec.ReconnectDelay = flags.reconnectDelay
	}
	if len(flags.parsedParams) > 0 {
		if spec.Params == nil {
			spec.Params = make(map[string]any, len(flags.parsedParams))
		}
		maps.Copy(spec.Params, flags.parsedParams)
	}
	if changed("auto-eat") {
		spec.Automation.AutoEat = flags.autoEat
	}
	if changed("food") {
		spec.Automation.FoodToEat = flags.foods
	}
	if flags.noProxy {
		spec.Proxy = nil
	}
	if flags.parsedProxy != nil {
		spec.Proxy = flags.parsedProxy
	}
}

func configSetCommand(env Env) *cli.Command {
	var (
		params connectionParams
		flags  specFlags
		file   string
	)
	newFlagSet := func() *pflag.FlagSet {
		flagSet := params.newFlagSet("set")
		flagSet.StringVarP(&file, "file", "f", "", "read the spec from a JSON file (comments allowed), - for stdin")
		flags.register(flagSet)
		return flagSet
	}
	var parsed *pflag.FlagSet
	return &cli.Command{
		Name:    "set",
		Summary: "Add a worker or replace its spec",
		Description: `Create or replace a worker spec. The spec comes from --file, from
flags, or both: flags override fields read from the file. Without
--file, an existing spec is fetched first so flags update it in place.`,
		Usage: "gtool config set [--file spec.json] [flags]",
		Examples: []cli.Example{
			{
				Description: "Add a worker from flags",
				Command:     "gtool config set --name miner --username Miner --host mc.example.net --behavior task_runner",
			},
			{
				Description: "Turn on auto-eat for an existing worker",
				Command:     "gtool config set --name miner --auto-eat --food bread,apple",
			},
			{
				Description: "Load a spec file",
				Command:     "gtool config set -f miner.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			parsed = newFlagSet()
			return parsed
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args); err != nil {
				return err
			}
			if err := flags.parse(parsed); err != nil {
				return err
			}
			spec, err := baseSpec(ctx, env, &params, file, flags.name)
			if err != nil {
				return err
			}
			flags.apply(parsed, &spec)
			if err := spec.Validate(); err != nil {
				return err
			}

			var response fleet.UpsertResponse
			if err := params.call(ctx, fleet.ActionConfigUpsert, map[string]any{"spec": spec}, &response); err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.Stdout, response); done {
				return err
			}
			_, err = fmt.Fprintln(env.Stdout, response.Message)
			return err
		},
	}
}

// baseSpec is the spec flags are applied to: the file when one is
// given, else the controller's current spec for name, else empty.
func baseSpec(ctx context.Context, env Env, params *connectionParams, file, name string) (fleet.WorkerSpec, error) {
	if file != "" {
		var data []byte
		var err error
		if file == "-" {
			data, err = io.ReadAll(env.Stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return fleet.WorkerSpec{}, fmt.Errorf("reading spec: %w", err)
		}
		return fleetfile.ParseSpec(data)
	}
	if name == "" {
		return fleet.WorkerSpec{}, nil
	}

	var event fleet.Event
	err := params.call(ctx, fleet.ActionConfigGet, map[string]any{"name": name}, &event)
	if err != nil {
		if isNotFound(err) {
			return fleet.WorkerSpec{Name: name}, nil
		}
		return fleet.WorkerSpec{}, err
	}
	if event.Config == nil {
		return fleet.WorkerSpec{Name: name}, nil
	}
	return *event.Config, nil
}

func configDeleteCommand(env Env) *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:        "delete",
		Summary:     "Stop a worker and remove its spec and task queue",
		Usage:       "gtool config delete <name> [flags]",
		Description: `Remove a worker. A running worker is stopped first; its queued tasks are dropped.`,
		Flags:       func() *pflag.FlagSet { return params.newFlagSet("delete") },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args, "name"); err != nil {
				return err
			}
			var response fleet.MessageResponse
			if err := params.callForWorker(ctx, args[0], fleet.ActionConfigDelete, map[string]any{"name": args[0]}, &response); err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.Stdout, response); done {
				return err
			}
			_, err := fmt.Fprintln(env.Stdout, response.Message)
			return err
		},
	}
}
