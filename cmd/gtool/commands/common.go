// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gtool/cmd/gtool/cli"
	"github.com/bureau-foundation/gtool/lib/fleetui"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
	"github.com/bureau-foundation/gtool/lib/service"
)

// maxSuggestions bounds the "did you mean" list.
const maxSuggestions = 3

// connectionParams are the flags every controller command takes.
type connectionParams struct {
	cli.Connection
	cli.JSONOutput
}

// newFlagSet registers the connection flags on a fresh flag set.
func (params *connectionParams) newFlagSet(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	params.Connection.AddFlags(flagSet)
	params.JSONOutput.AddFlags(flagSet)
	return flagSet
}

// call performs one action, adding a hint when the controller is not
// reachable.
func (params *connectionParams) call(ctx context.Context, action string, fields map[string]any, result any) error {
	ctx, cancel := cli.CallContext(ctx)
	defer cancel()
	slog.Debug("calling controller", "action", action, "socket", params.SocketPath)
	err := params.Client().Call(ctx, action, fields, result)
	var serviceError *service.ServiceError
	if err != nil && !errors.As(err, &serviceError) {
		return cli.DescribeDialError(err)
	}
	return err
}

// callForWorker is call for actions naming one worker. When the
// controller does not know the name, close matches are appended.
func (params *connectionParams) callForWorker(ctx context.Context, name, action string, fields map[string]any, result any) error {
	err := params.call(ctx, action, fields, result)
	if !isNotFound(err) {
		return err
	}
	var status fleet.StatusResponse
	if params.call(ctx, fleet.ActionStatus, nil, &status) != nil {
		return err
	}
	names := make([]string, 0, len(status.Workers))
	for _, worker := range status.Workers {
		names = append(names, worker.Name)
	}
	return withSuggestions(err, name, names)
}

// withSuggestions appends fuzzy matches for name to err.
func withSuggestions(err error, name string, names []string) error {
	suggestions := fleetui.Suggest(name, names, maxSuggestions)
	if len(suggestions) == 0 {
		return err
	}
	quoted := make([]string, len(suggestions))
	for i, suggestion := range suggestions {
		quoted[i] = fmt.Sprintf("%q", suggestion)
	}
	return fmt.Errorf("%w (did you mean %s?)", err, strings.Join(quoted, " or "))
}

// isNotFound reports whether err is the controller rejecting an
// unknown worker name. The sentinel does not survive the socket, so
// the message is matched.
func isNotFound(err error) bool {
	var serviceError *service.ServiceError
	return errors.As(err, &serviceError) && strings.Contains(serviceError.Message, fleet.ErrNotFound.Error())
}

// parseAssignments turns key=value arguments into a parameter map.
// Values that parse as JSON keep their type (6, true, ["a"]); anything
// else is a string.
func parseAssignments(assignments []string) (map[string]any, error) {
	params := make(map[string]any, len(assignments))
	for _, assignment := range assignments {
		key, text, found := strings.Cut(assignment, "=")
		if !found || key == "" {
			return nil, cli.Usagef("parameter %q is not key=value", assignment)
		}
		var value any
		if err := json.Unmarshal([]byte(text), &value); err != nil {
			value = text
		}
		params[key] = value
	}
	return params, nil
}
