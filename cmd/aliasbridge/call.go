package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CrimsonAS/aliasbridge/client"
	"github.com/CrimsonAS/aliasbridge/wire"
)

func newCallCmd(a *app) *cobra.Command {
	var kw []string
	cmd := &cobra.Command{
		Use:   "call FUNCTION [ARG...]",
		Short: "Call a function of the host API and print the result",
		Long:  "Call a module function, or construct a class, and print the result as JSON. Arguments are parsed as JSON and passed as strings when they are not valid JSON.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make([]interface{}, 0, len(args)-1)
			for _, arg := range args[1:] {
				params = append(params, parseArg(arg))
			}
			kwargs := make(map[string]interface{}, len(kw))
			for _, pair := range kw {
				name, value, ok := strings.Cut(pair, "=")
				if !ok || name == "" {
					return fmt.Errorf("keyword argument %q is not name=value", pair)
				}
				kwargs[name] = parseArg(value)
			}

			c, mod, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := mod.CallKw(cmd.Context(), args[0], params, kwargs)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringArrayVarP(&kw, "kw", "k", nil, "keyword argument as name=value, repeatable")
	return cmd
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the host API and connection description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			api, err := c.APIInfo(cmd.Context())
			if err != nil {
				return err
			}
			conn, err := c.ServerInfo(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"api":        api,
				"connection": conn,
			})
		},
	}
}

func newRestartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Ask the host to drop every object handed out to this client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Restart(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "restarted")
			return err
		},
	}
}

func parseArg(arg string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(printable(v))
}

// printable replaces proxies with their printed form.
func printable(v interface{}) interface{} {
	switch t := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = printable(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = printable(item)
		}
		return out
	case wire.Set:
		return printable(t.Items())
	case *client.Instance, *client.Class, *client.Function, client.Enum:
		return fmt.Sprint(t)
	}
	return v
}
