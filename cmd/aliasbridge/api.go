package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/CrimsonAS/aliasbridge/client"
)

func newAPICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "api [CLASS]",
		Short: "List the members of the host API or of one of its classes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, mod, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if len(args) == 0 {
				return writeMembers(cmd.OutOrStdout(), mod.Members(), mod.Attr)
			}
			class, err := mod.Class(args[0])
			if err != nil {
				return err
			}
			return writeMembers(cmd.OutOrStdout(), class.Members(), class.Attr)
		},
	}
}

func writeMembers(out io.Writer, names []string, attr func(string) (interface{}, error)) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, name := range names {
		if strings.HasPrefix(name, "__") {
			continue
		}
		v, err := attr(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", name, memberKind(v))
	}
	return w.Flush()
}

func memberKind(v interface{}) string {
	switch t := v.(type) {
	case *client.Class:
		return "class"
	case *client.Function:
		if t.Bound {
			return "method"
		}
		return "function"
	case *client.Property:
		return "property"
	case client.Enum:
		return "enum " + t.String()
	case *client.Module:
		return "module"
	}
	return fmt.Sprintf("constant %v", v)
}
