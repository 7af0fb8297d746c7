package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CrimsonAS/aliasbridge/hostapi"
	"github.com/CrimsonAS/aliasbridge/internal/demoapi"
	"github.com/CrimsonAS/aliasbridge/internal/version"
	"github.com/CrimsonAS/aliasbridge/server"
	"github.com/CrimsonAS/aliasbridge/transport"
)

// stdioConn connects to the parent process. Tests replace it.
var stdioConn = transport.NewStdConn

func newServeCmd(a *app) *cobra.Command {
	var stdio bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo host API until interrupted",
		Long:  "Serve the demo host API over websocket until interrupted. With --stdio the single client is the parent process, talking over stdin and stdout, and serving ends when it disconnects.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			codec, err := a.codec()
			if err != nil {
				return err
			}
			store, err := a.cache()
			if err != nil {
				return err
			}

			api, _ := demoapi.New(hostapi.Info{
				HostVersion:     version.Version,
				LanguageVersion: runtime.Version(),
			})
			srv := server.New(api,
				server.WithNamespace(a.v.GetString("server.namespace")),
				server.WithCodec(codec),
				server.WithCache(store))
			defer srv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if stdio {
				// stdout carries the stream
				if _, err := fmt.Fprintf(cmd.ErrOrStderr(), "serving %s on stdio (%s)\n", api.Name, codec.Name()); err != nil {
					return err
				}
				conn := stdioConn(codec)
				srv.Accept(conn)
				select {
				case <-conn.Done():
				case <-ctx.Done():
					conn.Close()
				}
				return nil
			}

			addr := a.v.GetString("server.addr")
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s (%s)\n", api.Name, addr, codec.Name()); err != nil {
				return err
			}
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve one client over stdin and stdout")
	return cmd
}
