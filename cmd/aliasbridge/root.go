package main

import "github.com/spf13/cobra"

func execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "aliasbridge",
		Short:         "Serve and call host APIs over a proxying bridge",
		Long:          "aliasbridge serves a host API module to remote clients and calls into it from the terminal: functions, classes and instances are proxied transparently over a websocket connection.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	a := wireApp()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default ./aliasbridge.toml or the user config dir)")
	flags.String("addr", "", "server address, host:port or ws:// url")
	flags.String("namespace", "", "namespace the API is served on")
	flags.String("codec", "", "wire codec: json or cbor")
	flags.IntP("verbosity", "v", 0, "log verbosity")
	for flag, key := range map[string]string{
		"addr":      "server.addr",
		"namespace": "server.namespace",
		"codec":     "wire.codec",
		"verbosity": "log.verbosity",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
				return err
			}
			return rootCmd
		}
	}
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return a.load()
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(a),
		newServeCmd(a),
		newAPICmd(a),
		newCallCmd(a),
		newInfoCmd(a),
		newRestartCmd(a),
	)

	return rootCmd
}
