package cmd

import (
	"github.com/minvws/nl-covid19-coronacheck-dcc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServerCmd() *cobra.Command {
	serverCmd := &cobra.Command{
		Use:   "verification-server",
		Short: "Serve signature verification and rule evaluation over HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			config, err := configureServer(cmd)
			if err != nil {
				exitWithError(err)
			}

			err = server.Run(config)
			if err != nil {
				exitWithError(err)
			}
		},
	}

	setServerFlags(serverCmd)
	return serverCmd
}

func setServerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.SortFlags = false

	setConfigFlag(cmd)
	flags.String("listen-address", "localhost", "address at which to listen")
	flags.String("listen-port", "4003", "port at which to listen")

	flags.String("trust-keys-path", "./trust_keys.json", "path to trust keys JSON file")
	flags.String("rules-path", "", "path to a rule file or a directory of rule files")
	setExternalFlags(cmd)
}

func configureServer(cmd *cobra.Command) (*server.Configuration, error) {
	err := bindConfig(cmd)
	if err != nil {
		return nil, err
	}

	external, err := configuredExternal()
	if err != nil {
		return nil, err
	}

	config := &server.Configuration{
		ListenAddress: viper.GetString("listen-address"),
		ListenPort:    viper.GetString("listen-port"),

		TrustKeysPath: viper.GetString("trust-keys-path"),
		RulesPath:     viper.GetString("rules-path"),
		External:      external,
	}

	return config, nil
}
