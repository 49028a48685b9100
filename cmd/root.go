package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const VALIDATION_CLOCK = "validationClock"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "coronacheck-dcc",
		Short: "Read, verify and evaluate EU Digital Covid Certificates",

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServerCmd(),
		newDecodeCmd(),
		newVerifyCmd(),
		newEvaluateCmd(),
	)

	return rootCmd
}

func Execute() {
	err := newRootCmd().Execute()
	if err != nil {
		exitWithError(err)
	}
}

func readConfig() error {
	configPath := viper.GetString("config")
	if configPath == "" {
		return nil
	}

	dir, file := filepath.Dir(configPath), filepath.Base(configPath)
	viper.SetConfigName(strings.TrimSuffix(file, filepath.Ext(file)))
	viper.AddConfigPath(dir)

	err := viper.ReadInConfig()
	if err != nil {
		msg := fmt.Sprintf("Could not read or apply config file %s", configPath)
		return errors.WrapPrefix(err, msg, 0)
	}

	return nil
}

func bindConfig(cmd *cobra.Command) error {
	err := viper.BindPFlags(cmd.Flags())
	if err != nil {
		return err
	}

	return readConfig()
}

func setConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to configuration file (JSON, TOML, YAML or INI)")
}

func setExternalFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSlice("external", nil, "external rule values as key=value pairs, values are read as JSON when possible")
	flags.String("now", "", "validation clock in RFC 3339 format, defaults to the current time")
}

// configuredExternal returns the external values from flags or config file. The validation
// clock is only included when it is set explicitly.
func configuredExternal() (map[string]interface{}, error) {
	// A list of pairs rather than a map, as viper lowercases the keys of maps
	external := map[string]interface{}{}
	for _, pair := range viper.GetStringSlice("external") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, errors.Errorf("Could not parse external value %q, expected key=value", pair)
		}

		external[k] = externalValue(v)
	}

	now := viper.GetString("now")
	if now != "" {
		_, err := time.Parse(time.RFC3339, now)
		if err != nil {
			return nil, errors.WrapPrefix(err, "Could not parse validation clock", 0)
		}

		external[VALIDATION_CLOCK] = now
	}

	return external, nil
}

// externalValue reads strings that are JSON literals, so that numbers and booleans can be
// given on the command line
func externalValue(s string) interface{} {
	var decoded interface{}
	err := json.Unmarshal([]byte(s), &decoded)
	if err != nil {
		return s
	}

	return decoded
}

func exitWithError(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
