package cmd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/minvws/nl-covid19-coronacheck-dcc/common"
	"github.com/minvws/nl-covid19-coronacheck-dcc/dcc"
	"github.com/minvws/nl-covid19-coronacheck-dcc/rule"
	"github.com/minvws/nl-covid19-coronacheck-dcc/verifier"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newDecodeCmd() *cobra.Command {
	decodeCmd := &cobra.Command{
		Use:   "decode [credential | image path]",
		Short: "Decode a credential and print its contents as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDecode,
	}

	setConfigFlag(decodeCmd)
	setCredentialFlags(decodeCmd)

	return decodeCmd
}

func newVerifyCmd() *cobra.Command {
	verifyCmd := &cobra.Command{
		Use:   "verify [credential | image path]",
		Short: "Verify the signature of a credential against a trust keys file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runVerify,
	}

	setConfigFlag(verifyCmd)
	setCredentialFlags(verifyCmd)
	verifyCmd.Flags().String("trust-keys-path", "./trust_keys.json", "path to trust keys JSON file")

	return verifyCmd
}

func newEvaluateCmd() *cobra.Command {
	evaluateCmd := &cobra.Command{
		Use:   "evaluate [credential | image path]",
		Short: "Evaluate business rules against a credential",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEvaluate,
	}

	setConfigFlag(evaluateCmd)
	setCredentialFlags(evaluateCmd)
	evaluateCmd.Flags().String("rules-path", "./rules", "path to a rule file or a directory of rule files")
	setExternalFlags(evaluateCmd)

	return evaluateCmd
}

func runDecode(cmd *cobra.Command, args []string) error {
	err := bindConfig(cmd)
	if err != nil {
		return err
	}

	cert, err := readCertificate(cmd, args)
	if err != nil {
		return err
	}

	return printJSON(cmd, &decodedCredential{
		KeyID:    base64.StdEncoding.EncodeToString(cert.KeyID()),
		Metadata: cert.Metadata(),
		DCC:      cert.Claims(),
	})
}

func runVerify(cmd *cobra.Command, args []string) error {
	err := bindConfig(cmd)
	if err != nil {
		return err
	}

	cert, err := readCertificate(cmd, args)
	if err != nil {
		return err
	}

	trustKeys, err := readTrustKeys()
	if err != nil {
		return err
	}

	res := cert.Explain(context.Background(), trustKeys)
	if !res.Valid {
		return errors.WrapPrefix(res.Reason, "Signature is not valid", 0)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Signature is valid, signed with key %s\n", base64.StdEncoding.EncodeToString(res.KID))
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	err := bindConfig(cmd)
	if err != nil {
		return err
	}

	cert, err := readCertificate(cmd, args)
	if err != nil {
		return err
	}

	external, err := configuredExternal()
	if err != nil {
		return err
	}

	if _, ok := external[VALIDATION_CLOCK]; !ok {
		external[VALIDATION_CLOCK] = time.Now().UTC().Format(time.RFC3339)
	}

	rules, err := rule.LoadPath(viper.GetString("rules-path"), external)
	if err != nil {
		return err
	}

	outcomes, err := rule.EvaluateAll(context.Background(), rules, cert, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, outcome := range outcomes {
		description, _ := outcome.Rule.DefaultDescription()

		switch {
		case outcome.Err != nil:
			fmt.Fprintf(out, "ERROR %s: %s\n", outcome.Rule.Identifier(), outcome.Err.Error())
		case outcome.Passed:
			fmt.Fprintf(out, "PASS  %s: %s\n", outcome.Rule.Identifier(), description)
		default:
			fmt.Fprintf(out, "FAIL  %s: %s (%s)\n", outcome.Rule.Identifier(), description, outcome.Value)
		}
	}

	if !rule.AllPassed(outcomes) {
		return errors.Errorf("Not all of the %d rules passed", len(outcomes))
	}

	return nil
}

type decodedCredential struct {
	KeyID string `json:"kid"`
	common.Metadata
	DCC map[string]interface{} `json:"dcc"`
}

func setCredentialFlags(cmd *cobra.Command) {
	cmd.Flags().String("image", "", "read the credential from a QR code in a PNG or JPEG image")
}

// readCertificate reads the credential from the image flag, the first argument (a
// credential or an image path) or stdin, in that order
func readCertificate(cmd *cobra.Command, args []string) (*dcc.Certificate, error) {
	imagePath := viper.GetString("image")
	if imagePath != "" {
		return readImage(imagePath)
	}

	if len(args) > 0 {
		raw := strings.TrimSpace(args[0])

		// An argument that is not a credential may name a QR code image
		if !common.HasEUPrefix([]byte(raw)) {
			if _, err := os.Stat(raw); err == nil {
				return readImage(raw)
			}
		}

		return dcc.FromRaw(raw)
	}

	rawBytes, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not read credential from stdin", 0)
	}

	return dcc.FromRaw(strings.TrimSpace(string(rawBytes)))
}

func readImage(path string) (*dcc.Certificate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not open image", 0)
	}
	defer f.Close()

	return dcc.FromImage(f)
}

func readTrustKeys() (verifier.TrustKeys, error) {
	trustKeysJson, err := os.ReadFile(viper.GetString("trust-keys-path"))
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not read trust keys file", 0)
	}

	return verifier.ParseTrustKeys(trustKeysJson)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")

	err := encoder.Encode(v)
	if err != nil {
		return errors.WrapPrefix(err, "Could not JSON marshal output", 0)
	}

	return nil
}
