package cmd

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/minvws/nl-covid19-coronacheck-dcc/dcctest"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veraison/go-cose"
)

const rulesPath = "../rule/testdata/rules"

func issue(t *testing.T) (*dcctest.Signer, string) {
	signer, err := dcctest.NewSigner(cose.AlgorithmES256)
	require.NoError(t, err)

	qr, err := signer.IssueQREncoded(dcctest.DefaultSpecification(dcctest.VaccinationDCC()))
	require.NoError(t, err)

	return signer, string(qr)
}

func writeTrustKeys(t *testing.T, signer *dcctest.Signer) string {
	trustKeysJson, err := json.Marshal(signer.TrustKeys())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "trust_keys.json")
	require.NoError(t, os.WriteFile(path, trustKeysJson, 0o644))

	return path
}

func execute(stdin string, args ...string) (string, error) {
	viper.Reset()

	rootCmd := newRootCmd()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestDecode(t *testing.T) {
	signer, qr := issue(t)

	out, err := execute(qr+"\n", "decode")
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))

	assert.Equal(t, base64.StdEncoding.EncodeToString(signer.KID()), decoded["kid"])
	assert.Equal(t, "NL", decoded["issuer"])
	assert.Equal(t, "1.3.0", decoded["dcc"].(map[string]interface{})["ver"])

	_, err = execute("", "decode", "HC1:not-base45")
	assert.Error(t, err)
}

func TestDecodeImage(t *testing.T) {
	signer, qr := issue(t)

	matrix, err := qrcode.NewQRCodeWriter().Encode(qr, gozxing.BarcodeFormat_QR_CODE, 800, 800, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, matrix))

	imagePath := filepath.Join(t.TempDir(), "qr.png")
	require.NoError(t, os.WriteFile(imagePath, buf.Bytes(), 0o644))

	for _, args := range [][]string{{"decode", imagePath}, {"decode", "--image", imagePath}} {
		out, err := execute("", args...)
		require.NoError(t, err, args)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, base64.StdEncoding.EncodeToString(signer.KID()), decoded["kid"])
	}

	// Neither a credential nor an existing file
	_, err = execute("", "decode", filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	signer, qr := issue(t)
	other, _ := issue(t)

	out, err := execute("", "verify", "--trust-keys-path", writeTrustKeys(t, signer), qr)
	require.NoError(t, err)
	assert.Contains(t, out, "Signature is valid")

	_, err = execute("", "verify", "--trust-keys-path", writeTrustKeys(t, other), qr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Signature is not valid")
}

func TestEvaluate(t *testing.T) {
	_, qr := issue(t)

	out, err := execute("", "evaluate",
		"--rules-path", rulesPath,
		"--external", "countryCode=NL",
		"--now", "2021-07-01T00:00:00Z",
		qr,
	)
	require.NoError(t, err, out)
	assert.Equal(t, 3, strings.Count(out, "PASS"), out)

	out, err = execute("", "evaluate",
		"--rules-path", rulesPath,
		"--external", "countryCode=DE",
		"--now", "2021-06-02T00:00:00Z",
		qr,
	)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL  GR-NL-0001")
	assert.Contains(t, out, "PASS  VR-NL-0000")
	assert.Contains(t, out, "FAIL  VR-NL-0001")

	_, err = execute("", "evaluate", "--rules-path", rulesPath, "--now", "yesterday", qr)
	assert.Error(t, err)

	_, err = execute("", "evaluate", "--rules-path", rulesPath, "--external", "countryCode", qr)
	assert.Error(t, err)
}

func TestEvaluateWithConfigFile(t *testing.T) {
	_, qr := issue(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	config := "rules-path: " + rulesPath + "\nnow: \"2021-07-01T00:00:00Z\"\nexternal:\n  - countryCode=NL\n"
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))

	out, err := execute("", "evaluate", "--config", configPath, qr)
	require.NoError(t, err, out)
	assert.Equal(t, 3, strings.Count(out, "PASS"), out)
}

func TestExternalValue(t *testing.T) {
	assert.Equal(t, "NL", externalValue("NL"))
	assert.Equal(t, float64(18), externalValue("18"))
	assert.Equal(t, true, externalValue("true"))
	assert.Equal(t, []interface{}{"NL", "DE"}, externalValue(`["NL","DE"]`))
}
