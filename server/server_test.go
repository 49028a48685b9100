package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minvws/nl-covid19-coronacheck-dcc/dcctest"
	"github.com/minvws/nl-covid19-coronacheck-dcc/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veraison/go-cose"
)

type fixture struct {
	signer *dcctest.Signer
	qr     string
	server *server
}

func newFixture(t *testing.T, external map[string]interface{}) *fixture {
	signer, err := dcctest.NewSigner(cose.AlgorithmES256)
	require.NoError(t, err)

	qr, err := signer.IssueQREncoded(dcctest.DefaultSpecification(dcctest.VaccinationDCC()))
	require.NoError(t, err)

	rules, err := rule.LoadDir("../rule/testdata/rules", external)
	require.NoError(t, err)

	s := newServer(&Configuration{External: external}, signer.TrustKeys(), rules)
	s.now = func() time.Time {
		return time.Date(2021, 7, 1, 12, 0, 0, 0, time.UTC)
	}

	return &fixture{signer: signer, qr: string(qr), server: s}
}

func (f *fixture) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	bodyJson, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(bodyJson))
	rec := httptest.NewRecorder()
	f.server.buildHandler().ServeHTTP(rec, req)

	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	return response
}

func TestVerifySignature(t *testing.T) {
	f := newFixture(t, nil)

	response := decodeResponse(t, f.post(t, "/verify_signature", map[string]string{"credential": f.qr + "\n"}))
	assert.Equal(t, true, response["validSignature"])
	assert.NotContains(t, response, "verificationError")

	hcert := response["healthCertificate"].(map[string]interface{})
	assert.Equal(t, "NL", hcert["issuer"])
	assert.NotZero(t, hcert["issuedAt"])
	assert.Equal(t, "1970-01-01", hcert["dcc"].(map[string]interface{})["dob"])

	other := newFixture(t, nil)
	response = decodeResponse(t, other.post(t, "/verify_signature", map[string]string{"credential": f.qr}))
	assert.Equal(t, false, response["validSignature"])
	assert.Contains(t, response["verificationError"], "key could not be resolved")
	assert.Contains(t, response["verificationError"], "unknown key identifier")
	assert.NotContains(t, response, "healthCertificate")

	response = decodeResponse(t, f.post(t, "/verify_signature", map[string]string{"credential": "HC1:garbage"}))
	assert.Equal(t, false, response["validSignature"])
	assert.Contains(t, response["verificationError"], "malformed transport encoding")
}

func TestEvaluateRules(t *testing.T) {
	f := newFixture(t, map[string]interface{}{"countryCode": "NL"})

	response := decodeResponse(t, f.post(t, "/evaluate_rules", map[string]interface{}{"credential": f.qr}))
	assert.Equal(t, true, response["validSignature"])
	assert.Equal(t, true, response["passed"])

	results := response["results"].([]interface{})
	require.Len(t, results, 3)

	first := results[0].(map[string]interface{})
	assert.Equal(t, "GR-NL-0001", first["identifier"])
	assert.Equal(t, true, first["passed"])
	assert.Equal(t, true, first["value"])
	assert.NotEmpty(t, first["description"])

	// Overrides per request, the validation clock included
	response = decodeResponse(t, f.post(t, "/evaluate_rules", map[string]interface{}{
		"credential": f.qr,
		"external": map[string]interface{}{
			"countryCode":     "DE",
			"validationClock": "2021-06-02T00:00:00Z",
		},
	}))
	assert.Equal(t, true, response["validSignature"])
	assert.Equal(t, false, response["passed"])

	results = response["results"].([]interface{})
	assert.Equal(t, false, results[0].(map[string]interface{})["passed"])
	assert.Equal(t, true, results[1].(map[string]interface{})["passed"])
	assert.Equal(t, false, results[2].(map[string]interface{})["passed"])

	response = decodeResponse(t, f.post(t, "/evaluate_rules", map[string]interface{}{
		"credential": f.qr,
		"external":   map[string]interface{}{"validationClock": "not a date"},
	}))
	third := response["results"].([]interface{})[2].(map[string]interface{})
	assert.Equal(t, false, third["passed"])
	assert.Nil(t, third["value"])
	assert.Contains(t, third["error"], "logic evaluation error")
}

func TestEvaluateRulesWithUntrustedCredential(t *testing.T) {
	f := newFixture(t, map[string]interface{}{"countryCode": "NL"})
	other := newFixture(t, map[string]interface{}{"countryCode": "NL"})

	response := decodeResponse(t, other.post(t, "/evaluate_rules", map[string]interface{}{"credential": f.qr}))
	assert.Equal(t, false, response["validSignature"])
	assert.Equal(t, false, response["passed"])
	assert.Len(t, response["results"], 3)

	response = decodeResponse(t, f.post(t, "/evaluate_rules", map[string]interface{}{"credential": "not a credential"}))
	assert.Equal(t, false, response["validSignature"])
	assert.Empty(t, response["results"])
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t, nil)

	for _, path := range []string{"/verify_signature", "/evaluate_rules"} {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte("{")))
		rec := httptest.NewRecorder()
		f.server.buildHandler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)

		req = httptest.NewRequest(http.MethodGet, path, nil)
		rec = httptest.NewRecorder()
		f.server.buildHandler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}

func TestRunWithMissingFiles(t *testing.T) {
	dir := t.TempDir()

	err := Run(&Configuration{TrustKeysPath: filepath.Join(dir, "missing.json")})
	assert.Error(t, err)

	trustKeysPath := filepath.Join(dir, "trust_keys.json")
	require.NoError(t, os.WriteFile(trustKeysPath, []byte(`{}`), 0o644))

	err = Run(&Configuration{TrustKeysPath: trustKeysPath, RulesPath: filepath.Join(dir, "missing")})
	assert.Error(t, err)
}
