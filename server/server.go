// Package server exposes signature verification and rule evaluation over HTTP
package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-errors/errors"
	"github.com/minvws/nl-covid19-coronacheck-dcc/common"
	"github.com/minvws/nl-covid19-coronacheck-dcc/dcc"
	"github.com/minvws/nl-covid19-coronacheck-dcc/rule"
	"github.com/minvws/nl-covid19-coronacheck-dcc/verifier"
)

const VALIDATION_CLOCK = "validationClock"

type Configuration struct {
	ListenAddress string
	ListenPort    string

	TrustKeysPath string
	RulesPath     string

	// External are the default external values of every rule
	External map[string]interface{}
}

type server struct {
	config   *Configuration
	verifier *verifier.Verifier
	rules    []*rule.Rule
	now      func() time.Time
}

type verificationRequest struct {
	Credential string `json:"credential"`
}

type verificationResponse struct {
	ValidSignature    bool               `json:"validSignature"`
	VerificationError string             `json:"verificationError,omitempty"`
	HealthCertificate *healthCertificate `json:"healthCertificate,omitempty"`
}

type healthCertificate struct {
	KeyID string `json:"kid"`
	common.Metadata
	DCC map[string]interface{} `json:"dcc"`
}

type evaluationRequest struct {
	Credential string                 `json:"credential"`
	External   map[string]interface{} `json:"external"`
}

type evaluationResponse struct {
	ValidSignature    bool                `json:"validSignature"`
	VerificationError string              `json:"verificationError,omitempty"`
	Passed            bool                `json:"passed"`
	Results           []*evaluationResult `json:"results"`
}

type evaluationResult struct {
	Identifier  string      `json:"identifier"`
	Description string      `json:"description,omitempty"`
	Passed      bool        `json:"passed"`
	Value       interface{} `json:"value"`
	Error       string      `json:"error,omitempty"`
}

func Run(config *Configuration) error {
	trustKeysJson, err := os.ReadFile(config.TrustKeysPath)
	if err != nil {
		return errors.WrapPrefix(err, "Could not read trust keys file", 0)
	}

	trustKeys, err := verifier.ParseTrustKeys(trustKeysJson)
	if err != nil {
		return err
	}

	var rules []*rule.Rule
	if config.RulesPath != "" {
		rules, err = rule.LoadPath(config.RulesPath, config.External)
		if err != nil {
			return errors.WrapPrefix(err, "Could not load rules", 0)
		}
	}

	s := newServer(config, trustKeys, rules)

	err = s.Serve()
	if err != nil {
		return errors.WrapPrefix(err, "Could not start server", 0)
	}

	return nil
}

func newServer(config *Configuration, resolver verifier.KeyResolver, rules []*rule.Rule) *server {
	return &server{
		config:   config,
		verifier: verifier.New(resolver),
		rules:    rules,
		now:      time.Now,
	}
}

func (s *server) Serve() error {
	addr := fmt.Sprintf("%s:%s", s.config.ListenAddress, s.config.ListenPort)
	fmt.Printf("Starting verification server with %d rules, listening at %s\n", len(s.rules), addr)

	handler := s.buildHandler()
	err := http.ListenAndServe(addr, handler)
	if err != nil {
		return errors.WrapPrefix(err, "Could not start listening", 0)
	}

	return nil
}

func (s *server) buildHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/verify_signature", s.handleVerifySignature)
	r.Post("/evaluate_rules", s.handleEvaluateRules)

	return r
}

func (s *server) handleVerifySignature(w http.ResponseWriter, r *http.Request) {
	req := &verificationRequest{}
	err := json.NewDecoder(r.Body).Decode(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.WrapPrefix(err, "Could not JSON unmarshal verification request", 0))
		return
	}

	response := &verificationResponse{}
	cert, err := dcc.FromRaw(strings.TrimSpace(req.Credential))
	if err != nil {
		response.VerificationError = err.Error()
		writeJSON(w, response)
		return
	}

	res := s.verifier.VerifyWithReason(r.Context(), cert.EnvelopeBytes())
	if !res.Valid {
		response.VerificationError = res.Reason.Error()
	} else {
		response.ValidSignature = true
		response.HealthCertificate = &healthCertificate{
			KeyID:    base64.StdEncoding.EncodeToString(cert.KeyID()),
			Metadata: cert.Metadata(),
			DCC:      cert.Claims(),
		}
	}

	writeJSON(w, response)
}

func (s *server) handleEvaluateRules(w http.ResponseWriter, r *http.Request) {
	req := &evaluationRequest{}
	err := json.NewDecoder(r.Body).Decode(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.WrapPrefix(err, "Could not JSON unmarshal evaluation request", 0))
		return
	}

	response := &evaluationResponse{
		Results: []*evaluationResult{},
	}

	cert, err := dcc.FromRaw(strings.TrimSpace(req.Credential))
	if err != nil {
		response.VerificationError = err.Error()
		writeJSON(w, response)
		return
	}

	res := s.verifier.VerifyWithReason(r.Context(), cert.EnvelopeBytes())
	response.ValidSignature = res.Valid
	if !res.Valid {
		response.VerificationError = res.Reason.Error()
	}

	outcomes, err := rule.EvaluateAll(r.Context(), s.rules, cert, s.overrides(req.External))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, errors.WrapPrefix(err, "Could not evaluate rules", 0))
		return
	}

	for _, outcome := range outcomes {
		description, _ := outcome.Rule.DefaultDescription()
		result := &evaluationResult{
			Identifier:  outcome.Rule.Identifier(),
			Description: description,
			Passed:      outcome.Passed,
			Value:       outcome.Value,
		}

		if outcome.Err != nil {
			result.Value = nil
			result.Error = outcome.Err.Error()
		}

		response.Results = append(response.Results, result)
	}

	response.Passed = res.Valid && rule.AllPassed(outcomes)

	writeJSON(w, response)
}

// overrides adds the current time as validation clock, unless it is configured or
// supplied with the request
func (s *server) overrides(external map[string]interface{}) map[string]interface{} {
	overrides := make(map[string]interface{}, len(external)+1)
	if _, ok := s.config.External[VALIDATION_CLOCK]; !ok {
		overrides[VALIDATION_CLOCK] = s.now().UTC().Format(time.RFC3339)
	}

	for k, v := range external {
		overrides[k] = v
	}

	return overrides
}

func writeJSON(w http.ResponseWriter, response interface{}) {
	responseJson, err := json.Marshal(response)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errors.WrapPrefix(err, "Could not JSON marshal response", 0))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(responseJson)
}

func writeError(w http.ResponseWriter, status int, err error) {
	fmt.Println(err.Error())
	http.Error(w, err.Error(), status)
}
