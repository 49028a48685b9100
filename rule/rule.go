// Package rule loads business rules and evaluates them against decoded health certificates
package rule

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-errors/errors"
	"github.com/minvws/nl-covid19-coronacheck-dcc/certlogic"
	"github.com/tidwall/jsonc"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const DEFAULT_LANGUAGE = "en"

var ErrMalformedRule = errors.Errorf("malformed rule")

//go:embed schema.json
var definitionSchema []byte

var schemaLoader = gojsonschema.NewBytesLoader(definitionSchema)

// Definition is a rule in the EU business rule format
type Definition struct {
	Identifier      string        `json:"Identifier,omitempty"`
	Type            string        `json:"Type,omitempty"`
	Country         string        `json:"Country,omitempty"`
	Version         string        `json:"Version,omitempty"`
	SchemaVersion   string        `json:"SchemaVersion,omitempty"`
	Engine          string        `json:"Engine,omitempty"`
	EngineVersion   string        `json:"EngineVersion,omitempty"`
	CertificateType string        `json:"CertificateType,omitempty"`
	Description     []Description `json:"Description"`
	ValidFrom       string        `json:"ValidFrom,omitempty"`
	ValidTo         string        `json:"ValidTo,omitempty"`
	AffectedFields  []string      `json:"AffectedFields,omitempty"`
	Logic           interface{}   `json:"Logic"`
}

type Description struct {
	Lang string `json:"lang"`
	Desc string `json:"desc"`
}

// Payload is anything that carries decoded certificate claims, such as *dcc.Certificate
type Payload interface {
	Claims() map[string]interface{}
}

// Rule is a parsed definition together with its default external values. It is immutable
// and may be evaluated from several goroutines at once.
type Rule struct {
	definition      Definition
	descriptions    map[string]string
	logic           certlogic.Node
	defaultExternal map[string]interface{}
}

// New parses the logic of the definition. The definition and external values are copied.
func New(definition *Definition, external map[string]interface{}) (*Rule, error) {
	if definition == nil {
		return nil, malformed("Rule definition is missing")
	}

	logic, err := certlogic.Parse(definition.Logic)
	if err != nil {
		return nil, malformed("Could not parse rule logic: %s", err.Error())
	}

	descriptions := make(map[string]string, len(definition.Description))
	for _, description := range definition.Description {
		// The first translation in a language wins
		if _, ok := descriptions[description.Lang]; !ok {
			descriptions[description.Lang] = description.Desc
		}
	}

	def := *definition
	def.Description = append([]Description(nil), definition.Description...)
	def.AffectedFields = append([]string(nil), definition.AffectedFields...)

	return &Rule{
		definition:      def,
		descriptions:    descriptions,
		logic:           logic,
		defaultExternal: copyExternal(external),
	}, nil
}

// Load reads a JSON rule definition. Comments and trailing commas are allowed.
func Load(data []byte, external map[string]interface{}) (*Rule, error) {
	var document interface{}
	err := json.Unmarshal(jsonc.ToJSON(data), &document)
	if err != nil {
		return nil, malformed("Could not JSON unmarshal rule: %s", err.Error())
	}

	return fromDocument(document, external)
}

// LoadYAML reads a rule definition written in YAML
func LoadYAML(data []byte, external map[string]interface{}) (*Rule, error) {
	var document interface{}
	err := yaml.Unmarshal(data, &document)
	if err != nil {
		return nil, malformed("Could not YAML unmarshal rule: %s", err.Error())
	}

	return fromDocument(document, external)
}

func fromDocument(document interface{}, external map[string]interface{}) (*Rule, error) {
	err := validate(document)
	if err != nil {
		return nil, err
	}

	// Round-trip through JSON to fill the typed definition from either source format
	documentJson, err := json.Marshal(document)
	if err != nil {
		return nil, malformed("Could not JSON marshal rule: %s", err.Error())
	}

	definition := &Definition{}
	err = json.Unmarshal(documentJson, definition)
	if err != nil {
		return nil, malformed("Could not JSON unmarshal rule definition: %s", err.Error())
	}

	return New(definition, external)
}

func validate(document interface{}) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(document))
	if err != nil {
		return malformed("Could not validate rule: %s", err.Error())
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			problems = append(problems, resultErr.String())
		}

		return malformed("Rule is invalid: %s", strings.Join(problems, "; "))
	}

	return nil
}

func (r *Rule) Identifier() string {
	return r.definition.Identifier
}

// Definition returns a copy of the definition the rule was loaded from
func (r *Rule) Definition() Definition {
	def := r.definition
	def.Description = append([]Description(nil), r.definition.Description...)
	def.AffectedFields = append([]string(nil), r.definition.AffectedFields...)

	return def
}

func (r *Rule) Logic() certlogic.Node {
	return r.logic
}

// Description returns the text for a language, or false when it has not been translated
func (r *Rule) Description(language string) (string, bool) {
	desc, ok := r.descriptions[language]
	return desc, ok
}

func (r *Rule) DefaultDescription() (string, bool) {
	return r.Description(DEFAULT_LANGUAGE)
}

// External returns the external values the rule evaluates with, given the overrides of a
// single evaluation
func (r *Rule) External(overrides map[string]interface{}) map[string]interface{} {
	merged := copyExternal(r.defaultExternal)
	for k, v := range overrides {
		merged[k] = v
	}

	return merged
}

// Evaluate evaluates the rule logic with the claims of the payload and the merged external
// values. Evaluation errors are returned as is, no default value is substituted.
func (r *Rule) Evaluate(payload Payload, overrides map[string]interface{}) (certlogic.Value, error) {
	var claims map[string]interface{}
	if payload != nil {
		claims = payload.Claims()
	}

	ctx, err := certlogic.NewContext(claims, r.External(overrides))
	if err != nil {
		return certlogic.Null, err
	}

	return certlogic.Evaluate(r.logic, ctx)
}

// Passes reports whether the rule evaluates to a truthy value
func (r *Rule) Passes(payload Payload, overrides map[string]interface{}) (bool, error) {
	value, err := r.Evaluate(payload, overrides)
	if err != nil {
		return false, err
	}

	return value.Truthy(), nil
}

func copyExternal(external map[string]interface{}) map[string]interface{} {
	res := make(map[string]interface{}, len(external))
	for k, v := range external {
		res[k] = v
	}

	return res
}

func malformed(format string, args ...interface{}) *errors.Error {
	return errors.WrapPrefix(ErrMalformedRule, fmt.Sprintf(format, args...), 1)
}
