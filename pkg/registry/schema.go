package registry

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schema/skill.schema.json
var schemaBytes []byte

const schemaURL = "skill.schema.json"

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

// SchemaIssue is a single schema violation
type SchemaIssue struct {
	// Path is the JSON pointer of the offending value, e.g. "/execution/timeout"
	Path    string
	Keyword string
	Message string
}

func (i SchemaIssue) String() string {
	path := i.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s: %s", path, i.Message)
}

// SchemaJSON returns the embedded skill document schema
func SchemaJSON() []byte {
	return schemaBytes
}

func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = errors.Wrap(err, "failed to unmarshal skill schema")
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = errors.Wrap(err, "failed to add skill schema resource")
			return
		}
		compiledSchema, compileErr = c.Compile(schemaURL)
		if compileErr != nil {
			compileErr = errors.Wrap(compileErr, "failed to compile skill schema")
		}
	})
	return compiledSchema, compileErr
}

// ValidateDocument checks a decoded document tree against the skill schema.
// The returned issues are empty when the document conforms; the error is
// reserved for schema or conversion failures.
func ValidateDocument(doc any) ([]SchemaIssue, error) {
	schema, err := getSchema()
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(Normalize(doc))
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert document to JSON")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare document for validation")
	}

	err = schema.Validate(inst)
	if err == nil {
		return nil, nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return nil, errors.Wrap(err, "unexpected schema validation failure")
	}

	var issues []SchemaIssue
	collectIssues(verr, &issues)
	if len(issues) == 0 {
		issues = []SchemaIssue{{Message: verr.Error()}}
	}
	return dedupeIssues(issues), nil
}

func collectIssues(ve *jsonschema.ValidationError, issues *[]SchemaIssue) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collectIssues(cause, issues)
		}
		return
	}

	path := ""
	if len(ve.InstanceLocation) > 0 {
		path = "/" + strings.Join(ve.InstanceLocation, "/")
	}

	keyword := ""
	msg := ""
	if ve.ErrorKind != nil {
		if kw := ve.ErrorKind.KeywordPath(); len(kw) > 0 {
			keyword = kw[len(kw)-1]
		}
		msg = ve.ErrorKind.LocalizedString(printer)
	}

	// container keywords only summarise their children
	switch keyword {
	case "", "oneOf", "allOf", "$ref":
		return
	}

	*issues = append(*issues, SchemaIssue{Path: path, Keyword: keyword, Message: msg})
}

func dedupeIssues(issues []SchemaIssue) []SchemaIssue {
	seen := make(map[string]bool)
	var out []SchemaIssue
	for _, issue := range issues {
		key := issue.Path + "|" + issue.Keyword + "|" + issue.Message
		if !seen[key] {
			seen[key] = true
			out = append(out, issue)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Normalize converts a decoded YAML tree into JSON-compatible values. YAML
// decoders may produce map[any]any for nested mappings.
func Normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = Normalize(inner)
		}
		return m
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[fmt.Sprint(k)] = Normalize(inner)
		}
		return m
	case []any:
		a := make([]any, len(val))
		for i, inner := range val {
			a[i] = Normalize(inner)
		}
		return a
	default:
		return val
	}
}
