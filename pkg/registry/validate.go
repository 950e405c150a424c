package registry

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
)

// ValidateSkill checks a single skill in isolation: schema conformance of its
// document form followed by the rules the schema cannot express. Cross-skill
// reference and cycle checks happen at registration.
func ValidateSkill(s *skills.Skill) error {
	if s == nil {
		return skills.NewError(skills.ErrValidation, "", "skill is nil")
	}

	issues, err := ValidateDocument(s)
	if err != nil {
		return skills.WrapError(err, skills.ErrValidation, s.Name, "schema validation could not run")
	}
	if len(issues) > 0 {
		return skills.NewError(skills.ErrValidation, s.Name, "schema: %s", JoinIssues(issues))
	}

	return validateSemantics(s)
}

// JoinIssues renders schema issues as a single line
func JoinIssues(issues []SchemaIssue) string {
	parts := make([]string, len(issues))
	for i, issue := range issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}

// ParseVersion parses a skill version, tolerating a leading "v"
func ParseVersion(version string) (*semver.Version, error) {
	return semver.NewVersion(strings.TrimPrefix(version, "v"))
}

func validateSemantics(s *skills.Skill) error {
	if _, err := ParseVersion(s.Version); err != nil {
		return skills.WrapError(err, skills.ErrValidation, s.Name, "version %q is not a semantic version", s.Version)
	}

	seen := make(map[string]bool, len(s.Parameters))
	for _, p := range s.Parameters {
		if seen[p.Name] {
			return skills.NewError(skills.ErrValidation, s.Name, "parameter %q is declared more than once", p.Name)
		}
		seen[p.Name] = true

		if p.Required && p.Default != nil {
			return skills.NewError(skills.ErrValidation, s.Name, "parameter %q is required and must not declare a default", p.Name)
		}
		if p.Default != nil && !p.Type.Accepts(p.Default) {
			return skills.NewError(skills.ErrValidation, s.Name, "default of parameter %q does not match type %s", p.Name, p.Type)
		}
		if p.Validation != "" {
			re, err := regexp.Compile(p.Validation)
			if err != nil {
				return skills.WrapError(err, skills.ErrValidation, s.Name, "parameter %q has an invalid validation pattern", p.Name)
			}
			if def, ok := p.Default.(string); ok && !re.MatchString(def) {
				return skills.NewError(skills.ErrValidation, s.Name, "default of parameter %q does not match its validation pattern", p.Name)
			}
		}
	}

	exec := s.Execution
	if exec.Timeout <= 0 {
		return skills.NewError(skills.ErrValidation, s.Name, "execution timeout must be greater than zero")
	}
	if exec.Retry < 0 {
		return skills.NewError(skills.ErrValidation, s.Name, "execution retry must not be negative")
	}

	switch exec.Kind {
	case skills.KindNative:
		if exec.Module == "" || exec.Method == "" {
			return skills.NewError(skills.ErrValidation, s.Name, "native execution requires module and method")
		}
	case skills.KindScript:
		if strings.TrimSpace(exec.Script) == "" {
			return skills.NewError(skills.ErrValidation, s.Name, "script execution requires a script")
		}
	case skills.KindMCP:
		if exec.MCPServer == "" || exec.MCPTool == "" {
			return skills.NewError(skills.ErrValidation, s.Name, "mcp execution requires mcp_server and mcp_tool")
		}
	case skills.KindComposite:
		if len(exec.Skills) == 0 {
			return skills.NewError(skills.ErrValidation, s.Name, "composite execution requires at least one child skill")
		}
		switch exec.Policy {
		case skills.PolicySequentialAll, skills.PolicyFirstSuccess, skills.PolicyParallelAll:
		default:
			return skills.NewError(skills.ErrValidation, s.Name, "unknown composite policy %q", exec.Policy)
		}
	default:
		return skills.NewError(skills.ErrValidation, s.Name, "unknown execution type %q", exec.Kind)
	}

	return nil
}
