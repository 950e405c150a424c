package executor

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/jingkaihe/skillrt/pkg/types/skills"
)

var patterns sync.Map

func compilePattern(expr string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(expr); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patterns.Store(expr, re)
	return re, nil
}

// ValidateParameters checks params against the skill's declarations and
// returns a new map with defaults filled in for absent optional parameters.
// Every violation is reported in a single ParameterValidationError.
func ValidateParameters(s *skills.Skill, params map[string]any) (map[string]any, error) {
	var issues []string

	var unknown []string
	for name := range params {
		if _, ok := s.Parameter(name); !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		issues = append(issues, fmt.Sprintf("unknown parameter %q", name))
	}

	values := make(map[string]any, len(s.Parameters))
	for _, p := range s.Parameters {
		v, present := params[p.Name]
		if !present || v == nil {
			if p.Required {
				issues = append(issues, fmt.Sprintf("missing required parameter %q", p.Name))
			} else if p.Default != nil {
				values[p.Name] = p.Default
			}
			continue
		}

		if !p.Type.Accepts(v) {
			issues = append(issues, fmt.Sprintf("parameter %q must be of type %s, got %T", p.Name, p.Type, v))
			continue
		}
		if str, ok := v.(string); ok && p.Validation != "" {
			re, err := compilePattern(p.Validation)
			if err != nil {
				issues = append(issues, fmt.Sprintf("parameter %q has an invalid validation pattern", p.Name))
				continue
			}
			if !re.MatchString(str) {
				issues = append(issues, fmt.Sprintf("parameter %q does not match pattern %s", p.Name, p.Validation))
				continue
			}
		}
		values[p.Name] = v
	}

	if len(issues) > 0 {
		return nil, skills.NewError(skills.ErrParameterValidation, s.Name, "%s", strings.Join(issues, "; "))
	}
	return values, nil
}
