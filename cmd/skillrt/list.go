package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jingkaihe/skillrt/pkg/presenter"
	"github.com/jingkaihe/skillrt/pkg/registry"
	skillruntime "github.com/jingkaihe/skillrt/pkg/runtime"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// listFilter selects skills by category, tag, execution kind and domain.
// Non-empty fields are combined with AND.
type listFilter struct {
	Category string
	Tag      string
	Kind     string
	Domain   string
}

func getListFilterFromFlags(cmd *cobra.Command) listFilter {
	var f listFilter
	f.Category, _ = cmd.Flags().GetString("category")
	f.Tag, _ = cmd.Flags().GetString("tag")
	f.Kind, _ = cmd.Flags().GetString("kind")
	f.Domain, _ = cmd.Flags().GetString("domain")
	return f
}

// apply returns the matching skills in registration order
func (f listFilter) apply(reg *registry.Registry) ([]*skills.Skill, error) {
	var sets [][]*skills.Skill
	if f.Category != "" {
		sets = append(sets, reg.FindByCategory(f.Category))
	}
	if f.Tag != "" {
		sets = append(sets, reg.FindByTag(f.Tag))
	}
	if f.Kind != "" {
		kind := skills.ExecutionKind(strings.ToLower(f.Kind))
		if !kind.Valid() {
			return nil, errors.Errorf("unknown execution kind %q", f.Kind)
		}
		sets = append(sets, reg.FindByExecutionKind(kind))
	}
	if f.Domain != "" {
		sets = append(sets, reg.FindForDomain(f.Domain))
	}

	list := reg.List()
	for _, set := range sets {
		keep := make(map[string]bool, len(set))
		for _, s := range set {
			keep[s.Name] = true
		}
		filtered := list[:0:0]
		for _, s := range list {
			if keep[s.Name] {
				filtered = append(filtered, s)
			}
		}
		list = filtered
	}
	return list, nil
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered skills",
	Long: `List every skill discovered from the bundled, project, user and adapter sources.

Filters can be combined: --category build --kind script lists the build
skills that run scripts.`,
	RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *skillruntime.Runtime) error {
		list, err := getListFilterFromFlags(cmd).apply(rt.Registry)
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			out, err := json.MarshalIndent(list, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal skills")
			}
			fmt.Println(string(out))
			return nil
		}

		if len(list) == 0 {
			presenter.Info("No skills found")
			return nil
		}
		rows := make([][]string, 0, len(list))
		for _, s := range list {
			source := ""
			if prov, ok := rt.Registry.Provenance(s.Name); ok {
				source = string(prov.Source)
			}
			rows = append(rows, []string{s.Name, s.Version, string(s.Execution.Kind), s.Category, source, truncate(s.Description, 60)})
		}
		presenter.Table([]string{"NAME", "VERSION", "KIND", "CATEGORY", "SOURCE", "DESCRIPTION"}, rows)
		return nil
	}),
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	listCmd.Flags().String("category", "", "Only list skills in this category")
	listCmd.Flags().String("tag", "", "Only list skills with this tag")
	listCmd.Flags().String("kind", "", "Only list skills of this execution kind (native, script, mcp, composite)")
	listCmd.Flags().String("domain", "", "Only list skills relevant to this domain")
	listCmd.Flags().Bool("json", false, "Output in JSON format")
}
