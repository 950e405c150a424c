package loader

import (
	"bytes"
	"strings"

	"github.com/jingkaihe/skillrt/pkg/registry"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

const skillMarkdownFile = "SKILL.md"

// instructionsAnnotation is the metadata annotation holding a SKILL.md body
const instructionsAnnotation = "instructions"

// parseMarkdown reads a SKILL.md file. The YAML front matter is the skill
// document and the markdown body is kept as the instructions annotation.
func parseMarkdown(content []byte) (map[string]any, error) {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	front, err := meta.TryGet(pctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse front matter")
	}
	if len(front) == 0 {
		return nil, errors.New("missing front matter")
	}

	doc, ok := registry.Normalize(front).(map[string]any)
	if !ok {
		return nil, errors.New("front matter is not a mapping")
	}

	body := strings.TrimSpace(extractBody(string(content)))
	if body == "" {
		return doc, nil
	}

	metadata, _ := doc["metadata"].(map[string]any)
	if metadata == nil {
		metadata = make(map[string]any)
		doc["metadata"] = metadata
	}
	annotations, _ := metadata["annotations"].(map[string]any)
	if annotations == nil {
		annotations = make(map[string]any)
		metadata["annotations"] = annotations
	}
	annotations[instructionsAnnotation] = body
	return doc, nil
}

// extractBody removes YAML front matter and returns the body
func extractBody(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\n")
}
