package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
)

// SkillSummary is the list view of a skill
type SkillSummary struct {
	Name        string               `json:"name"`
	Version     string               `json:"version"`
	Description string               `json:"description"`
	Category    string               `json:"category"`
	Kind        skills.ExecutionKind `json:"kind"`
	Tags        []string             `json:"tags,omitempty"`
}

func summarize(s *skills.Skill) SkillSummary {
	return SkillSummary{
		Name:        s.Name,
		Version:     s.Version,
		Description: s.Description,
		Category:    s.Category,
		Kind:        s.Execution.Kind,
		Tags:        s.Metadata.Tags,
	}
}

// ExecuteRequest is the body of POST /api/skills/{name}/execute
type ExecuteRequest struct {
	Parameters map[string]any          `json:"parameters"`
	Context    skills.ExecutionContext `json:"context"`
}

// handleListSkills handles GET /api/skills. The category, tag, kind and
// domain filters are combined with AND.
func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var filters [][]*skills.Skill
	if v := query.Get("category"); v != "" {
		filters = append(filters, s.catalog.FindByCategory(v))
	}
	if v := query.Get("tag"); v != "" {
		filters = append(filters, s.catalog.FindByTag(v))
	}
	if v := query.Get("kind"); v != "" {
		kind := skills.ExecutionKind(v)
		if !kind.Valid() {
			writeError(w, r, http.StatusBadRequest, "unknown execution kind "+v, nil)
			return
		}
		filters = append(filters, s.catalog.FindByExecutionKind(kind))
	}
	if v := query.Get("domain"); v != "" {
		filters = append(filters, s.catalog.FindForDomain(v))
	}

	list := s.catalog.List()
	for _, f := range filters {
		list = intersect(list, f)
	}

	summaries := make([]SkillSummary, 0, len(list))
	for _, sk := range list {
		summaries = append(summaries, summarize(sk))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"skills": summaries,
		"count":  len(summaries),
	})
}

// intersect keeps the skills of list that are also in other, in list order
func intersect(list, other []*skills.Skill) []*skills.Skill {
	keep := make(map[string]bool, len(other))
	for _, s := range other {
		keep[s.Name] = true
	}
	out := list[:0:0]
	for _, s := range list {
		if keep[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

// handleGetSkill handles GET /api/skills/{name}
func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	skill, err := s.catalog.Get(name)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "skill not found", err)
		return
	}
	writeJSON(w, http.StatusOK, skill)
}

// handleDependencies handles GET /api/skills/{name}/dependencies
func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	analysis, err := s.catalog.Analyze(name)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "skill not found", err)
		return
	}
	plan, err := s.catalog.ResolveNames(name)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to resolve dependencies", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plan":     plan,
		"analysis": analysis,
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Stats())
}

// handleExecute handles POST /api/skills/{name}/execute. An empty body runs
// the skill without parameters. Unknown skills are 404 and invalid
// parameters 400; any other outcome is returned as the result with 200.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result := s.runner.Execute(r.Context(), name, req.Parameters, req.Context)

	status := http.StatusOK
	if err := result.Err(); err != nil {
		switch {
		case skills.IsKind(err, skills.ErrNotFound) && result.Attempts == 0:
			status = http.StatusNotFound
		case skills.IsKind(err, skills.ErrParameterValidation):
			status = http.StatusBadRequest
		}
	}
	writeJSON(w, status, result)
}

// handleListPerformance handles GET /api/performance
func (s *Server) handleListPerformance(w http.ResponseWriter, r *http.Request) {
	if s.reporter == nil {
		writeError(w, r, http.StatusNotFound, "execution history is disabled", nil)
		return
	}
	reports, err := s.reporter.Reports(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to build performance reports", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports, "count": len(reports)})
}

// handleGetPerformance handles GET /api/performance/{name}
func (s *Server) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	if s.reporter == nil {
		writeError(w, r, http.StatusNotFound, "execution history is disabled", nil)
		return
	}
	name := mux.Vars(r)["name"]
	report, err := s.reporter.Report(r.Context(), name)
	if skills.IsKind(err, skills.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "no recorded executions", err)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to build performance report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
