package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/adcraftlabs/adcraft/pipeline"
	"github.com/adcraftlabs/adcraft/resilience"
)

type createSessionRequest struct {
	ProductName        string `json:"productName"`
	ProductDescription string `json:"productDescription"`
	Locale             string `json:"locale"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, fmt.Errorf("%w: method not allowed", resilience.ErrInvalidArgument))
		return
	}
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	session, err := s.orch.CreateSession(r.Context(), req.ProductName, req.ProductDescription, req.Locale)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, fmt.Errorf("%w: method not allowed", resilience.ErrInvalidArgument))
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	id = strings.TrimSuffix(id, "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, fmt.Errorf("%w: session id is required", resilience.ErrInvalidArgument))
		return
	}
	session, err := s.orch.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type agentActionRequest struct {
	SessionID   string             `json:"sessionId"`
	Message     string             `json:"message,omitempty"`
	Target      string             `json:"target,omitempty"`
	Prompt      string             `json:"prompt,omitempty"`
	Count       int                `json:"count,omitempty"`
	Description string             `json:"description,omitempty"`
	Narrative   string             `json:"narrative,omitempty"`
	Format      string             `json:"format,omitempty"`
	Analysis    *pipeline.Analysis `json:"analysis,omitempty"`
}

// handleAgentActions routes /api/v1/agents/{agent}/{action}.
func (s *Server) handleAgentActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/agents/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 {
		writeError(w, fmt.Errorf("%w: expected /api/v1/agents/{agent}/{action}", resilience.ErrInvalidArgument))
		return
	}
	agent := pipeline.Agent(parts[0])
	action := parts[1]
	switch agent {
	case pipeline.AgentMaya, pipeline.AgentDavid, pipeline.AgentZara:
	default:
		writeError(w, fmt.Errorf("%w: unknown agent %q", resilience.ErrInvalidArgument, parts[0]))
		return
	}

	if action == "status" {
		if r.Method != http.MethodGet {
			writeError(w, fmt.Errorf("%w: method not allowed", resilience.ErrInvalidArgument))
			return
		}
		s.handleAgentStatus(w, r, agent)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, fmt.Errorf("%w: method not allowed", resilience.ErrInvalidArgument))
		return
	}
	var req agentActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionID == "" {
		writeError(w, fmt.Errorf("%w: sessionId is required", resilience.ErrInvalidArgument))
		return
	}

	switch action {
	case "initialize":
		session, err := s.orch.Initialize(r.Context(), req.SessionID, agent)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)

	case "chat", "message":
		reply, session, err := s.orch.Chat(r.Context(), req.SessionID, agent, req.Message, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reply": reply, "session": session})

	case "handoff":
		target := pipeline.Agent(req.Target)
		if target == "" {
			target = pipeline.NextAgent(agent)
		}
		result, session, err := s.orch.Handoff(r.Context(), req.SessionID, target)
		if err != nil {
			writeError(w, err)
			return
		}
		if !result.IsValid {
			writeError(w, fmt.Errorf("%w: %s", resilience.ErrInvalidArgument, strings.Join(result.Errors, "; ")))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result, "session": session})

	case "analysis":
		if agent != pipeline.AgentMaya || req.Analysis == nil {
			writeError(w, fmt.Errorf("%w: analysis payload is required on the maya stage", resilience.ErrInvalidArgument))
			return
		}
		session, err := s.orch.CompleteAnalysis(r.Context(), req.SessionID, *req.Analysis)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)

	case "assets":
		if agent != pipeline.AgentDavid {
			writeError(w, fmt.Errorf("%w: asset generation belongs to the david stage", resilience.ErrInvalidArgument))
			return
		}
		assets, session, err := s.orch.GenerateAssets(r.Context(), req.SessionID, req.Prompt, req.Count)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"assets": assets, "session": session})

	case "decisions":
		if agent != pipeline.AgentDavid {
			writeError(w, fmt.Errorf("%w: decisions belong to the david stage", resilience.ErrInvalidArgument))
			return
		}
		session, err := s.orch.FinalizeDecision(r.Context(), req.SessionID, req.Description)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)

	case "creative":
		if agent != pipeline.AgentDavid {
			writeError(w, fmt.Errorf("%w: creative direction belongs to the david stage", resilience.ErrInvalidArgument))
			return
		}
		session, err := s.orch.UpdateCreative(r.Context(), req.SessionID, req.Narrative, req.Format)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)

	case "video":
		if agent != pipeline.AgentZara {
			writeError(w, fmt.Errorf("%w: video production belongs to the zara stage", resilience.ErrInvalidArgument))
			return
		}
		production, session, err := s.orch.ProduceVideo(r.Context(), req.SessionID, req.Prompt)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"production": production, "session": session})

	case "production":
		if agent != pipeline.AgentZara {
			writeError(w, fmt.Errorf("%w: production acceptance belongs to the zara stage", resilience.ErrInvalidArgument))
			return
		}
		session, err := s.orch.AcceptProduction(r.Context(), req.SessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)

	default:
		writeError(w, fmt.Errorf("%w: unknown action %q", resilience.ErrInvalidArgument, action))
	}
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request, agent pipeline.Agent) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		writeError(w, fmt.Errorf("%w: sessionId query parameter is required", resilience.ErrInvalidArgument))
		return
	}
	session, err := s.orch.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":          session,
		"onRequestedStage": session.CurrentAgent == agent,
		"readyForHandoff":  session.ReadyForHandoff,
		"costs":            session.Costs,
		"remainingBudget":  s.orch.Budget().Remaining(session.Costs.Total()),
	})
}

// handleHealth reports the error-history snapshot and per-service breaker
// states for dashboards.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, fmt.Errorf("%w: method not allowed", resilience.ErrInvalidArgument))
		return
	}
	handler := s.orch.Handler()
	writeJSON(w, http.StatusOK, map[string]any{
		"errors":   handler.History().Snapshot(20),
		"breakers": handler.Breakers().Snapshots(),
	})
}
