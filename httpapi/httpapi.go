// Package httpapi exposes the agents and coordinator over HTTP. Responses
// are the uniform agent envelopes; the HTTP status code is derived from the
// envelope's error taxonomy identifier. A WebSocket endpoint streams
// orchestration progress for long-running full analyses.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	goahttp "goa.design/goa/v3/http"

	"goa.design/clue/log"

	"github.com/awsops/commandcenter/agent"
	"github.com/awsops/commandcenter/cloud"
	"github.com/awsops/commandcenter/orchestrator"
)

// Server routes analysis requests to the coordinator.
type Server struct {
	coord    *orchestrator.Coordinator
	upgrader websocket.Upgrader
}

// New builds the HTTP server over a coordinator.
func New(coord *orchestrator.Coordinator) *Server {
	return &Server{
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Handler builds the request multiplexer with all routes mounted.
func (s *Server) Handler() http.Handler {
	mux := goahttp.NewMuxer()
	mux.Handle("POST", "/cost/analyze", s.agentHandler(agent.CostIntelligence, "analyze"))
	mux.Handle("POST", "/operations/analyze", s.agentHandler(agent.OperationsIntelligence, ""))
	mux.Handle("POST", "/infrastructure/generate", s.generate)
	mux.Handle("POST", "/infrastructure/assess", s.agentHandler(agent.InfrastructureIntelligence, "assess_existing"))
	mux.Handle("POST", "/orchestrate/full-analysis", s.fullAnalysis)
	mux.Handle("POST", "/orchestrate/architecture", s.smartDesign)
	mux.Handle("GET", "/ws/orchestrate", s.orchestrateWS)
	mux.Handle("GET", "/healthz", s.healthz)
	return mux
}

func (s *Server) agentHandler(name, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := s.coord.InvokeAgent(r.Context(), name, agent.Request{Action: action})
		writeResult(r.Context(), w, res)
	}
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequirements(w, r)
	if !ok {
		return
	}
	res := s.coord.InvokeAgent(r.Context(), agent.InfrastructureIntelligence, agent.Request{
		Action:       "generate_architecture",
		Requirements: req,
	})
	writeResult(r.Context(), w, res)
}

func (s *Server) fullAnalysis(w http.ResponseWriter, r *http.Request) {
	writeResult(r.Context(), w, s.coord.FullAnalysis(r.Context()))
}

func (s *Server) smartDesign(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequirements(w, r)
	if !ok {
		return
	}
	writeResult(r.Context(), w, s.coord.SmartArchitectureDesign(r.Context(), *req))
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}

func decodeRequirements(w http.ResponseWriter, r *http.Request) (*agent.Requirements, bool) {
	var req agent.Requirements
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResult(r.Context(), w, agent.Fail(orchestrator.CoordinatorName,
			cloud.ReasonInvalidParameters, "malformed request body: "+err.Error()))
		return nil, false
	}
	return &req, true
}

func writeResult(ctx context.Context, w http.ResponseWriter, res *agent.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode(res))
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "encode response"})
	}
}

// statusCode maps the envelope error taxonomy to HTTP. Only request
// validation and orchestration bugs surface as non-200: a run that reached
// the agents returns 200 with success=false in the body, provider failures
// included.
func statusCode(res *agent.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Error {
	case cloud.ReasonInvalidParameters:
		return http.StatusBadRequest
	case agent.ReasonAgentNotFound:
		return http.StatusNotFound
	case cloud.ReasonAccessDenied, cloud.ReasonNoCredentials,
		cloud.ReasonMaxRetriesExceeded, cloud.ReasonUnavailable:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
