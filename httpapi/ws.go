package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"goa.design/clue/log"

	"github.com/awsops/commandcenter/agent"
)

type (
	// wsCommand is one client request on the orchestration socket.
	wsCommand struct {
		Command      string              `json:"command"`
		Agent        string              `json:"agent,omitempty"`
		Action       string              `json:"action,omitempty"`
		Requirements *agent.Requirements `json:"requirements,omitempty"`
	}

	// wsFrame is one server message. Type is "status", "result" or
	// "error".
	wsFrame struct {
		Type    string        `json:"type"`
		Message string        `json:"message,omitempty"`
		Result  *agent.Result `json:"result,omitempty"`
	}
)

// orchestrateWS streams orchestration progress over a WebSocket. Each
// command yields status frames followed by one result frame; the
// connection stays open for further commands until the client closes it.
func (s *Server) orchestrateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Info(r.Context(), log.KV{K: "msg", V: "websocket upgrade failed"}, log.KV{K: "err", V: err.Error()})
		return
	}
	defer conn.Close() //nolint:errcheck

	ctx := r.Context()
	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info(ctx, log.KV{K: "msg", V: "websocket closed unexpectedly"}, log.KV{K: "err", V: err.Error()})
			}
			return
		}

		switch cmd.Command {
		case "full_analysis":
			s.send(ctx, conn, wsFrame{Type: "status", Message: "running full analysis"})
			res := s.coord.FullAnalysis(ctx)
			s.send(ctx, conn, resultFrame(res))
		case "design_architecture":
			if cmd.Requirements == nil {
				s.send(ctx, conn, wsFrame{Type: "error", Message: "requirements are required for design_architecture"})
				continue
			}
			s.send(ctx, conn, wsFrame{Type: "status", Message: "designing architecture"})
			res := s.coord.SmartArchitectureDesign(ctx, *cmd.Requirements)
			s.send(ctx, conn, resultFrame(res))
		case "invoke":
			if cmd.Agent == "" {
				s.send(ctx, conn, wsFrame{Type: "error", Message: "agent name is required for invoke"})
				continue
			}
			s.send(ctx, conn, wsFrame{Type: "status", Message: "invoking " + cmd.Agent})
			res := s.coord.InvokeAgent(ctx, cmd.Agent, agent.Request{
				Action:       cmd.Action,
				Requirements: cmd.Requirements,
			})
			s.send(ctx, conn, resultFrame(res))
		default:
			s.send(ctx, conn, wsFrame{Type: "error", Message: "unknown command: " + cmd.Command})
		}
	}
}

func resultFrame(res *agent.Result) wsFrame {
	if res.Success {
		return wsFrame{Type: "result", Result: res}
	}
	return wsFrame{Type: "error", Message: res.Message, Result: res}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, frame wsFrame) {
	if err := conn.WriteJSON(frame); err != nil {
		log.Info(ctx, log.KV{K: "msg", V: "websocket write failed"}, log.KV{K: "err", V: err.Error()})
	}
}
