package api

import (
	"net/http"

	"github.com/seantiz/botrunner/internal/workflow"
)

// stateInfo describes one state of a blueprint.
type stateInfo struct {
	Name       workflow.State   `json:"name"`
	Terminal   bool             `json:"terminal"`
	Successors []workflow.State `json:"successors,omitempty"`
}

// blueprintInfo describes a registered blueprint and its state table.
type blueprintInfo struct {
	Name     string         `json:"name"`
	Endpoint string         `json:"endpoint"`
	Initial  workflow.State `json:"initial"`
	States   []stateInfo    `json:"states"`
}

func (s *Server) handleListExecutors(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.executors.List())
}

func (s *Server) handleListBlueprints(w http.ResponseWriter, _ *http.Request) {
	bps := s.engine.Blueprints()
	out := make([]blueprintInfo, 0, len(bps))
	for _, bp := range bps {
		info := blueprintInfo{Name: bp.Name, Endpoint: bp.Endpoint, Initial: bp.Initial}
		for _, st := range bp.States() {
			info.States = append(info.States, stateInfo{
				Name:       st,
				Terminal:   bp.IsTerminal(st),
				Successors: bp.Successors(st),
			})
		}
		out = append(out, info)
	}
	s.writeJSON(w, http.StatusOK, out)
}
