package api

import (
	"errors"
	"net/http"

	"github.com/1hive/honeyswap-indexer/internal/modules/core"
)

// Modules is the registry view served under /status and /modules.
type Modules interface {
	ListModules() []string
	GetModule(name string) (core.Module, bool)
	Status(name string) (core.ModuleStatus, bool)
	Pause(name string) error
	Resume(name string) error
}

type moduleInfo struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Status  core.ModuleStatus `json:"status"`
}

// SetModules exposes the registry of an in-process indexer. A standalone
// server has none and reports only the cursor.
func (s *APIServer) SetModules(m Modules) {
	s.modules = m
}

func (s *APIServer) describeModule(name string) moduleInfo {
	info := moduleInfo{Name: name}
	if m, ok := s.modules.GetModule(name); ok {
		info.Version = m.Version()
	}
	info.Status, _ = s.modules.Status(name)
	return info
}

func (s *APIServer) moduleInfos() []moduleInfo {
	names := s.modules.ListModules()
	infos := make([]moduleInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, s.describeModule(name))
	}
	return infos
}

func (s *APIServer) handlePauseModule(w http.ResponseWriter, r *http.Request) {
	s.moduleTransition(w, r, Modules.Pause)
}

func (s *APIServer) handleResumeModule(w http.ResponseWriter, r *http.Request) {
	s.moduleTransition(w, r, Modules.Resume)
}

func (s *APIServer) moduleTransition(w http.ResponseWriter, r *http.Request, apply func(Modules, string) error) {
	if s.modules == nil {
		Error(w, http.StatusNotFound, "not found")
		return
	}
	name := r.PathValue("name")
	if err := apply(s.modules, name); err != nil {
		if errors.Is(err, core.ErrUnknownModule) {
			Error(w, http.StatusNotFound, "not found")
			return
		}
		s.fail(w, r, err)
		return
	}
	info := s.describeModule(name)
	s.logger.Info().Str("module", name).Str("status", string(info.Status)).Msg("Module status changed over API")
	JSON(w, http.StatusOK, info, nil)
}
