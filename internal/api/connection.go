package api

import "net/http"

// handleGetConnection returns the simulator snapshot.
func (s *Server) handleGetConnection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Snapshot())
}

// handleStartScan starts (or restarts) a scan.
func (s *Server) handleStartScan(w http.ResponseWriter, _ *http.Request) {
	if err := s.sim.StartScan(); err != nil {
		s.writeDomainError(w, err, "failed to start scan")
		return
	}
	writeJSON(w, http.StatusAccepted, s.sim.Snapshot())
}

// handleStopScan ends a scan, keeping devices already discovered.
func (s *Server) handleStopScan(w http.ResponseWriter, _ *http.Request) {
	s.sim.StopScan()
	writeJSON(w, http.StatusOK, s.sim.Snapshot())
}

// handleDisconnect cancels a pending attempt and drops the connected device.
func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.sim.Disconnect()
	writeJSON(w, http.StatusOK, s.sim.Snapshot())
}
