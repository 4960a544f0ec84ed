package api

import (
	"net/http"
	"time"
)

type registerDistributorInstanceRequest struct {
	ClusterID     int64  `json:"cluster_id" validate:"required"`
	WorkflowRunID *int64 `json:"workflow_run_id"`
}

// handleRegisterDistributorInstance records a newly-started Distributor as
// a DistributorInstance row, local when workflow_run_id is set and shared
// otherwise (spec.md §4.3 Liveness, §3 DistributorInstance).
func (s *Server) handleRegisterDistributorInstance(w http.ResponseWriter, r *http.Request) {
	var req registerDistributorInstanceRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	di, err := s.store.RegisterDistributorInstance(r.Context(), req.ClusterID, req.WorkflowRunID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, di)
}

type selectDistributorInstanceRequest struct {
	ClusterID     int64 `json:"cluster_id" validate:"required"`
	WorkflowRunID int64 `json:"workflow_run_id" validate:"required"`
}

// handleSelectDistributorInstance picks the live DistributorInstance a
// Swarm should route new work through, returning NoActiveDistributor if
// none is currently alive for the cluster (spec.md §4.3).
func (s *Server) handleSelectDistributorInstance(w http.ResponseWriter, r *http.Request) {
	var req selectDistributorInstanceRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	di, err := s.store.SelectDistributorInstance(r.Context(), req.ClusterID, req.WorkflowRunID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, di)
}

type distributorHeartbeatRequest struct {
	NextReportIncrementSeconds float64 `json:"next_report_increment_seconds" validate:"required,gt=0"`
}

func (s *Server) handleDistributorHeartbeat(w http.ResponseWriter, r *http.Request) {
	distributorInstanceID, err := idParam(r, "distributorInstanceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req distributorHeartbeatRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	increment := time.Duration(req.NextReportIncrementSeconds * float64(time.Second))
	if err := s.store.HeartbeatDistributorInstance(r.Context(), distributorInstanceID, increment); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type expungeDistributorInstancesRequest struct {
	ClusterID int64 `json:"cluster_id" validate:"required"`
}

// handleExpungeDistributorInstances retires DistributorInstances whose
// heartbeat has lapsed so the Swarm can safely select a replacement
// (spec.md §4.3 Liveness).
func (s *Server) handleExpungeDistributorInstances(w http.ResponseWriter, r *http.Request) {
	var req expungeDistributorInstancesRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := s.store.ExpungeStaleDistributorInstances(r.Context(), req.ClusterID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expunged": ids})
}
