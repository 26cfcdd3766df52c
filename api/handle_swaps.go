package api

import (
	"net/http"
	"strconv"

	"github.com/phoenix-network/phoenix-pipeline/database/models"
	"github.com/phoenix-network/phoenix-pipeline/types"
)

func (s *Server) handleSwapsGet(w http.ResponseWriter, r *http.Request) {
	// Get query parameters
	page, err := strconv.ParseInt(r.URL.Query().Get("page"), 10, 64)
	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.ParseInt(r.URL.Query().Get("pageSize"), 10, 64)
	if err != nil || pageSize < 1 {
		pageSize = 10
	}

	// Build filter from query parameters
	filter := models.Filter{
		PairKey: r.URL.Query().Get("pair"),
		Token:   r.URL.Query().Get("token"),
		TxHash:  r.URL.Query().Get("txHash"),
	}

	// Get swaps
	result, err := s.db.GetSwaps(r.Context(), filter, page, pageSize)
	if err != nil {
		ERROR(w, http.StatusInternalServerError, err)
		return
	}

	JSON(w, http.StatusOK, result)
}

func (s *Server) handleSummaryGet(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.db.GetLatestSummaries(r.Context())
	if err != nil {
		ERROR(w, http.StatusInternalServerError, err)
		return
	}

	JSON(w, http.StatusOK, summaries)
}

func (s *Server) handleStatusGet(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"stage": types.Idle,
	}
	if s.opts.Stage != nil {
		status["stage"] = s.opts.Stage()
	}

	if s.opts.Checkpoint != nil {
		cp, err := s.opts.Checkpoint.Read()
		if err != nil {
			ERROR(w, http.StatusInternalServerError, err)
			return
		}
		status["last_processed_block"] = cp.LastProcessedBlock
		status["last_updated_at"] = cp.LastUpdatedAt
	}

	JSON(w, http.StatusOK, status)
}
