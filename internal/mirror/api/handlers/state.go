package handlers

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/mirror"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// GetState returns the committed mirror state.
func (h *MirrorHandler) GetState(c *gin.Context) {
	s, err := h.mirror.State(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.stateResponse(s))
}

// GetOperator returns one mirrored operator record.
func (h *MirrorHandler) GetOperator(c *gin.Context) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid operator address", Kind: mirror.KindDecode})
		return
	}

	s, err := h.mirror.State(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	rec, ok := s.Operators[common.HexToAddress(raw)]
	if !ok {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "operator not mirrored", Kind: "not_found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetHistory returns recent submissions, newest first.
func (h *MirrorHandler) GetHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "limit must be a positive integer", Kind: mirror.KindDecode})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	rows, err := h.mirror.History(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to read submission history", "error", err)
		h.fail(c, err)
		return
	}
	if rows == nil {
		rows = []mirror.Submission{}
	}
	c.JSON(http.StatusOK, rows)
}

func (h *MirrorHandler) stateResponse(s *mirror.State) types.MirrorStateResponse {
	cfg := h.mirror.Config()
	resp := types.MirrorStateResponse{
		Handler:         cfg.Name,
		PayloadKind:     cfg.Kind,
		ApplyMode:       string(cfg.Mode),
		Version:         s.Version,
		LastTriggerID:   s.LastTriggerID,
		ThresholdWeight: types.NewBigInt(s.Threshold()),
		TotalWeight:     types.NewBigInt(s.TotalWeight()),
		Operators:       s.OperatorSet(),
		StateDigest:     s.Digest().Hex(),
		UpdatedAt:       s.UpdatedAt,
	}
	if len(s.Quorums) > 0 {
		resp.Quorums = s.Quorums
	}
	if num, den := s.QuorumFraction(); den != nil && den.Sign() > 0 {
		resp.QuorumNumerator = types.NewBigInt(num)
		resp.QuorumDenominator = types.NewBigInt(den)
	}
	return resp
}
