package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/mirror"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

// SubmitEnvelope accepts one signed envelope. The body carries the
// ABI-encoded envelope and signature data as 0x-prefixed hex.
func (h *MirrorHandler) SubmitEnvelope(c *gin.Context) {
	var req types.SubmitEnvelopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, types.ErrorResponse{
				Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
				Kind:  mirror.KindDecode,
			})
			return
		}
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error(), Kind: mirror.KindDecode})
		return
	}

	receipt, err := h.mirror.HandleEncoded(c.Request.Context(), req.Envelope, req.SignatureData)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.SubmitEnvelopeResponse{
		ID:          receipt.ID.String(),
		Handler:     receipt.Handler,
		PayloadKind: receipt.PayloadKind,
		EventID:     receipt.EventID,
		TriggerID:   receipt.TriggerID,
		Version:     receipt.Version,
		StateDigest: receipt.StateDigest,
		AppliedAt:   receipt.AppliedAt,
	})
}
