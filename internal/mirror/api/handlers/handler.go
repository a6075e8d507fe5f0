package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/mirror"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

// Mirror is the part of mirror.Handler the API serves.
type Mirror interface {
	Config() mirror.HandlerConfig
	State(ctx context.Context) (*mirror.State, error)
	History(ctx context.Context, limit int) ([]mirror.Submission, error)
	HandleEncoded(ctx context.Context, envelope, signatureData []byte) (*mirror.Receipt, error)
}

// MirrorHandler serves envelope submission and state reads for one handler.
type MirrorHandler struct {
	logger logging.Logger
	mirror Mirror
}

func NewMirrorHandler(logger logging.Logger, m Mirror) *MirrorHandler {
	return &MirrorHandler{
		logger: logger,
		mirror: m,
	}
}

// statusFor maps a rejection to its HTTP status.
func statusFor(err error) (int, string) {
	kind := mirror.ErrorKind(err)
	switch kind {
	case mirror.KindDecode:
		return http.StatusBadRequest, kind
	case mirror.KindInvalidSignature:
		return http.StatusUnauthorized, kind
	case mirror.KindInsufficientWeight:
		return http.StatusForbidden, kind
	case mirror.KindStaleOrDuplicateTrigger, mirror.KindConcurrentUpdate:
		return http.StatusConflict, kind
	case mirror.KindNotInitialized:
		return http.StatusServiceUnavailable, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

func (h *MirrorHandler) fail(c *gin.Context, err error) {
	status, kind := statusFor(err)
	c.JSON(status, types.ErrorResponse{Error: err.Error(), Kind: kind})
}
