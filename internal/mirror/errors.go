package mirror

import (
	"errors"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/codec"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/verifier"
)

var (
	ErrStaleOrDuplicateTrigger = errors.New("stale or duplicate trigger")
	ErrNotInitialized          = errors.New("mirror state not initialized")
	ErrConcurrentUpdate        = errors.New("mirror state changed concurrently")

	// Re-exported so callers classify handler rejections from one package.
	ErrDecode             = codec.ErrDecode
	ErrInvalidSignature   = verifier.ErrInvalidSignature
	ErrInsufficientWeight = verifier.ErrInsufficientWeight
)

// Error kinds reported in history rows, metrics labels and API responses.
const (
	KindNone                    = ""
	KindDecode                  = types.ErrorKindDecode
	KindInvalidSignature        = types.ErrorKindInvalidSignature
	KindInsufficientWeight      = types.ErrorKindInsufficientWeight
	KindStaleOrDuplicateTrigger = types.ErrorKindStaleOrDuplicateTrigger
	KindConcurrentUpdate        = types.ErrorKindConcurrentUpdate
	KindNotInitialized          = types.ErrorKindNotInitialized
	KindInternal                = types.ErrorKindInternal
)

func ErrorKind(err error) string {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrInvalidSignature):
		return KindInvalidSignature
	case errors.Is(err, ErrInsufficientWeight):
		return KindInsufficientWeight
	case errors.Is(err, ErrStaleOrDuplicateTrigger):
		return KindStaleOrDuplicateTrigger
	case errors.Is(err, ErrConcurrentUpdate):
		return KindConcurrentUpdate
	case errors.Is(err, ErrNotInitialized):
		return KindNotInitialized
	default:
		return KindInternal
	}
}
