package chainio

import (
	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
)

// sdkLogger routes eigensdk client logs through the service logger.
type sdkLogger struct {
	logging.Logger
}

var _ sdklogging.Logger = sdkLogger{}

func newSDKLogger(logger logging.Logger) sdklogging.Logger {
	return sdkLogger{Logger: logger.With("component", "eigensdk")}
}

func (l sdkLogger) With(tags ...any) sdklogging.Logger {
	return sdkLogger{Logger: l.Logger.With(tags...)}
}
