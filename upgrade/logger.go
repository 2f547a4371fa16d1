package upgrade

import (
	"github.com/filecoin-project/go-state-types/rt"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("upgrade")

// Forwards engine logs to the node's logger.
type migrationLogger struct{}

func (ml migrationLogger) Log(level rt.LogLevel, msg string, args ...interface{}) {
	switch level {
	case rt.DEBUG:
		log.Debugf(msg, args...)
	case rt.INFO:
		log.Infof(msg, args...)
	case rt.WARN:
		log.Warnf(msg, args...)
	case rt.ERROR:
		log.Errorf(msg, args...)
	}
}
