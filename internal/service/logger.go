package service

import (
	"github.com/hupay-bridge/internal/logger"

	"go.uber.org/zap"
)

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}
