package temporal

import "go.uber.org/zap"

// ZapAdapter implements the Temporal SDK logger on top of zap. Temporal passes fields as
// alternating key/value pairs, so the sugared logger is used.
type ZapAdapter struct{ *zap.SugaredLogger }

func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{logger.Named("temporal").Sugar()}
}

func (z *ZapAdapter) Debug(msg string, keyvals ...any) { z.Debugw(msg, keyvals...) }
func (z *ZapAdapter) Info(msg string, keyvals ...any)  { z.Infow(msg, keyvals...) }
func (z *ZapAdapter) Warn(msg string, keyvals ...any)  { z.Warnw(msg, keyvals...) }
func (z *ZapAdapter) Error(msg string, keyvals ...any) { z.Errorw(msg, keyvals...) }
