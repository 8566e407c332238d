package embedded

import "go.uber.org/zap"

// printer routes script console output to the engine logger.
type printer struct {
	log *zap.Logger
}

func (p *printer) Log(s string)   { p.log.Info(s, zap.String("source", "console")) }
func (p *printer) Warn(s string)  { p.log.Warn(s, zap.String("source", "console")) }
func (p *printer) Error(s string) { p.log.Error(s, zap.String("source", "console")) }
