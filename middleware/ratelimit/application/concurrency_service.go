package application

import (
	"context"
	"sync"
	"time"

	"chatguard/middleware/ratelimit/domain"
)

// ConcurrencyService limita requisições simultâneas com espera opcional,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
// - AcquireTimeout <= 0: espera até o ctx encerrar.
// - AcquireTimeout > 0: espera no máximo esse tempo.
// Com ok=false nenhuma vaga foi adquirida. O release devolvido pode ser
// chamado mais de uma vez; só a primeira chamada libera a vaga.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if !ok {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(release) }, true
}
