package application

import (
	"time"

	"chatguard/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit: monta a chave
// "{cliente}_{classe}", escolhe o limite da classe e consulta o Limiter.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Limiter    domain.Limiter
	Policy     domain.Policy
	RetryAfter time.Duration
}

func (s Service) Decide(client string, class domain.Class) domain.Decision {
	if s.Policy == (domain.Policy{}) {
		s.Policy = domain.DefaultPolicy()
	}

	key := domain.ComposeKey(client, class)
	limit := s.Policy.LimitFor(class)
	dec := domain.Decision{Allowed: true, Key: key, Limit: limit}

	if s.Limiter == nil {
		return dec
	}
	if s.Limiter.Allow(key, limit) {
		return dec
	}

	dec.Allowed = false
	dec.RetryAfter = s.retryAfter(key)
	return dec
}

// retryAfter usa o tempo restante da janela quando o limiter expõe o estado,
// medido pelo relógio do próprio limiter; caso contrário cai no valor
// configurado. Nunca menos de 1s.
func (s Service) retryAfter(key domain.Key) time.Duration {
	fallback := s.RetryAfter
	if fallback <= 0 {
		fallback = time.Second
	}

	insp, ok := s.Limiter.(domain.WindowInspector)
	if !ok {
		return fallback
	}
	st, ok := insp.Peek(key)
	if !ok {
		return fallback
	}

	remaining := st.WindowStart.Add(insp.Window()).Sub(insp.Now())
	if remaining < time.Second {
		return time.Second
	}
	// arredonda para cima: Retry-After é enviado em segundos inteiros
	return (remaining + time.Second - 1).Truncate(time.Second)
}
