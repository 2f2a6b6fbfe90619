package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

type Key string

// Class separa o tráfego de um mesmo cliente em contadores independentes.
type Class string

const (
	ClassNormal    Class = "normal"
	ClassSensitive Class = "auth"
)

// ComposeKey monta a chave "{cliente}_{classe}" usada pelos limiters.
func ComposeKey(client string, class Class) Key {
	if class == "" {
		class = ClassNormal
	}
	return Key(client + "_" + string(class))
}

// Clock permite injetar o relógio (testes usam um relógio fake).
type Clock func() time.Time

// Policy define os limites por janela de cada classe de endpoint.
type Policy struct {
	NormalLimit    int
	SensitiveLimit int
	Window         time.Duration
}

// DefaultPolicy: 60 req/min para endpoints comuns e 5 req/min para auth.
func DefaultPolicy() Policy {
	return Policy{
		NormalLimit:    60,
		SensitiveLimit: 5,
		Window:         time.Minute,
	}
}

func (p Policy) LimitFor(class Class) int {
	if class == ClassSensitive {
		return p.SensitiveLimit
	}
	return p.NormalLimit
}

// Limiter decide se uma requisição da chave pode ser admitida agora.
//
// Allow nunca falha: false significa rejeição por política, não erro.
// Implementações devem ser seguras para uso concorrente.
type Limiter interface {
	Allow(key Key, limit int) bool
	Reset()
}

// WindowState é uma visão somente leitura do contador de uma chave.
type WindowState struct {
	Key         Key       `json:"key"`
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// WindowInspector é opcional: limiters de janela fixa expõem o estado atual
// para cálculo de Retry-After e endpoints administrativos. Now é o relógio
// do próprio limiter, o mesmo que ancora WindowStart.
type WindowInspector interface {
	Peek(key Key) (WindowState, bool)
	Window() time.Duration
	Len() int
	Now() time.Time
}

type Decision struct {
	Allowed bool
	Key     Key
	Limit   int
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
