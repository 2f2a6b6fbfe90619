package infra

import (
	"sync"
	"time"

	"chatguard/middleware/ratelimit/domain"
)

// FixedWindow conta admissões por chave dentro de janelas fixas.
//
// A janela de cada chave começa na criação da entrada (ou no último reset),
// não em fronteiras de minuto do relógio. Na virada da janela é possível
// admitir até 2x o limite em sequência curta; esse comportamento é esperado.
//
// A tabela usa um RWMutex só para lookup/insert; a sequência
// verifica-reseta-incrementa de cada chave é serializada pelo mutex da
// própria entrada, então chaves diferentes não se bloqueiam.
type FixedWindow struct {
	mu      sync.RWMutex
	entries map[string]*windowEntry
	window  time.Duration
	now     domain.Clock
}

type windowEntry struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
}

type FixedWindowOption func(*FixedWindow)

func WithClock(c domain.Clock) FixedWindowOption {
	return func(f *FixedWindow) {
		if c != nil {
			f.now = c
		}
	}
}

func NewFixedWindow(window time.Duration, opts ...FixedWindowOption) *FixedWindow {
	if window <= 0 {
		window = time.Minute
	}
	f := &FixedWindow{
		entries: make(map[string]*windowEntry),
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FixedWindow) Window() time.Duration { return f.window }
func (f *FixedWindow) Now() time.Time        { return f.now() }

// Allow implementa domain.Limiter.
func (f *FixedWindow) Allow(key domain.Key, limit int) bool {
	e := f.entry(string(key))

	e.mu.Lock()
	defer e.mu.Unlock()

	now := f.now()
	if now.Sub(e.windowStart) >= f.window {
		e.count = 0
		e.windowStart = now
	}

	if e.count < limit {
		e.count++
		return true
	}
	return false
}

// entry devolve a entrada da chave, criando-a na primeira vez (insert-if-absent).
func (f *FixedWindow) entry(key string) *windowEntry {
	f.mu.RLock()
	e, ok := f.entries[key]
	f.mu.RUnlock()
	if ok {
		return e
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if e, ok := f.entries[key]; ok {
		return e
	}
	e = &windowEntry{windowStart: f.now()}
	f.entries[key] = e
	return e
}

// Reset descarta todas as chaves.
//
// Chamadas de Allow em andamento podem terminar sobre a entrada antiga; ela
// só deixa de ser visível, nunca fica parcialmente escrita.
func (f *FixedWindow) Reset() {
	f.mu.Lock()
	f.entries = make(map[string]*windowEntry)
	f.mu.Unlock()
}

// Peek devolve o estado atual da chave sem criar entrada nem contar admissão.
// Uma janela já vencida aparece com Count=0.
func (f *FixedWindow) Peek(key domain.Key) (domain.WindowState, bool) {
	f.mu.RLock()
	e, ok := f.entries[string(key)]
	f.mu.RUnlock()
	if !ok {
		return domain.WindowState{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := domain.WindowState{Key: key, Count: e.count, WindowStart: e.windowStart}
	if f.now().Sub(e.windowStart) >= f.window {
		st.Count = 0
	}
	return st, true
}

func (f *FixedWindow) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

var (
	_ domain.Limiter         = (*FixedWindow)(nil)
	_ domain.WindowInspector = (*FixedWindow)(nil)
)
