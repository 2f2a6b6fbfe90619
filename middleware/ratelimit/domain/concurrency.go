package domain

import "context"

// SlotPool limita quantas requisições ficam em voo ao mesmo tempo.
//
// Acquire espera por uma vaga até o ctx encerrar. Com ok=true, release
// devolve a vaga e deve ser chamado exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	InUse() int
}
