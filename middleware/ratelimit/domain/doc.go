// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// Chaves, classes de endpoint e políticas de limite vivem aqui; quem monta a
// chave e escolhe o limite é o chamador.
package domain
