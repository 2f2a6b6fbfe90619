// Package ratelimit fornece adapters HTTP (net/http) para rate limit por janela
// fixa e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, acquire/timeout) sem net/http
//   - infra: implementações concretas (janela fixa, token bucket, semáforo, stats)
//   - ratelimit (este pacote): middlewares HTTP, extração de chave/classe,
//     tradução para status/headers e endpoints administrativos
//
// Fluxo por requisição:
//
//  1. Extrai o cliente (header/XFF/X-Real-IP/RemoteAddr)
//  2. Classifica o endpoint (sensível, ex.: /auth/, ou normal)
//  3. Service.Decide compõe "{cliente}_{classe}" e aplica o limite da classe
//  4. Se bloqueado, responde 429 com Retry-After sem chamar o próximo handler
//  5. Se permitido, chama o próximo handler (ex: reverse proxy)
package ratelimit
