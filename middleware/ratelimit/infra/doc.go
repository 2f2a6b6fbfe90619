// Package infra contém implementações concretas para os contratos do pacote domain.
//
//   - FixedWindow: contador de janela fixa por chave (padrão)
//   - TokenBucket: alternativa opt-in usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
//   - MemoryStatsStore, RedisStatsStore, PrometheusStatsStore: destinos de estatísticas
package infra
