// Package application contém os casos de uso de rate limit e limite de
// concorrência.
//
// Depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(cliente, classe) retorna uma Decision (allow/deny + retry-after).
package application
