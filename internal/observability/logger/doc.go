// Package logger centraliza el logging estructurado del servicio.
//
// Envuelve zap con un singleton (Init/L), propagación por contexto
// (ToContext/From) y helpers tipados para los campos que usamos en
// todo el código (request_id, client_id, grant_type, strategy, ...).
//
// Uso típico en un service:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token"))
//	log.Warn("authorization code expired", logger.ClientID(clientID))
package logger
