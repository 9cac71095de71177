// Package quota aplica techos de uso por usuario según su plan de
// suscripción: contador diario, mensual y requests concurrentes en vuelo.
// Es independiente del rate limiter (corto plazo vs. facturación).
package quota

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/doorman/internal/counter"
)

// Unlimited es el sentinel para "nunca denegar".
const Unlimited = -1

type Plan struct {
	Name       string
	Daily      int64
	Monthly    int64
	Concurrent int64
}

type Usage struct {
	Daily      int64
	Monthly    int64
	Concurrent int64
}

// Razones de denegación, en orden de evaluación.
const (
	ExceededDaily      = "daily"
	ExceededMonthly    = "monthly"
	ExceededConcurrent = "concurrent"
)

type Result struct {
	Allowed bool
	// Exceeded nombra el primer techo superado ("" si Allowed).
	Exceeded string
	Plan     Plan
	Usage    Usage
}

type Enforcer struct {
	store counter.Store
}

func New(store counter.Store) *Enforcer {
	return &Enforcer{store: store}
}

// keys alineadas a los límites UTC de día/mes: el reset es por expiración
// de la key, no por un job.
func dailyKey(userID string, now time.Time) string {
	return "q:d:" + userID + ":" + now.UTC().Format("20060102")
}
func monthlyKey(userID string, now time.Time) string {
	return "q:m:" + userID + ":" + now.UTC().Format("200601")
}
func concurrentKey(userID string) string { return "q:c:" + userID }

func untilNextDay(now time.Time) time.Duration {
	n := now.UTC()
	next := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return next.Sub(n)
}

func untilNextMonth(now time.Time) time.Duration {
	n := now.UTC()
	next := time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return next.Sub(n)
}

// Check evalúa en orden: diario, mensual, concurrente. El primer techo
// superado determina la razón; no incrementa nada.
func (e *Enforcer) Check(ctx context.Context, userID string, plan Plan) (Result, error) {
	now := time.Now()
	var u Usage
	var err error

	if u.Daily, err = e.store.Get(ctx, dailyKey(userID, now)); err != nil {
		return Result{}, err
	}
	if u.Monthly, err = e.store.Get(ctx, monthlyKey(userID, now)); err != nil {
		return Result{}, err
	}
	if u.Concurrent, err = e.store.SetCard(ctx, concurrentKey(userID)); err != nil {
		return Result{}, err
	}

	res := Result{Plan: plan, Usage: u}
	switch {
	case plan.Daily != Unlimited && u.Daily >= plan.Daily:
		res.Exceeded = ExceededDaily
	case plan.Monthly != Unlimited && u.Monthly >= plan.Monthly:
		res.Exceeded = ExceededMonthly
	case plan.Concurrent != Unlimited && u.Concurrent >= plan.Concurrent:
		res.Exceeded = ExceededConcurrent
	default:
		res.Allowed = true
	}
	return res, nil
}

// Increment suma 1 al contador diario y mensual. Se llama una vez por
// request admitido: admisión implica facturación, sin paso de commit.
func (e *Enforcer) Increment(ctx context.Context, userID string) error {
	now := time.Now()
	if _, err := e.store.Incr(ctx, dailyKey(userID, now), untilNextDay(now)); err != nil {
		return err
	}
	_, err := e.store.Incr(ctx, monthlyKey(userID, now), untilNextMonth(now))
	return err
}

// Acquire toma un slot de concurrencia y devuelve el release. El caller
// garantiza invocar release en todo camino de salida (defer), incluido
// error del handler o desconexión del cliente; si no, el techo de
// concurrencia queda filtrado para ese usuario.
// El TTL del set es solo red de seguridad ante un proceso caído.
func (e *Enforcer) Acquire(ctx context.Context, userID string) (release func(), err error) {
	member := uuid.NewString()
	key := concurrentKey(userID)
	if _, err := e.store.SetAdd(ctx, key, member, time.Hour); err != nil {
		return nil, err
	}
	return func() {
		// release usa un contexto propio: debe correr aunque el request
		// original ya haya sido cancelado.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.store.SetRem(rctx, key, member)
	}, nil
}
