package admission

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/doorman/internal/oauth"
	"github.com/dropDatabas3/doorman/internal/observability/logger"
	"github.com/dropDatabas3/doorman/internal/observability/metrics"
	"github.com/dropDatabas3/doorman/internal/quota"
	"github.com/dropDatabas3/doorman/internal/rate"
	"github.com/dropDatabas3/doorman/internal/store"
)

// TokenValidator es lo único que el pipeline necesita del servicio OAuth.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*store.AccessToken, error)
}

type Options struct {
	RateEnabled  bool
	RateConfig   rate.Config
	QuotaEnabled bool
	// Plans por nombre; DefaultPlan aplica a usuarios sin plan asignado.
	Plans       map[string]quota.Plan
	DefaultPlan string
}

// Pipeline es el middleware de admisión: rate -> auth -> quota -> handler.
type Pipeline struct {
	opts     Options
	limiter  *rate.Limiter
	enforcer *quota.Enforcer
	tokens   TokenValidator
	users    oauth.Directory
}

func NewPipeline(opts Options, l *rate.Limiter, e *quota.Enforcer, tv TokenValidator, users oauth.Directory) *Pipeline {
	return &Pipeline{opts: opts, limiter: l, enforcer: e, tokens: tv, users: users}
}

// Wrap aplica la cadena completa a un handler.
func (p *Pipeline) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac := &Context{Identifier: clientIP(r)}
		ctx := withContext(r.Context(), ac)
		r = r.WithContext(ctx)

		// 1. rate limit por IP, siempre, fail-open
		if !p.rateStage(w, r, ac) {
			return
		}
		// 2. bearer, solo si viene el header, fail-closed
		if !p.authStage(w, r, ac) {
			return
		}
		// 3. quota por plan, solo con principal resuelto, fail-open
		release, ok := p.quotaStage(w, r, ac)
		if !ok {
			return
		}
		if release != nil {
			defer release()
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Pipeline) rateStage(w http.ResponseWriter, r *http.Request, ac *Context) bool {
	if !p.opts.RateEnabled {
		return true
	}
	res, err := p.limiter.Check(r.Context(), ac.Identifier, p.opts.RateConfig)
	if err != nil {
		// fail open: el limiter caído no deniega tráfico
		metrics.AdmissionDecisions.WithLabelValues("rate", "error").Inc()
		logger.From(r.Context()).Warn("rate limiter unavailable, admitting", logger.Err(err))
		return true
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	if res.Allowed {
		metrics.AdmissionDecisions.WithLabelValues("rate", "allowed").Inc()
		return true
	}
	metrics.AdmissionDecisions.WithLabelValues("rate", "denied").Inc()
	secs := int64(res.RetryAfter / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("X-RateLimit-Retry-After", strconv.FormatInt(secs, 10))
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	writeErr(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
	return false
}

func (p *Pipeline) authStage(w http.ResponseWriter, r *http.Request, ac *Context) bool {
	tok, present := bearerToken(r)
	if !present {
		return true
	}
	at, err := p.tokens.ValidateAccessToken(r.Context(), tok)
	if err != nil {
		// fail closed en ambos casos, pero un store caído no es lo mismo
		// que un token revocado: 503, no 401
		if errors.Is(err, oauth.ErrServerError) {
			metrics.AdmissionDecisions.WithLabelValues("auth", "error").Inc()
			writeErr(w, http.StatusServiceUnavailable, "server_error", "token validation is temporarily unavailable")
			return false
		}
		metrics.AdmissionDecisions.WithLabelValues("auth", "denied").Inc()
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeErr(w, http.StatusUnauthorized, "invalid_token", "the access token is expired, revoked or malformed")
		return false
	}
	pr := &Principal{UserID: at.UserID, ClientID: at.ClientID, Scopes: at.Scopes}
	pr.Plan = p.planFor(at.UserID)
	ac.Principal = pr
	metrics.AdmissionDecisions.WithLabelValues("auth", "allowed").Inc()
	return true
}

func (p *Pipeline) planFor(userID string) quota.Plan {
	name := p.opts.DefaultPlan
	if u, ok := p.users.ByID(userID); ok && u.Plan != "" {
		name = u.Plan
	}
	if pl, ok := p.opts.Plans[name]; ok {
		pl.Name = name
		return pl
	}
	// plan desconocido: nunca denegar por un typo de config
	return quota.Plan{Name: name, Daily: quota.Unlimited, Monthly: quota.Unlimited, Concurrent: quota.Unlimited}
}

func (p *Pipeline) quotaStage(w http.ResponseWriter, r *http.Request, ac *Context) (release func(), ok bool) {
	if !p.opts.QuotaEnabled || ac.Principal == nil {
		return nil, true
	}
	ctx := r.Context()
	pr := ac.Principal
	res, err := p.enforcer.Check(ctx, pr.UserID, pr.Plan)
	if err != nil {
		metrics.AdmissionDecisions.WithLabelValues("quota", "error").Inc()
		logger.From(ctx).Warn("quota store unavailable, admitting", logger.Err(err))
		return nil, true
	}
	setQuotaHeaders(w, res)
	if !res.Allowed {
		metrics.AdmissionDecisions.WithLabelValues("quota", "denied").Inc()
		w.Header().Set("X-Quota-Exceeded", res.Exceeded)
		writeErr(w, http.StatusPaymentRequired, "quota_exceeded",
			"plan "+pr.Plan.Name+" "+res.Exceeded+" quota exceeded")
		return nil, false
	}
	metrics.AdmissionDecisions.WithLabelValues("quota", "allowed").Inc()
	if err := p.enforcer.Increment(ctx, pr.UserID); err != nil {
		logger.From(ctx).Warn("quota increment failed", logger.Err(err))
	}
	rel, err := p.enforcer.Acquire(ctx, pr.UserID)
	if err != nil {
		logger.From(ctx).Warn("quota acquire failed", logger.Err(err))
		return nil, true
	}
	return rel, true
}

// setQuotaHeaders emite los pares Limit/Used por techo. En admisión van
// los tres (salteando ilimitados); en denegación solo el techo que
// disparó el 402.
func setQuotaHeaders(w http.ResponseWriter, res quota.Result) {
	ceilings := []struct {
		name  string
		limit int64
		used  int64
	}{
		{quota.ExceededDaily, res.Plan.Daily, res.Usage.Daily},
		{quota.ExceededMonthly, res.Plan.Monthly, res.Usage.Monthly},
		{quota.ExceededConcurrent, res.Plan.Concurrent, res.Usage.Concurrent},
	}
	for _, c := range ceilings {
		if c.limit == quota.Unlimited {
			continue
		}
		if res.Exceeded != "" && res.Exceeded != c.name {
			continue
		}
		h := quotaHeaderSegment[c.name]
		w.Header().Set("X-Quota-"+h+"-Limit", strconv.FormatInt(c.limit, 10))
		w.Header().Set("X-Quota-"+h+"-Used", strconv.FormatInt(c.used, 10))
	}
}

var quotaHeaderSegment = map[string]string{
	quota.ExceededDaily:      "Daily",
	quota.ExceededMonthly:    "Monthly",
	quota.ExceededConcurrent: "Concurrent",
}

// writeErr emite el JSON de error estándar. Local al paquete para no
// depender del layer HTTP (que monta este middleware).
func writeErr(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":             code,
		"error_description": desc,
		"error_code":        status,
	})
}
