package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shelter/internal/config"
	"shelter/internal/db"
	"shelter/internal/engine/auth"
	"shelter/internal/events"
	"shelter/internal/metrics"
	"shelter/internal/repo"
)

// Engine is the adoption lifecycle core. Both front-ends call it for every
// mutation; it owns adoption and return transitions and the animal status
// changes they imply.
type Engine struct {
	DB      *db.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Policy  auth.Policy
	Metrics metrics.Recorder
	Logger  *slog.Logger
	Now     func() time.Time

	chart statusChart
}

func New(conn *db.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:      conn,
		Repo:    repo.Repo{DB: conn},
		Events:  events.Writer{DB: conn},
		Config:  cfg,
		Policy:  auth.DefaultPolicy(),
		Metrics: metrics.Noop{},
		Logger:  slog.Default(),
		Now:     time.Now,
		chart:   mustAdoptionChart(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) recorder() metrics.Recorder {
	if e.Metrics != nil {
		return e.Metrics
	}
	return metrics.Noop{}
}

func (e Engine) statusChart() statusChart {
	if e.chart.machine == nil {
		return mustAdoptionChart()
	}
	return e.chart
}

// authorize consults the policy table before any state is read.
func (e Engine) authorize(op auth.Operation, actor auth.Actor) error {
	policy := e.Policy
	if policy == nil {
		policy = auth.DefaultPolicy()
	}
	return policy.Check(op, actor)
}

// observe is deferred by every mutating operation to log and count failures.
func (e Engine) observe(op auth.Operation, actor auth.Actor, errp *error) {
	if errp == nil || *errp == nil {
		return
	}
	err := *errp
	kind := Kind(err)
	if kind == "internal" {
		e.log().Error("lifecycle operation failed", "op", op, "actor_id", actor.ID, "err", err)
		return
	}
	e.recorder().Denied(kind)
	e.log().Info("lifecycle operation refused", "op", op, "actor_id", actor.ID, "kind", kind, "reason", err.Error())
}

func (e Engine) cascadeReason() string {
	if e.Config != nil && e.Config.Lifecycle.CascadeRejectionReason != "" {
		return e.Config.Lifecycle.CascadeRejectionReason
	}
	return config.Default().Lifecycle.CascadeRejectionReason
}

// ResolveActor loads the caller's role from storage. Front-ends never trust a
// role carried by the client.
func (e Engine) ResolveActor(ctx context.Context, userID string) (auth.Actor, error) {
	if strings.TrimSpace(userID) == "" {
		return auth.Actor{}, fmt.Errorf("%w: user id required", ErrValidation)
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return auth.Actor{}, fmt.Errorf("user %s: %w", userID, err)
	}
	return auth.Actor{ID: u.ID, Role: u.Role}, nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}
