// Package web serves the HTML form endpoints. Every handler answers with a
// 303 redirect and leaves an advisory flash message.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"shelter/internal/domain"
	"shelter/internal/engine"
	"shelter/internal/engine/auth"
	"shelter/internal/web/flash"
)

type Config struct {
	Engine engine.Engine
	// Authenticate resolves the caller of a form post.
	Authenticate func(*http.Request) (auth.Actor, error)
	// ContactPhone is quoted in the return confirmation.
	ContactPhone string
	Logger       *slog.Logger
}

type handler struct {
	e            engine.Engine
	authenticate func(*http.Request) (auth.Actor, error)
	phone        string
	logger       *slog.Logger
}

// New returns the form router; mount it under /forms.
func New(cfg Config) http.Handler {
	h := &handler{
		e:            cfg.Engine,
		authenticate: cfg.Authenticate,
		phone:        cfg.ContactPhone,
		logger:       cfg.Logger,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Post("/adoptions", h.createAdoption)
	r.Post("/adoptions/status", h.changeStatus)
	r.Post("/adoptions/{id}", h.adoptionAction)
	r.Post("/returns", h.createReturn)
	r.Get("/flash", h.popFlash)
	return r
}

func (h *handler) createAdoption(w http.ResponseWriter, r *http.Request) {
	animalID := strings.TrimSpace(r.PostFormValue("animal_id"))
	back := redirectTarget(r, "/animals/"+animalID)
	actor, ok := h.actor(w, r, back)
	if !ok {
		return
	}
	if _, err := h.e.CreateAdoption(r.Context(), actor, animalID); err != nil {
		h.fail(w, r, back, err, createMessages)
		return
	}
	h.done(w, r, back, msgAdoptionSubmitted)
}

func (h *handler) adoptionAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	back := redirectTarget(r, "/adoptions/"+id)
	actor, ok := h.actor(w, r, back)
	if !ok {
		return
	}
	ctx := r.Context()
	switch r.PostFormValue("action") {
	case "approve":
		a, err := h.e.Approve(ctx, actor, id)
		if err != nil {
			h.fail(w, r, back, err, approveMessages)
			return
		}
		name := a.AnimalID
		if animal, err := h.e.GetAnimal(ctx, a.AnimalID); err == nil {
			name = animal.Name
		}
		h.done(w, r, back, fmt.Sprintf(msgApprovedFmt, name))
	case "reject":
		if _, err := h.e.Reject(ctx, actor, id, r.PostFormValue("rejection_reason")); err != nil {
			h.fail(w, r, back, err, rejectMessages)
			return
		}
		h.done(w, r, back, msgRejected)
	case "return":
		h.fileReturn(w, r, back, actor, id)
	default:
		h.notify(w, r, back, flash.Error(msgUnknownAction))
	}
}

func (h *handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	back := redirectTarget(r, "/adoptions")
	actor, ok := h.actor(w, r, back)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PostFormValue("adoption_id"))
	newStatus := strings.TrimSpace(r.PostFormValue("new_status"))
	_, err := h.e.UpdateStatus(r.Context(), actor, id, newStatus, r.PostFormValue("rejection_reason"))
	if err != nil {
		msgs := statusMessages
		if newStatus == domain.AdoptionRejected {
			msgs = statusRejectMessages
		}
		h.fail(w, r, back, err, msgs)
		return
	}
	h.done(w, r, back, msgStatusChanged)
}

func (h *handler) createReturn(w http.ResponseWriter, r *http.Request) {
	back := redirectTarget(r, "/returns")
	actor, ok := h.actor(w, r, back)
	if !ok {
		return
	}
	h.fileReturn(w, r, back, actor, strings.TrimSpace(r.PostFormValue("adoption_id")))
}

func (h *handler) fileReturn(w http.ResponseWriter, r *http.Request, back string, actor auth.Actor, adoptionID string) {
	ctx := r.Context()
	if _, err := h.e.CreateReturn(ctx, actor, adoptionID, r.PostFormValue("reason")); err != nil {
		msgs := returnMessages
		if errors.Is(err, engine.ErrInvalidState) {
			if has, herr := h.e.HasReturn(ctx, actor, adoptionID); herr == nil && has {
				msgs = returnDuplicateMessages
			}
		}
		h.fail(w, r, back, err, msgs)
		return
	}
	h.done(w, r, back, msgReturned+h.phone)
}

func (h *handler) popFlash(w http.ResponseWriter, r *http.Request) {
	notice, ok := flash.ReadAndClear(w, r)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(notice)
}

func (h *handler) actor(w http.ResponseWriter, r *http.Request, back string) (auth.Actor, bool) {
	if err := r.ParseForm(); err != nil {
		h.notify(w, r, back, flash.Error(msgBadForm))
		return auth.Actor{}, false
	}
	if h.authenticate == nil {
		h.notify(w, r, back, flash.Error(msgLoginRequired))
		return auth.Actor{}, false
	}
	actor, err := h.authenticate(r)
	if err != nil {
		h.logger.Debug("form post without valid credentials", "path", r.URL.Path, "err", err)
		h.notify(w, r, back, flash.Error(msgLoginRequired))
		return auth.Actor{}, false
	}
	return actor, true
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, back string, err error, msgs messages) {
	kind := engine.Kind(err)
	if kind == "internal" {
		h.logger.Error("form action failed", "path", r.URL.Path, "err", err)
	}
	h.notify(w, r, back, flash.Error(msgs.forKind(kind)))
}

func (h *handler) done(w http.ResponseWriter, r *http.Request, back, msg string) {
	h.notify(w, r, back, flash.Success(msg))
}

func (h *handler) notify(w http.ResponseWriter, r *http.Request, back string, n flash.Notice) {
	flash.Write(w, r, n)
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// redirectTarget prefers a local "next" field over the fallback.
func redirectTarget(r *http.Request, fallback string) string {
	next := strings.TrimSpace(r.PostFormValue("next"))
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.Contains(next, "\\") {
		return next
	}
	return fallback
}
