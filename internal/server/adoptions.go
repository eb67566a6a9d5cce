package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"shelter/internal/domain"
	"shelter/internal/engine"
)

func registerAdoptions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-adoptions",
		Method:      http.MethodGet,
		Path:        "/adoptions",
		Summary:     "List adoption requests",
		Description: "Staff see every request; adopters see only their own.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:"pending,approved,rejected,returned"`
		AnimalID string `query:"animal_id"`
		UserID   string `query:"user_id"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedAdoptions `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListAdoptions(ctx, actor, engine.AdoptionFilter{
			UserID:            input.UserID,
			AnimalID:          input.AnimalID,
			Status:            input.Status,
			Limit:             limit + 1,
			CursorSubmittedAt: cursorTS,
			CursorID:          cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedAdoptions{}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.SubmittedAt, last.ID)
			items = items[:limit]
		}
		resp.Items = mapAdoptions(items)
		return &struct {
			Body paginatedAdoptions `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-returnable-adoptions",
		Method:      http.MethodGet,
		Path:        "/adoptions/returnable",
		Summary:     "Approved requests of the caller that can still be returned",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AdoptionResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ReturnableAdoptions(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AdoptionResponse `json:"body"`
		}{Body: mapAdoptions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-adoption",
		Method:        http.MethodPost,
		Path:          "/adoptions",
		Summary:       "Submit an adoption request",
		Description:   "Adopters file for themselves. Administrators may file on behalf of an adopter by setting user_id.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateAdoptionRequest `json:"body"`
	}) (*struct {
		Body AdoptionResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		animalID := strings.TrimSpace(input.Body.AnimalID)
		if animalID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "animal_id is required", nil)
		}
		var (
			created domain.Adoption
			err     error
		)
		userID := strings.TrimSpace(input.Body.UserID)
		if userID != "" && userID != actor.ID {
			created, err = e.CreateAdoptionFor(ctx, actor, userID, animalID)
		} else {
			created, err = e.CreateAdoption(ctx, actor, animalID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AdoptionResponse `json:"body"`
		}{Body: adoptionResponse(created)}, nil
	})

	type adoptionPath struct {
		ID string `path:"id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-adoption",
		Method:      http.MethodGet,
		Path:        "/adoptions/{id}",
		Summary:     "Get an adoption request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *adoptionPath) (*struct {
		Body AdoptionResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.GetAdoption(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		has, err := e.HasReturn(ctx, actor, a.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := adoptionResponse(a)
		resp.HasReturn = &has
		return &struct {
			Body AdoptionResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-adoption-status",
		Method:      http.MethodPut,
		Path:        "/adoptions/{id}",
		Summary:     "Approve or reject an adoption request",
		Description: "Approving marks the animal adopted and rejects every other pending request for it. Rejecting requires a reason.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body UpdateAdoptionRequest `json:"body"`
	}) (*struct {
		Body AdoptionResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateStatus(ctx, actor, input.ID, input.Body.Status, input.Body.RejectionReason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AdoptionResponse `json:"body"`
		}{Body: adoptionResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-adoption",
		Method:        http.MethodDelete,
		Path:          "/adoptions/{id}",
		Summary:       "Delete an adoption request",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *adoptionPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAdoption(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "return-adoption",
		Method:        http.MethodPost,
		Path:          "/adoptions/{id}/return",
		Summary:       "Return an adopted animal to the shelter",
		Description:   "Only the adopter who owns the approved request may file it.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body ReturnRequest `json:"body"`
	}) (*struct {
		Body ReturnResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		r, err := e.CreateReturn(ctx, actor, input.ID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReturnResponse `json:"body"`
		}{Body: returnResponse(r)}, nil
	})
}

func registerReturns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-returns",
		Method:      http.MethodGet,
		Path:        "/returns",
		Summary:     "List returns",
		Description: "Staff see every return; adopters see returns of their own requests.",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ReturnResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListReturns(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ReturnResponse `json:"body"`
		}{Body: mapReturns(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "process-return",
		Method:        http.MethodPost,
		Path:          "/returns",
		Summary:       "Record a return on behalf of an adopter",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body ProcessReturnRequest `json:"body"`
	}) (*struct {
		Body ReturnResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		r, err := e.ProcessReturn(ctx, actor, input.Body.AdoptionID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReturnResponse `json:"body"`
		}{Body: returnResponse(r)}, nil
	})

	type returnPath struct {
		ID string `path:"id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-return",
		Method:      http.MethodGet,
		Path:        "/returns/{id}",
		Summary:     "Get a return",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *returnPath) (*struct {
		Body ReturnResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		r, err := e.GetReturn(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReturnResponse `json:"body"`
		}{Body: returnResponse(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-return",
		Method:        http.MethodDelete,
		Path:          "/returns/{id}",
		Summary:       "Delete a return record",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *returnPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteReturn(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
