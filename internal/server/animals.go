package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"shelter/internal/domain"
	"shelter/internal/engine"
)

func animalInput(in AnimalRequest) engine.AnimalInput {
	return engine.AnimalInput{
		Name:         in.Name,
		Species:      in.Species,
		Breed:        in.Breed,
		AgeYears:     in.AgeYears,
		AgeMonths:    in.AgeMonths,
		HealthStatus: in.HealthStatus,
		Description:  in.Description,
	}
}

func registerAnimals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-animals",
		Method:      http.MethodGet,
		Path:        "/animals",
		Summary:     "Browse the animal directory",
	}, func(ctx context.Context, input *struct {
		Species string `query:"species"`
		Status  string `query:"status" enum:"in_shelter,adopted"`
	}) (*struct {
		Body []domain.Animal `json:"body"`
	}, error) {
		items, err := e.ListAnimals(ctx, input.Species, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Animal `json:"body"`
		}{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-animal",
		Method:        http.MethodPost,
		Path:          "/animals",
		Summary:       "Add an animal to the shelter",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body AnimalRequest `json:"body"`
	}) (*struct {
		Body domain.Animal `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAnimal(ctx, actor, animalInput(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Animal `json:"body"`
		}{Body: a}, nil
	})

	type animalPath struct {
		ID string `path:"id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-animal",
		Method:      http.MethodGet,
		Path:        "/animals/{id}",
		Summary:     "Get an animal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *animalPath) (*struct {
		Body domain.Animal `json:"body"`
	}, error) {
		a, err := e.GetAnimal(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Animal `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-animal",
		Method:      http.MethodPut,
		Path:        "/animals/{id}",
		Summary:     "Edit an animal profile",
		Description: "Adoption status is driven by the adoption lifecycle and cannot be set here.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AnimalRequest `json:"body"`
	}) (*struct {
		Body domain.Animal `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateAnimal(ctx, actor, input.ID, animalInput(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Animal `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-animal",
		Method:        http.MethodDelete,
		Path:          "/animals/{id}",
		Summary:       "Remove an animal",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *animalPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAnimal(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
