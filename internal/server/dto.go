package server

import (
	"shelter/internal/domain"
)

// Request payloads

type CreateAdoptionRequest struct {
	AnimalID string `json:"animal_id"`
	// UserID files the request on behalf of an adopter. Administrators only.
	UserID string `json:"user_id,omitempty"`
}

type UpdateAdoptionRequest struct {
	Status          string `json:"status" enum:"pending,approved,rejected,returned"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

type ReturnRequest struct {
	Reason string `json:"reason"`
}

type ProcessReturnRequest struct {
	AdoptionID string `json:"adoption_id"`
	Reason     string `json:"reason"`
}

type AnimalRequest struct {
	Name         string `json:"name"`
	Species      string `json:"species"`
	Breed        string `json:"breed,omitempty"`
	AgeYears     int    `json:"age_years,omitempty" minimum:"0"`
	AgeMonths    int    `json:"age_months,omitempty" minimum:"0" maximum:"11"`
	HealthStatus string `json:"health_status"`
	Description  string `json:"description,omitempty"`
}

type CreateUserRequest struct {
	Username      string `json:"username"`
	Role          string `json:"role" enum:"admin,volunteer,adopter"`
	HasExperience bool   `json:"has_experience,omitempty"`
	HasOtherPets  bool   `json:"has_other_pets,omitempty"`
	ReadyForPet   string `json:"ready_for_pet,omitempty"`
}

type RegisterRequest struct {
	Username      string `json:"username"`
	HasExperience bool   `json:"has_experience,omitempty"`
	HasOtherPets  bool   `json:"has_other_pets,omitempty"`
	ReadyForPet   string `json:"ready_for_pet,omitempty"`
}

type IssueAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	Username string `json:"username"`
}

// Responses

type AdoptionResponse struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	AnimalID        string `json:"animal_id"`
	Status          string `json:"status" enum:"pending,approved,rejected,returned"`
	SubmittedAt     string `json:"submitted_at" format:"date-time"`
	RejectionReason string `json:"rejection_reason"`
	HasReturn       *bool  `json:"has_return,omitempty"`
}

type ReturnResponse struct {
	ID          string  `json:"id"`
	AdoptionID  string  `json:"adoption_id"`
	Reason      string  `json:"reason"`
	ReturnedAt  string  `json:"returned_at" format:"date-time"`
	ProcessedBy *string `json:"processed_by"`
}

type paginatedAdoptions struct {
	Items      []AdoptionResponse `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	// Key is the plaintext key, present only in the issue response.
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type MeResponse struct {
	User   domain.User `json:"user"`
	Source string      `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func adoptionResponse(a domain.Adoption) AdoptionResponse {
	return AdoptionResponse{
		ID:              a.ID,
		UserID:          a.UserID,
		AnimalID:        a.AnimalID,
		Status:          a.Status,
		SubmittedAt:     a.SubmittedAt,
		RejectionReason: a.RejectionReason,
	}
}

func mapAdoptions(items []domain.Adoption) []AdoptionResponse {
	res := make([]AdoptionResponse, 0, len(items))
	for _, a := range items {
		res = append(res, adoptionResponse(a))
	}
	return res
}

func returnResponse(r domain.Return) ReturnResponse {
	return ReturnResponse{
		ID:          r.ID,
		AdoptionID:  r.AdoptionID,
		Reason:      r.Reason,
		ReturnedAt:  r.ReturnedAt,
		ProcessedBy: r.ProcessedBy,
	}
}

func mapReturns(items []domain.Return) []ReturnResponse {
	res := make([]ReturnResponse, 0, len(items))
	for _, r := range items {
		res = append(res, returnResponse(r))
	}
	return res
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
