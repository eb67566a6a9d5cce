package domain

// Adoption statuses.
const (
	AdoptionPending  = "pending"
	AdoptionApproved = "approved"
	AdoptionRejected = "rejected"
	AdoptionReturned = "returned"
)

// Animal statuses.
const (
	AnimalInShelter = "in_shelter"
	AnimalAdopted   = "adopted"
)

// Roles.
const (
	RoleAdmin     = "admin"
	RoleVolunteer = "volunteer"
	RoleAdopter   = "adopter"
)

type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Role          string `json:"role" enum:"admin,volunteer,adopter"`
	HasExperience bool   `json:"has_experience"`
	HasOtherPets  bool   `json:"has_other_pets"`
	ReadyForPet   string `json:"ready_for_pet,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Animal struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Species      string `json:"species"`
	Breed        string `json:"breed,omitempty"`
	AgeYears     int    `json:"age_years"`
	AgeMonths    int    `json:"age_months"`
	HealthStatus string `json:"health_status"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status" enum:"in_shelter,adopted"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Adoption struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	AnimalID        string `json:"animal_id"`
	Status          string `json:"status" enum:"pending,approved,rejected,returned"`
	SubmittedAt     string `json:"submitted_at" format:"date-time"`
	RejectionReason string `json:"rejection_reason"`
}

type Return struct {
	ID          string  `json:"id"`
	AdoptionID  string  `json:"adoption_id"`
	Reason      string  `json:"reason"`
	ReturnedAt  string  `json:"returned_at" format:"date-time"`
	ProcessedBy *string `json:"processed_by,omitempty"`
}

type Event struct {
	ID         string `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ValidRole reports whether r is one of the three shelter roles.
func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleVolunteer, RoleAdopter:
		return true
	}
	return false
}

// ValidAdoptionStatus reports whether s is a known adoption status.
func ValidAdoptionStatus(s string) bool {
	switch s {
	case AdoptionPending, AdoptionApproved, AdoptionRejected, AdoptionReturned:
		return true
	}
	return false
}
