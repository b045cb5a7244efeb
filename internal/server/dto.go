package server

import (
	"encoding/json"

	"careline/internal/domain"
	"careline/internal/engine/release"
)

// Request payloads

type EvaluateRequest struct {
	CaseID  string                  `json:"case_id" minLength:"1"`
	Profile domain.ConditionProfile `json:"profile,omitempty"`
	Flags   []domain.Flag           `json:"flags,omitempty"`
	Client  domain.ClientContext    `json:"client,omitempty"`
}

type CapacityCheckRequest struct {
	CaseworkerID string `json:"caseworker_id" minLength:"1"`
	CaseID       string `json:"case_id,omitempty"`
	ClientName   string `json:"client_name,omitempty"`
	// Severity 0 uses the case's latest evaluation.
	Severity  int    `json:"severity,omitempty" minimum:"0" maximum:"4"`
	Commit    bool   `json:"commit,omitempty"`
	Narrative string `json:"narrative,omitempty"`
}

type OpenOverrideRequest struct {
	CaseID         string                  `json:"case_id" minLength:"1"`
	ClientName     string                  `json:"client_name,omitempty"`
	Origin         domain.OverrideOrigin   `json:"origin" enum:"CASEWORKER_TO_SUPERVISOR,SUPERVISOR_TO_DIRECTOR"`
	Category       domain.OverrideCategory `json:"category"`
	ReasonCategory string                  `json:"reason_category,omitempty"`
	Justification  string                  `json:"justification"`
	CaseworkerID   string                  `json:"caseworker_id,omitempty"`
	SupervisorID   string                  `json:"supervisor_id,omitempty"`
	DirectorID     string                  `json:"director_id,omitempty"`
	Context        domain.OverrideContext  `json:"context,omitempty"`
	Metadata       map[string]any          `json:"metadata,omitempty"`
}

// DecisionRequest drives approve, deny, more-info and resubmit. Reason is the
// justification on resubmit.
type DecisionRequest struct {
	ExpectedVersion int    `json:"expected_version" minimum:"1"`
	Reason          string `json:"reason"`
}

type ReleaseCheckRequest struct {
	Tasks []domain.Task `json:"tasks,omitempty"`
}

type RegisterActorRequest struct {
	ID   string           `json:"id" minLength:"1"`
	Name string           `json:"name,omitempty"`
	Role domain.ActorRole `json:"role" enum:"CASEWORKER,SUPERVISOR,DIRECTOR"`
}

type RegisterCaseworkerRequest struct {
	ID        string `json:"id" minLength:"1"`
	Name      string `json:"name,omitempty"`
	MaxPoints *int   `json:"max_points,omitempty" minimum:"0"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type OverrideResponse = domain.OverrideRequest

type paginatedOverrides struct {
	Items []OverrideResponse `json:"items"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	CaseID     string          `json:"case_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type ReleaseCheckResponse = release.Decision

type CaseworkerListResponse struct {
	Items []domain.Caseworker `json:"items"`
}

type AssignmentListResponse struct {
	Items []domain.Assignment `json:"items"`
}

type ActorListResponse struct {
	Items []domain.ActorRecord `json:"items"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only returned once, at creation.
	Key string `json:"key,omitempty"`
}

type WhoAmIResponse struct {
	ActorID     string           `json:"actor_id"`
	Role        domain.ActorRole `json:"role,omitempty"`
	Permissions []string         `json:"permissions"`
	Source      string           `json:"source"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		CaseID:     evt.CaseID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}

func apiKeyResponse(k domain.APIKey, secret string) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		ActorID:   k.ActorID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
		Key:       secret,
	}
}

func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
