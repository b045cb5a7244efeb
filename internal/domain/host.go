package domain

// Event is one row of the append-only audit log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	CaseID     string `json:"case_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// ActorRecord is a rostered user with a single role tier.
type ActorRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Role      ActorRole `json:"role" enum:"CASEWORKER,SUPERVISOR,DIRECTOR"`
	CreatedAt string    `json:"created_at" format:"date-time"`
}

func (a ActorRecord) Actor() Actor {
	return Actor{ID: a.ID, Role: a.Role}
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// PolicyRecord is the stored workload policy and who last changed it.
type PolicyRecord struct {
	Policy    WorkloadPolicy `json:"policy"`
	UpdatedAt string         `json:"updated_at,omitempty" format:"date-time"`
	UpdatedBy string         `json:"updated_by,omitempty"`
}

// Assignment statuses.
const (
	AssignmentHeld   = "held"
	AssignmentActive = "active"
)
