package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"careline/internal/config"
	"careline/internal/domain"
	"careline/internal/engine/auth"
	"careline/internal/engine/capacity"
	"careline/internal/engine/escalation"
	"careline/internal/engine/rules"
	"careline/internal/events"
	"careline/internal/logging"
	"careline/internal/repo"
)

// Engine is the host around the pure decision packages: it loads state,
// checks the acting actor, runs the core and persists results with an audit
// event in the same transaction.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Rules  *rules.Set
	Log    *zap.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, log *zap.Logger) (Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	set, err := cfg.CompileRules()
	if err != nil {
		return Engine{}, fmt.Errorf("compile rules: %w", err)
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Auth:   auth.Service{Repo: r},
		Config: cfg,
		Rules:  set,
		Log:    logging.OrNop(log),
		Now:    time.Now,
	}, nil
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

func (e Engine) log() *zap.Logger {
	return logging.OrNop(e.Log)
}

func (e Engine) audit() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

func (e Engine) workflow() escalation.Workflow {
	return escalation.Workflow{Now: e.now, NewID: uuid.NewString}
}

// Policy returns the stored workload policy, falling back to the config seed.
func (e Engine) Policy(ctx context.Context) (domain.PolicyRecord, error) {
	return e.policy(ctx, nil)
}

func (e Engine) policy(ctx context.Context, tx *sql.Tx) (domain.PolicyRecord, error) {
	rec, err := e.Repo.GetPolicy(ctx, tx)
	if errors.Is(err, repo.ErrNotFound) {
		p := domain.DefaultWorkloadPolicy()
		if e.Config != nil {
			p = e.Config.Workload
		}
		return domain.PolicyRecord{Policy: p}, nil
	}
	return rec, err
}

// UpdatePolicy replaces the workload policy. Directors only.
func (e Engine) UpdatePolicy(ctx context.Context, policy domain.WorkloadPolicy, actorID string) (domain.PolicyRecord, error) {
	if err := capacity.ValidatePolicy(policy); err != nil {
		return domain.PolicyRecord{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PolicyRecord{}, err
	}
	defer tx.Rollback()

	if _, err := e.Auth.Require(ctx, tx, actorID, auth.PermPolicyWrite); err != nil {
		return domain.PolicyRecord{}, err
	}
	old, err := e.policy(ctx, tx)
	if err != nil {
		return domain.PolicyRecord{}, err
	}
	rec := domain.PolicyRecord{Policy: policy, UpdatedAt: e.timestamp(), UpdatedBy: actorID}
	if err := e.Repo.UpsertPolicy(ctx, tx, rec); err != nil {
		return domain.PolicyRecord{}, err
	}
	if err := e.audit().Append(ctx, tx, events.PolicyUpdated, "", "policy", "workload", actorID, events.EventPayload{
		"old": old.Policy,
		"new": policy,
	}); err != nil {
		return domain.PolicyRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PolicyRecord{}, err
	}
	e.log().Info("workload policy updated",
		zap.String("actor_id", actorID),
		zap.Int("max_points", policy.MaxPoints),
		zap.Float64("amber_threshold", policy.AmberThreshold))
	return rec, nil
}

// RegisterActor adds an actor to the roster. The first actor may be
// registered by anyone and must be a DIRECTOR; after that the caller needs
// roster rights and cannot grant a tier above its own.
func (e Engine) RegisterActor(ctx context.Context, a domain.ActorRecord, byActorID string) (domain.ActorRecord, error) {
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		return a, domain.Invalid("id", "required")
	}
	if !a.Role.Valid() {
		return a, domain.Invalid("role", "unknown role %q", a.Role)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()

	if err := e.ensureRosterRights(ctx, tx, a.Role, byActorID); err != nil {
		return a, err
	}
	if byActorID == "" {
		byActorID = a.ID
	}
	a.CreatedAt = e.timestamp()
	if err := e.Repo.InsertActor(ctx, tx, a); err != nil {
		return a, fmt.Errorf("insert actor: %w", err)
	}
	if err := e.audit().Append(ctx, tx, events.ActorRegistered, "", "actor", a.ID, byActorID, events.EventPayload{"role": a.Role}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

func (e Engine) ensureRosterRights(ctx context.Context, tx *sql.Tx, role domain.ActorRole, byActorID string) error {
	n, err := e.Repo.CountActors(ctx, tx)
	if err != nil {
		return err
	}
	if n == 0 {
		if role != domain.RoleDirector {
			return domain.Invalid("role", "the first actor must be a DIRECTOR")
		}
		return nil
	}
	by, err := e.Auth.Require(ctx, tx, byActorID, auth.PermRosterManage)
	if err != nil {
		return err
	}
	if !by.Role.AtLeast(role) {
		return auth.ForbiddenError{Permission: auth.PermRosterManage, Role: by.Role}
	}
	return nil
}

// RegisterCaseworker rosters a CASEWORKER (creating the actor if needed) with
// an empty load and an optional personal ceiling.
func (e Engine) RegisterCaseworker(ctx context.Context, id, name string, maxPoints *int, byActorID string) (domain.Caseworker, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Caseworker{}, domain.Invalid("id", "required")
	}
	if maxPoints != nil && *maxPoints < 0 {
		return domain.Caseworker{}, domain.Invalid("max_points", "must be >= 0, got %d", *maxPoints)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Caseworker{}, err
	}
	defer tx.Rollback()

	if _, err := e.Auth.Require(ctx, tx, byActorID, auth.PermRosterManage); err != nil {
		return domain.Caseworker{}, err
	}
	now := e.timestamp()
	existing, err := e.Repo.GetActor(ctx, tx, id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		if err := e.Repo.InsertActor(ctx, tx, domain.ActorRecord{ID: id, Name: name, Role: domain.RoleCaseworker, CreatedAt: now}); err != nil {
			return domain.Caseworker{}, fmt.Errorf("insert actor: %w", err)
		}
	case err != nil:
		return domain.Caseworker{}, err
	case existing.Role != domain.RoleCaseworker:
		return domain.Caseworker{}, domain.Invalid("id", "actor %s is a %s, not a CASEWORKER", id, existing.Role)
	}
	c := domain.Caseworker{ID: id, Name: name, MaxPoints: maxPoints, CreatedAt: now}
	if err := e.Repo.InsertCaseworker(ctx, tx, c); err != nil {
		return domain.Caseworker{}, fmt.Errorf("insert caseworker: %w", err)
	}
	if err := e.audit().Append(ctx, tx, events.CaseworkerRegistered, "", "caseworker", id, byActorID, events.EventPayload{"max_points": maxPoints}); err != nil {
		return domain.Caseworker{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Caseworker{}, err
	}
	return e.Repo.GetCaseworker(ctx, nil, id)
}

// CreateAPIKey issues a key for actorID. The plaintext key is returned once;
// only its hash is stored. Actors may issue keys for themselves; issuing for
// someone else needs roster rights.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name, byActorID string) (string, domain.APIKey, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	defer tx.Rollback()

	if _, err := e.Auth.Actor(ctx, tx, actorID); err != nil {
		return "", domain.APIKey{}, err
	}
	if byActorID != actorID {
		if _, err := e.Auth.Require(ctx, tx, byActorID, auth.PermRosterManage); err != nil {
			return "", domain.APIKey{}, err
		}
	}
	secret := "clk_" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	if err := e.audit().Append(ctx, tx, events.APIKeyCreated, "", "api_key", key.ID, byActorID, events.EventPayload{"actor_id": actorID, "name": name}); err != nil {
		return "", domain.APIKey{}, err
	}
	if err := tx.Commit(); err != nil {
		return "", domain.APIKey{}, err
	}
	return secret, key, nil
}

// RevokeAPIKey deletes a key. Owners may revoke their own keys; anyone else
// needs roster rights.
func (e Engine) RevokeAPIKey(ctx context.Context, id, byActorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	key, err := e.Repo.GetAPIKey(ctx, tx, id)
	if err != nil {
		return err
	}
	if key.ActorID != byActorID {
		if _, err := e.Auth.Require(ctx, tx, byActorID, auth.PermRosterManage); err != nil {
			return err
		}
	}
	if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
		return err
	}
	if err := e.audit().Append(ctx, tx, events.APIKeyRevoked, "", "api_key", id, byActorID, events.EventPayload{"actor_id": key.ActorID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Info("api key revoked", zap.String("key_id", id), zap.String("by", byActorID))
	return nil
}

// ListEvents returns audit rows newest first.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}
