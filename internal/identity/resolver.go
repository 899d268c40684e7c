package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/CIRWEL/unitares-sub004/internal/apierr"
	"github.com/CIRWEL/unitares-sub004/internal/model"
	"github.com/CIRWEL/unitares-sub004/internal/storage"
)

// Store is the subset of storage.Store the resolver needs, kept narrow so
// tests can fake it without pulling in the full interface.
type Store interface {
	UpsertIdentity(ctx context.Context, identity model.Identity) (model.Identity, error)
	GetIdentityByAgentID(ctx context.Context, agentID string) (model.Identity, error)
	CreateSession(ctx context.Context, session model.Session) (model.Session, error)
	GetSession(ctx context.Context, sessionID string) (model.Session, error)
	RefreshSession(ctx context.Context, sessionID string, newExpiry time.Time) (model.Session, error)
}

// Request is the input to Resolve: a (session_key, model_type?, client_hint?,
// user_agent?) tuple, plus the caller-supplied client_session_id override
// some tools pass explicitly.
type Request struct {
	SessionKey      string
	ModelType       string
	ClientHint      string
	UserAgent       string
	ClientSessionID string // optional explicit override
	Persist         bool   // if false, a new identity is cached but never written to the store
}

// Result is what Resolve returns on every path.
type Result struct {
	AgentUUID       uuid.UUID
	AgentID         string
	ClientSessionID string
	Created         bool
}

// Resolver implements the cache-hit / store-hit / create-new resolution
// chain, including fingerprint normalization for rotating proxies.
type Resolver struct {
	store      Store
	cache      Cache
	logger     *slog.Logger
	sessionTTL time.Duration
	pinTTL     time.Duration
}

// New constructs a Resolver. cache may be nil, in which case every call
// degrades straight to the store (CACHE_UNAVAILABLE path).
func New(store Store, cache Cache, logger *slog.Logger, sessionTTL, pinTTL time.Duration) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, cache: cache, logger: logger, sessionTTL: sessionTTL, pinTTL: pinTTL}
}

// Resolve maps a transport session key to a stable agent_uuid, trying the
// cache, then the store, then creating a fresh identity.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	sessionKey := req.SessionKey
	clientSessionID := req.ClientSessionID

	// Fingerprint pin injection: a rotating-proxy key with no explicit
	// client_session_id looks up the pin written at onboard time.
	if clientSessionID == "" {
		if normalized, _, ok := NormalizeFingerprint(sessionKey); ok && r.cache != nil {
			if pin, found, err := r.cache.Get(ctx, PinKey(normalized[3:])); err != nil {
				r.logger.Warn("identity: pin lookup failed", "error", err)
			} else if found {
				clientSessionID = pin.ClientSessionID
			}
		}
	}

	lookupKey := sessionKey
	if clientSessionID != "" {
		lookupKey = clientSessionID
	}

	if r.cache != nil {
		entry, found, err := r.cache.Get(ctx, lookupKey)
		if err != nil {
			r.logger.Warn("identity: cache unavailable, degrading to store", "error", err)
		} else if found {
			agentUUID, err := uuid.Parse(entry.AgentUUID)
			if err != nil {
				return Result{}, apierr.Wrap(apierr.CategorySystem, apierr.CodeDatabaseError, err)
			}
			_ = r.cache.Set(ctx, lookupKey, entry, r.sessionTTL)
			return Result{AgentUUID: agentUUID, AgentID: entry.AgentID, ClientSessionID: entry.ClientSessionID}, nil
		}
	}

	session, err := r.store.GetSession(ctx, lookupKey)
	if err == nil && !session.Expired(time.Now()) {
		identity, err := r.identityByID(ctx, session.IdentityID)
		if err != nil {
			return Result{}, err
		}
		if _, err := r.store.RefreshSession(ctx, lookupKey, time.Now().Add(r.sessionTTL)); err != nil {
			r.logger.Warn("identity: session refresh failed", "error", err)
		}
		result := Result{AgentUUID: identity.AgentUUID, AgentID: identity.AgentID, ClientSessionID: lookupKey}
		r.populateCache(ctx, lookupKey, result)
		return result, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Result{}, apierr.Wrap(apierr.CategorySystem, apierr.CodeDatabaseError, err)
	}

	return r.createNew(ctx, req, lookupKey)
}

// identityByID loads the identity a session points at. Sessions reference
// identities by agent_uuid, so a store offering GetIdentityByUUID (both
// storage backends do) is queried by it; any other Store is asked for the
// UUID's string form through GetIdentityByAgentID.
func (r *Resolver) identityByID(ctx context.Context, id uuid.UUID) (model.Identity, error) {
	var identity model.Identity
	var err error
	if byUUID, ok := r.store.(interface {
		GetIdentityByUUID(ctx context.Context, id uuid.UUID) (model.Identity, error)
	}); ok {
		identity, err = byUUID.GetIdentityByUUID(ctx, id)
	} else {
		identity, err = r.store.GetIdentityByAgentID(ctx, id.String())
	}
	if err != nil {
		return model.Identity{}, apierr.Wrap(apierr.CategorySystem, apierr.CodeDatabaseError, err)
	}
	return identity, nil
}

func (r *Resolver) createNew(ctx context.Context, req Request, lookupKey string) (Result, error) {
	now := time.Now().UTC()
	agentUUID := uuid.New()
	agentID := DeriveAgentID(req.ModelType, req.ClientHint, now)
	clientSessionID := ClientSessionID(agentUUID.String())

	identity := model.Identity{
		AgentUUID: agentUUID,
		AgentID:   agentID,
		Role:      model.RoleAgent,
		Status:    model.StatusActive,
		CreatedAt: now,
		Metadata:  map[string]any{},
	}

	if req.Persist {
		saved, err := r.store.UpsertIdentity(ctx, identity)
		if err != nil {
			return Result{}, apierr.Wrap(apierr.CategorySystem, apierr.CodeDatabaseError, err)
		}
		identity = saved

		session := model.Session{
			SessionID:  clientSessionID,
			IdentityID: identity.AgentUUID,
			ExpiresAt:  now.Add(r.sessionTTL),
			ClientType: req.ClientHint,
		}
		if _, err := r.store.CreateSession(ctx, session); err != nil {
			return Result{}, apierr.Wrap(apierr.CategorySystem, apierr.CodeDatabaseError, err)
		}
	}

	result := Result{AgentUUID: agentUUID, AgentID: agentID, ClientSessionID: clientSessionID, Created: true}
	r.populateCache(ctx, lookupKey, result)
	r.populateCache(ctx, clientSessionID, result)

	// Write the onboard pin for rotating-fingerprint keys so a later call
	// from the same UA with a different IP can recover this agent_uuid.
	if normalized, _, ok := NormalizeFingerprint(req.SessionKey); ok && r.cache != nil {
		pin := Entry{AgentUUID: agentUUID.String(), AgentID: agentID, ClientSessionID: clientSessionID}
		if err := r.cache.Set(ctx, PinKey(normalized[3:]), pin, r.pinTTL); err != nil {
			r.logger.Warn("identity: failed to write onboard pin", "error", err)
		}
	}

	return result, nil
}

func (r *Resolver) populateCache(ctx context.Context, key string, result Result) {
	if r.cache == nil {
		return
	}
	entry := Entry{AgentUUID: result.AgentUUID.String(), AgentID: result.AgentID, ClientSessionID: result.ClientSessionID}
	if err := r.cache.Set(ctx, key, entry, r.sessionTTL); err != nil {
		r.logger.Warn("identity: failed to populate cache", "error", err, "key", key)
	}
}

var errIdentityAmbiguous = apierr.New(apierr.CategoryState, apierr.CodeIdentityAmbiguous,
	"store contains conflicting session-to-identity mappings")

// ErrIdentityAmbiguous is returned when the store's session and identity
// records disagree in a way that cannot be resolved deterministically.
func ErrIdentityAmbiguous() error { return errIdentityAmbiguous }
