package dialectic

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// resolutionHashPrefix tags the encoding the same way integrity's
// ComputeAuditHash tags its own, so a resolution hash is never mistaken for
// an audit-event hash even though both are length-prefixed SHA-256 digests.
const resolutionHashPrefix = "dialectic-resolution-v1:"

// buildResolution derives the terminal Resolution from a converged
// session's final synthesis message. The action is resume when the session
// converged with a set of conditions to apply (the common case — the paused
// agent proposed a correction the reviewer accepted), and block when
// convergence was reached with no conditions, i.e. both parties agreed the
// pause should stand.
func buildResolution(session model.DialecticSession, msg model.DialecticMessage) model.Resolution {
	action := model.ActionResume
	if len(msg.ProposedConditions) == 0 {
		action = model.ActionBlock
	}

	rootCause := msg.RootCause
	if rootCause == "" {
		rootCause = firstThesisRootCause(session)
	}

	r := model.Resolution{
		Action:     action,
		Conditions: msg.ProposedConditions,
		RootCause:  rootCause,
	}
	r.Hash = hashResolution(session.SessionID, r)
	return r
}

func firstThesisRootCause(session model.DialecticSession) string {
	for _, m := range session.Transcript {
		if m.MessageType == model.MsgThesis {
			return m.RootCause
		}
	}
	return ""
}

func hashResolution(sessionID uuid.UUID, r model.Resolution) string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	writeField(sessionID.String())
	writeField(string(r.Action))
	writeField(r.RootCause)
	for _, c := range r.Conditions {
		writeField(c.Raw)
	}
	return resolutionHashPrefix + hex.EncodeToString(h.Sum(nil))
}

// ResolutionEffect describes the identity/discovery side effects a caller
// must apply after a session resolves. This package never touches
// storage.Store, internal/identity, or internal/knowledge directly — it only
// describes what should change, keeping it as side-effect-free as
// governance.Step.
type ResolutionEffect struct {
	AgentID uuid.UUID

	// SetIdentityStatus, when non-empty, is the new status to apply to
	// AgentID. Resume sets StatusActive and clears PausedAt; block leaves
	// the identity's status untouched (empty).
	SetIdentityStatus model.IdentityStatus
	ClearPausedAt     bool

	// Conditions to merge into the agent's AgentState.DialecticConditions.
	ApplyConditions []model.DialecticCondition

	// DiscoveryID/annotation to apply when the session was attached to a
	// discovery. ResolveDiscovery means mark it resolved with Annotation as
	// a correction note; non-nil DiscoveryID with ResolveDiscovery false
	// means annotate without changing its status (the block path).
	DiscoveryID      *uuid.UUID
	ResolveDiscovery bool
	Annotation       string
}

// ExecuteResolution turns a converged session's Resolution into the
// ResolutionEffect a caller should apply. now stamps each condition's
// AppliedAt. Returns an error if session has not actually resolved, or if a
// resume resolution targets an identity that isn't currently paused.
func ExecuteResolution(session model.DialecticSession, identityStatus model.IdentityStatus, now time.Time) (ResolutionEffect, error) {
	if session.Status != model.DialecticConverged || session.Resolution == nil {
		return ResolutionEffect{}, fmt.Errorf("dialectic: session %s has not converged", session.SessionID)
	}
	res := *session.Resolution

	effect := ResolutionEffect{AgentID: session.PausedAgentID}

	switch res.Action {
	case model.ActionResume:
		if identityStatus != model.StatusPaused {
			return ResolutionEffect{}, fmt.Errorf("dialectic: resume resolution requires identity %s to be paused, got %s", session.PausedAgentID, identityStatus)
		}
		effect.SetIdentityStatus = model.StatusActive
		effect.ClearPausedAt = true
		stamped := make([]model.DialecticCondition, len(res.Conditions))
		for i, c := range res.Conditions {
			c.AppliedAt = now
			stamped[i] = c
		}
		effect.ApplyConditions = stamped

		if session.DiscoveryID != nil && session.DisputeType != nil &&
			(*session.DisputeType == model.DisputeDispute || *session.DisputeType == model.DisputeCorrection) {
			effect.DiscoveryID = session.DiscoveryID
			effect.ResolveDiscovery = true
			effect.Annotation = "corrected via dialectic resolution: " + res.RootCause
		}

	case model.ActionBlock:
		if session.DiscoveryID != nil {
			effect.DiscoveryID = session.DiscoveryID
			effect.ResolveDiscovery = false
			effect.Annotation = "verified via dialectic resolution: pause upheld"
		}

	default:
		return ResolutionEffect{}, fmt.Errorf("dialectic: unknown resolution action %q", res.Action)
	}

	return effect, nil
}

// CancelSession transitions session to canceled from any non-terminal phase.
func CancelSession(session model.DialecticSession, reason string, now time.Time) (model.DialecticSession, error) {
	switch session.Status {
	case model.DialecticConverged, model.DialecticFailed, model.DialecticCanceled:
		return session, fmt.Errorf("dialectic: session %s is already terminal (status %s)", session.SessionID, session.Status)
	}

	session, _ = appendMessage(session, model.DialecticMessage{
		AgentID:     uuid.Nil,
		MessageType: model.MsgSystem,
		Reasoning:   "session canceled: " + reason,
	}, now)
	session.Phase = model.PhaseCanceled
	session.Status = model.DialecticCanceled
	return session, nil
}
