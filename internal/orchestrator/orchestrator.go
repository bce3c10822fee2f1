// Package orchestrator composes the session store, profile resolver, and
// pairing engine into one observable application state machine. It is the
// sole interface the view layer consumes; screens never reach into the
// lower components directly.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/heartlink/backend/internal/logging"
	"github.com/heartlink/backend/internal/models"
	"github.com/heartlink/backend/internal/pairing"
	"github.com/heartlink/backend/internal/profile"
	"github.com/heartlink/backend/internal/realtime"
	"github.com/heartlink/backend/internal/repositories"
	"github.com/heartlink/backend/internal/session"
)

// ErrNotAuthenticated indicates an operation requiring a signed-in
// identity was called without one.
var ErrNotAuthenticated = errors.New("not authenticated")

// State is the coarse application state deciding screen reachability.
type State int

const (
	StateInitializing State = iota
	StateUnauthenticated
	StateUnpaired
	StatePaired
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateUnpaired:
		return "authenticated-unpaired"
	case StatePaired:
		return "authenticated-paired"
	default:
		return "unknown"
	}
}

// Snapshot is the observable application state. Profile may be nil while
// Identity is set: the session works but profile-dependent features are
// degraded. Couple non-nil with an empty second slot means an invite code
// is outstanding; that still counts as unpaired.
type Snapshot struct {
	State    State
	Identity *models.Identity
	Profile  *models.Profile
	Couple   *models.Couple
}

// IsPaired reports whether both member slots of the couple are filled.
// Pairing is always derived from the couple record, never stored.
func (s Snapshot) IsPaired() bool {
	return s.Couple != nil && s.Couple.UserTwo != nil
}

// PairingEngine is the slice of the pairing engine the orchestrator uses.
type PairingEngine interface {
	CreateInviteCode(ctx context.Context, identity models.Identity, anniversary time.Time) (models.Couple, error)
	RedeemInviteCode(ctx context.Context, identity models.Identity, code string) (models.Couple, error)
	CoupleInfo(ctx context.Context, identityID string) (*pairing.Info, error)
	Unpair(ctx context.Context, identityID string) error
}

// ProfileResolver is the slice of the profile resolver the orchestrator uses.
type ProfileResolver interface {
	GetOrCreate(ctx context.Context, identity models.Identity, defaults profile.Defaults) (models.Profile, error)
	Update(ctx context.Context, id string, changes repositories.ProfileChanges) (models.Profile, error)
}

// Orchestrator serializes state transitions and re-derives profile and
// couple data on each of them. An epoch counter bumped by every auth
// change lets in-flight operations detect that they went stale; stale
// results are discarded silently.
type Orchestrator struct {
	sessions *session.Store
	profiles ProfileResolver
	pairing  PairingEngine

	mu      sync.RWMutex
	snap    Snapshot
	epoch   uint64
	subs    map[int]chan Snapshot
	nextSub int
}

// New constructs an orchestrator in the Initializing state.
func New(sessions *session.Store, profiles ProfileResolver, engine PairingEngine) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		profiles: profiles,
		pairing:  engine,
		snap:     Snapshot{State: StateInitializing},
		subs:     make(map[int]chan Snapshot),
	}
}

// Init restores a persisted session, if any, and settles into the first
// steady state. Errors during restore degrade to Unauthenticated rather
// than failing startup.
func (o *Orchestrator) Init(ctx context.Context) Snapshot {
	identity, err := o.sessions.Restore(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("session restore errored", "error", err)
	}
	if identity == nil {
		o.commitSignedOut()
		return o.Current()
	}

	epoch := o.commitSignedIn(*identity)
	if err := o.loadUserData(ctx, *identity, epoch); err != nil {
		logging.FromContext(ctx).Warn("initial data load incomplete", "error", err)
	}
	return o.Current()
}

// SignUp registers a new account. On success the state moves to
// authenticated-unpaired, refined once the couple lookup resolves.
func (o *Orchestrator) SignUp(ctx context.Context, email, password string) (Snapshot, error) {
	return o.authenticate(ctx, func(ctx context.Context) (models.Identity, error) {
		return o.sessions.SignUp(ctx, email, password)
	})
}

// SignIn authenticates an existing account.
func (o *Orchestrator) SignIn(ctx context.Context, email, password string) (Snapshot, error) {
	return o.authenticate(ctx, func(ctx context.Context) (models.Identity, error) {
		return o.sessions.SignIn(ctx, email, password)
	})
}

func (o *Orchestrator) authenticate(ctx context.Context, signIn func(context.Context) (models.Identity, error)) (Snapshot, error) {
	before := o.currentEpoch()

	identity, err := signIn(ctx)
	if err != nil {
		return o.Current(), err
	}

	o.mu.Lock()
	if o.epoch != before {
		// A sign-out (or another sign-in) won the race; this result is
		// stale. Drop the stray session so the store agrees with us.
		o.mu.Unlock()
		_ = o.sessions.SignOut(ctx)
		return o.Current(), nil
	}
	o.epoch++
	epoch := o.epoch
	o.snap = Snapshot{State: StateUnpaired, Identity: &identity}
	snap := o.snap
	o.mu.Unlock()
	o.notify(snap)

	if err := o.loadUserData(ctx, identity, epoch); err != nil {
		return o.Current(), err
	}
	return o.Current(), nil
}

// SignOut transitions to Unauthenticated unconditionally and
// synchronously; the backend revoke happens after local state is already
// cleared and its failure never blocks the transition.
func (o *Orchestrator) SignOut(ctx context.Context) error {
	o.commitSignedOut()
	return o.sessions.SignOut(ctx)
}

// CreateInviteCode creates a pending couple for the current identity.
// Creating a code is not pairing: the state stays unpaired.
func (o *Orchestrator) CreateInviteCode(ctx context.Context, anniversary time.Time) (models.Couple, error) {
	identity, epoch, err := o.requireIdentity()
	if err != nil {
		return models.Couple{}, err
	}

	couple, err := o.pairing.CreateInviteCode(ctx, identity, anniversary)
	if err != nil {
		return models.Couple{}, err
	}

	if err := o.loadUserData(ctx, identity, epoch); err != nil {
		logging.FromContext(ctx).Warn("refresh after code creation failed", "error", err)
	}
	return couple, nil
}

// RedeemInviteCode pairs the current identity with the code's couple.
func (o *Orchestrator) RedeemInviteCode(ctx context.Context, code string) (models.Couple, error) {
	identity, epoch, err := o.requireIdentity()
	if err != nil {
		return models.Couple{}, err
	}

	couple, err := o.pairing.RedeemInviteCode(ctx, identity, code)
	if err != nil {
		return models.Couple{}, err
	}

	if err := o.loadUserData(ctx, identity, epoch); err != nil {
		logging.FromContext(ctx).Warn("refresh after redeem failed", "error", err)
	}
	return couple, nil
}

// Unpair dissolves the current identity's couple, if any.
func (o *Orchestrator) Unpair(ctx context.Context) error {
	identity, epoch, err := o.requireIdentity()
	if err != nil {
		return err
	}

	if err := o.pairing.Unpair(ctx, identity.ID); err != nil {
		return err
	}

	if err := o.loadUserData(ctx, identity, epoch); err != nil {
		logging.FromContext(ctx).Warn("refresh after unpair failed", "error", err)
	}
	return nil
}

// UpdateProfile applies a partial profile update for the current identity.
func (o *Orchestrator) UpdateProfile(ctx context.Context, changes repositories.ProfileChanges) (models.Profile, error) {
	identity, epoch, err := o.requireIdentity()
	if err != nil {
		return models.Profile{}, err
	}

	updated, err := o.profiles.Update(ctx, identity.ID, changes)
	if err != nil {
		return models.Profile{}, err
	}

	o.commitIfCurrent(epoch, func(snap *Snapshot) {
		p := updated
		snap.Profile = &p
	})
	return updated, nil
}

// RefreshCoupleData re-derives profile and couple from the backend. The
// view layer calls this on focus changes; the couple watcher calls it on
// realtime events.
func (o *Orchestrator) RefreshCoupleData(ctx context.Context) (Snapshot, error) {
	identity, epoch, err := o.requireIdentity()
	if err != nil {
		return o.Current(), err
	}
	if err := o.loadUserData(ctx, identity, epoch); err != nil {
		return o.Current(), err
	}
	return o.Current(), nil
}

// WatchCouple refreshes couple data whenever the realtime feed reports a
// change, until ctx is done or the feed closes. Convergence never depends
// on it; the watcher only shortens the window.
func (o *Orchestrator) WatchCouple(ctx context.Context, broker realtime.Broker) error {
	snap := o.Current()
	if snap.Couple == nil {
		return errors.New("no couple to watch")
	}

	events, cancel, err := broker.Subscribe(ctx, snap.Couple.ID)
	if err != nil {
		return fmt.Errorf("subscribe to couple feed: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := o.RefreshCoupleData(ctx); err != nil {
				logging.FromContext(ctx).Warn("couple refresh failed", "error", err)
			}
		}
	}
}

// Current returns a copy of the present snapshot.
func (o *Orchestrator) Current() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap
}

// Subscribe registers a snapshot listener. Delivery is best-effort; the
// latest snapshot can always be read via Current.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	ch := make(chan Snapshot, 16)
	o.subs[id] = ch
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		if sub, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(sub)
		}
		o.mu.Unlock()
	}
	return ch, cancel
}

// loadUserData re-derives profile and couple for the identity and commits
// the result unless the epoch moved on. A profile failure is degraded,
// not fatal; a couple lookup failure retains the last known couple and is
// surfaced as a transient error.
func (o *Orchestrator) loadUserData(ctx context.Context, identity models.Identity, epoch uint64) error {
	var prof *models.Profile
	p, err := o.profiles.GetOrCreate(ctx, identity, profile.DefaultsFor(identity))
	if err != nil {
		logging.FromContext(ctx).Warn("profile unavailable, continuing degraded", "identityId", identity.ID, "error", err)
	} else {
		prof = &p
	}

	info, err := o.pairing.CoupleInfo(ctx, identity.ID)
	if err != nil {
		o.commitIfCurrent(epoch, func(snap *Snapshot) {
			snap.Profile = prof
		})
		return fmt.Errorf("refresh couple: %w", err)
	}

	o.commitIfCurrent(epoch, func(snap *Snapshot) {
		snap.Profile = prof
		if info == nil {
			snap.Couple = nil
		} else {
			couple := info.Couple
			snap.Couple = &couple
		}
		if snap.IsPaired() {
			snap.State = StatePaired
		} else {
			snap.State = StateUnpaired
		}
	})
	return nil
}

func (o *Orchestrator) requireIdentity() (models.Identity, uint64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.snap.Identity == nil {
		return models.Identity{}, 0, ErrNotAuthenticated
	}
	return *o.snap.Identity, o.epoch, nil
}

func (o *Orchestrator) currentEpoch() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.epoch
}

func (o *Orchestrator) commitSignedIn(identity models.Identity) uint64 {
	o.mu.Lock()
	o.epoch++
	epoch := o.epoch
	o.snap = Snapshot{State: StateUnpaired, Identity: &identity}
	snap := o.snap
	o.mu.Unlock()
	o.notify(snap)
	return epoch
}

func (o *Orchestrator) commitSignedOut() {
	o.mu.Lock()
	o.epoch++
	o.snap = Snapshot{State: StateUnauthenticated}
	snap := o.snap
	o.mu.Unlock()
	o.notify(snap)
}

// commitIfCurrent applies fn to the snapshot unless the epoch moved,
// in which case the in-flight result is discarded silently.
func (o *Orchestrator) commitIfCurrent(epoch uint64, fn func(*Snapshot)) {
	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return
	}
	fn(&o.snap)
	snap := o.snap
	o.mu.Unlock()
	o.notify(snap)
}

func (o *Orchestrator) notify(snap Snapshot) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, ch := range o.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
