package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/heartlink/backend/internal/auth"
	"github.com/heartlink/backend/internal/models"
	"github.com/heartlink/backend/internal/pairing"
	"github.com/heartlink/backend/internal/profile"
	"github.com/heartlink/backend/internal/realtime"
	"github.com/heartlink/backend/internal/repositories"
	"github.com/heartlink/backend/internal/session"
)

type fixture struct {
	orch    *Orchestrator
	store   *session.Store
	creds   *session.MemoryCredentialStore
	couples *repositories.InMemoryCoupleRepository
	engine  *pairing.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	manager := auth.NewManager(time.Minute, time.Hour, auth.NewInMemorySessionStore())
	provider := auth.NewService(repositories.NewInMemoryUserRepository(), manager)

	creds := session.NewMemoryCredentialStore()
	store := session.NewStore(provider, creds)

	profiles := profile.NewResolver(repositories.NewInMemoryProfileRepository(), nil)
	couples := repositories.NewInMemoryCoupleRepository()
	engine := pairing.NewEngine(couples, profiles)

	return &fixture{
		orch:    New(store, profiles, engine),
		store:   store,
		creds:   creds,
		couples: couples,
		engine:  engine,
	}
}

func TestInitWithoutCredential(t *testing.T) {
	f := newFixture(t)

	snap := f.orch.Init(context.Background())
	if snap.State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", snap.State)
	}
	if snap.Identity != nil {
		t.Fatalf("expected no identity, got %+v", snap.Identity)
	}
}

func TestSignUpLandsInUnpaired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.Init(ctx)

	snap, err := f.orch.SignUp(ctx, "alice@example.com", "supersafe")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	if snap.State != StateUnpaired {
		t.Fatalf("expected unpaired, got %s", snap.State)
	}
	if snap.Identity == nil || snap.Identity.Email != "alice@example.com" {
		t.Fatalf("unexpected identity: %+v", snap.Identity)
	}
	if snap.Profile == nil || snap.Profile.Nickname != "User" {
		t.Fatalf("expected default profile, got %+v", snap.Profile)
	}
	if snap.Couple != nil {
		t.Fatalf("expected no couple, got %+v", snap.Couple)
	}
}

func TestSignInWrongPasswordStaysUnauthenticated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.Init(ctx)

	if _, err := f.orch.SignUp(ctx, "alice@example.com", "supersafe"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if err := f.orch.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	snap, err := f.orch.SignIn(ctx, "alice@example.com", "wrongpass")
	if !errors.Is(err, auth.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if snap.State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated after failed sign-in, got %s", snap.State)
	}
}

func TestSessionSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.Init(ctx)

	if _, err := f.orch.SignUp(ctx, "alice@example.com", "supersafe"); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	// A second orchestrator over the same credential store models a
	// process restart.
	restarted := New(f.store, f.orch.profiles, f.orch.pairing)
	snap := restarted.Init(ctx)

	if snap.State != StateUnpaired {
		t.Fatalf("expected restored session, got %s", snap.State)
	}
	if snap.Identity == nil || snap.Identity.Email != "alice@example.com" {
		t.Fatalf("unexpected restored identity: %+v", snap.Identity)
	}
}

func TestCreateInviteCodeStaysUnpaired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.Init(ctx)

	if _, err := f.orch.SignUp(ctx, "alice@example.com", "supersafe"); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	couple, err := f.orch.CreateInviteCode(ctx, time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create code: %v", err)
	}
	if couple.InviteCode == "" {
		t.Fatal("expected an invite code")
	}

	snap := f.orch.Current()
	if snap.State != StateUnpaired {
		t.Fatalf("creating a code must not count as paired, got %s", snap.State)
	}
	if snap.Couple == nil || snap.Couple.ID != couple.ID {
		t.Fatalf("expected pending couple in snapshot, got %+v", snap.Couple)
	}
	if snap.IsPaired() {
		t.Fatal("pending couple must not report paired")
	}
}

func TestFullPairingFlow(t *testing.T) {
	ctx := context.Background()

	inviter := newFixture(t)
	inviter.orch.Init(ctx)
	if _, err := inviter.orch.SignUp(ctx, "alice@example.com", "supersafe"); err != nil {
		t.Fatalf("inviter sign up: %v", err)
	}

	couple, err := inviter.orch.CreateInviteCode(ctx, time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create code: %v", err)
	}

	// The joiner runs its own auth stack but shares the couple backend.
	manager := auth.NewManager(time.Minute, time.Hour, auth.NewInMemorySessionStore())
	provider := auth.NewService(repositories.NewInMemoryUserRepository(), manager)
	store := session.NewStore(provider, session.NewMemoryCredentialStore())
	joiner := New(store, inviter.orch.profiles, inviter.engine)

	joiner.Init(ctx)
	if _, err := joiner.SignUp(ctx, "bob@example.com", "supersafe"); err != nil {
		t.Fatalf("joiner sign up: %v", err)
	}

	paired, err := joiner.RedeemInviteCode(ctx, couple.InviteCode)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if paired.UserTwo == nil {
		t.Fatalf("expected filled couple, got %+v", paired)
	}

	if snap := joiner.Current(); snap.State != StatePaired {
		t.Fatalf("expected joiner paired, got %s", snap.State)
	}

	// The inviter converges on its next refresh.
	snap, err := inviter.orch.RefreshCoupleData(ctx)
	if err != nil {
		t.Fatalf("inviter refresh: %v", err)
	}
	if snap.State != StatePaired {
		t.Fatalf("expected inviter paired after refresh, got %s", snap.State)
	}
}

func TestUnpairReturnsToUnpaired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.Init(ctx)

	if _, err := f.orch.SignUp(ctx, "alice@example.com", "supersafe"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := f.orch.CreateInviteCode(ctx, time.Now().UTC()); err != nil {
		t.Fatalf("create code: %v", err)
	}

	if err := f.orch.Unpair(ctx); err != nil {
		t.Fatalf("unpair: %v", err)
	}

	snap := f.orch.Current()
	if snap.State != StateUnpaired || snap.Couple != nil {
		t.Fatalf("expected clean unpaired snapshot, got %+v", snap)
	}

	if err := f.orch.Unpair(ctx); err != nil {
		t.Fatalf("second unpair must be a no-op, got %v", err)
	}
}

func TestSignOutRequiresNoIdentityForOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.Init(ctx)

	if _, err := f.orch.CreateInviteCode(ctx, time.Now().UTC()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := f.orch.RedeemInviteCode(ctx, "CPAB12CD"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if err := f.orch.Unpair(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

// blockingProvider delays sign-in until released so a sign-out can win
// the race. All other calls delegate straight through.
type blockingProvider struct {
	inner   *auth.Service
	entered chan struct{}
	release chan struct{}
}

func (p *blockingProvider) SignUp(ctx context.Context, email, password string) (models.Identity, models.SessionTokens, error) {
	return p.inner.SignUp(ctx, email, password)
}

func (p *blockingProvider) SignIn(ctx context.Context, email, password string) (models.Identity, models.SessionTokens, error) {
	p.entered <- struct{}{}
	<-p.release
	return p.inner.SignIn(ctx, email, password)
}

func (p *blockingProvider) Refresh(ctx context.Context, refreshToken string) (models.Identity, models.SessionTokens, error) {
	return p.inner.Refresh(ctx, refreshToken)
}

func (p *blockingProvider) SignOut(ctx context.Context, refreshToken string) error {
	return p.inner.SignOut(ctx, refreshToken)
}

func TestStaleSignInDiscardedAfterSignOut(t *testing.T) {
	ctx := context.Background()

	manager := auth.NewManager(time.Minute, time.Hour, auth.NewInMemorySessionStore())
	svc := auth.NewService(repositories.NewInMemoryUserRepository(), manager)
	blocking := &blockingProvider{
		inner:   svc,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	store := session.NewStore(blocking, session.NewMemoryCredentialStore())
	profiles := profile.NewResolver(repositories.NewInMemoryProfileRepository(), nil)
	engine := pairing.NewEngine(repositories.NewInMemoryCoupleRepository(), profiles)
	orch := New(store, profiles, engine)

	orch.Init(ctx)
	if _, err := orch.SignUp(ctx, "alice@example.com", "supersafe"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if err := orch.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = orch.SignIn(ctx, "alice@example.com", "supersafe")
	}()

	// Wait until the sign-in call is in flight, then sign out so its
	// eventual result is stale.
	<-blocking.entered
	if err := orch.SignOut(ctx); err != nil {
		t.Fatalf("racing sign out: %v", err)
	}
	close(blocking.release)
	<-done

	snap := orch.Current()
	if snap.State != StateUnauthenticated {
		t.Fatalf("stale sign-in must be discarded, got state %s", snap.State)
	}
	if snap.Identity != nil {
		t.Fatalf("expected no identity, got %+v", snap.Identity)
	}
	if store.CurrentIdentity() != nil {
		t.Fatal("expected session store cleared after stale sign-in")
	}
}

// failingCoupleRepo forces couple lookups to fail after a cutover so
// refresh degradation can be observed.
type failingCoupleRepo struct {
	repositories.CoupleRepository
	fail bool
}

func (r *failingCoupleRepo) FindActiveForUser(ctx context.Context, identityID string) (models.Couple, error) {
	if r.fail {
		return models.Couple{}, errors.New("backend unreachable")
	}
	return r.CoupleRepository.FindActiveForUser(ctx, identityID)
}

func TestRefreshRetainsLastKnownCoupleOnFailure(t *testing.T) {
	ctx := context.Background()

	manager := auth.NewManager(time.Minute, time.Hour, auth.NewInMemorySessionStore())
	svc := auth.NewService(repositories.NewInMemoryUserRepository(), manager)
	store := session.NewStore(svc, session.NewMemoryCredentialStore())

	profiles := profile.NewResolver(repositories.NewInMemoryProfileRepository(), nil)
	couples := &failingCoupleRepo{CoupleRepository: repositories.NewInMemoryCoupleRepository()}
	engine := pairing.NewEngine(couples, profiles)
	orch := New(store, profiles, engine)

	orch.Init(ctx)
	if _, err := orch.SignUp(ctx, "alice@example.com", "supersafe"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	created, err := orch.CreateInviteCode(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("create code: %v", err)
	}

	couples.fail = true
	snap, err := orch.RefreshCoupleData(ctx)
	if err == nil {
		t.Fatal("expected transient refresh error")
	}
	if snap.Couple == nil || snap.Couple.ID != created.ID {
		t.Fatalf("expected last known couple retained, got %+v", snap.Couple)
	}
}

func TestWatchCoupleRefreshesOnEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inviter := newFixture(t)
	inviter.orch.Init(ctx)
	if _, err := inviter.orch.SignUp(ctx, "alice@example.com", "supersafe"); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	couple, err := inviter.orch.CreateInviteCode(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("create code: %v", err)
	}

	broker := realtime.NewMemoryBroker()
	snapshots, cancelSub := inviter.orch.Subscribe()
	defer cancelSub()

	watchDone := make(chan error, 1)
	go func() {
		watchDone <- inviter.orch.WatchCouple(ctx, broker)
	}()

	// The partner redeems through the shared backend; the watcher picks
	// up the published change and the inviter converges without polling.
	manager := auth.NewManager(time.Minute, time.Hour, auth.NewInMemorySessionStore())
	provider := auth.NewService(repositories.NewInMemoryUserRepository(), manager)
	store := session.NewStore(provider, session.NewMemoryCredentialStore())
	joiner := New(store, inviter.orch.profiles, inviter.engine)
	joiner.Init(ctx)
	if _, err := joiner.SignUp(ctx, "bob@example.com", "supersafe"); err != nil {
		t.Fatalf("joiner sign up: %v", err)
	}
	if _, err := joiner.RedeemInviteCode(ctx, couple.InviteCode); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if err := broker.Publish(ctx, realtime.Event{CoupleID: couple.ID, Kind: realtime.KindCoupleChanged}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case snap := <-snapshots:
			if snap.State == StatePaired {
				cancel()
				<-watchDone
				return
			}
		case <-deadline:
			t.Fatal("expected watcher to converge to paired")
		}
	}
}
