package pairing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/heartlink/backend/internal/models"
	"github.com/heartlink/backend/internal/profile"
	"github.com/heartlink/backend/internal/repositories"
)

var (
	alice = models.Identity{ID: "alice", Email: "alice@example.com"}
	bob   = models.Identity{ID: "bob", Email: "bob@example.com"}
	carol = models.Identity{ID: "carol", Email: "carol@example.com"}
)

func newTestEngine() (*Engine, *repositories.InMemoryCoupleRepository) {
	couples := repositories.NewInMemoryCoupleRepository()
	profiles := profile.NewResolver(repositories.NewInMemoryProfileRepository(), nil)
	return NewEngine(couples, profiles), couples
}

func anniversary() time.Time {
	return time.Date(2024, time.February, 14, 0, 0, 0, 0, time.UTC)
}

func TestCreateInviteCodeFormat(t *testing.T) {
	engine, _ := newTestEngine()

	couple, err := engine.CreateInviteCode(context.Background(), alice, anniversary())
	if err != nil {
		t.Fatalf("create code: %v", err)
	}

	if !strings.HasPrefix(couple.InviteCode, "CP") {
		t.Fatalf("expected CP prefix, got %s", couple.InviteCode)
	}
	if len(couple.InviteCode) != 8 {
		t.Fatalf("expected 8 character code, got %q", couple.InviteCode)
	}
	for _, r := range couple.InviteCode {
		if !strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", r) {
			t.Fatalf("unexpected character %q in code %s", r, couple.InviteCode)
		}
	}

	if couple.UserOne != alice.ID || couple.UserTwo != nil || !couple.Active {
		t.Fatalf("unexpected couple: %+v", couple)
	}
	if couple.State() != models.CoupleStatePending {
		t.Fatalf("expected pending state, got %s", couple.State())
	}
}

func TestCreateInviteCodeEnsuresProfile(t *testing.T) {
	couples := repositories.NewInMemoryCoupleRepository()
	profileRepo := repositories.NewInMemoryProfileRepository()
	engine := NewEngine(couples, profile.NewResolver(profileRepo, nil))

	if _, err := engine.CreateInviteCode(context.Background(), alice, anniversary()); err != nil {
		t.Fatalf("create code: %v", err)
	}

	created, err := profileRepo.Get(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("expected inviter profile to exist: %v", err)
	}
	if created.Nickname != "User" {
		t.Fatalf("expected default nickname, got %q", created.Nickname)
	}
}

func TestCreateInviteCodeWhileActiveCoupleExists(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	if _, err := engine.CreateInviteCode(ctx, alice, anniversary()); err != nil {
		t.Fatalf("create code: %v", err)
	}
	if _, err := engine.CreateInviteCode(ctx, alice, anniversary()); !errors.Is(err, ErrAlreadyPaired) {
		t.Fatalf("expected ErrAlreadyPaired, got %v", err)
	}
}

func TestRedeemInviteCodePairs(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	created, err := engine.CreateInviteCode(ctx, alice, anniversary())
	if err != nil {
		t.Fatalf("create code: %v", err)
	}

	paired, err := engine.RedeemInviteCode(ctx, bob, created.InviteCode)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if paired.UserTwo == nil || *paired.UserTwo != bob.ID {
		t.Fatalf("expected bob in second slot, got %+v", paired)
	}
	if paired.State() != models.CoupleStatePaired {
		t.Fatalf("expected paired state, got %s", paired.State())
	}

	// Both members now resolve the same couple.
	for _, id := range []string{alice.ID, bob.ID} {
		info, err := engine.CoupleInfo(ctx, id)
		if err != nil {
			t.Fatalf("couple info for %s: %v", id, err)
		}
		if info == nil || info.Couple.ID != created.ID {
			t.Fatalf("expected couple %s for %s, got %+v", created.ID, id, info)
		}
	}
}

func TestRedeemOwnCode(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	created, err := engine.CreateInviteCode(ctx, alice, anniversary())
	if err != nil {
		t.Fatalf("create code: %v", err)
	}

	if _, err := engine.RedeemInviteCode(ctx, alice, created.InviteCode); !errors.Is(err, ErrSelfPairing) {
		t.Fatalf("expected ErrSelfPairing, got %v", err)
	}

	// The couple must be unchanged.
	info, err := engine.CoupleInfo(ctx, alice.ID)
	if err != nil {
		t.Fatalf("couple info: %v", err)
	}
	if info.Couple.UserTwo != nil {
		t.Fatalf("self redemption must not fill the second slot: %+v", info.Couple)
	}
}

func TestRedeemUnknownCode(t *testing.T) {
	engine, _ := newTestEngine()

	if _, err := engine.RedeemInviteCode(context.Background(), bob, "CPNOPE99"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestRedeemUnknownCodeWhilePending(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	if _, err := engine.CreateInviteCode(ctx, bob, anniversary()); err != nil {
		t.Fatalf("create code: %v", err)
	}

	// The code is resolved before the caller's couple state, so a bad
	// code never masquerades as an already-paired failure.
	if _, err := engine.RedeemInviteCode(ctx, bob, "CPNOPE99"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound for pending inviter, got %v", err)
	}
}

func TestRedeemFilledCouple(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	created, err := engine.CreateInviteCode(ctx, alice, anniversary())
	if err != nil {
		t.Fatalf("create code: %v", err)
	}
	if _, err := engine.RedeemInviteCode(ctx, bob, created.InviteCode); err != nil {
		t.Fatalf("first redeem: %v", err)
	}

	if _, err := engine.RedeemInviteCode(ctx, carol, created.InviteCode); !errors.Is(err, ErrAlreadyPaired) {
		t.Fatalf("expected ErrAlreadyPaired for second redeemer, got %v", err)
	}
}

func TestRedeemWhileAlreadyInCouple(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	if _, err := engine.CreateInviteCode(ctx, bob, anniversary()); err != nil {
		t.Fatalf("create own code: %v", err)
	}

	other, err := engine.CreateInviteCode(ctx, alice, anniversary())
	if err != nil {
		t.Fatalf("create other code: %v", err)
	}

	if _, err := engine.RedeemInviteCode(ctx, bob, other.InviteCode); !errors.Is(err, ErrAlreadyPaired) {
		t.Fatalf("expected ErrAlreadyPaired, got %v", err)
	}
}

func TestConcurrentRedemptionHasOneWinner(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	created, err := engine.CreateInviteCode(ctx, alice, anniversary())
	if err != nil {
		t.Fatalf("create code: %v", err)
	}

	redeemers := []models.Identity{bob, carol}
	results := make([]error, len(redeemers))

	var wg sync.WaitGroup
	for i, identity := range redeemers {
		wg.Add(1)
		go func(i int, identity models.Identity) {
			defer wg.Done()
			_, results[i] = engine.RedeemInviteCode(ctx, identity, created.InviteCode)
		}(i, identity)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyPaired):
			losses++
		default:
			t.Fatalf("unexpected redemption error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected exactly one winner, got %d wins and %d losses", wins, losses)
	}
}

func TestCoupleInfoWhenUnpaired(t *testing.T) {
	engine, _ := newTestEngine()

	info, err := engine.CoupleInfo(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("couple info: %v", err)
	}
	if info != nil {
		t.Fatalf("expected nil info for unpaired identity, got %+v", info)
	}
}

func TestCoupleInfoPartnerProfile(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	created, err := engine.CreateInviteCode(ctx, alice, anniversary())
	if err != nil {
		t.Fatalf("create code: %v", err)
	}
	if _, err := engine.RedeemInviteCode(ctx, bob, created.InviteCode); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	info, err := engine.CoupleInfo(ctx, alice.ID)
	if err != nil {
		t.Fatalf("couple info: %v", err)
	}

	partner := info.PartnerProfile(alice.ID)
	if partner == nil || partner.ID != bob.ID {
		t.Fatalf("expected bob as partner, got %+v", partner)
	}
	if info.PartnerProfile(bob.ID).ID != alice.ID {
		t.Fatal("expected alice as bob's partner")
	}
}

func TestUnpairDissolvesAndIsIdempotent(t *testing.T) {
	engine, couples := newTestEngine()
	ctx := context.Background()

	created, err := engine.CreateInviteCode(ctx, alice, anniversary())
	if err != nil {
		t.Fatalf("create code: %v", err)
	}
	if _, err := engine.RedeemInviteCode(ctx, bob, created.InviteCode); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if err := engine.Unpair(ctx, alice.ID); err != nil {
		t.Fatalf("unpair: %v", err)
	}

	// Dissolution affects both members and the code becomes dead.
	for _, id := range []string{alice.ID, bob.ID} {
		info, err := engine.CoupleInfo(ctx, id)
		if err != nil {
			t.Fatalf("couple info for %s: %v", id, err)
		}
		if info != nil {
			t.Fatalf("expected %s to be unpaired, got %+v", id, info)
		}
	}
	if _, err := couples.FindActiveByCode(ctx, created.InviteCode); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected dissolved code to be inactive, got %v", err)
	}

	if err := engine.Unpair(ctx, alice.ID); err != nil {
		t.Fatalf("unpair when already unpaired must be a no-op, got %v", err)
	}
}

func TestUnpairedMembersCanPairAgain(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	created, err := engine.CreateInviteCode(ctx, alice, anniversary())
	if err != nil {
		t.Fatalf("create code: %v", err)
	}
	if _, err := engine.RedeemInviteCode(ctx, bob, created.InviteCode); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if err := engine.Unpair(ctx, bob.ID); err != nil {
		t.Fatalf("unpair: %v", err)
	}

	fresh, err := engine.CreateInviteCode(ctx, bob, anniversary())
	if err != nil {
		t.Fatalf("expected bob to create a new code after unpair, got %v", err)
	}
	if _, err := engine.RedeemInviteCode(ctx, carol, fresh.InviteCode); err != nil {
		t.Fatalf("expected carol to pair with bob, got %v", err)
	}
}
