package domain

import "testing"

// Every event type must satisfy Event through the embedded Envelope.
// The accessor lives on Envelope, so a rename there would break all of
// these at compile time.
var (
	_ Event = Created{}
	_ Event = RegistrationChanged{}
	_ Event = RegistrationVerificationCreated{}
	_ Event = RegistrationVerificationVerified{}
	_ Event = CredentialsChanged{}
	_ Event = PasswordVerified{}
	_ Event = AccountLocked{}
	_ Event = AccountUnlocked{}
	_ Event = PasswordResetInitiated{}
	_ Event = PasswordResetCompleted{}
	_ Event = MFAOptionsChanged{}
	_ Event = MFAAuthenticationInitiated{}
	_ Event = MFAAuthenticatorAssociated{}
	_ Event = MFAAuthenticatorConfirmed{}
	_ Event = MFAAuthenticatorChallenged{}
	_ Event = MFAAuthenticatorVerified{}
	_ Event = MFAAuthenticatorRemoved{}
	_ Event = MFAStateReset{}
)

func TestEvents_EnvelopeCarriesOwnerAndSequence(t *testing.T) {
	c := newVerified(t)

	evs := c.Events()
	if len(evs) == 0 {
		t.Fatal("expected recorded events")
	}
	for i, ev := range evs {
		env := ev.Meta()
		if env.UserID != c.UserID() {
			t.Errorf("event %q UserID = %v, want %v", ev.Name(), env.UserID, c.UserID())
		}
		if env.Seq != i+1 {
			t.Errorf("event %q Seq = %d, want %d", ev.Name(), env.Seq, i+1)
		}
		if env.OccurredAt.IsZero() {
			t.Errorf("event %q has zero OccurredAt", ev.Name())
		}
	}
}

func TestRestore_ContinuesEventSequence(t *testing.T) {
	c := newVerified(t)
	evs := c.DrainEvents()
	last := evs[len(evs)-1].Meta().Seq

	snap := c.Snapshot()
	if snap.EventSeq != last {
		t.Fatalf("Snapshot().EventSeq = %d, want %d", snap.EventSeq, last)
	}

	restored := Restore(snap)
	if err := restored.SetCredentials(fakeHasher{}, "apassword"); err != nil {
		t.Fatalf("SetCredentials() error = %v", err)
	}
	next := restored.Events()
	if len(next) != 1 {
		t.Fatalf("expected 1 event after restore, got %d", len(next))
	}
	if got := next[0].Meta().Seq; got != last+1 {
		t.Errorf("Seq after restore = %d, want %d", got, last+1)
	}
}
