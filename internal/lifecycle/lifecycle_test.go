package lifecycle

import (
	"testing"

	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name        string
		user        *models.User
		application *models.AccountApplication
		wantAuth    bool
		wantTrans   bool
		wantReason  string
	}{
		{
			name:       "no application blocks everything",
			user:       &models.User{},
			wantReason: ReasonNoApplication,
		},
		{
			name:        "pending application blocks login",
			user:        &models.User{EmailVerified: true, QRVerified: true},
			application: &models.AccountApplication{Status: repository.ApplicationStatusPending},
			wantReason:  ReasonUnderReview,
		},
		{
			name:        "approved but secret not verified",
			user:        &models.User{EmailVerified: true},
			application: &models.AccountApplication{Status: repository.ApplicationStatusApproved},
			wantReason:  ReasonSecretPending,
		},
		{
			name:        "approved and verified but transact off",
			user:        &models.User{EmailVerified: true, QRVerified: true},
			application: &models.AccountApplication{Status: repository.ApplicationStatusApproved},
			wantAuth:    true,
			wantReason:  ReasonTransactPending,
		},
		{
			name:        "fully enabled",
			user:        &models.User{EmailVerified: true, QRVerified: true, CanTransact: true},
			application: &models.AccountApplication{Status: repository.ApplicationStatusApproved},
			wantAuth:    true,
			wantTrans:   true,
		},
		{
			name:        "rejected blocks a fully verified user",
			user:        &models.User{EmailVerified: true, QRVerified: true, CanTransact: true},
			application: &models.AccountApplication{Status: repository.ApplicationStatusRejected},
			wantReason:  ReasonRejected,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := Evaluate(tc.user, tc.application)

			require.Equal(t, tc.wantAuth, decision.MayAuthenticate)
			require.Equal(t, tc.wantTrans, decision.MayTransact)
			require.Equal(t, tc.wantReason, decision.Reason)
		})
	}
}

// A rejected application must dominate every combination of the per-user
// flags. Flipping flags on a rejected user must never open a door.
func TestEvaluate_RejectedDominatesAllFlags(t *testing.T) {
	application := &models.AccountApplication{Status: repository.ApplicationStatusRejected}

	for i := 0; i < 8; i++ {
		user := &models.User{
			EmailVerified: i&1 != 0,
			QRVerified:    i&2 != 0,
			CanTransact:   i&4 != 0,
		}

		decision := Evaluate(user, application)

		require.False(t, decision.MayAuthenticate)
		require.False(t, decision.MayTransact)
		require.Equal(t, ReasonRejected, decision.Reason)
	}
}

func TestStateOf(t *testing.T) {
	tests := []struct {
		name        string
		user        *models.User
		application *models.AccountApplication
		want        State
	}{
		{
			name: "no application",
			user: &models.User{},
			want: StateApplied,
		},
		{
			name:        "pending with unverified email",
			user:        &models.User{},
			application: &models.AccountApplication{Status: repository.ApplicationStatusPending},
			want:        StateEmailPending,
		},
		{
			name:        "pending with email verified",
			user:        &models.User{EmailVerified: true},
			application: &models.AccountApplication{Status: repository.ApplicationStatusPending},
			want:        StateSecretPending,
		},
		{
			name:        "pending and fully verified",
			user:        &models.User{EmailVerified: true, QRVerified: true},
			application: &models.AccountApplication{Status: repository.ApplicationStatusPending},
			want:        StateUnderReview,
		},
		{
			name:        "approved",
			user:        &models.User{EmailVerified: true, QRVerified: true},
			application: &models.AccountApplication{Status: repository.ApplicationStatusApproved},
			want:        StateApproved,
		},
		{
			name:        "approved before secret verification",
			user:        &models.User{EmailVerified: true},
			application: &models.AccountApplication{Status: repository.ApplicationStatusApproved},
			want:        StateSecretPending,
		},
		{
			name:        "rejected",
			user:        &models.User{EmailVerified: true, QRVerified: true},
			application: &models.AccountApplication{Status: repository.ApplicationStatusRejected},
			want:        StateRejected,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, StateOf(tc.user, tc.application))
		})
	}
}
