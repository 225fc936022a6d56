// Package lifecycle decides what a user is allowed to do from their current
// verification and application records. It is deliberately free of side
// effects: callers fetch the records, the gate answers, callers act. All
// eligibility decisions in the system route through Evaluate so the rules
// live in exactly one place.
package lifecycle

import (
	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/repository"
)

// State is the explicit onboarding position derived from the stored flags.
// The flags remain the stored representation; State is how the rest of the
// code reasons about them.
type State string

const (
	// StateApplied means a signup exists but the mailbox has not been confirmed.
	StateApplied State = "applied"

	// StateEmailPending means email confirmation is outstanding.
	StateEmailPending State = "email_pending"

	// StateSecretPending means the mailed secret key has not been echoed back.
	StateSecretPending State = "secret_pending"

	// StateUnderReview means verification is done and an admin decision is awaited.
	StateUnderReview State = "under_review"

	// StateApproved means the application was approved; money movement may
	// still be off until the transact flag is set.
	StateApproved State = "approved"

	// StateRejected is terminal.
	StateRejected State = "rejected"
)

// Decision is the gate's answer for one user at one moment.
type Decision struct {
	MayAuthenticate bool
	MayTransact     bool
	Reason          string
}

// Blocked-decision reasons. These are shown to users verbatim, so each
// blocked outcome must be distinguishable and actionable.
const (
	ReasonRejected        = "application rejected, contact support"
	ReasonUnderReview     = "application under review"
	ReasonSecretPending   = "complete secret key verification"
	ReasonNoApplication   = "no application on record, contact support"
	ReasonTransactPending = "transactions not yet enabled for this account"
)

// Evaluate decides login and transact eligibility from a profile and its
// application. A rejected application blocks everything regardless of any
// other flag. Once the application is approved, the secret-key flag is the
// factor checked; echoing the mailed secret already proves control of the
// mailbox, so the email flag is not re-checked here.
func Evaluate(user *models.User, application *models.AccountApplication) Decision {
	if application == nil {
		return Decision{Reason: ReasonNoApplication}
	}

	switch application.Status {
	case repository.ApplicationStatusRejected:
		return Decision{Reason: ReasonRejected}
	case repository.ApplicationStatusPending:
		return Decision{Reason: ReasonUnderReview}
	}

	if !user.QRVerified {
		return Decision{Reason: ReasonSecretPending}
	}

	if !user.CanTransact {
		return Decision{
			MayAuthenticate: true,
			Reason:          ReasonTransactPending,
		}
	}

	return Decision{
		MayAuthenticate: true,
		MayTransact:     true,
	}
}

// StateOf names the lifecycle position for display and logging.
func StateOf(user *models.User, application *models.AccountApplication) State {
	if application == nil {
		return StateApplied
	}

	switch application.Status {
	case repository.ApplicationStatusRejected:
		return StateRejected
	case repository.ApplicationStatusApproved:
		if !user.QRVerified {
			return StateSecretPending
		}
		return StateApproved
	}

	if !user.EmailVerified {
		return StateEmailPending
	}
	if !user.QRVerified {
		return StateSecretPending
	}

	return StateUnderReview
}
