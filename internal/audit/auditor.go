// Package audit scans for users whose verification flags, application
// status, and accounts disagree with each other, and carries the repair
// writes an operator can apply to pull drifted records back in line.
//
// The scan only reads. Repairs are separate, explicit, and each one lands
// in the audit log with the operator who ran it.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/repository"
)

const repairTimeout = 10 * time.Second

var ErrUserNotFound = errors.New("user not found")

// Finding codes. The code is the contract with the repair endpoints; the
// message is for humans.
const (
	CodeQRWithoutEmail         = "qr_without_email"
	CodeTransactWithoutQR      = "transact_without_qr"
	CodeMissingApplication     = "missing_application"
	CodeApprovedButBlocked     = "approved_but_blocked"
	CodeTransactWhilePending   = "transact_while_pending"
	CodeFlagMismatch           = "flag_mismatch"
	CodeTransactWithoutAccount = "transact_without_account"
)

const (
	SeverityHigh = "high"
	SeverityLow  = "low"
)

// Finding names one inconsistency on one user. A user can carry several.
type Finding struct {
	Code          string `json:"code"`
	Severity      string `json:"severity"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	ApplicationID string `json:"application_id,omitempty"`
	Detail        string `json:"detail"`
}

type Auditor struct {
	DB     repository.Database
	Logger *slog.Logger
}

func NewAuditor(auditor *Auditor) *Auditor {
	return auditor
}

// Scan walks every live user and reports all inconsistencies found. It
// never writes; a scan run twice against an unchanged database returns the
// same findings.
func (a *Auditor) Scan() ([]Finding, error) {
	users, err := a.DB.User().GetAll()
	if err != nil {
		return nil, err
	}

	findings := []Finding{}
	for i := range users {
		userFindings, err := a.checkUser(&users[i])
		if err != nil {
			return nil, err
		}
		findings = append(findings, userFindings...)
	}

	return findings, nil
}

// ScanUser reports the inconsistencies on a single user.
func (a *Auditor) ScanUser(userID string) ([]Finding, error) {
	user, found, err := a.DB.User().GetOne(userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUserNotFound
	}

	return a.checkUser(user)
}

func (a *Auditor) checkUser(user *models.User) ([]Finding, error) {
	application, hasApplication, err := a.DB.Application().GetByUserID(user.ID)
	if err != nil {
		return nil, err
	}

	findings := []Finding{}
	add := func(code, severity, detail string) {
		finding := Finding{
			Code:     code,
			Severity: severity,
			UserID:   user.ID,
			Email:    user.Email,
			Detail:   detail,
		}
		if hasApplication {
			finding.ApplicationID = application.ID
		}
		findings = append(findings, finding)
	}

	// Flags are set strictly in order: email, then secret key, then
	// transact. A later flag without the earlier ones means a write path was
	// skipped.
	if user.QRVerified && !user.EmailVerified {
		add(CodeQRWithoutEmail, SeverityLow, "secret key verified but email never was")
	}
	if user.CanTransact && !user.QRVerified {
		add(CodeTransactWithoutQR, SeverityHigh, "user can transact without completing secret key verification")
	}

	if !hasApplication {
		add(CodeMissingApplication, SeverityLow, "no application is on record for this user")
	}

	if hasApplication {
		if application.Status == repository.ApplicationStatusApproved && !user.CanTransact {
			add(CodeApprovedButBlocked, SeverityLow, "application approved but transacting is still blocked")
		}
		if user.CanTransact && application.Status == repository.ApplicationStatusPending {
			add(CodeTransactWhilePending, SeverityHigh, "user can transact while their application is still pending review")
		}
		if user.QRVerified != application.QRCodeVerified {
			add(CodeFlagMismatch, SeverityLow, "secret key flag on the user disagrees with the application record")
		}
	}

	if user.CanTransact {
		hasAccount, err := a.DB.Account().HasActiveByUserId(user.ID)
		if err != nil {
			return nil, err
		}
		if !hasAccount {
			add(CodeTransactWithoutAccount, SeverityLow, "user can transact but holds no active account")
		}
	}

	return findings, nil
}

// RepairEmailFlag backfills the email verification flag so the ordering
// invariant holds again. Running it against an already-consistent user
// changes nothing.
func (a *Auditor) RepairEmailFlag(userID, actorID string) error {
	if err := a.DB.User().SetEmailVerified(userID); err != nil {
		return err
	}

	return a.logRepair(actorID, userID, CodeQRWithoutEmail, "email verification flag backfilled")
}

// RepairQRFlags sets the secret key flag on both the user and their
// application in one transaction, clearing a flag_mismatch either way the
// drift happened.
func (a *Auditor) RepairQRFlags(userID, actorID string) error {
	application, hasApplication, err := a.DB.Application().GetByUserID(userID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), repairTimeout)
	defer cancel()

	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := a.DB.User().SetQRVerified(userID, tx); err != nil {
		return err
	}
	if hasApplication {
		if err := a.DB.Application().SetQRCodeVerified(application.ID, tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return a.logRepair(actorID, userID, CodeFlagMismatch, "secret key flags aligned on user and application")
}

// RepairTransactFlag grants the transact permission, used when the
// application is approved but the permission write was lost.
func (a *Auditor) RepairTransactFlag(userID, actorID string) error {
	if err := a.DB.User().EnableTransact(userID, nil); err != nil {
		return err
	}

	return a.logRepair(actorID, userID, CodeApprovedButBlocked, "transact permission granted to match approved application")
}

// RepairApplicationStatus forces the newest application to approved, for
// users whose flags say they were approved but whose application record
// disagrees.
func (a *Auditor) RepairApplicationStatus(userID, actorID string) error {
	application, found, err := a.DB.Application().GetByUserID(userID)
	if err != nil {
		return err
	}
	if !found {
		return ErrUserNotFound
	}

	if err := a.DB.Application().ForceApprove(application.ID); err != nil {
		return err
	}

	return a.logRepair(actorID, userID, CodeTransactWhilePending, "application status forced to approved")
}

// RepairMissingApplication backfills an approved application record for a
// user who has no application row. The repair is skipped if an application
// already exists.
func (a *Auditor) RepairMissingApplication(userID, actorID string) error {
	user, found, err := a.DB.User().GetOne(userID)
	if err != nil {
		return err
	}
	if !found {
		return ErrUserNotFound
	}

	_, hasApplication, err := a.DB.Application().GetByUserID(userID)
	if err != nil {
		return err
	}
	if hasApplication {
		return nil
	}

	application := &models.AccountApplication{
		UserID:      user.ID,
		Email:       user.Email,
		FullName:    user.FirstName + " " + user.LastName,
		AccountType: models.AccountTypeChecking,
	}

	id, err := a.DB.Application().Insert(application, nil)
	if err != nil {
		return err
	}
	if err := a.DB.Application().ForceApprove(id); err != nil {
		return err
	}
	if user.QRVerified {
		if err := a.DB.Application().SetQRCodeVerified(id, nil); err != nil {
			return err
		}
	}

	return a.logRepair(actorID, userID, CodeMissingApplication, "approved application record backfilled")
}

// RepairMissingAccount opens a checking account for a user who is cleared
// to transact but holds none. The account number is derived from the phone
// number the same way onboarding does it.
func (a *Auditor) RepairMissingAccount(userID, actorID string) error {
	user, found, err := a.DB.User().GetOne(userID)
	if err != nil {
		return err
	}
	if !found {
		return ErrUserNotFound
	}

	hasAccount, err := a.DB.Account().HasActiveByUserId(userID)
	if err != nil {
		return err
	}
	if hasAccount {
		return nil
	}

	account := &models.Account{
		UserID:        user.ID,
		AccountType:   models.AccountTypeChecking,
		AccountNumber: accountNumberFromPhone(user.PhoneNumber),
	}

	if _, err := a.DB.Account().Insert(account, nil); err != nil {
		return err
	}

	return a.logRepair(actorID, userID, CodeTransactWithoutAccount, "checking account opened to match transact permission")
}

// accountNumberFromPhone derives the account number from the last ten
// digits of the phone number. Phone numbers are unique per user, so the
// derived numbers are too.
func accountNumberFromPhone(phoneNumber string) string {
	if len(phoneNumber) > 10 {
		return phoneNumber[len(phoneNumber)-10:]
	}
	return phoneNumber
}

func (a *Auditor) logRepair(actorID, targetID, code, detail string) error {
	_, err := a.DB.AuditLog().Insert(&models.AuditLog{
		ActorID:    actorID,
		ActionType: repository.AuditActionRepair,
		TargetID:   targetID,
		Details:    fmt.Sprintf("%s: %s", code, detail),
	})
	if err != nil {
		a.Logger.Error("recording repair in audit log",
			"actor_id", actorID, "target_id", targetID, "code", code, "error", err)
	}

	return err
}
