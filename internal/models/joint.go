package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// JointAccountRequest is an invitation to add a second, legally-equal holder
// to an existing account. The required deposit is computed once, at
// submission time, and frozen on the record. Activation needs both the admin
// decision and the deposit to have landed; the two flags below track each
// condition independently.
type JointAccountRequest struct {
	ID                 string          `db:"id"`
	AccountID          string          `db:"account_id"`
	RequesterUserID    string          `db:"requester_user_id"`
	PartnerFirstName   string          `db:"partner_first_name"`
	PartnerLastName    string          `db:"partner_last_name"`
	PartnerEmail       string          `db:"partner_email"`
	PartnerPhoneNumber string          `db:"partner_phone_number"`
	DocumentURL        sql.NullString  `db:"document_url"`
	DepositAmount      decimal.Decimal `db:"deposit_amount"`
	DepositReceived    bool            `db:"deposit_received"`
	AdminApproved      bool            `db:"admin_approved"`
	Status             string          `db:"status"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          sql.NullTime    `db:"updated_at"`
}
