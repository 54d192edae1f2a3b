package repository

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FinanceUserRow is the persisted form of a tenant.
type FinanceUserRow struct {
	ID                    int64             `gorm:"primaryKey;autoIncrement:false"`
	UserID                string            `gorm:"column:user_id;size:255;not null;uniqueIndex:ux_finance_users_principal"`
	Provider              string            `gorm:"column:provider;size:255;not null;uniqueIndex:ux_finance_users_principal"`
	Version               int64             `gorm:"column:version;not null;default:1"`
	State                 string            `gorm:"column:state;size:32;not null"`
	WaitStart             *time.Time        `gorm:"column:wait_start"`
	LastBillingTime       *time.Time        `gorm:"column:last_billing_time"`
	Credits               string            `gorm:"column:credits;not null;default:'0'"`
	Invoices              datatypes.JSON    `gorm:"column:invoices"`
	ActiveSubscription    datatypes.JSON    `gorm:"column:active_subscription"`
	InactiveSubscriptions datatypes.JSON    `gorm:"column:inactive_subscriptions"`
	Debts                 datatypes.JSON    `gorm:"column:debts"`
	Properties            datatypes.JSONMap `gorm:"column:properties"`
	CreatedAt             time.Time         `gorm:"column:created_at"`
	UpdatedAt             time.Time         `gorm:"column:updated_at"`
}

func (FinanceUserRow) TableName() string { return "finance_users" }

// changes is the column set written when an existing row moves to the next
// revision.
func (row *FinanceUserRow) changes() map[string]any {
	return map[string]any{
		"state":                  row.State,
		"wait_start":             row.WaitStart,
		"last_billing_time":      row.LastBillingTime,
		"credits":                row.Credits,
		"invoices":               row.Invoices,
		"active_subscription":    row.ActiveSubscription,
		"inactive_subscriptions": row.InactiveSubscriptions,
		"debts":                  row.Debts,
		"properties":             row.Properties,
		"updated_at":             row.UpdatedAt,
		"version":                gorm.Expr("version + 1"),
	}
}

func toRow(u *tenantdomain.FinanceUser) (*FinanceUserRow, error) {
	invoices, err := json.Marshal(u.Invoices)
	if err != nil {
		return nil, err
	}
	var active []byte
	if u.ActiveSubscription != nil {
		if active, err = json.Marshal(u.ActiveSubscription); err != nil {
			return nil, err
		}
	}
	inactive, err := json.Marshal(u.InactiveSubscriptions)
	if err != nil {
		return nil, err
	}
	debts, err := json.Marshal(u.LastSubscriptionsDebts)
	if err != nil {
		return nil, err
	}

	props := datatypes.JSONMap{}
	for k, v := range u.Properties {
		props[k] = v
	}

	credits := decimal.Zero
	if u.Credits != nil {
		credits = u.Credits.Value()
	}

	return &FinanceUserRow{
		ID:                    u.ID,
		UserID:                u.UserID,
		Provider:              u.Provider,
		Version:               u.Version,
		State:                 string(u.State),
		WaitStart:             timePtr(u.WaitStart),
		LastBillingTime:       timePtr(u.LastBillingTime),
		Credits:               credits.String(),
		Invoices:              datatypes.JSON(invoices),
		ActiveSubscription:    datatypes.JSON(active),
		InactiveSubscriptions: datatypes.JSON(inactive),
		Debts:                 datatypes.JSON(debts),
		Properties:            props,
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}, nil
}

func fromRow(row *FinanceUserRow) (*tenantdomain.FinanceUser, error) {
	u := tenantdomain.NewFinanceUser(tenantdomain.Principal{UserID: row.UserID, Provider: row.Provider})
	u.ID = row.ID
	u.Version = row.Version
	u.State = tenantdomain.UserState(row.State)
	if row.WaitStart != nil {
		u.WaitStart = row.WaitStart.UTC()
	}
	if row.LastBillingTime != nil {
		u.LastBillingTime = row.LastBillingTime.UTC()
	}
	u.CreatedAt = row.CreatedAt
	u.UpdatedAt = row.UpdatedAt

	if row.Credits != "" {
		credits, err := decimal.NewFromString(row.Credits)
		if err != nil {
			return nil, corrupt(row, "credits", err)
		}
		u.Credits = tenantdomain.UserCreditsFrom(credits)
	}
	if len(row.Invoices) > 0 {
		if err := json.Unmarshal(row.Invoices, &u.Invoices); err != nil {
			return nil, corrupt(row, "invoices", err)
		}
	}
	if u.Invoices == nil {
		u.Invoices = []*tenantdomain.Invoice{}
	}
	if len(row.ActiveSubscription) > 0 && string(row.ActiveSubscription) != "null" {
		var sub tenantdomain.Subscription
		if err := json.Unmarshal(row.ActiveSubscription, &sub); err != nil {
			return nil, corrupt(row, "active_subscription", err)
		}
		u.ActiveSubscription = &sub
	}
	if len(row.InactiveSubscriptions) > 0 {
		if err := json.Unmarshal(row.InactiveSubscriptions, &u.InactiveSubscriptions); err != nil {
			return nil, corrupt(row, "inactive_subscriptions", err)
		}
	}
	if len(row.Debts) > 0 {
		if err := json.Unmarshal(row.Debts, &u.LastSubscriptionsDebts); err != nil {
			return nil, corrupt(row, "debts", err)
		}
	}
	for k, v := range row.Properties {
		if s, ok := v.(string); ok {
			u.Properties[k] = s
		}
	}
	return u, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func corrupt(row *FinanceUserRow, column string, err error) error {
	return ierr.WithError(err).
		WithHintf("stored %s of user %s@%s is unreadable", column, row.UserID, row.Provider).
		Mark(ierr.ErrDatabase)
}
