package domain

import "strings"

// Finance state property names read and written through the plan plugins.
const (
	PropertyAllUserInvoices = "ALL_USER_INVOICES"
	PropertyUserCredits     = "USER_CREDITS"

	PropertyType         = "PROPERTY_TYPE"
	PropertyTypeInvoice  = "INVOICE"
	PropertyTypeCredits  = "CREDITS"
	PropertyCreditsToAdd = "CREDITS_TO_ADD"
)

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
