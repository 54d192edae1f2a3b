package domain

// Plan option keys. Durations are milliseconds or Go duration strings.
const (
	OptionBillingInterval          = "billing_interval"
	OptionTimeToWaitBeforeStopping = "time_to_wait_before_stopping"
	OptionStopServiceWaitTime      = "stop_service_wait_time"
	OptionDefaultResourceValue     = "finance_plan_default_resource_value"
	OptionFinancePlanRules         = "financeplan"
	OptionFinancePlanFilePath      = "finance_plan_file_path"
	OptionInvoiceWaitTime          = "invoice_wait_time"
	OptionCreditsDeductionWaitTime = "credits_deduction_wait_time"
)
