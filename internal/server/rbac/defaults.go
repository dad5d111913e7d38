package rbac

// Permission tags used by the built-in roles.
const (
	UserRead            = "USER_READ"
	UserWrite           = "USER_WRITE"
	UserDelete          = "USER_DELETE"
	RoleRead            = "ROLE_READ"
	RoleWrite           = "ROLE_WRITE"
	RoleDelete          = "ROLE_DELETE"
	TenantRead          = "TENANT_READ"
	TenantWrite         = "TENANT_WRITE"
	TenantDelete        = "TENANT_DELETE"
	PropertyRead        = "PROPERTY_READ"
	PropertyWrite       = "PROPERTY_WRITE"
	PropertyDelete      = "PROPERTY_DELETE"
	LeadRead            = "LEAD_READ"
	LeadWrite           = "LEAD_WRITE"
	LeadDelete          = "LEAD_DELETE"
	AppointmentRead     = "APPOINTMENT_READ"
	AppointmentWrite    = "APPOINTMENT_WRITE"
	AppointmentDelete   = "APPOINTMENT_DELETE"
	DealRead            = "DEAL_READ"
	DealWrite           = "DEAL_WRITE"
	DealDelete          = "DEAL_DELETE"
	AnalyticsRead       = "ANALYTICS_READ"
	AnalyticsWrite      = "ANALYTICS_WRITE"
	SystemSettingsRead  = "SYSTEM_SETTINGS_READ"
	SystemSettingsWrite = "SYSTEM_SETTINGS_WRITE"
)

// DefaultMapping returns a fresh copy of the built-in CRM roles.
func DefaultMapping() map[string][]string {
	return map[string][]string{
		"SUPER_ADMIN": {
			UserRead, UserWrite, UserDelete,
			RoleRead, RoleWrite, RoleDelete,
			TenantRead, TenantWrite, TenantDelete,
			PropertyRead, PropertyWrite, PropertyDelete,
			LeadRead, LeadWrite, LeadDelete,
			AppointmentRead, AppointmentWrite, AppointmentDelete,
			DealRead, DealWrite, DealDelete,
			AnalyticsRead, AnalyticsWrite,
			SystemSettingsRead, SystemSettingsWrite,
		},
		"ADMIN": {
			UserRead, UserWrite,
			PropertyRead, PropertyWrite, PropertyDelete,
			LeadRead, LeadWrite, LeadDelete,
			AppointmentRead, AppointmentWrite, AppointmentDelete,
			DealRead, DealWrite, DealDelete,
			AnalyticsRead,
		},
		"AGENT": {
			LeadRead, LeadWrite,
			AppointmentRead, AppointmentWrite,
			PropertyRead,
			DealRead, DealWrite,
		},
		"CLIENT": {
			PropertyRead,
			AppointmentRead,
		},
	}
}

// Default returns the registry of built-in roles.
func Default() *Registry {
	r, err := New(DefaultMapping())
	if err != nil {
		panic(err)
	}
	return r
}
