package models

// All returns every persisted model in migration order
func All() []interface{} {
	return []interface{}{
		&User{},
		&Tenant{},
		&TenantUser{},
		&TenantInvitation{},
		&Feature{},
		&Plan{},
		&PlanPrice{},
		&PlanFeature{},
		&Subscription{},
		&Addon{},
		&TenantAddon{},
		&Payment{},
		&Setting{},
	}
}
