package models

// All returns every persisted entity in dependency order for schema migration
func All() []any {
	return []any{
		&DataModel{},
		&Record{},
		&Campaign{},
		&CampaignDelivery{},
		&ProviderCredential{},
		&PlatformSetting{},
		&CreditAccount{},
		&CreditTransaction{},
		&MessageHistory{},
		&AuditLog{},
	}
}
