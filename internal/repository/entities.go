package repository

// Entities lists every table owned by the gateway, in migration order.
func Entities() []any {
	return []any{
		&TenantEntity{},
		&InstallEntity{},
		&ThreadEntity{},
		&MessageEntity{},
		&OutboxEventEntity{},
		&ContactEntity{},
		&GroupEntity{},
	}
}
