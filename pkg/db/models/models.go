package models

// All lists every persisted model. Used for sqlite auto-migration in dev and
// in tests; postgres schemas come from the SQL migrations.
func All() []any {
	return []any{
		&Place{},
		&Event{},
		&Ticket{},
		&OutboxRecord{},
		&IdempotencyRecord{},
		&SyncWatermark{},
	}
}
