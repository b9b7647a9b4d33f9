package postgres

// Schema is applied in order by PostgresClient.Migrate on start.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id             TEXT PRIMARY KEY,
		display_name   TEXT NOT NULL,
		channel_id     TEXT NOT NULL UNIQUE,
		phone          TEXT NOT NULL DEFAULT '',
		services       TEXT[] NOT NULL,
		coverage_areas TEXT[] NOT NULL,
		is_available   BOOLEAN NOT NULL DEFAULT TRUE,
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		rating         DOUBLE PRECISION NOT NULL DEFAULT 0,
		rating_count   INTEGER NOT NULL DEFAULT 0,
		total_jobs     INTEGER NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS providers_services_idx ON providers USING GIN (services)`,
	`CREATE TABLE IF NOT EXISTS service_requests (
		id                   TEXT PRIMARY KEY,
		requester_id         TEXT NOT NULL,
		requester_channel_id TEXT NOT NULL,
		service_type         TEXT NOT NULL,
		description          TEXT NOT NULL DEFAULT '',
		location             TEXT NOT NULL,
		urgency              TEXT NOT NULL,
		status               TEXT NOT NULL,
		created_at           TIMESTAMPTZ NOT NULL,
		updated_at           TIMESTAMPTZ NOT NULL,
		accepted_at          TIMESTAMPTZ,
		completed_at         TIMESTAMPTZ,
		assigned_provider_id TEXT REFERENCES providers (id),
		estimated_cost       DOUBLE PRECISION,
		final_cost           DOUBLE PRECISION,
		cancel_reason        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS dispatch_attempts (
		id                    TEXT PRIMARY KEY,
		request_id            TEXT NOT NULL REFERENCES service_requests (id),
		notified_provider_ids TEXT[] NOT NULL,
		deadline              TIMESTAMPTZ NOT NULL,
		resolved              BOOLEAN NOT NULL DEFAULT FALSE,
		outcome               TEXT,
		created_at            TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS dispatch_attempts_one_open ON dispatch_attempts (request_id) WHERE NOT resolved`,
	`CREATE TABLE IF NOT EXISTS notification_records (
		request_id   TEXT NOT NULL REFERENCES service_requests (id),
		provider_id  TEXT NOT NULL REFERENCES providers (id),
		channel_id   TEXT NOT NULL,
		sent_at      TIMESTAMPTZ NOT NULL,
		delivered    BOOLEAN NOT NULL DEFAULT FALSE,
		responded_at TIMESTAMPTZ,
		response     TEXT,
		PRIMARY KEY (request_id, provider_id)
	)`,
	`CREATE INDEX IF NOT EXISTS notification_records_open_idx ON notification_records (channel_id, sent_at DESC) WHERE responded_at IS NULL`,
}
