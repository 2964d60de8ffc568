package postgres

const queryCreateTable = `
CREATE TABLE IF NOT EXISTS geofence_blobs (
    key        TEXT PRIMARY KEY,
    payload    JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)
`

const queryUpsertBlob = `
INSERT INTO geofence_blobs (key, payload, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
`

const queryGetBlob = `
SELECT payload FROM geofence_blobs WHERE key = $1
`
