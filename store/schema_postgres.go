package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS orders (
    order_id        TEXT PRIMARY KEY,
    order_type      TEXT NOT NULL,
    workpiece_type  TEXT NOT NULL DEFAULT '',
    workpiece_id    TEXT NOT NULL DEFAULT '',
    state           TEXT NOT NULL DEFAULT 'ENQUEUED',
    stock_location  TEXT NOT NULL DEFAULT '',
    order_update_id INTEGER NOT NULL DEFAULT 0,
    steps           JSONB NOT NULL DEFAULT '[]',
    received_at     TIMESTAMPTZ NOT NULL,
    started_at      TIMESTAMPTZ,
    stopped_at      TIMESTAMPTZ,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_orders_state ON orders(state);

CREATE TABLE IF NOT EXISTS stock_locations (
    location        TEXT PRIMARY KEY,
    workpiece_type  TEXT NOT NULL DEFAULT '',
    workpiece_id    TEXT NOT NULL DEFAULT '',
    reserved_by     TEXT NOT NULL DEFAULT '',
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_stock_reserved ON stock_locations(reserved_by);

CREATE TABLE IF NOT EXISTS outbox (
    id          BIGSERIAL PRIMARY KEY,
    topic       TEXT NOT NULL,
    payload     BYTEA NOT NULL,
    qos         SMALLINT NOT NULL DEFAULT 0,
    retain      BOOLEAN NOT NULL DEFAULT FALSE,
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          BIGSERIAL PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS admin_users (
    id            BIGSERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
