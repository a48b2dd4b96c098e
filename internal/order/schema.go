package order

// Schema is the reference DDL for the reconciliation tables. The UNIQUE
// constraints on external_order_id and provider_payment_id are load-bearing:
// they are the storage-level idempotency guards for order creation and
// payment application. In-process checks are only a fast path.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
    id                 UUID PRIMARY KEY,
    external_order_id  VARCHAR(128) NOT NULL UNIQUE,
    status             VARCHAR(16)  NOT NULL,
    payment_status     VARCHAR(64)  NOT NULL DEFAULT 'PENDING',
    total_amount       NUMERIC(19,4) NOT NULL,
    customer_name      VARCHAR(255) NOT NULL DEFAULT '',
    customer_phone     VARCHAR(32)  NOT NULL DEFAULT '',
    payment_session_id VARCHAR(128) NOT NULL DEFAULT '',
    provider_order_id  VARCHAR(128) NOT NULL DEFAULT '',
    transaction_id     VARCHAR(128) NOT NULL DEFAULT '',
    refund_amount      NUMERIC(19,4),
    refund_reason      TEXT NOT NULL DEFAULT '',
    return_reason      TEXT NOT NULL DEFAULT '',
    admin_notes        TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS order_items (
    id          UUID PRIMARY KEY,
    order_id    UUID NOT NULL REFERENCES orders(id),
    product_id  VARCHAR(128) NOT NULL,
    name        VARCHAR(255) NOT NULL DEFAULT '',
    quantity    INT NOT NULL CHECK (quantity > 0),
    unit_price  NUMERIC(19,4) NOT NULL,
    total_price NUMERIC(19,4) NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
    id                  UUID PRIMARY KEY,
    order_id            UUID REFERENCES orders(id),
    provider            VARCHAR(64)  NOT NULL,
    status              VARCHAR(64)  NOT NULL,
    amount              NUMERIC(19,4) NOT NULL,
    currency            VARCHAR(8)   NOT NULL,
    provider_payment_id VARCHAR(128) NOT NULL UNIQUE,
    raw_response        TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS order_status_history (
    id         UUID PRIMARY KEY,
    order_id   UUID NOT NULL REFERENCES orders(id),
    old_status VARCHAR(16) NOT NULL,
    new_status VARCHAR(16) NOT NULL,
    reason     TEXT NOT NULL DEFAULT '',
    admin_note TEXT NOT NULL DEFAULT '',
    created_by VARCHAR(64) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(order_id);
CREATE INDEX IF NOT EXISTS idx_history_order ON order_status_history(order_id);
`
