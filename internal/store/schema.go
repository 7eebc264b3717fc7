package store

const schema = `
CREATE TABLE IF NOT EXISTS environments (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    channels TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS history_entries (
    env_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    kind TEXT NOT NULL,
    ecosystem TEXT NOT NULL,
    log TEXT NOT NULL,
    action TEXT NOT NULL,
    packages TEXT NOT NULL,
    dependencies TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (env_id, seq),
    FOREIGN KEY (env_id) REFERENCES environments(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS history_packages (
    env_id TEXT NOT NULL,
    ecosystem TEXT NOT NULL,
    name TEXT NOT NULL,
    version TEXT,
    channel TEXT,
    requested TEXT,
    PRIMARY KEY (env_id, ecosystem, name),
    FOREIGN KEY (env_id) REFERENCES environments(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS dependencies (
    env_id TEXT NOT NULL,
    ecosystem TEXT NOT NULL,
    name TEXT NOT NULL,
    version TEXT NOT NULL,
    channel TEXT,
    direct BOOLEAN NOT NULL,
    PRIMARY KEY (env_id, ecosystem, name),
    FOREIGN KEY (env_id) REFERENCES environments(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_history_env ON history_entries(env_id);
CREATE INDEX IF NOT EXISTS idx_deps_env ON dependencies(env_id, ecosystem);
`
