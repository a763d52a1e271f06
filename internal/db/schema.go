package db

import "fmt"

// schemaTemplate is formatted with the embedding dimension.
const schemaTemplate = `
    -- ==========================================================================
    -- USER TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS user SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS username ON user TYPE string;
    DEFINE FIELD IF NOT EXISTS password_hash ON user TYPE string;
    DEFINE FIELD IF NOT EXISTS profile ON user TYPE object FLEXIBLE;
    -- TODO: Use set<string> when Go SDK supports CBOR tag 56 (v3.0 set type)
    DEFINE FIELD IF NOT EXISTS symbols ON user TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS act ON user TYPE string DEFAULT "Act I – The Wound";
    DEFINE FIELD IF NOT EXISTS thread_ids ON user TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS created_at ON user TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS user_username ON user FIELDS username UNIQUE;

    -- ==========================================================================
    -- SESSION TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS session SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS user ON session TYPE string;
    DEFINE FIELD IF NOT EXISTS expires_at ON session TYPE datetime;
    DEFINE FIELD IF NOT EXISTS created_at ON session TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS session_user ON session FIELDS user;

    -- ==========================================================================
    -- THREAD TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS thread SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner ON thread TYPE string;
    DEFINE FIELD IF NOT EXISTS turns ON thread TYPE array<object> DEFAULT [];  -- [{user, assistant}]
    DEFINE FIELD IF NOT EXISTS turns.* ON thread TYPE object;
    DEFINE FIELD IF NOT EXISTS turns.*.user ON thread TYPE string;
    DEFINE FIELD IF NOT EXISTS turns.*.assistant ON thread TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON thread TYPE string;
    DEFINE FIELD IF NOT EXISTS preview ON thread TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON thread TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON thread TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS thread_owner ON thread FIELDS owner;

    -- ==========================================================================
    -- MEMORY TABLE (echo store)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS memory SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS text ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS response ON memory TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS tone ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS thread ON memory TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS embedding ON memory TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created_at ON memory TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS memory_owner ON memory FIELDS owner;
    DEFINE INDEX IF NOT EXISTS memory_embedding ON memory FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
`

// SchemaSQL returns the schema definition for the given embedding dimension.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(schemaTemplate, dimension)
}
