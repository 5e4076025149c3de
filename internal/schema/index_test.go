package schema

import (
	"testing"

	"query-doctor/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDDL = `
CREATE TABLE users (
    id INT PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    email VARCHAR(255) UNIQUE
);

CREATE TABLE orders (
    id INT PRIMARY KEY,
    user_id INT NOT NULL,
    status VARCHAR(32),
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);

CREATE TABLE comments (
    id INT PRIMARY KEY,
    user_id INT,
    body TEXT,
    FOREIGN KEY (user_id) REFERENCES users (id)
);

CREATE TABLE profiles (
    id INT PRIMARY KEY,
    user_id INT NOT NULL UNIQUE,
    FOREIGN KEY (user_id) REFERENCES users (id)
);

CREATE TABLE order_items (
    id INT PRIMARY KEY,
    order_id INT NOT NULL,
    sku VARCHAR(64),
    FOREIGN KEY (order_id) REFERENCES orders (id)
);

CREATE TABLE roles (
    id INT PRIMARY KEY,
    name VARCHAR(64)
);

CREATE TABLE user_roles (
    user_id INT NOT NULL,
    role_id INT NOT NULL,
    PRIMARY KEY (user_id, role_id),
    FOREIGN KEY (user_id) REFERENCES users (id),
    FOREIGN KEY (role_id) REFERENCES roles (id)
);
`

func findAssociation(t *testing.T, meta *model.TableMetadata, target string) model.Association {
	t.Helper()
	for _, assoc := range meta.Associations {
		if assoc.TargetTable == target {
			return assoc
		}
	}
	t.Fatalf("no association from %s to %s", meta.Table, target)
	return model.Association{}
}

func TestIndex_BuildMetadataMap(t *testing.T) {
	ix := NewIndex(testDDL)
	tables := ix.BuildMetadataMap()
	require.Len(t, tables, 7)

	orders := tables["orders"]
	require.NotNil(t, orders)
	assert.True(t, orders.IsIdentifier("id"))
	assert.False(t, orders.IsIdentifier("user_id"))

	toUsers := findAssociation(t, orders, "users")
	assert.Equal(t, model.ManyToOne, toUsers.Cardinality)
	assert.Equal(t, "user_id", toUsers.ForeignKeyColumn)
	assert.False(t, toUsers.Nullable)
	assert.True(t, toUsers.OnDeleteCascade)

	// Nullable FK column keeps the association nullable.
	comments := tables["comments"]
	require.NotNil(t, comments)
	assert.True(t, findAssociation(t, comments, "users").Nullable)

	// Unique FK column means one row per parent.
	profiles := tables["profiles"]
	require.NotNil(t, profiles)
	assert.Equal(t, model.OneToOne, findAssociation(t, profiles, "users").Cardinality)
}

func TestIndex_InverseAssociations(t *testing.T) {
	ix := NewIndex(testDDL)
	users, ok := ix.Lookup("users")
	require.True(t, ok)

	assert.Equal(t, model.OneToMany, findAssociation(t, users, "orders").Cardinality)
	assert.Equal(t, model.OneToMany, findAssociation(t, users, "comments").Cardinality)
	assert.Equal(t, model.OneToOne, findAssociation(t, users, "profiles").Cardinality)
}

func TestIndex_JunctionTable(t *testing.T) {
	ix := NewIndex(testDDL)

	users, ok := ix.Lookup("users")
	require.True(t, ok)
	assert.Equal(t, model.ManyToMany, findAssociation(t, users, "roles").Cardinality)

	roles, ok := ix.Lookup("roles")
	require.True(t, ok)
	assert.Equal(t, model.ManyToMany, findAssociation(t, roles, "users").Cardinality)
}

func TestIndex_CanBeCollection(t *testing.T) {
	ix := NewIndex(testDDL)

	assert.True(t, ix.CanBeCollection("orders"))
	assert.True(t, ix.CanBeCollection("comments"))
	assert.False(t, ix.CanBeCollection("profiles"))
	assert.False(t, ix.CanBeCollection("unknown_table"))
}

func TestIndex_UnknownTargetTolerated(t *testing.T) {
	ix := NewIndex(`
CREATE TABLE attachments (
    id INT PRIMARY KEY,
    blob_id INT NOT NULL,
    FOREIGN KEY (blob_id) REFERENCES blobs (id)
);`)

	attachments, ok := ix.Lookup("attachments")
	require.True(t, ok)
	assert.Equal(t, "blobs", findAssociation(t, attachments, "blobs").TargetTable)

	_, ok = ix.Lookup("blobs")
	assert.False(t, ok)
}

func TestIndex_EmptyAndInvalidDDL(t *testing.T) {
	assert.Empty(t, NewIndex("").BuildMetadataMap())
	assert.Empty(t, NewIndex("not ddl at all").BuildMetadataMap())
}

func TestIndex_CacheAndClear(t *testing.T) {
	ix := NewIndex(testDDL)

	first := ix.BuildMetadataMap()
	first["sentinel"] = &model.TableMetadata{Table: "sentinel"}
	_, ok := ix.Lookup("sentinel")
	assert.True(t, ok, "second call must reuse the cached map")

	ix.ClearCache()
	_, ok = ix.Lookup("sentinel")
	assert.False(t, ok, "clearing the cache must rebuild from DDL")
}
