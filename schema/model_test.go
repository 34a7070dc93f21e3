package schema

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertTypeKindPromotion(t *testing.T) {
	m := NewModel()

	td := m.UpsertType("User", Unresolved)
	assert.Equal(t, Unresolved, td.Kind)

	// Unresolved promotes to a concrete kind.
	td = m.UpsertType("User", Object)
	assert.Equal(t, Object, td.Kind)

	// A concrete kind is never overwritten; the disagreement is recorded.
	td = m.UpsertType("User", Enum)
	assert.Equal(t, Object, td.Kind)
	require.Len(t, td.Conflicts, 1)
	assert.Contains(t, td.Conflicts[0], "ENUM")

	// Unresolved evidence against a concrete kind is not a conflict.
	td = m.UpsertType("User", Unresolved)
	assert.Equal(t, Object, td.Kind)
	assert.Len(t, td.Conflicts, 1)
}

func TestUpsertFieldIdempotent(t *testing.T) {
	m := NewModel()
	ref := TypeRef{Name: "String"}

	f := m.UpsertField("Query", "health", ref, Inferred, ConfidenceDirect)
	assert.Equal(t, ConfidenceDirect, f.Confidence)

	// The same fact confirmed again corroborates, nothing else changes.
	f = m.UpsertField("Query", "health", ref, Inferred, ConfidenceDirect)
	assert.Equal(t, ConfidenceCorroborated, f.Confidence)
	assert.Equal(t, "String", f.Type.Name)

	// A third time changes nothing further.
	f = m.UpsertField("Query", "health", ref, Inferred, ConfidenceDirect)
	assert.Equal(t, ConfidenceCorroborated, f.Confidence)
	assert.Len(t, m.Get("Query").Fields, 1)
}

func TestUpsertFieldResolvesUnresolvedRef(t *testing.T) {
	m := NewModel()

	m.UpsertField("Query", "owner", TypeRef{Unresolved: true}, Inferred, ConfidenceDirect)
	f := m.UpsertField("Query", "owner", TypeRef{Name: "User"}, Inferred, ConfidenceDirect)
	assert.Equal(t, "User", f.Type.Name)
	assert.False(t, f.Type.Unresolved)

	// An unresolved sighting never erases a resolved one.
	f = m.UpsertField("Query", "owner", TypeRef{Unresolved: true}, Inferred, ConfidenceDirect)
	assert.Equal(t, "User", f.Type.Name)
}

func TestUpsertFieldConflictPrefersObjectLike(t *testing.T) {
	m := NewModel()
	m.UpsertType("User", Object)

	m.UpsertField("Query", "thing", TypeRef{Name: "String"}, Inferred, ConfidenceDirect)
	f := m.UpsertField("Query", "thing", TypeRef{Name: "User"}, Inferred, ConfidenceDirect)

	// The object-like reading wins, at lowered confidence, with the
	// disagreement on record.
	assert.Equal(t, "User", f.Type.Name)
	assert.Equal(t, ConfidenceSuggested, f.Confidence)
	assert.NotEmpty(t, m.Get("Query").Conflicts)
}

func TestUpsertFieldIntrospectedIsAuthoritative(t *testing.T) {
	m := NewModel()

	m.UpsertField("Query", "user", TypeRef{Name: "User"}, Introspected, ConfidenceAuthoritative)
	f := m.UpsertField("Query", "user", TypeRef{Name: "Account"}, Inferred, ConfidenceDirect)

	assert.Equal(t, "User", f.Type.Name)
	assert.Equal(t, ConfidenceAuthoritative, f.Confidence)
	assert.Empty(t, m.Get("Query").Conflicts)
}

func TestUpsertArgumentRequiredRatchets(t *testing.T) {
	m := NewModel()
	m.UpsertField("Query", "user", TypeRef{Name: "User"}, Inferred, ConfidenceDirect)

	arg := m.UpsertArgument("Query", "user", "id", TypeRef{Unresolved: true}, false)
	require.NotNil(t, arg)
	assert.False(t, arg.Required)

	arg = m.UpsertArgument("Query", "user", "id", TypeRef{Name: "ID"}, true)
	assert.True(t, arg.Required)
	assert.Equal(t, "ID", arg.Type.Name)

	// Required-ness does not ratchet back down.
	arg = m.UpsertArgument("Query", "user", "id", TypeRef{Unresolved: true}, false)
	assert.True(t, arg.Required)
	assert.Equal(t, "ID", arg.Type.Name)

	// Arguments on unknown fields are dropped, not invented.
	assert.Nil(t, m.UpsertArgument("Query", "nope", "id", TypeRef{}, false))
}

func TestFinalizeFreezesModel(t *testing.T) {
	m := NewModel()
	m.UpsertField("Query", "user", TypeRef{Name: "User"}, Inferred, ConfidenceDirect)
	m.Finalize()

	m.UpsertField("Query", "late", TypeRef{Name: "String"}, Inferred, ConfidenceDirect)
	assert.NotContains(t, m.Get("Query").Fields, "late")

	m.UpsertType("Late", Object)
	assert.Nil(t, m.Get("Late"))

	m.SetRoot(Mutation, "Mutation")
	_, ok := m.Root(Mutation)
	assert.False(t, ok)
}

func TestModelRootsAndVisited(t *testing.T) {
	m := NewModel()
	m.SetRoot(Query, "Query")

	name, ok := m.Root(Query)
	require.True(t, ok)
	assert.Equal(t, "Query", name)
	_, ok = m.Root(Mutation)
	assert.False(t, ok)

	assert.False(t, m.Visited("Query"))
	m.MarkVisited("Query")
	assert.True(t, m.Visited("Query"))
}

func TestModelConcurrentUpserts(t *testing.T) {
	m := NewModel()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.UpsertField("Query", "user", TypeRef{Name: "User"}, Inferred, ConfidenceDirect)
				m.UpsertField("User", "email", TypeRef{Name: "String"}, Inferred, ConfidenceDirect)
				m.UpsertType("Post", Unresolved)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, m.Get("Query").Fields, 1)
	assert.Len(t, m.Get("User").Fields, 1)
	assert.Equal(t, ConfidenceCorroborated, m.Get("Query").Fields["user"].Confidence)
	assert.Equal(t, 3, m.Len())
}
