package warehouse

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayerRepo_OverlappingCallsInsertOnce(t *testing.T) {
	resetDB(t)

	var first map[string]int32
	inScope(t, func(ctx context.Context, s *Scope) {
		var n int
		var err error
		first, n, err = PayerRepo{}.ResolveOrInsert(ctx, s, []string{"Aetna", "Cigna", "Aetna"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Len(t, first, 2)
	})

	inScope(t, func(ctx context.Context, s *Scope) {
		got, n, err := PayerRepo{}.ResolveOrInsert(ctx, s, []string{"Cigna", "Humana", "Humana"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Len(t, got, 3)
		assert.Equal(t, first["Cigna"], got["Cigna"])
		assert.Equal(t, first["Aetna"], got["Aetna"], "mapping covers the whole table")
		assert.NotZero(t, got["Humana"])
	})

	inScope(t, func(ctx context.Context, s *Scope) {
		_, n, err := PayerRepo{}.ResolveOrInsert(ctx, s, []string{"Aetna", "Humana"})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	assert.Equal(t, 3, countRows(t, "payer"))
}

func TestPayerRepo_EmptyInput(t *testing.T) {
	resetDB(t)

	inScope(t, func(ctx context.Context, s *Scope) {
		got, n, err := PayerRepo{}.ResolveOrInsert(ctx, s, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, got)
	})
}

func TestPlanRepo_SameNameUnderTwoPayers(t *testing.T) {
	resetDB(t)

	inScope(t, func(ctx context.Context, s *Scope) {
		payers, _, err := PayerRepo{}.ResolveOrInsert(ctx, s, []string{"Aetna", "Cigna"})
		require.NoError(t, err)

		keys := []PlanKey{
			{Name: "Ppo", PayerID: payers["Aetna"]},
			{Name: "Ppo", PayerID: payers["Cigna"]},
			{Name: "Ppo", PayerID: payers["Aetna"]},
		}
		plans, n, err := PlanRepo{}.ResolveOrInsert(ctx, s, keys)
		require.NoError(t, err)

		assert.Equal(t, 2, n)
		assert.NotEqual(t, plans[keys[0]], plans[keys[1]])
	})

	assert.Equal(t, 2, countRows(t, "plan"))
}

func TestCodeRepo_KeyedByCodeAndDescription(t *testing.T) {
	resetDB(t)
	long := strings.Repeat("é", MaxDescriptionLen+100)

	inScope(t, func(ctx context.Context, s *Scope) {
		keys := []CodeKey{
			NewCodeKey("99213", str("Office Visit")),
			NewCodeKey("99213", str("Office Visit Established")),
			NewCodeKey("99214", &long),
			NewCodeKey("99215", nil),
		}
		codes, n, err := CodeRepo{}.ResolveOrInsert(ctx, s, keys)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Len(t, codes, 4)
	})

	inScope(t, func(ctx context.Context, s *Scope) {
		longer := long + "more text"
		_, n, err := CodeRepo{}.ResolveOrInsert(ctx, s, []CodeKey{
			NewCodeKey("99214", &longer),
			NewCodeKey("99215", str("")),
		})
		require.NoError(t, err)
		assert.Zero(t, n, "truncated description and nil description match existing rows")
	})

	var stored int
	err := testPool.QueryRow(context.Background(),
		"SELECT char_length(description) FROM code_description WHERE cpt_code = '99214'").Scan(&stored)
	require.NoError(t, err)
	assert.Equal(t, MaxDescriptionLen, stored)
}

func TestNewCodeKey(t *testing.T) {
	assert.Equal(t, CodeKey{Code: "99213"}, NewCodeKey("99213", nil))
	assert.Equal(t, CodeKey{Code: "99213", Description: "Visit"}, NewCodeKey("99213", str("Visit")))

	k := NewCodeKey("99213", str(strings.Repeat("a", 600)))
	assert.Len(t, k.Description, MaxDescriptionLen)
}

func str(s string) *string { return &s }
