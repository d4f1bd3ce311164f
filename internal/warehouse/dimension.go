package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// dimension describes one append-only reference table keyed by a natural
// key K.
type dimension[K comparable] struct {
	table   string
	idCol   string
	keyCols []string
	scan    func(pgx.Rows) (K, int32, error)
	values  func(K) []any
}

// resolveOrInsert inserts the keys not yet in the table and returns the
// mapping for the whole table. Duplicate natural keys already in the table
// resolve to their lowest id.
func resolveOrInsert[K comparable](ctx context.Context, s *Scope, d dimension[K], keys []K) (map[K]int32, int, error) {
	var empty bool
	err := s.tx.QueryRow(ctx, fmt.Sprintf("SELECT NOT EXISTS (SELECT 1 FROM %s)", d.table)).Scan(&empty)
	if err != nil {
		return nil, 0, txFailed("check "+d.table, err)
	}

	existing := map[K]int32{}
	if !empty {
		if existing, err = d.load(ctx, s); err != nil {
			return nil, 0, err
		}
	}

	seen := make(map[K]struct{}, len(keys))
	var fresh [][]any
	for _, k := range keys {
		if _, ok := existing[k]; ok {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, d.values(k))
	}
	if len(fresh) == 0 {
		return existing, 0, nil
	}

	n, err := s.tx.CopyFrom(ctx, pgx.Identifier{d.table}, d.keyCols, pgx.CopyFromRows(fresh))
	if err != nil {
		return nil, 0, txFailed("insert "+d.table, err)
	}

	all, err := d.load(ctx, s)
	if err != nil {
		return nil, 0, err
	}
	return all, int(n), nil
}

func (d dimension[K]) load(ctx context.Context, s *Scope) (map[K]int32, error) {
	q := fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s",
		d.idCol, strings.Join(d.keyCols, ", "), d.table, d.idCol)
	rows, err := s.tx.Query(ctx, q)
	if err != nil {
		return nil, txFailed("read "+d.table, err)
	}
	defer rows.Close()

	m := make(map[K]int32)
	for rows.Next() {
		k, id, err := d.scan(rows)
		if err != nil {
			return nil, txFailed("scan "+d.table, err)
		}
		if _, dup := m[k]; !dup {
			m[k] = id
		}
	}
	return m, txFailed("read "+d.table, rows.Err())
}

// PayerRepo maps payer names to payer ids.
type PayerRepo struct{}

var payerDim = dimension[string]{
	table:   "payer",
	idCol:   "payer_id",
	keyCols: []string{"payer_name"},
	scan: func(rows pgx.Rows) (string, int32, error) {
		var id int32
		var name string
		err := rows.Scan(&id, &name)
		return name, id, err
	},
	values: func(name string) []any { return []any{name} },
}

// ResolveOrInsert returns the id of every payer in the table after adding
// the names not seen before, and how many were added.
func (PayerRepo) ResolveOrInsert(ctx context.Context, s *Scope, names []string) (map[string]int32, int, error) {
	return resolveOrInsert(ctx, s, payerDim, names)
}

// PlanKey identifies a plan. The same plan name under two payers is two
// plans.
type PlanKey struct {
	Name    string
	PayerID int32
}

// PlanRepo maps (plan name, payer id) to plan ids.
type PlanRepo struct{}

var planDim = dimension[PlanKey]{
	table:   "plan",
	idCol:   "plan_id",
	keyCols: []string{"plan_name", "payer_id"},
	scan: func(rows pgx.Rows) (PlanKey, int32, error) {
		var id int32
		var k PlanKey
		err := rows.Scan(&id, &k.Name, &k.PayerID)
		return k, id, err
	},
	values: func(k PlanKey) []any { return []any{k.Name, k.PayerID} },
}

func (PlanRepo) ResolveOrInsert(ctx context.Context, s *Scope, keys []PlanKey) (map[PlanKey]int32, int, error) {
	return resolveOrInsert(ctx, s, planDim, keys)
}

// MaxDescriptionLen bounds code descriptions, in characters.
const MaxDescriptionLen = 495

// CodeKey identifies a billing code dimension row. A code published with
// two descriptions is two rows.
type CodeKey struct {
	Code        string
	Description string
}

// NewCodeKey truncates description to MaxDescriptionLen characters. A nil
// description is stored as the empty string.
func NewCodeKey(code string, description *string) CodeKey {
	var desc string
	if description != nil {
		desc = *description
		if r := []rune(desc); len(r) > MaxDescriptionLen {
			desc = string(r[:MaxDescriptionLen])
		}
	}
	return CodeKey{Code: code, Description: desc}
}

// CodeRepo maps (code, description) to code ids.
type CodeRepo struct{}

var codeDim = dimension[CodeKey]{
	table:   "code_description",
	idCol:   "code_id",
	keyCols: []string{"cpt_code", "description"},
	scan: func(rows pgx.Rows) (CodeKey, int32, error) {
		var id int32
		var k CodeKey
		var desc *string
		err := rows.Scan(&id, &k.Code, &desc)
		if desc != nil {
			k.Description = *desc
		}
		return k, id, err
	},
	values: func(k CodeKey) []any { return []any{k.Code, k.Description} },
}

func (CodeRepo) ResolveOrInsert(ctx context.Context, s *Scope, keys []CodeKey) (map[CodeKey]int32, int, error) {
	return resolveOrInsert(ctx, s, codeDim, keys)
}
