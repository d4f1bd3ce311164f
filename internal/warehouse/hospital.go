package warehouse

import (
	"context"
	"path"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
)

// HospitalNameFromFile derives the hospital name a file is published
// under: the base name without its extension (and without ".gz"), with
// dashes read as spaces. "silver/St-Mary-Medical.csv" → "St Mary Medical".
func HospitalNameFromFile(name string) string {
	base := path.Base(name)
	if strings.EqualFold(path.Ext(base), ".gz") {
		base = strings.TrimSuffix(base, path.Ext(base))
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.ReplaceAll(base, "-", " ")
}

// HospitalRepo looks up pre-existing hospitals. It never creates them.
type HospitalRepo struct{}

// Resolve returns the id of the hospital named name, or an error wrapping
// ErrHospitalNotFound.
func (HospitalRepo) Resolve(ctx context.Context, s *Scope, name string) (int32, error) {
	var id int32
	err := s.tx.QueryRow(ctx,
		"SELECT hospital_id FROM hospital WHERE hospital_name = $1 ORDER BY hospital_id LIMIT 1",
		name,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errors.Wrapf(ErrHospitalNotFound, "%q", name)
	}
	if err != nil {
		return 0, txFailed("resolve hospital", err)
	}
	return id, nil
}

// Guard refuses to load a hospital twice.
type Guard struct{}

// Loaded reports whether hospitalID already has price rows, and how many.
func (Guard) Loaded(ctx context.Context, s *Scope, hospitalID int32) (bool, int64, error) {
	var n int64
	err := s.tx.QueryRow(ctx, "SELECT count(*) FROM price WHERE hospital_id = $1", hospitalID).Scan(&n)
	if err != nil {
		return false, 0, txFailed("count prices", err)
	}
	return n > 0, n, nil
}
