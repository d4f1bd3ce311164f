package warehouse

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/gyeh/hospital-prices/internal/chargemaster"
)

// Reasons a record is left out of the load.
const (
	UnresolvedPayer = "payer"
	UnresolvedPlan  = "plan"
	UnresolvedCode  = "code"
)

// MapStats counts dimension rows a load inserted.
type MapStats struct {
	Payers int
	Plans  int
	Codes  int
}

// LoadResult describes one Load call.
type LoadResult struct {
	Hospital      string
	HospitalID    int32
	AlreadyLoaded bool
	ExistingFacts int64
	Facts         int64
	Inserted      MapStats
	Unresolved    map[string]int
}

// Err returns ErrAlreadyLoaded for skipped loads, for callers that treat a
// skip as a failure.
func (r *LoadResult) Err() error {
	if r.AlreadyLoaded {
		return errors.Wrapf(ErrAlreadyLoaded, "%q has %d price rows", r.Hospital, r.ExistingFacts)
	}
	return nil
}

// Loader runs the load stage for one file at a time.
type Loader struct {
	DB  DB
	Log logrus.FieldLogger

	Hospitals HospitalRepo
	Guard     Guard
	Payers    PayerRepo
	Plans     PlanRepo
	Codes     CodeRepo
	Facts     FactLoader
}

// NewLoader returns a Loader on db.
func NewLoader(db DB, log logrus.FieldLogger) *Loader {
	return &Loader{DB: db, Log: log}
}

// Load maps records onto dimension ids and appends them as price rows for
// the hospital named by fileName. Everything happens in one transaction:
// any error rolls back the dimension rows inserted along the way. A
// hospital that already has price rows is skipped without error.
func (l *Loader) Load(ctx context.Context, fileName string, records []chargemaster.Record) (*LoadResult, error) {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	res := &LoadResult{Hospital: HospitalNameFromFile(fileName), Unresolved: map[string]int{}}
	log = log.WithField("hospital", res.Hospital)

	s, err := Begin(ctx, l.DB)
	if err != nil {
		return nil, err
	}
	defer s.Close(ctx)

	if err := s.lock(ctx); err != nil {
		return nil, err
	}

	if res.HospitalID, err = l.Hospitals.Resolve(ctx, s, res.Hospital); err != nil {
		return nil, err
	}

	loaded, existing, err := l.Guard.Loaded(ctx, s, res.HospitalID)
	if err != nil {
		return nil, err
	}
	if loaded {
		res.AlreadyLoaded, res.ExistingFacts = true, existing
		log.WithField("price_rows", existing).Info("hospital already loaded, skipping")
		return res, nil
	}

	facts, err := l.mapRecords(ctx, s, records, res)
	if err != nil {
		return nil, err
	}

	if res.Facts, err = l.Facts.Insert(ctx, s, facts); err != nil {
		return nil, err
	}
	if err := s.Commit(ctx); err != nil {
		return nil, err
	}

	entry := log.WithFields(logrus.Fields{
		"facts":      res.Facts,
		"new_payers": res.Inserted.Payers,
		"new_plans":  res.Inserted.Plans,
		"new_codes":  res.Inserted.Codes,
	})
	if n := res.Unresolved[UnresolvedPayer] + res.Unresolved[UnresolvedPlan] + res.Unresolved[UnresolvedCode]; n > 0 {
		entry.WithField("unresolved", res.Unresolved).Warn("loaded with unresolved rows dropped")
	} else {
		entry.Info("loaded")
	}
	return res, nil
}

// mapRecords resolves payer, then plan, then code ids and joins them onto
// the records. Records whose keys do not resolve are counted and dropped.
func (l *Loader) mapRecords(ctx context.Context, s *Scope, records []chargemaster.Record, res *LoadResult) ([]Fact, error) {
	payerNames := make([]string, 0, len(records))
	for _, r := range records {
		if r.Payer != nil {
			payerNames = append(payerNames, *r.Payer)
		}
	}
	payers, n, err := l.Payers.ResolveOrInsert(ctx, s, payerNames)
	if err != nil {
		return nil, err
	}
	res.Inserted.Payers = n

	var planKeys []PlanKey
	for _, r := range records {
		if r.Payer == nil || r.Plan == nil {
			continue
		}
		if id, ok := payers[*r.Payer]; ok {
			planKeys = append(planKeys, PlanKey{Name: *r.Plan, PayerID: id})
		}
	}
	plans, n, err := l.Plans.ResolveOrInsert(ctx, s, planKeys)
	if err != nil {
		return nil, err
	}
	res.Inserted.Plans = n

	var codeKeys []CodeKey
	for _, r := range records {
		if r.Code != "" {
			codeKeys = append(codeKeys, NewCodeKey(r.Code, r.Description))
		}
	}
	codes, n, err := l.Codes.ResolveOrInsert(ctx, s, codeKeys)
	if err != nil {
		return nil, err
	}
	res.Inserted.Codes = n

	facts := make([]Fact, 0, len(records))
	for _, r := range records {
		if r.Payer == nil {
			res.Unresolved[UnresolvedPayer]++
			continue
		}
		payerID, ok := payers[*r.Payer]
		if !ok {
			res.Unresolved[UnresolvedPayer]++
			continue
		}
		if r.Plan == nil {
			res.Unresolved[UnresolvedPlan]++
			continue
		}
		planID, ok := plans[PlanKey{Name: *r.Plan, PayerID: payerID}]
		if !ok {
			res.Unresolved[UnresolvedPlan]++
			continue
		}
		codeID, ok := codes[NewCodeKey(r.Code, r.Description)]
		if r.Code == "" || !ok {
			res.Unresolved[UnresolvedCode]++
			continue
		}

		facts = append(facts, Fact{
			CodeID:               codeID,
			PayerID:              payerID,
			PlanID:               planID,
			HospitalID:           res.HospitalID,
			Gross:                r.Gross,
			DiscountedCash:       r.DiscountedCash,
			Min:                  r.Min,
			Max:                  r.Max,
			EstimatedAmount:      r.EstimatedAmount,
			NegotiatedPercentage: r.NegotiatedPercentage,
		})
	}
	return facts, nil
}
