package transform

import "github.com/gyeh/hospital-prices/internal/chargemaster"

// DedupeRecords keeps the first record for each (code, payer, plan) and
// preserves order. It reuses the backing array of records.
func DedupeRecords(records []chargemaster.Record) []chargemaster.Record {
	seen := make(map[chargemaster.Key]struct{}, len(records))
	out := records[:0]
	for _, r := range records {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
