package memory

import (
	"sort"

	"github.com/canopy-network/payoutx/pkg/db/models/staking"
)

// Export is every stored row, each table sorted by id.
type Export struct {
	Accounts            []staking.Account            `json:"accounts"`
	Sessions            []staking.Session            `json:"sessions"`
	Eras                []staking.Era                `json:"eras"`
	EraValidators       []staking.EraValidator       `json:"eraValidators"`
	NominatorValidators []staking.NominatorValidator `json:"nominatorValidators"`
	ValidatorPayouts    []staking.ValidatorPayout    `json:"validatorPayouts"`
	HistoryElements     []staking.HistoryElement     `json:"historyElements"`
	Checkpoints         []staking.Checkpoint         `json:"checkpoints"`
}

func sortBy[T any](items []T, key func(T) string) {
	sort.Slice(items, func(i, j int) bool { return key(items[i]) < key(items[j]) })
}

// Export copies out the whole store.
func (s *Store) Export() (*Export, error) {
	var (
		out Export
		err error
	)
	if out.Accounts, err = s.accounts.filter(nil); err != nil {
		return nil, err
	}
	if out.Sessions, err = s.sessions.filter(nil); err != nil {
		return nil, err
	}
	if out.Eras, err = s.eras.filter(nil); err != nil {
		return nil, err
	}
	if out.EraValidators, err = s.validators.filter(nil); err != nil {
		return nil, err
	}
	if out.NominatorValidators, err = s.nominations.filter(nil); err != nil {
		return nil, err
	}
	if out.ValidatorPayouts, err = s.payouts.filter(nil); err != nil {
		return nil, err
	}
	if out.HistoryElements, err = s.history.filter(nil); err != nil {
		return nil, err
	}

	sortBy(out.Accounts, func(a staking.Account) string { return a.ID })
	sort.Slice(out.Sessions, func(i, j int) bool { return out.Sessions[i].ID < out.Sessions[j].ID })
	sort.Slice(out.Eras, func(i, j int) bool { return out.Eras[i].ID < out.Eras[j].ID })
	sortBy(out.EraValidators, func(v staking.EraValidator) string { return v.ID })
	sortBy(out.NominatorValidators, func(nv staking.NominatorValidator) string { return nv.ID })
	sortBy(out.ValidatorPayouts, func(p staking.ValidatorPayout) string { return p.ID })
	sortBy(out.HistoryElements, func(h staking.HistoryElement) string { return h.ID })

	s.checkpoints.Range(func(_ string, cp staking.Checkpoint) bool {
		out.Checkpoints = append(out.Checkpoints, cp)
		return true
	})
	sortBy(out.Checkpoints, func(cp staking.Checkpoint) string { return cp.Chain })
	return &out, nil
}
