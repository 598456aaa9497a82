package campaign

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/w3fund/internal/contract"
	"github.com/Mohsinsiddi/w3fund/internal/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Source is the read side of the contract. *contract.ReadHandle and
// *contract.WriteHandle both satisfy it.
type Source interface {
	GetCampaigns(ctx context.Context) ([]contract.RawCampaign, error)
	GetDonators(ctx context.Context, id *big.Int) ([]common.Address, []*big.Int, error)
}

// Repository turns raw contract reads into Campaigns and Donations.
type Repository struct {
	log zerolog.Logger
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithRepositoryLogger sets the repository logger.
func WithRepositoryLogger(l zerolog.Logger) RepositoryOption {
	return func(r *Repository) { r.log = l }
}

// NewRepository creates a Repository.
func NewRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListAll returns every campaign in contract storage order.
func (r *Repository) ListAll(ctx context.Context, src Source) ([]Campaign, error) {
	raw, err := src.GetCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: getCampaigns: %w", ErrFetchFailed, err)
	}
	out := make([]Campaign, len(raw))
	for i, rc := range raw {
		r.noteInflated(i, "target", rc.Target)
		r.noteInflated(i, "amountCollected", rc.AmountCollected)
		out[i] = fromRaw(i, rc)
	}
	r.log.Debug().Int("count", len(out)).Msg("campaigns fetched")
	return out, nil
}

// ListForOwner returns the campaigns owned by owner, compared
// case-insensitively. IDs are those of the full list. An empty owner
// matches nothing.
func (r *Repository) ListForOwner(ctx context.Context, src Source, owner string) ([]Campaign, error) {
	all, err := r.ListAll(ctx, src)
	if err != nil {
		return nil, err
	}
	out := make([]Campaign, 0)
	for _, c := range all {
		if c.OwnedBy(owner) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Get returns the campaign with the given id.
func (r *Repository) Get(ctx context.Context, src Source, id int) (Campaign, error) {
	all, err := r.ListAll(ctx, src)
	if err != nil {
		return Campaign{}, err
	}
	if id < 0 || id >= len(all) {
		return Campaign{}, fmt.Errorf("%w: id %d (have %d)", ErrCampaignNotFound, id, len(all))
	}
	return all[id], nil
}

// DonationsFor returns the donor ledger of campaign id in chain order. The
// donor and amount arrays must have equal length.
func (r *Repository) DonationsFor(ctx context.Context, src Source, id int) ([]Donation, error) {
	if id < 0 {
		return nil, fmt.Errorf("%w: id %d", ErrCampaignNotFound, id)
	}
	donors, amounts, err := src.GetDonators(ctx, big.NewInt(int64(id)))
	if err != nil {
		return nil, fmt.Errorf("%w: getDonators(%d): %w", ErrFetchFailed, id, err)
	}
	if len(donors) != len(amounts) {
		return nil, fmt.Errorf("%w: getDonators(%d) returned %d donors but %d amounts",
			ErrFetchFailed, id, len(donors), len(amounts))
	}

	out := make([]Donation, len(donors))
	for i := range donors {
		amount := amounts[i]
		if amount == nil {
			amount = new(big.Int)
		}
		out[i] = Donation{
			Donor:      donors[i].Hex(),
			Amount:     units.FormatEther(amount),
			AmountBase: new(big.Int).Set(amount),
		}
	}
	return out, nil
}

func (r *Repository) noteInflated(id int, field string, v *big.Int) {
	if units.IsInflated(v) {
		r.log.Warn().Int("campaign", id).Str("field", field).Str("raw", v.String()).Msg("correcting inflated amount")
	}
}
