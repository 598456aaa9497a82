// Package campaign reads campaigns and donations from the CrowdFunding
// contract and submits new campaigns and donations.
package campaign

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/contract"
	"github.com/Mohsinsiddi/w3fund/internal/units"
)

// Errors.
var (
	ErrFetchFailed      = errors.New("fetching from contract failed")
	ErrCampaignNotFound = errors.New("campaign not found")

	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAlreadyResolved    = errors.New("submission already resolved")
)

// Campaign is one on-chain campaign with amounts in whole coins.
//
// ID is the campaign's position in the getCampaigns result of the fetch that
// produced it. It is also the id donateToCampaign expects.
type Campaign struct {
	ID              int
	Owner           string
	Title           string
	Description     string
	Target          string
	Deadline        int64
	AmountCollected string

	// Corrected base-unit values behind Target and AmountCollected.
	TargetBase    *big.Int
	CollectedBase *big.Int
}

// Progress returns AmountCollected as a percentage of Target, 0 when the
// target is zero. It is not capped at 100.
func (c Campaign) Progress() float64 {
	if c.TargetBase == nil || c.TargetBase.Sign() == 0 || c.CollectedBase == nil {
		return 0
	}
	ratio := new(big.Float).Quo(new(big.Float).SetInt(c.CollectedBase), new(big.Float).SetInt(c.TargetBase))
	pct, _ := ratio.Mul(ratio, big.NewFloat(100)).Float64()
	return pct
}

// Expired reports whether the deadline has passed at now.
func (c Campaign) Expired(now time.Time) bool {
	return now.Unix() >= c.Deadline
}

// DaysLeft returns whole days until the deadline, rounded to nearest, or 0
// once expired.
func (c Campaign) DaysLeft(now time.Time) int64 {
	remaining := c.Deadline - now.Unix()
	if remaining <= 0 {
		return 0
	}
	return int64(math.Round(float64(remaining) / 86400))
}

// OwnedBy compares owner addresses case-insensitively.
func (c Campaign) OwnedBy(owner string) bool {
	owner = strings.TrimSpace(owner)
	return owner != "" && strings.EqualFold(c.Owner, owner)
}

// Donation is one entry of a campaign's donor ledger, in chain order.
type Donation struct {
	Donor      string
	Amount     string
	AmountBase *big.Int
}

// fromRaw converts a decoded contract struct. Both amounts pass through the
// same magnitude correction so they stay comparable.
func fromRaw(id int, rc contract.RawCampaign) Campaign {
	target := units.NormalizeMagnitude(rc.Target)
	collected := units.NormalizeMagnitude(rc.AmountCollected)

	var deadline int64
	switch {
	case rc.Deadline == nil:
	case rc.Deadline.IsInt64():
		deadline = rc.Deadline.Int64()
	default:
		deadline = math.MaxInt64
	}

	return Campaign{
		ID:              id,
		Owner:           rc.Owner.Hex(),
		Title:           rc.Title,
		Description:     rc.Description,
		Target:          units.FormatEther(target),
		Deadline:        deadline,
		AmountCollected: units.FormatEther(collected),
		TargetBase:      target,
		CollectedBase:   collected,
	}
}

// ValidationError lists form fields that are missing or invalid, in form
// order.
type ValidationError struct {
	Fields  []string
	Reasons map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if r, ok := e.Reasons[f]; ok {
			parts = append(parts, fmt.Sprintf("%s (%s)", f, r))
		} else {
			parts = append(parts, f)
		}
	}
	return "invalid campaign: " + strings.Join(parts, ", ")
}

// Has reports whether field was rejected.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, reason string) {
	e.Fields = append(e.Fields, field)
	if reason != "" {
		if e.Reasons == nil {
			e.Reasons = make(map[string]string)
		}
		e.Reasons[field] = reason
	}
}

// AlreadySubmittedError is returned instead of broadcasting when an identical
// request is still awaiting confirmation.
type AlreadySubmittedError struct {
	Submission Submission
}

func (e *AlreadySubmittedError) Error() string {
	return fmt.Sprintf("already submitted as %s (tx %s, %s)", e.Submission.ID, e.Submission.TxHash, e.Submission.State)
}

// LedgerError reports a transaction that was broadcast but could not be
// written to the submission ledger. The transaction is live either way.
type LedgerError struct {
	Submission Submission
	Err        error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("tx %s sent but not recorded: %v", e.Submission.TxHash, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }
