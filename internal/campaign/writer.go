package campaign

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/contract"
	"github.com/Mohsinsiddi/w3fund/internal/units"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Form field names, in form order.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldTarget      = "target"
	FieldDeadline    = "deadline"
)

// CreateRequest is the new-campaign form.
type CreateRequest struct {
	Title       string
	Description string
	Target      string // whole coins, e.g. "1.5"
	Deadline    time.Time
}

// CreateResult is a confirmed createCampaign.
type CreateResult struct {
	Receipt *contract.Receipt
	// ExpectedID is the id the contract reported for the campaign when the
	// call was simulated just before sending.
	ExpectedID int
	Submission Submission
}

// Confirmation is a confirmed donation. Refresh re-reads the campaign so the
// caller can show the new total.
type Confirmation struct {
	Receipt    *contract.Receipt
	Submission Submission
	Refresh    func(ctx context.Context) (Campaign, error)
}

// Awaiter waits on a transaction known by hash.
type Awaiter interface {
	AwaitHash(ctx context.Context, hash, method string) (*contract.Receipt, error)
}

// Writer submits campaigns and donations and keeps a ledger of what it sent.
type Writer struct {
	repo  *Repository
	store SubmissionStore
	log   zerolog.Logger
	now   func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithSubmissionStore sets where the ledger is kept. The default is memory.
func WithSubmissionStore(s SubmissionStore) WriterOption {
	return func(w *Writer) { w.store = s }
}

// WithWriterLogger sets the writer logger.
func WithWriterLogger(l zerolog.Logger) WriterOption {
	return func(w *Writer) { w.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// WithRepository sets the repository used by Confirmation.Refresh.
func WithRepository(r *Repository) WriterOption {
	return func(w *Writer) { w.repo = r }
}

// NewWriter creates a Writer.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{
		repo:     NewRepository(),
		store:    &memSubmissions{},
		log:      zerolog.Nop(),
		now:      time.Now,
		inflight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Validate checks req without touching the chain. It returns the target in
// base units and the deadline in seconds since the epoch.
func (w *Writer) Validate(req CreateRequest) (*big.Int, int64, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(req.Title) == "" {
		verr.add(FieldTitle, "")
	}
	if strings.TrimSpace(req.Description) == "" {
		verr.add(FieldDescription, "")
	}
	if strings.TrimSpace(req.Target) == "" {
		verr.add(FieldTarget, "")
	}
	if req.Deadline.IsZero() {
		verr.add(FieldDeadline, "")
	}
	if len(verr.Fields) > 0 {
		return nil, 0, verr
	}

	target, err := units.ToBaseUnits(req.Target)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", FieldTarget, err)
	}

	deadline := req.Deadline.Unix()
	if deadline <= w.now().Unix() {
		verr.add(FieldDeadline, "must be in the future")
		return nil, 0, verr
	}
	return target, deadline, nil
}

// CreateCampaign validates req, submits createCampaign owned by the handle's
// signer and waits for confirmation.
func (w *Writer) CreateCampaign(ctx context.Context, wh *contract.WriteHandle, req CreateRequest) (*CreateResult, error) {
	target, deadline, err := w.Validate(req)
	if err != nil {
		return nil, err
	}

	owner := wh.From()
	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	key := fmt.Sprintf("%s|%s|%s|%s|%s|%d", KindCreate, strings.ToLower(owner.Hex()), title, description, target, deadline)

	release, err := w.claim(key)
	if err != nil {
		return nil, err
	}
	defer release()

	deadlineBig := big.NewInt(deadline)
	expected, err := wh.PreviewCreateCampaign(ctx, owner, title, description, target, deadlineBig)
	if err != nil {
		return nil, err
	}

	sub := Submission{
		Kind:       KindCreate,
		Key:        key,
		From:       owner.Hex(),
		Method:     contract.MethodCreateCampaign,
		CampaignID: int(expected.Int64()),
		Amount:     units.FormatEther(target),
	}
	p, err := wh.CreateCampaign(ctx, owner, title, description, target, deadlineBig)
	if err != nil {
		return nil, w.broadcastFailed(sub, err)
	}
	sub, lerr := w.record(sub, p.Hash)

	receipt, err := wh.AwaitConfirmation(ctx, p)
	sub, err = w.settle(sub, err)
	res := &CreateResult{ExpectedID: sub.CampaignID, Submission: sub}
	if err == nil {
		res.Receipt = receipt
	}
	return res, errors.Join(err, lerr)
}

// Donate sends amount (whole coins) to campaign id and waits for
// confirmation.
func (w *Writer) Donate(ctx context.Context, wh *contract.WriteHandle, id int, amount string) (*Confirmation, error) {
	if id < 0 {
		return nil, fmt.Errorf("%w: id %d", ErrCampaignNotFound, id)
	}
	value, err := units.ToBaseUnits(amount)
	if err != nil {
		return nil, err
	}
	if value.Sign() == 0 {
		return nil, fmt.Errorf("%w: donation must be greater than zero", units.ErrInvalidAmount)
	}

	from := wh.From()
	key := fmt.Sprintf("%s|%s|%d|%s", KindDonate, strings.ToLower(from.Hex()), id, value)

	release, err := w.claim(key)
	if err != nil {
		return nil, err
	}
	defer release()

	sub := Submission{
		Kind:       KindDonate,
		Key:        key,
		From:       from.Hex(),
		Method:     contract.MethodDonateToCampaign,
		CampaignID: id,
		Amount:     units.FormatEther(value),
	}
	p, err := wh.DonateToCampaign(ctx, big.NewInt(int64(id)), value)
	if err != nil {
		return nil, w.broadcastFailed(sub, err)
	}
	sub, lerr := w.record(sub, p.Hash)

	receipt, err := wh.AwaitConfirmation(ctx, p)
	sub, err = w.settle(sub, err)
	conf := &Confirmation{
		Submission: sub,
		Refresh: func(ctx context.Context) (Campaign, error) {
			return w.repo.Get(ctx, wh, id)
		},
	}
	if err == nil {
		conf.Receipt = receipt
	}
	return conf, errors.Join(err, lerr)
}

// Resume waits again for an unresolved submission, for example one that
// timed out in an earlier run.
func (w *Writer) Resume(ctx context.Context, h Awaiter, id string) (Submission, *contract.Receipt, error) {
	w.mu.Lock()
	subs, err := w.store.Load()
	w.mu.Unlock()
	if err != nil {
		return Submission{}, nil, fmt.Errorf("loading submissions: %w", err)
	}
	i, err := findSubmission(subs, id)
	if err != nil {
		return Submission{}, nil, err
	}
	sub := subs[i]
	if !sub.Unresolved() {
		return sub, nil, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, sub.ID, sub.State)
	}
	if sub.TxHash == "" {
		return sub, nil, fmt.Errorf("submission %s has no transaction hash", sub.ID)
	}

	w.log.Info().Str("submission", sub.ID.String()).Str("hash", sub.TxHash).Msg("resuming confirmation")
	receipt, err := h.AwaitHash(ctx, sub.TxHash, sub.Method)
	sub, err = w.settle(sub, err)
	if err != nil {
		return sub, nil, err
	}
	return sub, receipt, nil
}

// Forget drops a submission from the ledger, resolved or not.
func (w *Writer) Forget(id string) (Submission, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	subs, err := w.store.Load()
	if err != nil {
		return Submission{}, fmt.Errorf("loading submissions: %w", err)
	}
	i, err := findSubmission(subs, id)
	if err != nil {
		return Submission{}, err
	}
	sub := subs[i]
	subs = append(subs[:i], subs[i+1:]...)
	if err := w.store.Save(subs); err != nil {
		return Submission{}, fmt.Errorf("saving submissions: %w", err)
	}
	return sub, nil
}

// Pending returns unresolved submissions, oldest first.
func (w *Writer) Pending() ([]Submission, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	subs, err := w.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading submissions: %w", err)
	}
	out := make([]Submission, 0)
	for _, s := range prune(subs) {
		if s.Unresolved() {
			out = append(out, s)
		}
	}
	return out, nil
}

// History returns every submission in the ledger, oldest first.
func (w *Writer) History() ([]Submission, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	subs, err := w.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading submissions: %w", err)
	}
	return prune(subs), nil
}

// claim reserves key for one in-process writer and refuses it while an
// unresolved submission with the same key is on record.
func (w *Writer) claim(key string) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	subs, err := w.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading submissions: %w", err)
	}
	for _, s := range subs {
		if s.Key == key && s.Unresolved() {
			return nil, &AlreadySubmittedError{Submission: s}
		}
	}
	if w.inflight[key] {
		return nil, &AlreadySubmittedError{Submission: Submission{Key: key, State: StateSubmitted}}
	}
	w.inflight[key] = true
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.inflight, key)
	}, nil
}

// record puts a broadcast transaction on the ledger. A failed write comes
// back as a *LedgerError; sub is filled in either way.
func (w *Writer) record(sub Submission, hash string) (Submission, error) {
	sub.ID = uuid.New()
	sub.TxHash = hash
	sub.State = StateSubmitted
	sub.SubmittedAt = w.now().UTC()
	if err := w.upsert(sub); err != nil {
		w.log.Error().Err(err).Str("hash", hash).Msg("recording submission")
		return sub, &LedgerError{Submission: sub, Err: err}
	}
	w.log.Info().Str("submission", sub.ID.String()).Str("kind", string(sub.Kind)).Str("hash", hash).Msg("submitted")
	return sub, nil
}

// broadcastFailed records a broadcast whose fate is unknown. Failures that
// certainly sent nothing are returned as they are.
func (w *Writer) broadcastFailed(sub Submission, err error) error {
	var be *contract.BroadcastError
	if !errors.As(err, &be) || be.Rejected {
		return err
	}
	sub.ID = uuid.New()
	sub.TxHash = be.TxHash
	sub.State = StateUnknown
	sub.Error = err.Error()
	sub.SubmittedAt = w.now().UTC()
	if serr := w.upsert(sub); serr != nil {
		w.log.Error().Err(serr).Msg("recording submission")
	}
	w.log.Warn().Err(err).Str("hash", be.TxHash).Msg("broadcast outcome unknown")
	return err
}

// settle records the outcome of waiting on sub and passes err through.
func (w *Writer) settle(sub Submission, err error) (Submission, error) {
	var revert *contract.RevertError
	switch {
	case err == nil:
		sub.State = StateConfirmed
		sub.Error = ""
	case errors.As(err, &revert):
		sub.State = StateReverted
		sub.Error = revert.Reason
	default:
		// Timeout, cancellation or transport trouble: the transaction may
		// still be mined.
		sub.State = StateUnknown
		sub.Error = err.Error()
	}
	if serr := w.upsert(sub); serr != nil {
		w.log.Error().Err(serr).Str("submission", sub.ID.String()).Msg("recording submission")
	}
	ev := w.log.Info()
	if err != nil {
		ev = w.log.Warn().Err(err)
	}
	ev.Str("submission", sub.ID.String()).Str("state", string(sub.State)).Msg("submission settled")
	return sub, err
}

func (w *Writer) upsert(sub Submission) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	subs, err := w.store.Load()
	if err != nil {
		return fmt.Errorf("loading submissions: %w", err)
	}
	replaced := false
	for i := range subs {
		if subs[i].ID == sub.ID {
			subs[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		subs = append(subs, sub)
	}
	if err := w.store.Save(prune(subs)); err != nil {
		return fmt.Errorf("saving submissions: %w", err)
	}
	return nil
}
