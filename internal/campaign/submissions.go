package campaign

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind of write.
type Kind string

const (
	KindCreate Kind = "create"
	KindDonate Kind = "donate"
)

// SubmissionState is where a broadcast write stands.
type SubmissionState string

const (
	StateSubmitted SubmissionState = "submitted"
	StateConfirmed SubmissionState = "confirmed"
	StateReverted  SubmissionState = "reverted"
	// StateUnknown means the outcome could not be observed: the wait timed
	// out or the broadcast result was lost. The transaction may still land.
	StateUnknown SubmissionState = "unknown"
)

// Submission records one broadcast write so it can be resumed and so an
// identical request is not sent twice.
type Submission struct {
	ID          uuid.UUID       `json:"id"`
	Kind        Kind            `json:"kind"`
	Key         string          `json:"key"`
	From        string          `json:"from"`
	Method      string          `json:"method"`
	CampaignID  int             `json:"campaign_id"`
	Amount      string          `json:"amount,omitempty"`
	TxHash      string          `json:"tx_hash"`
	State       SubmissionState `json:"state"`
	Error       string          `json:"error,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Unresolved reports whether the outcome is still open.
func (s Submission) Unresolved() bool {
	return s.State == StateSubmitted || s.State == StateUnknown
}

// SubmissionStore persists the submission ledger.
type SubmissionStore interface {
	Load() ([]Submission, error)
	Save([]Submission) error
}

// historyLimit caps how many resolved submissions are kept.
const historyLimit = 100

// prune keeps every unresolved submission and the newest resolved ones,
// oldest first.
func prune(subs []Submission) []Submission {
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].SubmittedAt.Before(subs[j].SubmittedAt) })
	resolved := 0
	for _, s := range subs {
		if !s.Unresolved() {
			resolved++
		}
	}
	drop := resolved - historyLimit
	out := subs[:0]
	for _, s := range subs {
		if !s.Unresolved() && drop > 0 {
			drop--
			continue
		}
		out = append(out, s)
	}
	return out
}

// findSubmission matches a full id or a unique prefix of one.
func findSubmission(subs []Submission, id string) (int, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return -1, fmt.Errorf("%w: empty id", ErrSubmissionNotFound)
	}
	match := -1
	for i, s := range subs {
		if strings.HasPrefix(s.ID.String(), id) {
			if match >= 0 {
				return -1, fmt.Errorf("submission id %q is ambiguous", id)
			}
			match = i
		}
	}
	if match < 0 {
		return -1, fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
	}
	return match, nil
}

// --- in-memory store ---

type memSubmissions struct {
	mu   sync.Mutex
	subs []Submission
}

func (s *memSubmissions) Load() ([]Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.subs...), nil
}

func (s *memSubmissions) Save(subs []Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append([]Submission(nil), subs...)
	return nil
}

// --- JSON file store ---

// JSONSubmissions persists the ledger to a JSON file.
type JSONSubmissions struct {
	path string
}

// NewJSONSubmissions creates a JSON-backed submission store.
func NewJSONSubmissions(path string) *JSONSubmissions {
	return &JSONSubmissions{path: path}
}

func (s *JSONSubmissions) Load() ([]Submission, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var subs []Submission
	if err := json.Unmarshal(data, &subs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return subs, nil
}

func (s *JSONSubmissions) Save(subs []Submission) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
