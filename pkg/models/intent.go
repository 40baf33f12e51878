package models

import (
	"sort"

	"github.com/keygate-hq/keygate-signer/pkg/amount"
)

// Signer is an opaque identity reference (principal text for ICP)
type Signer string

// TransactionIntent is a proposed transfer awaiting approval and execution
type TransactionIntent struct {
	ID         uint64        `json:"id"`
	RemoteID   uint64        `json:"remote_id,omitempty"`
	Recipient  string        `json:"recipient"`
	Asset      string        `json:"asset"`
	Network    Network       `json:"network"`
	Kind       Kind          `json:"kind"`
	Amount     amount.Amount `json:"amount"`
	Approvals  SignerSet     `json:"approvals"`
	Rejections SignerSet     `json:"rejections"`
	Status     Status        `json:"status"`
}

// Clone returns a deep copy of the intent
func (i *TransactionIntent) Clone() TransactionIntent {
	c := *i
	c.Approvals = i.Approvals.Clone()
	c.Rejections = i.Rejections.Clone()
	return c
}

// Terminal reports whether the intent can no longer change
func (i *TransactionIntent) Terminal() bool {
	return i.Status.State.Terminal()
}

// SignerSet is a set of signers. It marshals as a sorted list.
type SignerSet map[Signer]struct{}

// NewSignerSet builds a set from the given signers
func NewSignerSet(signers ...Signer) SignerSet {
	s := make(SignerSet, len(signers))
	for _, signer := range signers {
		s[signer] = struct{}{}
	}
	return s
}

func (s SignerSet) Has(signer Signer) bool {
	_, ok := s[signer]
	return ok
}

func (s SignerSet) Clone() SignerSet {
	c := make(SignerSet, len(s))
	for signer := range s {
		c[signer] = struct{}{}
	}
	return c
}

// Sorted returns the members in a stable order
func (s SignerSet) Sorted() []Signer {
	out := make([]Signer, 0, len(s))
	for signer := range s {
		out = append(out, signer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s SignerSet) MarshalJSON() ([]byte, error) {
	return marshalSigners(s.Sorted())
}

func (s *SignerSet) UnmarshalJSON(data []byte) error {
	signers, err := unmarshalSigners(data)
	if err != nil {
		return err
	}
	*s = NewSignerSet(signers...)
	return nil
}
