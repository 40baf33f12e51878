package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Network identifies the ledger network an intent settles on
type Network string

const (
	NetworkICP Network = "icp"
)

// ParseNetwork validates a network name
func ParseNetwork(s string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(s))) {
	case NetworkICP:
		return NetworkICP, nil
	}
	return "", fmt.Errorf("unsupported network: %s", s)
}

// Kind is the type of operation an intent performs
type Kind string

const (
	KindTransfer Kind = "transfer"
)

// NativeICP is the token path of the native ICP asset
const NativeICP = "icp:native"

// State is the lifecycle position of an intent
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateRejected   State = "rejected"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition is legal from the state
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRejected || s == StateFailed
}

// Status pairs a lifecycle state with a human-readable detail
type Status struct {
	State  State  `json:"state"`
	Detail string `json:"detail"`
}

func (s Status) String() string {
	if s.Detail == "" {
		return string(s.State)
	}
	return fmt.Sprintf("%s: %s", s.State, s.Detail)
}

func marshalSigners(signers []Signer) ([]byte, error) {
	return json.Marshal(signers)
}

func unmarshalSigners(data []byte) ([]Signer, error) {
	var signers []Signer
	if err := json.Unmarshal(data, &signers); err != nil {
		return nil, err
	}
	return signers, nil
}
