// Package operation tracks server-confirmed asynchronous operations (NFT
// mints and forges) by polling their status until they settle.
package operation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the flavour of operation being tracked.
type Kind string

const (
	KindMint  Kind = "mint"
	KindForge Kind = "forge"
)

// Status is the server-reported lifecycle state of an operation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// NormalizeStatus maps server spellings onto the three known states. Anything
// that is not explicitly confirmed or failed is still in progress.
func NormalizeStatus(raw Status) Status {
	switch Status(strings.ToLower(strings.TrimSpace(string(raw)))) {
	case StatusConfirmed:
		return StatusConfirmed
	case StatusFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Progress holds the optional evidence a status response may carry.
type Progress struct {
	TxHash     string `json:"txHash,omitempty"`
	BurnTxHash string `json:"burnTxHash,omitempty"`
	MintTxHash string `json:"mintTxHash,omitempty"`
	TokenID    string `json:"tokenId,omitempty"`
}

// MergeProgress overlays next onto prev. A field that was observed once is
// never cleared by a later, sparser response.
func MergeProgress(prev, next Progress) Progress {
	return Progress{
		TxHash:     pick(prev.TxHash, next.TxHash),
		BurnTxHash: pick(prev.BurnTxHash, next.BurnTxHash),
		MintTxHash: pick(prev.MintTxHash, next.MintTxHash),
		TokenID:    pick(prev.TokenID, next.TokenID),
	}
}

func pick(prev, next string) string {
	if next = strings.TrimSpace(next); next != "" {
		return next
	}
	return prev
}

// Operation is the client view of a mint or forge.
type Operation struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Status Status `json:"status"`
	Progress
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MintRequest asks the backend to mint the reward unlocked by an eligibility.
type MintRequest struct {
	EligibilityID string `json:"eligibilityId"`
	WalletAddress string `json:"walletAddress"`
}

// ForgeRequest asks the backend to burn input tokens into a new one.
type ForgeRequest struct {
	WalletAddress string   `json:"walletAddress"`
	RecipeID      string   `json:"recipeId,omitempty"`
	TokenIDs      []string `json:"tokenIds"`
}

// Initiator creates operations. The returned operation is pending.
type Initiator interface {
	InitiateMint(ctx context.Context, req MintRequest) (Operation, error)
	InitiateForge(ctx context.Context, req ForgeRequest) (Operation, error)
}

// StatusSource reads the current state of an operation.
type StatusSource interface {
	OperationStatus(ctx context.Context, kind Kind, id string) (Operation, error)
}

// FailureError describes an operation the server reported as failed.
type FailureError struct {
	ID      string
	Kind    Kind
	Message string
}

func (e *FailureError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "no reason given"
	}
	return fmt.Sprintf("%s %s failed: %s", e.Kind, e.ID, msg)
}
