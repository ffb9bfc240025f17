// Package momo abstracts the two mobile-money networks used for reward
// disbursement behind one client contract. Network specifics (endpoints,
// auth, MSISDN formats, status codes) stay inside this package.
package momo

import (
	"context"
	"fmt"
	"time"
)

// Provider identifies a mobile-money network.
type Provider string

const (
	ProviderMTN    Provider = "mtn"
	ProviderAirtel Provider = "airtel"
)

// ParseProvider maps a stored provider string back to the enum.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderMTN:
		return ProviderMTN, nil
	case ProviderAirtel:
		return ProviderAirtel, nil
	}
	return "", fmt.Errorf("unknown mobile money provider %q", s)
}

// Purpose selects which credential a token is acquired for.
type Purpose string

const (
	PurposeCollection   Purpose = "collection"
	PurposeDisbursement Purpose = "disbursement"
)

// Token is a provider access credential. Callers must not use it past
// ExpiresAt.
type Token struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the token is usable at the given instant.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// TransferStatus is the settlement state of a submitted transfer.
type TransferStatus string

const (
	StatusSuccessful TransferStatus = "SUCCESSFUL"
	StatusFailed     TransferStatus = "FAILED"
	StatusPending    TransferStatus = "PENDING"
)

// Transfer is one outbound disbursement request. Reference is the caller's
// idempotency reference and is reused across retries of the same logical
// transfer.
type Transfer struct {
	Amount    int64
	Currency  string
	Phone     string
	Reference string
	Reason    string
}

// Client is the uniform contract over one mobile-money network.
type Client interface {
	Provider() Provider
	// AcquireToken fetches an access credential for the given purpose.
	// Fails with *CredentialError on missing configuration or network
	// rejection.
	AcquireToken(ctx context.Context, purpose Purpose) (Token, error)
	// SubmitTransfer fires a transfer request and returns the network's
	// acknowledgment reference (which may differ from t.Reference). It does
	// not wait for settlement. Fails with *SubmissionError.
	SubmitTransfer(ctx context.Context, token Token, t Transfer) (string, error)
	// QueryStatus is idempotent and safe to call repeatedly; it returns
	// StatusPending while the network is still settling.
	QueryStatus(ctx context.Context, token Token, reference string) (TransferStatus, error)
}

// CredentialError is a provider auth or configuration failure.
type CredentialError struct {
	Provider Provider
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s credential error: %v", e.Provider, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// SubmissionError is a transfer request rejected or lost before
// acknowledgment. The caller decides whether to retry.
type SubmissionError struct {
	Provider  Provider
	Reference string
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s transfer submission failed (ref %s): %v", e.Provider, e.Reference, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
