package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/env"
)

const defaultMTNBaseURL = "https://proxy.momoapi.mtn.com"

// MTNClient talks to the MTN MoMo Open API. Collections and disbursements
// are separate products with separate subscription keys.
type MTNClient struct {
	BaseURL         string
	APIUser         string
	APIKey          string
	SubscriptionKey map[Purpose]string
	TargetEnv       string

	HTTPClient *http.Client
}

// NewMTNClientFromEnv builds an MTN client from environment configuration.
func NewMTNClientFromEnv() *MTNClient {
	return &MTNClient{
		BaseURL: strings.TrimRight(env.GetEnv("MTN_MOMO_BASE_URL", defaultMTNBaseURL), "/"),
		APIUser: strings.TrimSpace(env.GetEnv("MTN_MOMO_API_USER", "")),
		APIKey:  strings.TrimSpace(env.GetEnv("MTN_MOMO_API_KEY", "")),
		SubscriptionKey: map[Purpose]string{
			PurposeCollection:   strings.TrimSpace(env.GetEnv("MTN_MOMO_COLLECTION_KEY", "")),
			PurposeDisbursement: strings.TrimSpace(env.GetEnv("MTN_MOMO_DISBURSEMENT_KEY", "")),
		},
		TargetEnv: strings.TrimSpace(env.GetEnv("MTN_MOMO_TARGET_ENV", "mtnuganda")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *MTNClient) Provider() Provider { return ProviderMTN }

// product maps a purpose to the MoMo API product path segment.
func (c *MTNClient) product(purpose Purpose) string {
	if purpose == PurposeCollection {
		return "collection"
	}
	return "disbursement"
}

type mtnTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *MTNClient) AcquireToken(ctx context.Context, purpose Purpose) (Token, error) {
	subKey := c.SubscriptionKey[purpose]
	if c.APIUser == "" || c.APIKey == "" || subKey == "" {
		return Token{}, &CredentialError{
			Provider: ProviderMTN,
			Err:      errors.New("MTN_MOMO_API_USER/MTN_MOMO_API_KEY/subscription key are not configured"),
		}
	}

	url := fmt.Sprintf("%s/%s/token/", c.BaseURL, c.product(purpose))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return Token{}, &CredentialError{Provider: ProviderMTN, Err: err}
	}
	req.SetBasicAuth(c.APIUser, c.APIKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", subKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Token{}, &CredentialError{Provider: ProviderMTN, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Token{}, &CredentialError{
			Provider: ProviderMTN,
			Err:      fmt.Errorf("token request failed: status=%d body=%s", resp.StatusCode, string(body)),
		}
	}

	var out mtnTokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Token{}, &CredentialError{Provider: ProviderMTN, Err: err}
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return Token{}, &CredentialError{Provider: ProviderMTN, Err: errors.New("token response had empty access_token")}
	}

	return Token{
		Value:     out.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}, nil
}

type mtnTransferRequest struct {
	Amount       string       `json:"amount"`
	Currency     string       `json:"currency"`
	ExternalID   string       `json:"externalId"`
	Payee        mtnParty     `json:"payee"`
	PayerMessage string       `json:"payerMessage,omitempty"`
	PayeeNote    string       `json:"payeeNote,omitempty"`
}

type mtnParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

// SubmitTransfer fires a disbursement. MTN uses the X-Reference-Id header as
// the idempotency key: re-submitting the same reference never moves money
// twice. The API acknowledges with 202 and no body; the acknowledgment
// reference is the reference itself.
func (c *MTNClient) SubmitTransfer(ctx context.Context, token Token, t Transfer) (string, error) {
	msisdn, err := NormalizeMTN(t.Phone)
	if err != nil {
		return "", &SubmissionError{Provider: ProviderMTN, Reference: t.Reference, Err: err}
	}

	payload, err := json.Marshal(mtnTransferRequest{
		Amount:       strconv.FormatInt(t.Amount, 10),
		Currency:     t.Currency,
		ExternalID:   t.Reference,
		Payee:        mtnParty{PartyIDType: "MSISDN", PartyID: msisdn},
		PayerMessage: t.Reason,
	})
	if err != nil {
		return "", &SubmissionError{Provider: ProviderMTN, Reference: t.Reference, Err: err}
	}

	url := c.BaseURL + "/disbursement/v1_0/transfer"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", &SubmissionError{Provider: ProviderMTN, Reference: t.Reference, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.SubscriptionKey[PurposeDisbursement])
	req.Header.Set("X-Reference-Id", t.Reference)
	req.Header.Set("X-Target-Environment", c.TargetEnv)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &SubmissionError{Provider: ProviderMTN, Reference: t.Reference, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusAccepted {
		return "", &SubmissionError{
			Provider:  ProviderMTN,
			Reference: t.Reference,
			Err:       fmt.Errorf("transfer rejected: status=%d body=%s", resp.StatusCode, string(body)),
		}
	}

	return t.Reference, nil
}

type mtnTransferStatusResponse struct {
	Status                 string `json:"status"`
	FinancialTransactionID string `json:"financialTransactionId"`
	Reason                 string `json:"reason"`
}

func (c *MTNClient) QueryStatus(ctx context.Context, token Token, reference string) (TransferStatus, error) {
	url := fmt.Sprintf("%s/disbursement/v1_0/transfer/%s", c.BaseURL, reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.SubscriptionKey[PurposeDisbursement])
	req.Header.Set("X-Target-Environment", c.TargetEnv)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status query failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out mtnTransferStatusResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}

	switch strings.ToUpper(out.Status) {
	case "SUCCESSFUL":
		return StatusSuccessful, nil
	case "FAILED":
		return StatusFailed, nil
	default:
		return StatusPending, nil
	}
}
