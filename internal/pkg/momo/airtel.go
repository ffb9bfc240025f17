package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/env"
)

const defaultAirtelBaseURL = "https://openapi.airtel.africa"

// AirtelClient talks to the Airtel Money Open API.
type AirtelClient struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Country      string
	Currency     string
	DisbursePIN  string

	HTTPClient *http.Client
}

// NewAirtelClientFromEnv builds an Airtel client from environment configuration.
func NewAirtelClientFromEnv() *AirtelClient {
	return &AirtelClient{
		BaseURL:      strings.TrimRight(env.GetEnv("AIRTEL_MONEY_BASE_URL", defaultAirtelBaseURL), "/"),
		ClientID:     strings.TrimSpace(env.GetEnv("AIRTEL_MONEY_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("AIRTEL_MONEY_CLIENT_SECRET", "")),
		Country:      strings.TrimSpace(env.GetEnv("AIRTEL_MONEY_COUNTRY", "UG")),
		Currency:     strings.TrimSpace(env.GetEnv("AIRTEL_MONEY_CURRENCY", "UGX")),
		DisbursePIN:  strings.TrimSpace(env.GetEnv("AIRTEL_MONEY_PIN", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *AirtelClient) Provider() Provider { return ProviderAirtel }

type airtelTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in,string"`
	TokenType   string `json:"token_type"`
}

// AcquireToken fetches an OAuth client-credentials token. Airtel uses the
// same token for collections and disbursements, so purpose only gates the
// configuration check.
func (c *AirtelClient) AcquireToken(ctx context.Context, purpose Purpose) (Token, error) {
	if c.ClientID == "" || c.ClientSecret == "" {
		return Token{}, &CredentialError{
			Provider: ProviderAirtel,
			Err:      errors.New("AIRTEL_MONEY_CLIENT_ID/AIRTEL_MONEY_CLIENT_SECRET are not configured"),
		}
	}
	if purpose == PurposeDisbursement && c.DisbursePIN == "" {
		return Token{}, &CredentialError{
			Provider: ProviderAirtel,
			Err:      errors.New("AIRTEL_MONEY_PIN is not configured"),
		}
	}

	payload, err := json.Marshal(map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return Token{}, &CredentialError{Provider: ProviderAirtel, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/auth/oauth2/token", bytes.NewReader(payload))
	if err != nil {
		return Token{}, &CredentialError{Provider: ProviderAirtel, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Token{}, &CredentialError{Provider: ProviderAirtel, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Token{}, &CredentialError{
			Provider: ProviderAirtel,
			Err:      fmt.Errorf("token request failed: status=%d body=%s", resp.StatusCode, string(body)),
		}
	}

	var out airtelTokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Token{}, &CredentialError{Provider: ProviderAirtel, Err: err}
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return Token{}, &CredentialError{Provider: ProviderAirtel, Err: errors.New("token response had empty access_token")}
	}

	return Token{
		Value:     out.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}, nil
}

type airtelDisbursementRequest struct {
	Payee       airtelPayee       `json:"payee"`
	Reference   string            `json:"reference"`
	PIN         string            `json:"pin"`
	Transaction airtelTransaction `json:"transaction"`
}

type airtelPayee struct {
	MSISDN string `json:"msisdn"`
}

type airtelTransaction struct {
	Amount int64  `json:"amount"`
	ID     string `json:"id"`
}

type airtelDisbursementResponse struct {
	Data struct {
		Transaction struct {
			ID           string `json:"id"`
			ReferenceID  string `json:"reference_id"`
			AirtelMoneyID string `json:"airtel_money_id"`
			Status       string `json:"status"`
		} `json:"transaction"`
	} `json:"data"`
	Status struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
}

// SubmitTransfer fires a disbursement. The caller's reference is passed as
// the transaction id so a provider-side retry with the same reference cannot
// duplicate the transfer. The returned acknowledgment is Airtel's own money
// transaction id when present.
func (c *AirtelClient) SubmitTransfer(ctx context.Context, token Token, t Transfer) (string, error) {
	msisdn, err := NormalizeAirtel(t.Phone)
	if err != nil {
		return "", &SubmissionError{Provider: ProviderAirtel, Reference: t.Reference, Err: err}
	}

	payload, err := json.Marshal(airtelDisbursementRequest{
		Payee:       airtelPayee{MSISDN: msisdn},
		Reference:   t.Reason,
		PIN:         c.DisbursePIN,
		Transaction: airtelTransaction{Amount: t.Amount, ID: t.Reference},
	})
	if err != nil {
		return "", &SubmissionError{Provider: ProviderAirtel, Reference: t.Reference, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/standard/v1/disbursements/", bytes.NewReader(payload))
	if err != nil {
		return "", &SubmissionError{Provider: ProviderAirtel, Reference: t.Reference, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("X-Country", c.Country)
	req.Header.Set("X-Currency", c.Currency)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &SubmissionError{Provider: ProviderAirtel, Reference: t.Reference, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &SubmissionError{
			Provider:  ProviderAirtel,
			Reference: t.Reference,
			Err:       fmt.Errorf("disbursement rejected: status=%d body=%s", resp.StatusCode, string(body)),
		}
	}

	var out airtelDisbursementResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &SubmissionError{Provider: ProviderAirtel, Reference: t.Reference, Err: err}
	}
	if !out.Status.Success {
		return "", &SubmissionError{
			Provider:  ProviderAirtel,
			Reference: t.Reference,
			Err:       fmt.Errorf("disbursement rejected: code=%s message=%s", out.Status.Code, out.Status.Message),
		}
	}

	ack := out.Data.Transaction.AirtelMoneyID
	if ack == "" {
		ack = t.Reference
	}
	return ack, nil
}

type airtelStatusResponse struct {
	Data struct {
		Transaction struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"transaction"`
	} `json:"data"`
	Status struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
}

func (c *AirtelClient) QueryStatus(ctx context.Context, token Token, reference string) (TransferStatus, error) {
	url := fmt.Sprintf("%s/standard/v1/disbursements/%s", c.BaseURL, reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("X-Country", c.Country)
	req.Header.Set("X-Currency", c.Currency)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status query failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out airtelStatusResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}

	// Airtel transaction status codes: TS = success, TF = failed,
	// TA/TIP = ambiguous or in progress.
	switch strings.ToUpper(out.Data.Transaction.Status) {
	case "TS", "SUCCESS", "SUCCESSFUL":
		return StatusSuccessful, nil
	case "TF", "FAILED":
		return StatusFailed, nil
	default:
		return StatusPending, nil
	}
}
