package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// CheckoutProvider creates hosted checkout links through an HTTP JSON API.
// Bearer tokens come from an OAuth2 client-credentials source that caches
// and refreshes them.
type CheckoutProvider struct {
	BaseURL  string
	Currency string
	client   *http.Client
}

type CheckoutConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Currency     string
}

func NewCheckoutProvider(cfg CheckoutConfig) *CheckoutProvider {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{"payment_links"},
	}
	base := &http.Client{Timeout: 30 * time.Second}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = 30 * time.Second
	return &CheckoutProvider{
		BaseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		Currency: cfg.Currency,
		client:   client,
	}
}

type checkoutLinkReq struct {
	Reference      string            `json:"reference"`
	Account        string            `json:"account"`
	AmountCents    int64             `json:"amount_cents"`
	Currency       string            `json:"currency"`
	ApplicationFee int64             `json:"application_fee_cents"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata"`
}

type checkoutLinkResp struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

type checkoutErrorResp struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *CheckoutProvider) CreatePaymentLink(ctx context.Context, req LinkRequest) (*LinkResult, error) {
	if req.AccountRef == "" {
		return &LinkResult{Outcome: OutcomeNeedsConnection}, nil
	}
	currency := req.Currency
	if currency == "" {
		currency = p.Currency
	}
	payload := checkoutLinkReq{
		Reference:      fmt.Sprintf("req-%d-%d", req.RequestID, time.Now().UnixMilli()),
		Account:        req.AccountRef,
		AmountCents:    req.AmountCents,
		Currency:       currency,
		ApplicationFee: CommissionCents(req.AmountCents, req.CommissionPercent),
		Description:    req.Description,
		Metadata:       map[string]string{"request_id": strconv.FormatUint(uint64(req.RequestID), 10)},
	}
	body, _ := json.Marshal(payload)
	apiReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/payment_links", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	apiReq.Header.Set("Content-Type", "application/json")
	log.Printf("[CHECKOUT] POST %s/v1/payment_links request=%d amount=%d", p.BaseURL, req.RequestID, req.AmountCents)
	resp, err := p.client.Do(apiReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var apiErr checkoutErrorResp
		_ = json.Unmarshal(respBody, &apiErr)
		switch apiErr.Error.Code {
		case "account_not_connected", "account_not_found":
			return &LinkResult{Outcome: OutcomeNeedsConnection}, nil
		case "account_needs_refresh", "account_restricted":
			return &LinkResult{Outcome: OutcomeNeedsRefresh}, nil
		}
		log.Printf("[CHECKOUT] create link failed status=%d body=%s", resp.StatusCode, string(respBody))
		return nil, fmt.Errorf("checkout create link: %d %s", resp.StatusCode, apiErr.Error.Code)
	}
	var out checkoutLinkResp
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	ref := out.ID
	if ref == "" {
		ref = payload.Reference
	}
	return &LinkResult{Outcome: OutcomeLink, URL: out.URL, Reference: ref}, nil
}

func (p *CheckoutProvider) VerifyPayment(ctx context.Context, reference string) (bool, error) {
	apiReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/v1/payment_links/"+url.PathEscape(reference), nil)
	if err != nil {
		return false, err
	}
	resp, err := p.client.Do(apiReq)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("checkout verify: %d", resp.StatusCode)
	}
	var out checkoutLinkResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Status == "paid" || out.Status == "completed", nil
}
