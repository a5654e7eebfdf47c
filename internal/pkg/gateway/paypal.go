package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/env"
)

const (
	defaultPayPalAPIBaseURL        = "https://api-m.paypal.com"
	defaultPayPalSandboxAPIBaseURL = "https://api-m.sandbox.paypal.com"
)

// PayPalReconciler looks up PayPal orders through the REST API using the
// owning account's client credentials.
type PayPalReconciler struct {
	APIBaseURL        string
	SandboxAPIBaseURL string

	HTTPClient *http.Client
}

type payPalTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type payPalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Intent string `json:"intent"`
}

func NewPayPalReconcilerFromEnv() *PayPalReconciler {
	return &PayPalReconciler{
		APIBaseURL:        strings.TrimSpace(env.GetEnv("PAYPAL_API_BASE_URL", defaultPayPalAPIBaseURL)),
		SandboxAPIBaseURL: strings.TrimSpace(env.GetEnv("PAYPAL_SANDBOX_API_BASE_URL", defaultPayPalSandboxAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CheckStatus resolves the order reference (session ref preferred, intent
// ref fallback) against the PayPal orders API.
func (r *PayPalReconciler) CheckStatus(ctx context.Context, payment *models.Payment, account *models.PaymentAccount) (*Verdict, error) {
	orderID := ""
	if payment.SessionRef != nil && *payment.SessionRef != "" {
		orderID = *payment.SessionRef
	} else if payment.IntentRef != nil && *payment.IntentRef != "" {
		orderID = *payment.IntentRef
	}
	if orderID == "" {
		return UnknownVerdict("payment has no paypal reference"), nil
	}

	token, err := r.fetchAccessToken(ctx, account)
	if err != nil {
		return nil, err
	}

	order, notFound, err := r.fetchOrder(ctx, account, token, orderID)
	if err != nil {
		return nil, err
	}
	if notFound {
		return UnknownVerdict("paypal order not found"), nil
	}

	return &Verdict{
		Status:       MapPayPalOrderStatus(order.Status),
		NativeStatus: order.Status,
		Raw: map[string]interface{}{
			"order_id":     order.ID,
			"order_status": order.Status,
			"order_intent": order.Intent,
		},
	}, nil
}

func (r *PayPalReconciler) baseURL(account *models.PaymentAccount) string {
	if account.Sandbox {
		return strings.TrimRight(r.SandboxAPIBaseURL, "/")
	}
	return strings.TrimRight(r.APIBaseURL, "/")
}

func (r *PayPalReconciler) fetchAccessToken(ctx context.Context, account *models.PaymentAccount) (string, error) {
	if strings.TrimSpace(account.ClientIDEnc) == "" || strings.TrimSpace(account.ClientSecretEnc) == "" {
		return "", fmt.Errorf("%w: account %d has no paypal credentials", ErrGatewayUnreachable, account.ID)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL(account)+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(account.ClientIDEnc, account.ClientSecretEnc)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: paypal token request failed: status=%d body=%s", ErrGatewayUnreachable, resp.StatusCode, string(body))
	}

	var out payPalTokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", fmt.Errorf("%w: paypal token response missing access_token", ErrGatewayUnreachable)
	}
	return out.AccessToken, nil
}

func (r *PayPalReconciler) fetchOrder(ctx context.Context, account *models.PaymentAccount, token, orderID string) (*payPalOrder, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL(account)+"/v2/checkout/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusNotFound {
		return nil, true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("%w: paypal order lookup failed: status=%d body=%s", ErrGatewayUnreachable, resp.StatusCode, string(body))
	}

	var order payPalOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	if order.Status == "" {
		return nil, false, errors.New("paypal order response missing status")
	}
	return &order, false, nil
}
