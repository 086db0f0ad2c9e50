package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// DarajaProvider implements M-Pesa STK push against the Safaricom Daraja API.
type DarajaProvider struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	client         *http.Client
}

func NewDarajaProvider(baseURL, consumerKey, consumerSecret, shortCode, passkey string, timeout time.Duration) *DarajaProvider {
	if baseURL == "" {
		baseURL = "https://sandbox.safaricom.co.ke"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &DarajaProvider{
		BaseURL:        baseURL,
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		ShortCode:      shortCode,
		Passkey:        passkey,
		client:         &http.Client{Timeout: timeout},
	}
}

type darajaTokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// getToken fetches a fresh bearer token (short-lived, per transaction).
func (p *DarajaProvider) getToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.ConsumerKey, p.ConsumerSecret)
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth failed: %d", resp.StatusCode)
	}
	var out darajaTokenResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("oauth: empty access token")
	}
	return out.AccessToken, nil
}

type darajaSTKReq struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type darajaSTKResp struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// stkPassword builds the rotating password: base64(shortcode + passkey + timestamp).
func stkPassword(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

func (p *DarajaProvider) InitiateSTKPush(ctx context.Context, req STKRequest) (*STKResponse, error) {
	token, err := p.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("mpesa oauth: %w", err)
	}
	timestamp := time.Now().Format("20060102150405")
	payload := darajaSTKReq{
		BusinessShortCode: p.ShortCode,
		Password:          stkPassword(p.ShortCode, p.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            strconv.FormatInt(req.Amount, 10),
		PartyA:            req.Phone,
		PartyB:            p.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       req.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.Description,
	}
	body, _ := json.Marshal(payload)
	apiReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	apiReq.Header.Set("Content-Type", "application/json")
	apiReq.Header.Set("Authorization", "Bearer "+token)
	log.Printf("[MPESA] POST %s/mpesa/stkpush/v1/processrequest ref=%s amount=%d callback=%s",
		p.BaseURL, req.AccountReference, req.Amount, req.CallbackURL)
	resp, err := p.client.Do(apiReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	log.Printf("[MPESA] response status=%d body=%s", resp.StatusCode, string(respBody))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mpesa stk: %d %s", resp.StatusCode, string(respBody))
	}
	var out darajaSTKResp
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" {
		return nil, fmt.Errorf("mpesa stk rejected: %s %s", out.ResponseCode, out.ResponseDescription)
	}
	return &STKResponse{
		MerchantRequestID: out.MerchantRequestID,
		CheckoutRequestID: out.CheckoutRequestID,
		ResponseCode:      out.ResponseCode,
		CustomerMessage:   out.CustomerMessage,
	}, nil
}
