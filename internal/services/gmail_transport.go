// internal/services/gmail_transport.go
// Gmail API 郵件傳輸 - 以 refresh token 取得 OAuth 2.0 存取權杖

package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"

	"bulk-mailer/internal/models"
)

const (
	gmailSendScope  = "https://www.googleapis.com/auth/gmail.send"
	gmailAPIBaseURL = "https://gmail.googleapis.com"
)

// GmailTransport Gmail API 郵件傳輸
// 實作 Transport interface
type GmailTransport struct {
	httpClient *http.Client
	baseURL    string
}

// gmailSendRequest Gmail API 發送請求
type gmailSendRequest struct {
	Raw string `json:"raw"`
}

// gmailSendResponse Gmail API 發送回應
type gmailSendResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// gmailErrorResponse Gmail API 錯誤回應
type gmailErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// DialGmail 建立 Gmail API 傳輸，並先換取一次權杖確認憑證有效
func DialGmail(ctx context.Context, cred models.AccountCredential) (*GmailTransport, error) {
	if cred.ClientID == "" || cred.ClientSecret == "" || cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: gmail requires client_id, client_secret and refresh_token", ErrInvalidCredential)
	}

	conf := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Scopes:       []string{gmailSendScope},
		Endpoint:     googleOAuth.Endpoint,
	}

	t, err := newGmailTransport(conf, cred.RefreshToken, gmailAPIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("gmail token refresh failed for %s: %w", cred.Email, err)
	}
	return t, nil
}

func newGmailTransport(conf *oauth2.Config, refreshToken, baseURL string) (*GmailTransport, error) {
	// 權杖來源使用背景 context，避免登入逾時後無法更新權杖
	ts := conf.TokenSource(context.Background(), &oauth2.Token{RefreshToken: refreshToken})
	if _, err := ts.Token(); err != nil {
		return nil, err
	}

	return &GmailTransport{
		httpClient: oauth2.NewClient(context.Background(), ts),
		baseURL:    baseURL,
	}, nil
}

// Name 回傳服務名稱
func (t *GmailTransport) Name() string {
	return "Gmail API"
}

// Send 發送郵件 (使用 Gmail API users.messages.send)
func (t *GmailTransport) Send(ctx context.Context, m *models.OutgoingMail) (string, error) {
	built, err := BuildMessage(m)
	if err != nil {
		return "", err
	}

	jsonBody, err := json.Marshal(gmailSendRequest{
		Raw: base64.URLEncoding.EncodeToString(built.Raw),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/gmail/v1/users/me/messages/send", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var errResp gmailErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("Gmail API error (%d %s): %s", errResp.Error.Code, errResp.Error.Status, errResp.Error.Message)
		}
		return "", fmt.Errorf("Gmail API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var sent gmailSendResponse
	if err := json.Unmarshal(body, &sent); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return sent.ID, nil
}

// Close HTTP 傳輸無需關閉連線
func (t *GmailTransport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}
