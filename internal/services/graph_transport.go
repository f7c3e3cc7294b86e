// internal/services/graph_transport.go
// Microsoft Graph API 郵件傳輸

package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"

	"bulk-mailer/internal/models"
	"bulk-mailer/pkg/microsoft"
)

const graphAPIBaseURL = "https://graph.microsoft.com"

// GraphTransport Microsoft Graph API 郵件傳輸
// 實作 Transport interface
type GraphTransport struct {
	oauthService *microsoft.OAuthService
	httpClient   *http.Client
	baseURL      string
}

// GraphMailRequest Graph API 郵件請求結構
type GraphMailRequest struct {
	Message         GraphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

// GraphMessage Graph API 郵件訊息結構
type GraphMessage struct {
	Subject      string            `json:"subject"`
	Body         GraphBody         `json:"body"`
	ToRecipients []GraphRecipient  `json:"toRecipients"`
	Attachments  []GraphAttachment `json:"attachments,omitempty"`
}

// GraphBody Graph API 郵件內容結構
type GraphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// GraphRecipient Graph API 收件人結構
type GraphRecipient struct {
	EmailAddress GraphEmailAddress `json:"emailAddress"`
}

// GraphEmailAddress Graph API 電子郵件地址結構
type GraphEmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// GraphAttachment Graph API 附件結構
type GraphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

// GraphErrorResponse Graph API 錯誤回應
type GraphErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// DialGraph 建立 Graph API 傳輸，並先取得一次權杖確認憑證有效
func DialGraph(ctx context.Context, cred models.AccountCredential) (*GraphTransport, error) {
	oauthService := microsoft.NewOAuthService(cred.TenantID, cred.ClientID, cred.ClientSecret)
	if !oauthService.IsConfigured() {
		return nil, fmt.Errorf("%w: graph requires tenant_id, client_id and client_secret", ErrInvalidCredential)
	}
	return newGraphTransport(oauthService, graphAPIBaseURL)
}

func newGraphTransport(oauthService *microsoft.OAuthService, baseURL string) (*GraphTransport, error) {
	if _, err := oauthService.GetAccessToken(); err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	return &GraphTransport{
		oauthService: oauthService,
		httpClient:   oauthService.Client(context.Background()),
		baseURL:      baseURL,
	}, nil
}

// Name 回傳服務名稱
func (t *GraphTransport) Name() string {
	return "Microsoft Graph API"
}

// Send 發送郵件 (使用 Microsoft Graph API sendMail)
// Graph 不回傳 message ID，以 request-id 標頭代替
func (t *GraphTransport) Send(ctx context.Context, m *models.OutgoingMail) (string, error) {
	content, err := ReadAttachment(m.AttachmentPath)
	if err != nil {
		return "", err
	}

	mailRequest := &GraphMailRequest{
		Message: GraphMessage{
			Subject: m.Subject,
			Body: GraphBody{
				ContentType: "text",
				Content:     m.Body,
			},
			ToRecipients: []GraphRecipient{
				{EmailAddress: GraphEmailAddress{Address: m.To, Name: m.ToName}},
			},
			Attachments: []GraphAttachment{{
				ODataType:    "#microsoft.graph.fileAttachment",
				Name:         filepath.Base(m.AttachmentPath),
				ContentType:  AttachmentContentType(m.AttachmentPath),
				ContentBytes: base64.StdEncoding.EncodeToString(content),
			}},
		},
		SaveToSentItems: true,
	}

	jsonBody, err := json.Marshal(mailRequest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	graphURL := fmt.Sprintf("%s/v1.0/users/%s/sendMail", t.baseURL, url.PathEscape(m.From))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, graphURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// 檢查回應 (202 Accepted 表示成功)
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		var errResp GraphErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("Graph API error (%s): %s", errResp.Error.Code, errResp.Error.Message)
		}
		return "", fmt.Errorf("Graph API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if id := resp.Header.Get("request-id"); id != "" {
		return id, nil
	}
	return "accepted", nil
}

// Close HTTP 傳輸無需關閉連線
func (t *GraphTransport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}
