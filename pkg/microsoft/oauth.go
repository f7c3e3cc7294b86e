// pkg/microsoft/oauth.go
// Microsoft OAuth 2.0 Client Credentials 權杖取得與快取

package microsoft

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	msEndpoint "golang.org/x/oauth2/microsoft"
)

// GraphScope Microsoft Graph 預設權限範圍
const GraphScope = "https://graph.microsoft.com/.default"

// OAuthService Microsoft OAuth 2.0 服務
// 權杖由 oauth2.ReuseTokenSource 快取，到期前自動更新
type OAuthService struct {
	tenantID     string
	clientID     string
	clientSecret string
	tokenSource  oauth2.TokenSource
}

// NewOAuthService 建立 OAuth 服務
func NewOAuthService(tenantID, clientID, clientSecret string) *OAuthService {
	return newOAuthService(tenantID, clientID, clientSecret, msEndpoint.AzureADEndpoint(tenantID).TokenURL)
}

// NewOAuthServiceWithTokenURL 建立指定 token 端點的 OAuth 服務 (測試或主權雲使用)
func NewOAuthServiceWithTokenURL(tenantID, clientID, clientSecret, tokenURL string) *OAuthService {
	return newOAuthService(tenantID, clientID, clientSecret, tokenURL)
}

func newOAuthService(tenantID, clientID, clientSecret, tokenURL string) *OAuthService {
	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{GraphScope},
	}
	return &OAuthService{
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenSource:  oauth2.ReuseTokenSource(nil, conf.TokenSource(context.Background())),
	}
}

// GetAccessToken 取得 Access Token (帶快取)
func (s *OAuthService) GetAccessToken() (string, error) {
	token, err := s.tokenSource.Token()
	if err != nil {
		return "", fmt.Errorf("failed to request token: %w", err)
	}
	return token.AccessToken, nil
}

// Client 回傳會自動附加 Bearer 權杖的 HTTP client
func (s *OAuthService) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, s.tokenSource)
}

// IsConfigured 檢查 OAuth 是否已設定
func (s *OAuthService) IsConfigured() bool {
	return s.tenantID != "" && s.clientID != "" && s.clientSecret != ""
}
