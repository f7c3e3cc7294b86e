// internal/models/account.go
// 寄件帳號憑證資料模型

package models

import "strings"

// Provider 寄件後端
type Provider string

const (
	ProviderSMTP     Provider = "smtp"
	ProviderGmail    Provider = "gmail"
	ProviderGraph    Provider = "graph"
	ProviderSendGrid Provider = "sendgrid"
)

// SMTPSecurity SMTP 連線加密方式
type SMTPSecurity string

const (
	SMTPSecurityTLS      SMTPSecurity = "tls"
	SMTPSecurityStartTLS SMTPSecurity = "starttls"
	SMTPSecurityNone     SMTPSecurity = "none"
)

// AccountCredential 單一寄件帳號的憑證 (來自 accounts 檔)
type AccountCredential struct {
	Name     string   `yaml:"name" json:"name"`
	Email    string   `yaml:"email" json:"email"`
	Provider Provider `yaml:"provider" json:"provider"`

	// SMTP
	AppPassword  string       `yaml:"app_password" json:"-"`
	SMTPHost     string       `yaml:"smtp_host" json:"smtp_host,omitempty"`
	SMTPPort     int          `yaml:"smtp_port" json:"smtp_port,omitempty"`
	SMTPSecurity SMTPSecurity `yaml:"smtp_security" json:"smtp_security,omitempty"`

	// Gmail API / Microsoft Graph
	ClientID     string `yaml:"client_id" json:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret" json:"-"`
	RefreshToken string `yaml:"refresh_token" json:"-"`
	TenantID     string `yaml:"tenant_id" json:"tenant_id,omitempty"`

	// SendGrid
	APIKey string `yaml:"api_key" json:"-"`
}

// DefaultName 未指定名稱時使用信箱的 local part
func (c *AccountCredential) DefaultName() string {
	if c.Name != "" {
		return c.Name
	}
	local, _, _ := strings.Cut(c.Email, "@")
	return local
}
