// internal/services/credentials.go
// 帳號憑證載入 - YAML 或 JSON 帳號檔，可選擇以 ENCRYPTION_KEY 解密密鑰

package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"bulk-mailer/internal/models"
)

// ErrCredentialsTemplateCreated 帳號檔不存在，已寫入範例檔
var ErrCredentialsTemplateCreated = errors.New("accounts file created from template")

const sampleAccounts = `# 每個帳號一筆，name 省略時使用信箱 @ 前的部分
- email: you@gmail.com
  app_password: "xxxx xxxx xxxx xxxx"
- email: another@gmail.com
  app_password: "xxxx xxxx xxxx xxxx"
`

type accountsDocument struct {
	Accounts []models.AccountCredential `yaml:"accounts"`
}

// LoadCredentials 讀取帳號檔
// 接受頂層陣列或 accounts: 陣列兩種格式；檔案不存在時寫入範例並回傳 ErrCredentialsTemplateCreated
func LoadCredentials(path string, enc *EncryptionService) ([]models.AccountCredential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
				return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), mkErr)
			}
			if wErr := os.WriteFile(path, []byte(sampleAccounts), 0o600); wErr != nil {
				return nil, fmt.Errorf("failed to write sample accounts file: %w", wErr)
			}
			return nil, fmt.Errorf("%w: edit %s with real accounts and re-run", ErrCredentialsTemplateCreated, path)
		}
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	creds, err := parseCredentials(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse accounts file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(creds))
	for i := range creds {
		c := &creds[i]
		c.Email = strings.TrimSpace(c.Email)
		c.Name = c.DefaultName()
		c.Provider = models.Provider(strings.ToLower(string(c.Provider)))
		if c.Provider == "" {
			c.Provider = models.ProviderSMTP
		}
		c.SMTPSecurity = models.SMTPSecurity(strings.ToLower(string(c.SMTPSecurity)))

		if err := openSecrets(c, enc); err != nil {
			return nil, fmt.Errorf("account %s: %w", c.Name, err)
		}
		if err := validateCredential(c); err != nil {
			return nil, fmt.Errorf("account %d (%s): %w", i+1, c.Name, err)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate account name %q", ErrInvalidCredential, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return creds, nil
}

func parseCredentials(data []byte) ([]models.AccountCredential, error) {
	var list []models.AccountCredential
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc accountsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Accounts, nil
}

// openSecrets 解密所有 "enc:" 欄位
func openSecrets(c *models.AccountCredential, enc *EncryptionService) error {
	for _, field := range []*string{&c.AppPassword, &c.ClientSecret, &c.RefreshToken, &c.APIKey} {
		if !IsSealed(*field) {
			continue
		}
		if enc == nil {
			return fmt.Errorf("%w: ENCRYPTION_KEY is required for sealed secrets", ErrDecryptSecret)
		}
		plain, err := enc.Open(*field)
		if err != nil {
			return err
		}
		*field = plain
	}
	return nil
}

// validateCredential 檢查各 provider 必要欄位
func validateCredential(c *models.AccountCredential) error {
	if c.Email == "" || !strings.Contains(c.Email, "@") {
		return fmt.Errorf("%w: email is required", ErrInvalidCredential)
	}

	switch c.Provider {
	case models.ProviderSMTP:
		if c.AppPassword == "" {
			return fmt.Errorf("%w: app_password is required", ErrInvalidCredential)
		}
		switch c.SMTPSecurity {
		case "", models.SMTPSecurityTLS, models.SMTPSecurityStartTLS, models.SMTPSecurityNone:
		default:
			return fmt.Errorf("%w: unknown smtp_security %q", ErrInvalidCredential, c.SMTPSecurity)
		}
	case models.ProviderGmail:
		if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
			return fmt.Errorf("%w: gmail requires client_id, client_secret and refresh_token", ErrInvalidCredential)
		}
	case models.ProviderGraph:
		if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("%w: graph requires tenant_id, client_id and client_secret", ErrInvalidCredential)
		}
	case models.ProviderSendGrid:
		if c.APIKey == "" {
			return fmt.Errorf("%w: sendgrid requires api_key", ErrInvalidCredential)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedProvider, c.Provider)
	}
	return nil
}
