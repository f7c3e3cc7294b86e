// internal/services/transport_factory.go
// 傳輸工廠 - 根據帳號的 provider 選擇對應的郵件傳輸

package services

import (
	"context"
	"fmt"

	"bulk-mailer/internal/models"
)

// ProviderDialer 依 provider 建立傳輸
// 實作 Dialer interface
type ProviderDialer struct{}

// NewProviderDialer 建立傳輸工廠
func NewProviderDialer() *ProviderDialer {
	return &ProviderDialer{}
}

// Dial 登入帳號並回傳傳輸
func (d *ProviderDialer) Dial(ctx context.Context, cred models.AccountCredential) (Transport, error) {
	switch cred.Provider {
	case models.ProviderSMTP, "":
		return DialSMTP(ctx, cred)
	case models.ProviderGmail:
		return DialGmail(ctx, cred)
	case models.ProviderGraph:
		return DialGraph(ctx, cred)
	case models.ProviderSendGrid:
		return DialSendGrid(ctx, cred)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cred.Provider)
	}
}
