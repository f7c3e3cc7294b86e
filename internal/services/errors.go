// internal/services/errors.go
// 服務層錯誤定義

package services

import "errors"

var (
	// ErrNoAccounts 登入後沒有任何可用帳號
	ErrNoAccounts = errors.New("no sender accounts available")

	// ErrUnknownAccount 帳號不在帳號池內
	ErrUnknownAccount = errors.New("unknown account")

	// ErrMissingAttachment 附件檔案不存在 (不重試)
	ErrMissingAttachment = errors.New("missing attachment")

	// ErrQuotaPersist 配額無法寫入 (致命)
	ErrQuotaPersist = errors.New("quota store write failed")

	// ErrQuotaLoad 配額檔無法讀取或格式錯誤 (致命)
	ErrQuotaLoad = errors.New("quota store read failed")

	// ErrLedgerWrite 帳本無法寫入 (致命)
	ErrLedgerWrite = errors.New("ledger write failed")

	// ErrLedgerRead 帳本無法讀取 (致命)
	ErrLedgerRead = errors.New("ledger read failed")

	// ErrInvalidCredential 帳號憑證設定不完整
	ErrInvalidCredential = errors.New("invalid account credential")

	// ErrUnsupportedProvider 不支援的寄件後端
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrSessionReset 發送失敗後無法以 RSET 重置 SMTP 交易 (需重新連線)
	ErrSessionReset = errors.New("smtp session could not be reset")

	// ErrDecryptSecret 加密的憑證無法解密
	ErrDecryptSecret = errors.New("failed to decrypt secret")
)
