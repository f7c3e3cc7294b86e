// internal/services/transient.go
// 暫時性傳輸錯誤判斷 - 可重新連線後重試一次的錯誤

package services

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	gosmtp "github.com/emersion/go-smtp"
)

// DefaultTransientPatterns 預設視為斷線類的錯誤字串 (小寫比對)
var DefaultTransientPatterns = []string{
	"connection reset",
	"broken pipe",
	"use of closed network connection",
	"server disconnected",
	"connection refused",
}

// TransientClassifier 判斷錯誤是否為暫時性 (斷線、逾時)
type TransientClassifier struct {
	patterns []string
}

// NewTransientClassifier 建立判斷器，extra 為額外的錯誤字串
func NewTransientClassifier(extra ...string) *TransientClassifier {
	patterns := make([]string, 0, len(DefaultTransientPatterns)+len(extra))
	for _, p := range append(append([]string{}, DefaultTransientPatterns...), extra...) {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			patterns = append(patterns, p)
		}
	}
	return &TransientClassifier{patterns: patterns}
}

// IsTransient 是否為暫時性錯誤
// 缺少附件永遠不是暫時性錯誤
func (c *TransientClassifier) IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrMissingAttachment) {
		return false
	}
	if errors.Is(err, ErrSessionReset) {
		return true
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// 421 Service not available, closing transmission channel
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Code == 421
	}

	msg := strings.ToLower(err.Error())
	for _, p := range c.patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
