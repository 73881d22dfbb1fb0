// Package messaging delivers outbound SMS replies through a pluggable transport
// and records a receipt for every delivery attempt.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ReliefPipe/internal/models"
)

// minRecipientDigits is the shortest phone number accepted for delivery.
const minRecipientDigits = 6

var (
	ErrServiceStopped = errors.New("messaging service is stopped")
	ErrNilSender      = errors.New("sms sender is nil")

	nonDigitRegex = regexp.MustCompile(`[^0-9]`)
)

// SMSSender is a transport that can deliver a single SMS.
type SMSSender interface {
	SendSMS(ctx context.Context, to string, body string) error
}

// ReceiptRecorder persists delivery receipts.
type ReceiptRecorder interface {
	AddReceipt(r models.Receipt) error
}

// SMSService validates recipients, sends through an SMSSender and records receipts.
type SMSService struct {
	sender   SMSSender
	receipts ReceiptRecorder
	now      func() time.Time

	mu      sync.RWMutex
	stopped bool
}

// NewSMSService wraps sender. receipts may be nil.
func NewSMSService(sender SMSSender, receipts ReceiptRecorder) (*SMSService, error) {
	if sender == nil {
		return nil, ErrNilSender
	}
	return &SMSService{sender: sender, receipts: receipts, now: time.Now}, nil
}

// ValidateAndCanonicalizeRecipient reduces a phone number to "+" followed by
// its digits and rejects numbers with fewer than six digits.
func ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if strings.TrimSpace(recipient) == "" {
		return "", models.ErrEmptyRecipient
	}
	digits := nonDigitRegex.ReplaceAllString(recipient, "")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < minRecipientDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", digits, minRecipientDigits)
	}
	canonical := "+" + digits
	if canonical != recipient {
		slog.Debug("SMSService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// SendSMS delivers body to recipient. A receipt is recorded for every attempt
// that reaches the transport, with status sent or failed.
func (s *SMSService) SendSMS(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	canonicalTo, err := ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("SMSService.SendSMS validation error", "error", err, "to", to)
		return err
	}

	sendErr := s.sender.SendSMS(ctx, canonicalTo, body)
	status := models.MessageStatusSent
	if sendErr != nil {
		status = models.MessageStatusFailed
	}
	s.recordReceipt(models.Receipt{To: canonicalTo, Status: status, Time: s.now().Unix()})
	if sendErr != nil {
		return fmt.Errorf("sms delivery to %s failed: %w", canonicalTo, sendErr)
	}
	return nil
}

// Stop rejects further sends.
func (s *SMSService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *SMSService) recordReceipt(r models.Receipt) {
	if s.receipts == nil {
		return
	}
	if err := s.receipts.AddReceipt(r); err != nil {
		slog.Warn("SMSService failed to record receipt", "to", r.To, "status", r.Status, "error", err)
	}
}
