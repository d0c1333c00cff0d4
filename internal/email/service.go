package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	confirmationSubject  = "Order Confirmation"
	verificationSubject  = "Verify Your Email"
	passwordResetSubject = "Reset Your Password"
)

// Config holds SMTP settings. Username empty means no auth.
type Config struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service handles email sending via SMTP
type Service struct {
	cfg  Config
	send sendFunc
}

// NewService creates a new email service
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg, send: smtp.SendMail}
}

// SendOrderConfirmation sends the payment confirmation email
func (s *Service) SendOrderConfirmation(to, customerName, orderID string, total decimal.Decimal, items []OrderItem) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("send confirmation for %s: empty recipient", orderID)
	}
	body := BuildOrderConfirmationBody(customerName, orderID, total, items)
	return s.deliver(to, confirmationSubject, body)
}

// SendVerification mails the account verification link
func (s *Service) SendVerification(to, name, link string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("send verification: empty recipient")
	}
	body := BuildActionBody(name,
		"Click the button below to verify your account. This link expires in 15 minutes.",
		"Verify Email", link,
		"If you did not create an account, you can ignore this email.")
	return s.deliver(to, verificationSubject, body)
}

// SendPasswordReset mails the password reset link
func (s *Service) SendPasswordReset(to, name, link string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("send password reset: empty recipient")
	}
	body := BuildActionBody(name,
		"You requested to reset your password. Click the button below. This link expires in 15 minutes.",
		"Reset Password", link,
		"If you didn't request this, you can ignore this email.")
	return s.deliver(to, passwordResetSubject, body)
}

func (s *Service) deliver(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.cfg.From, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(addr, auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}
