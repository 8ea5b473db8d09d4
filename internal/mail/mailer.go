package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"time"
	"unicode"
	"unicode/utf8"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	subjectVerifyEmail   = "Email verification for FriendsPlace account"
	subjectResetPassword = "Password reset for FriendsPlace account"
)

// Mailer はトークン付きリンクを含むメールを組み立ててSenderに渡す。
type Mailer struct {
	sender    Sender
	tmpl      *template.Template
	baseURL   string
	verifyTTL time.Duration
	resetTTL  time.Duration
}

// NewMailer はMailerを生成する。baseURLはリンクの起点となる公開URL。
func NewMailer(sender Sender, baseURL string, verifyTTL, resetTTL time.Duration) (*Mailer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse mail templates: %w", err)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &Mailer{
		sender:    sender,
		tmpl:      tmpl,
		baseURL:   baseURL,
		verifyTTL: verifyTTL,
		resetTTL:  resetTTL,
	}, nil
}

type templateData struct {
	Name      string
	URL       string
	ExpiresIn string
}

// SendVerification はメール認証リンクを送る。
func (m *Mailer) SendVerification(ctx context.Context, to, firstName, token string) error {
	return m.send(ctx, "verify_email.html", subjectVerifyEmail, to, firstName, "verifyEmail", token, m.verifyTTL)
}

// SendPasswordReset はパスワードリセットリンクを送る。
func (m *Mailer) SendPasswordReset(ctx context.Context, to, firstName, token string) error {
	return m.send(ctx, "reset_password.html", subjectResetPassword, to, firstName, "resetPassword", token, m.resetTTL)
}

func (m *Mailer) send(ctx context.Context, name, subject, to, firstName, action, token string, ttl time.Duration) error {
	link, err := url.JoinPath(m.baseURL, "api", "v1", "users", action, token)
	if err != nil {
		return fmt.Errorf("failed to build link: %w", err)
	}

	var buf bytes.Buffer
	err = m.tmpl.ExecuteTemplate(&buf, name, templateData{
		Name:      capitalize(firstName),
		URL:       link,
		ExpiresIn: humanDuration(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	return m.sender.Send(ctx, Message{To: to, Subject: subject, HTML: buf.String()})
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "24 hours"
		}
		return fmt.Sprintf("%d days", days)
	case d == time.Hour:
		return "1 hour"
	case d > time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d minutes", int(d.Round(time.Minute)/time.Minute))
	}
}
