// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	AppName  string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service delivers account mails over SMTP.
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	if config.AppName == "" {
		config.AppName = "Journal"
	}
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendHTMLEmail sends a multipart mail with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	const boundary = "journal-mail-boundary"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	if err := s.send(s.server, s.auth, s.config.From, to, msg.Bytes()); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

type mailData struct {
	AppName  string
	UserName string
	URL      string
}

func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	data := mailData{AppName: s.config.AppName, UserName: userName, URL: verificationURL}
	html, err := renderTemplate("verification", data)
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	text := fmt.Sprintf("Welcome, %s. Confirm your address to start journaling: %s", userName, verificationURL)
	return s.SendHTMLEmail([]string{to}, "Confirm your "+s.config.AppName+" account", text, html)
}

func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	data := mailData{AppName: s.config.AppName, UserName: userName, URL: resetURL}
	html, err := renderTemplate("reset", data)
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	text := fmt.Sprintf("Hi %s. Choose a new password within the hour: %s", userName, resetURL)
	return s.SendHTMLEmail([]string{to}, "Reset your "+s.config.AppName+" password", text, html)
}

var templates = template.Must(template.New("email").Parse(mailTemplates))

func renderTemplate(name string, data mailData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const mailTemplates = `{{define "layout_head"}}<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.7; color: #2d2a26; max-width: 560px; margin: 0 auto; padding: 24px; }
        .button { display: inline-block; padding: 12px 22px; background: #5b4b8a; color: #fff; text-decoration: none; border-radius: 6px; margin: 18px 0; }
        .muted { margin-top: 28px; font-size: 12px; color: #7a746c; }
        .link { word-break: break-all; color: #5b4b8a; }
    </style>
</head>
<body>
    <h1>{{.AppName}}</h1>
{{end}}

{{define "verification"}}{{template "layout_head" .}}
    <p>Welcome, {{.UserName}}.</p>
    <p>Confirm your email address to open your journal.</p>
    <p><a href="{{.URL}}" class="button">Confirm email</a></p>
    <p class="link">{{.URL}}</p>
    <p class="muted">The link expires in 24 hours. If you did not sign up for {{.AppName}}, ignore this message.</p>
</body>
</html>{{end}}

{{define "reset"}}{{template "layout_head" .}}
    <p>Hi {{.UserName}},</p>
    <p>Someone asked to reset the password for your journal. Use the button below to pick a new one.</p>
    <p><a href="{{.URL}}" class="button">Choose a new password</a></p>
    <p class="link">{{.URL}}</p>
    <p class="muted">The link expires in 1 hour. If you did not ask for this, your password stays as it is.</p>
</body>
</html>{{end}}`
