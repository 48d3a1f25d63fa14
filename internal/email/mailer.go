package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltpl "html/template"
	"net/url"
	"strings"
	texttpl "text/template"
	"time"
)

//go:embed templates/*
var templatesFS embed.FS

const (
	TemplateVerify = "verify_email"
	TemplateReset  = "reset_password"
)

// Vars son las variables disponibles en los templates.
type Vars struct {
	Username string
	Email    string
	Link     string
	TTL      string
}

type pair struct {
	html *htmltpl.Template
	text *texttpl.Template
}

// Mailer arma y envía los correos de cuenta.
type Mailer struct {
	sender  Sender
	baseURL string
	tpl     map[string]pair
}

// NewMailer parsea los templates embebidos. baseURL es la URL pública del
// cliente que recibe los links (ej: https://app.cici.example).
func NewMailer(sender Sender, baseURL string) (*Mailer, error) {
	m := &Mailer{sender: sender, baseURL: strings.TrimRight(baseURL, "/"), tpl: map[string]pair{}}
	for _, name := range []string{TemplateVerify, TemplateReset} {
		h, err := htmltpl.ParseFS(templatesFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("email: parse %s html: %w", name, err)
		}
		t, err := texttpl.ParseFS(templatesFS, "templates/"+name+".txt")
		if err != nil {
			return nil, fmt.Errorf("email: parse %s txt: %w", name, err)
		}
		m.tpl[name] = pair{html: h, text: t}
	}
	return m, nil
}

// SendVerification envía el link de verificación de email.
func (m *Mailer) SendVerification(ctx context.Context, to, username, token string, ttl time.Duration) error {
	return m.send(ctx, TemplateVerify, "Verificá tu email", to, Vars{
		Username: username,
		Email:    to,
		Link:     m.link("/verify-email", token),
		TTL:      humanTTL(ttl),
	})
}

// SendPasswordReset envía el link de reset de password.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, username, token string, ttl time.Duration) error {
	return m.send(ctx, TemplateReset, "Restablecé tu contraseña", to, Vars{
		Username: username,
		Email:    to,
		Link:     m.link("/reset-password", token),
		TTL:      humanTTL(ttl),
	})
}

// Render ejecuta un template sin enviarlo.
func (m *Mailer) Render(name string, v Vars) (html, text string, err error) {
	p, ok := m.tpl[name]
	if !ok {
		return "", "", fmt.Errorf("email: unknown template %q", name)
	}
	var hb, tb bytes.Buffer
	if err := p.html.Execute(&hb, v); err != nil {
		return "", "", err
	}
	if err := p.text.Execute(&tb, v); err != nil {
		return "", "", err
	}
	return hb.String(), tb.String(), nil
}

func (m *Mailer) send(ctx context.Context, name, subject, to string, v Vars) error {
	html, text, err := m.Render(name, v)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, to, subject, html, text)
}

func (m *Mailer) link(path, token string) string {
	return m.baseURL + path + "?token=" + url.QueryEscape(token)
}

func humanTTL(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		n := int(d / (24 * time.Hour))
		if n == 1 {
			return "24 horas"
		}
		return fmt.Sprintf("%d días", n)
	case d >= time.Hour && d%time.Hour == 0:
		n := int(d / time.Hour)
		if n == 1 {
			return "1 hora"
		}
		return fmt.Sprintf("%d horas", n)
	default:
		return fmt.Sprintf("%d minutos", int(d/time.Minute))
	}
}
