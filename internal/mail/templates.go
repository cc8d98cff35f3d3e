package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var layout = template.Must(template.New("layout").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background-color: #3b82f6; color: white; padding: 20px; text-align: center;">
    <h1 style="margin: 0;">{{.Heading}}</h1>
  </div>
  <div style="padding: 30px; background-color: #f8fafc;">
    {{if .Name}}<h2 style="color: #1e40af;">Hello {{.Name}}!</h2>{{end}}
    <p style="font-size: 16px; line-height: 1.6; color: #374151;">{{.Intro}}</p>
    {{if .Code}}<div style="text-align: center; margin: 30px 0; font-size: 32px; letter-spacing: 8px; font-weight: bold; color: #1e40af;">{{.Code}}</div>{{end}}
    {{if .Link}}<div style="text-align: center; margin: 30px 0;">
      <a href="{{.Link}}" style="background-color: #3b82f6; color: white; padding: 12px 30px; text-decoration: none; border-radius: 6px; font-weight: bold; display: inline-block;">Reset My Password</a>
    </div>
    <p style="font-size: 14px; color: #6b7280;">If the button doesn't work, copy this link into your browser:<br><a href="{{.Link}}" style="color: #3b82f6; word-break: break-all;">{{.Link}}</a></p>{{end}}
    {{if .Expiry}}<p style="font-size: 12px; color: #9ca3af; border-top: 1px solid #e5e7eb; margin-top: 30px; padding-top: 20px;">This {{if .Link}}link{{else}}code{{end}} expires in {{.Expiry}}. If you didn't request it, you can ignore this email.</p>{{end}}
  </div>
  <div style="background-color: #374151; color: #9ca3af; padding: 20px; text-align: center; font-size: 12px;">
    <p style="margin: 0;">This is an automated email, please do not reply.</p>
  </div>
</div>`))

type layoutData struct {
	Heading string
	Name    string
	Intro   string
	Code    string
	Link    string
	Expiry  string
}

func render(d layoutData) (string, error) {
	var buf bytes.Buffer
	if err := layout.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

// RegistrationOTP renders the email carrying a registration code.
func RegistrationOTP(to, code string, ttl time.Duration) (Message, error) {
	html, err := render(layoutData{
		Heading: "Verify your email",
		Intro:   "Use this code to finish creating your Drive account:",
		Code:    code,
		Expiry:  humanDuration(ttl),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: "registration-otp", To: to, Subject: "Your Drive verification code", HTML: html}, nil
}

// ResetOTP renders the forgot-password code email.
func ResetOTP(to, username, code string, ttl time.Duration) (Message, error) {
	html, err := render(layoutData{
		Heading: "Password Reset Code",
		Name:    username,
		Intro:   "We received a request to reset your Drive password. Enter this code to choose a new one:",
		Code:    code,
		Expiry:  humanDuration(ttl),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: "reset-otp", To: to, Subject: "Password Reset Code - Drive", HTML: html}, nil
}

// ResetLink renders the emailed reset link.
func ResetLink(to, username, link string, ttl time.Duration) (Message, error) {
	html, err := render(layoutData{
		Heading: "Password Reset Request",
		Name:    username,
		Intro:   "We received a request to reset your Drive password. Click the button below to continue:",
		Link:    link,
		Expiry:  humanDuration(ttl),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: "reset-link", To: to, Subject: "Password Reset Request - Drive", HTML: html}, nil
}

// Test renders the operator test email.
func Test(to string) (Message, error) {
	html, err := render(layoutData{
		Heading: "Email configuration works",
		Intro:   "This message confirms Drive can deliver email.",
	})
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: "test", To: to, Subject: "Drive test email", HTML: html}, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
