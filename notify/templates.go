package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/MrEthical07/otpauth"
)

const (
	loginSubject = "Your 2FA Verification Code"
	resetSubject = "Password Reset Code"
)

var loginBody = template.Must(template.New("login").Parse(`2FA VERIFICATION CODE

Your verification code is: {{.Code}}

This code will expire in {{.Minutes}} minutes.

Enter this code in your browser to complete your login.

If you didn't request this code, please ignore this email.

---
{{.Sender}}
`))

var resetBody = template.Must(template.New("reset").Parse(`PASSWORD RESET CODE

Your password reset code is: {{.Code}}

This code will expire in {{.Minutes}} minutes.

Enter this code in your browser to choose a new password.

If you didn't request a password reset, please ignore this email.

---
{{.Sender}}
`))

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

type templateData struct {
	Code    string
	Minutes int
	Sender  string
}

// Render builds the subject and plain-text body for d.
func Render(d otpauth.Delivery, sender string) (Message, error) {
	var (
		tmpl    *template.Template
		subject string
	)
	switch d.Purpose {
	case otpauth.PurposeLoginOTP:
		tmpl, subject = loginBody, loginSubject
	case otpauth.PurposePasswordReset:
		tmpl, subject = resetBody, resetSubject
	default:
		return Message{}, fmt.Errorf("no template for purpose %q", d.Purpose)
	}

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, templateData{
		Code:    d.Code,
		Minutes: d.TTLMinutes(),
		Sender:  sender,
	})
	if err != nil {
		return Message{}, err
	}

	return Message{Subject: subject, Body: buf.String()}, nil
}
