package mailer

import (
	"fmt"
	"html/template"
	"strings"
	"time"
)

var otpTemplate = template.Must(template.New("otp").Parse(`<html>
<body style="font-family: sans-serif; color: #1f2933;">
  <h2>Your Platewise sign-in code</h2>
  <p>Enter this code to finish signing in. It expires in {{.Minutes}} minutes.</p>
  <p style="font-size: 32px; letter-spacing: 6px; font-weight: bold;">{{.Code}}</p>
  <p>If you didn't request this, you can safely ignore this email.</p>
</body>
</html>`))

// OTPMessage renders the subject and HTML body for a one-time-code email.
func OTPMessage(code string, ttl time.Duration) (subject, htmlBody string) {
	minutes := int(ttl.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	var b strings.Builder
	// Template data is controlled input; a render failure here is a bug.
	if err := otpTemplate.Execute(&b, struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: minutes}); err != nil {
		return "Your Platewise sign-in code", fmt.Sprintf("<p>Your code: %s</p>", template.HTMLEscapeString(code))
	}
	return "Your Platewise sign-in code", b.String()
}
