package mailer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOTPMessageContainsCodeAndExpiry(t *testing.T) {
	subject, body := OTPMessage("123456", 5*time.Minute)
	require.Equal(t, "Your Platewise sign-in code", subject)
	require.Contains(t, body, "123456")
	require.Contains(t, body, "5 minutes")
}

func TestOTPMessageRoundsSubMinuteTTLUp(t *testing.T) {
	_, body := OTPMessage("123456", 30*time.Second)
	require.Contains(t, body, "1 minutes")
}
