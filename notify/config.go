package notify

import (
	"strconv"
	"strings"
)

// Unset is the placeholder password shipped in sample configuration. A
// config still carrying it is treated as unconfigured.
const Unset = "your-app-password"

const DefaultSenderName = "2FA Demo App"

type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	SenderName string
}

// Configured reports whether cfg can reach a real mail server.
func (c Config) Configured() bool {
	if strings.TrimSpace(c.Host) == "" || strings.TrimSpace(c.From) == "" {
		return false
	}
	return c.Password != Unset
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = 587
	}
	return c.Host + ":" + strconv.Itoa(port)
}

func (c Config) senderName() string {
	if c.SenderName == "" {
		return DefaultSenderName
	}
	return c.SenderName
}
