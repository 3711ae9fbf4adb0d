package config

// EmailConfig configures transactional email through Postmark.
type EmailConfig struct {
	ServerToken string // POSTMARK_SERVER_TOKEN
	Sender      string // From address
	MockMode    bool   // log instead of sending
	AdminCopy   string // optional BCC of every confirmation
}

// LoadEmailConfig reads the email variables.  Without a server token the
// sender always runs in mock mode.
func LoadEmailConfig() EmailConfig {
	cfg := EmailConfig{
		ServerToken: envStr("POSTMARK_SERVER_TOKEN", ""),
		Sender:      envStr("EMAIL_SENDER", "A Cappella Workshop <hello@acappellaworkshop.com>"),
		MockMode:    envBool("EMAIL_MOCK_MODE", false),
		AdminCopy:   envStr("EMAIL_ADMIN_COPY", ""),
	}
	if cfg.ServerToken == "" {
		cfg.MockMode = true
	}
	return cfg
}
