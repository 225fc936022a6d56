package config

type Config struct {
	BaseURL  string
	HttpPort int
	Db       struct {
		Dsn         string
		Automigrate bool
	}
	Jwt struct {
		SecretKey string
	}
	Notifications struct {
		Email string
	}
	Smtp struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	FileUploader struct {
		CloudName string
		ApiKey    string
		ApiSecret string
	}
	Verification struct {
		// BypassEmails lists identities that skip the eligibility gate.
		// Strictly a development convenience; it must be empty in
		// production and is checked at the login boundary, never inside
		// the gate itself.
		BypassEmails []string
	}
	Settlement struct {
		// AutoCompleteDelay is how long a deferred posting stays pending
		// before the sweep settles it.
		AutoCompleteDelaySeconds int
		SweepIntervalSeconds     int
	}
	RedisServer  string
	KafkaServers string
}
