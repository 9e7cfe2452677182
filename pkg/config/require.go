package config

import "log"

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}

func MustNonEmptyBytes(value []byte, envName string) {
	if len(value) == 0 {
		log.Fatalf("missing required env %s", envName)
	}
}

// MustValid checks the settings every binary needs before touching the database.
func (c Config) MustValid() {
	MustNonEmpty(c.DatabaseURL, "DATABASE_URL")
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		log.Fatalf("unsupported DB_DRIVER %q", c.DBDriver)
	}
}

// MustValidServer additionally requires the token secrets.
func (c Config) MustValidServer() {
	c.MustValid()
	MustNonEmptyBytes(c.JWTAccessSecret, "JWT_SECRET")
	MustNonEmptyBytes(c.JWTRefreshSecret, "JWT_REFRESH_SECRET")
}
