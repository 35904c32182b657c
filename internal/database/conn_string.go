package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/vault-relay/internal/config"
	"github.com/rickgao/vault-relay/internal/version"
)

// BuildConnString builds a PostgreSQL connection URL from config. User and
// password are escaped; sslmode defaults to "prefer".
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", version.Name)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
