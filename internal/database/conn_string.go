package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/linkpulse/internal/config"
)

// ApplicationName identifies linkpulse connections in pg_stat_activity.
const ApplicationName = "linkpulse"

// BuildConnString builds a postgres:// URL from cfg. Credentials are escaped
// and IPv6 hosts are bracketed.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
		RawQuery: url.Values{
			"sslmode":          {sslMode},
			"application_name": {ApplicationName},
		}.Encode(),
	}
	return u.String()
}
