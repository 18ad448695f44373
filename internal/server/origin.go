package server

import "net/url"

type loopbackOrigin struct {
	scheme string
	host   string
}

var loopbackOrigins = []loopbackOrigin{
	{scheme: "http", host: "localhost"},
	{scheme: "http", host: "127.0.0.1"},
	{scheme: "http", host: "::1"},
	{scheme: "https", host: "localhost"},
	{scheme: "https", host: "127.0.0.1"},
}

func isLoopbackOrigin(u *url.URL) bool {
	if u == nil {
		return false
	}
	hostname := u.Hostname()
	for _, o := range loopbackOrigins {
		if u.Scheme == o.scheme && hostname == o.host {
			return true
		}
	}
	return false
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients), loopback pages, and whatever the configured check allows.
func (s *Server) checkOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && isLoopbackOrigin(u) {
		return true
	}
	if s.originAllowed != nil {
		return s.originAllowed(origin)
	}
	return false
}
