package server

import (
	"context"
	"time"

	"tailscale.com/client/tailscale/apitype"
)

// WhoIser resolves tailnet peers. The tsnet local client satisfies it.
type WhoIser interface {
	WhoIs(ctx context.Context, remoteAddr string) (*apitype.WhoIsResponse, error)
}

// SetTailscale enables labeling sessions with the peer's tailnet login.
func (s *Server) SetTailscale(w WhoIser) {
	s.tailnet = w
}

// peerName labels a connection by its tailnet login, falling back to the
// remote address off-tailnet or when the lookup fails.
func (s *Server) peerName(ctx context.Context, remoteAddr string) string {
	if s.tailnet == nil {
		return remoteAddr
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	who, err := s.tailnet.WhoIs(ctx, remoteAddr)
	if err != nil {
		s.log.Debug("tailnet whois failed", "remote", remoteAddr, "error", err)
		return remoteAddr
	}
	if who == nil || who.UserProfile == nil || who.UserProfile.LoginName == "" {
		return remoteAddr
	}
	return who.UserProfile.LoginName
}
