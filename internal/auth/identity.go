package auth

import (
	"errors"
	"strconv"
	"strings"
)

var ErrNoCredentials = errors.New("no token or guest credentials")

// Identity is who a socket session belongs to. Authenticated users carry
// their numeric account id rendered as a string; guests carry an ephemeral
// client-generated id and a display name, and never map to a user row.
type Identity struct {
	ID        string
	Name      string
	IsGuest   bool
	AccountID int64 // 0 for guests
}

// SocketCredentials is the handshake metadata a client presents when opening
// the WebSocket: a bearer token, or a guest id/name pair.
type SocketCredentials struct {
	Token     string
	GuestID   string
	GuestName string
}

// AuthenticateSocket resolves handshake credentials to an identity. A valid
// token wins; an invalid token falls through to the guest pair, mirroring
// how expired editors can keep collaborating anonymously. With neither, the
// connection is rejected before any room operation is possible.
func AuthenticateSocket(m *JWTManager, creds SocketCredentials, allowGuests bool) (Identity, error) {
	if creds.Token != "" {
		if claims, err := m.ValidateAccessToken(creds.Token); err == nil {
			return Identity{
				ID:        strconv.FormatInt(claims.UserID, 10),
				Name:      claims.FullName,
				AccountID: claims.UserID,
			}, nil
		}
	}

	if allowGuests && creds.GuestID != "" && strings.TrimSpace(creds.GuestName) != "" {
		return Identity{
			ID:      creds.GuestID,
			Name:    strings.TrimSpace(creds.GuestName),
			IsGuest: true,
		}, nil
	}

	return Identity{}, ErrNoCredentials
}
