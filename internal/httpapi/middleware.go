package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/safar/go-shop-settlement/internal/models"
)

const (
	HeaderUserID       = "X-User-ID"
	HeaderSessionToken = "X-Session-Token"
)

type contextKey int

const identityKey contextKey = iota

// Identity is who the request acts for. Authentication happens upstream;
// the headers are trusted as given.
type Identity struct {
	UserID       int64
	SessionToken string
}

// IdentityMiddleware reads the caller identity from the request headers.
// A malformed user id is rejected; missing headers are left for each
// handler to judge.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id Identity
		if raw := strings.TrimSpace(r.Header.Get(HeaderUserID)); raw != "" {
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || userID <= 0 {
				respondError(w, http.StatusBadRequest, "invalid_user_id", HeaderUserID+" must be a positive integer")
				return
			}
			id.UserID = userID
		}
		id.SessionToken = strings.TrimSpace(r.Header.Get(HeaderSessionToken))

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id := identityFrom(r.Context())
	if id.UserID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing "+HeaderUserID)
		return 0, false
	}
	return id.UserID, true
}

// requireOwner picks the cart owner: the signed-in user when known, the
// anonymous session otherwise.
func requireOwner(w http.ResponseWriter, r *http.Request) (models.CartOwner, bool) {
	id := identityFrom(r.Context())
	switch {
	case id.UserID > 0:
		return models.UserOwner(id.UserID), true
	case id.SessionToken != "":
		return models.SessionOwner(id.SessionToken), true
	}
	respondError(w, http.StatusUnauthorized, "unauthorized", "missing "+HeaderUserID+" or "+HeaderSessionToken)
	return models.CartOwner{}, false
}
