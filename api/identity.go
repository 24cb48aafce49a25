package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/logging"
)

// UserHeader carries the caller's user id. Authentication happens upstream;
// this service only authorizes.
const UserHeader = "X-User-ID"

type actorKey struct{}

// Identity resolves the caller from UserHeader and stores the actor in the
// request context. A missing or unknown id is 401.
func Identity(users generic.UserDirectory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := generic.UserID(r.Header.Get(UserHeader))
			if id == "" {
				writeStatus(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing "+UserHeader+" header")
				return
			}
			u, err := users.GetUser(r.Context(), id)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if u == nil || !u.Role.Valid() {
				writeStatus(w, http.StatusUnauthorized, "UNAUTHENTICATED", "unknown user "+string(id))
				return
			}

			ctx := context.WithValue(r.Context(), actorKey{}, generic.ActorFor(*u))
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx, zap.L()).With(zap.String("actor_id", string(u.ID))))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFrom returns the actor stored by Identity.
func ActorFrom(ctx context.Context) (generic.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(generic.Actor)
	return a, ok
}
