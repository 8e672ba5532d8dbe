package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/recordbook/core"
	"github.com/trezcool/recordbook/core/record"
)

const (
	sessionHeader        = "X-Session-Token"
	contextCollectionKey = "collection"
	contextActorKey      = "actor"
)

var errInvalidSession = errors.New("invalid session token")

// sessionIssuer signs and checks session tokens. A session is a uuid carried as the JWT subject;
// it names the record collection the caller works on.
type sessionIssuer struct {
	appName string
	key     []byte
	ttl     time.Duration
	shared  bool
	now     func() time.Time
}

func newSessionIssuer(conf *core.Config) *sessionIssuer {
	return &sessionIssuer{
		appName: conf.AppName,
		key:     []byte(conf.SecretKey),
		ttl:     conf.Session.TokenTTL,
		shared:  conf.Records.Shared,
		now:     time.Now,
	}
}

func (si *sessionIssuer) issue() (token, id string, err error) {
	id = uuid.New().String()
	now := si.now()
	claims := jwt.StandardClaims{
		Issuer:   si.appName,
		Subject:  id,
		IssuedAt: now.Unix(),
	}
	if si.ttl > 0 {
		claims.ExpiresAt = now.Add(si.ttl).Unix()
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(si.key)
	if err != nil {
		return "", "", errors.Wrap(err, "signing session token")
	}
	return token, id, nil
}

// parse returns the session id of a valid token.
func (si *sessionIssuer) parse(token string) (string, error) {
	claims := new(jwt.StandardClaims)
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errInvalidSession
		}
		return si.key, nil
	})
	if err != nil {
		return "", errors.Wrap(errInvalidSession, err.Error())
	}
	if _, err = uuid.Parse(claims.Subject); err != nil {
		return "", errInvalidSession
	}
	return claims.Subject, nil
}

// sessionMiddleware resolves the collection of the request, issuing a new session when the token is missing or invalid.
// The token in use is echoed back in the response header.
func sessionMiddleware(si *sessionIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if si.shared {
				ctx.Set(contextCollectionKey, record.DefaultCollection)
				ctx.Set(contextActorKey, core.Actor{ID: record.DefaultCollection, Name: "shared"})
				return next(ctx)
			}

			token := ctx.Request().Header.Get(sessionHeader)
			id, err := si.parse(token)
			if token == "" || err != nil {
				if token, id, err = si.issue(); err != nil {
					return err
				}
			}
			ctx.Response().Header().Set(sessionHeader, token)
			ctx.Set(contextCollectionKey, id)
			ctx.Set(contextActorKey, core.Actor{ID: id, Name: "session"})
			return next(ctx)
		}
	}
}

func contextCollection(ctx echo.Context) string {
	if coll, ok := ctx.Get(contextCollectionKey).(string); ok && coll != "" {
		return coll
	}
	return record.DefaultCollection
}

func contextActor(ctx echo.Context) (core.Actor, bool) {
	actor, ok := ctx.Get(contextActorKey).(core.Actor)
	return actor, ok
}
