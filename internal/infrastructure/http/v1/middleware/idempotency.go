package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"medstock/internal/core/apperror"
	appctx "medstock/internal/core/context"
	"medstock/internal/infrastructure/storage/postgres"
	"medstock/pkg/logger"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"
const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

// IdempotencyStore claims, completes and releases request keys.
type IdempotencyStore interface {
	Acquire(ctx context.Context, req postgres.IdempotencyRequest) (*postgres.IdempotencyReplay, error)
	Complete(ctx context.Context, companyID, key string, replay postgres.IdempotencyReplay) error
	Release(ctx context.Context, companyID, key string) error
}

// Idempotency replays the stored response of a POST carrying a key that already
// succeeded. Requests without the header pass through. Must run after Auth.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		user := appctx.GetUser(ctx)
		if user == nil {
			abortUnauthorized(c, "user context required")
			return
		}

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, err := io.ReadAll(limited)
		if err != nil {
			_ = c.Error(apperror.NewValidation("failed to read request body").WithCause(err))
			c.Abort()
			return
		}
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)

		replay, err := store.Acquire(ctx, postgres.IdempotencyRequest{
			Key:         key,
			CompanyID:   user.CompanyID,
			UserID:      user.UserID,
			Operation:   c.Request.Method + " " + c.FullPath() + " " + c.Param("encounterId"),
			RequestHash: hex.EncodeToString(hash[:]),
		})
		if err != nil {
			if _, ok := apperror.AsAppError(err); !ok {
				err = apperror.NewInternal(err).WithDetail("component", "idempotency")
			}
			_ = c.Error(err)
			c.Abort()
			return
		}

		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		recorder := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		c.Next()

		// The key outlives a client disconnect once the handler has run.
		storeCtx := context.WithoutCancel(ctx)
		status := recorder.Status()
		if len(c.Errors) > 0 || status < 200 || status >= 300 {
			if err := store.Release(storeCtx, user.CompanyID, key); err != nil {
				logger.Warn(ctx, "failed to release idempotency key", "key", key, "error", err)
			}
			return
		}

		err = store.Complete(storeCtx, user.CompanyID, key, postgres.IdempotencyReplay{
			StatusCode:  status,
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.body.Bytes(),
		})
		if err != nil {
			logger.Warn(ctx, "failed to complete idempotency key", "key", key, "error", err)
		}
	}
}

// responseRecorder copies the response body while writing it through.
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
