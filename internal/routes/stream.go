package routes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	range_parser "github.com/quantumsheep/range-parser"
	"go.uber.org/zap"

	"github.com/streambridge/fsb/internal/dispatch"
	"github.com/streambridge/fsb/internal/fetch"
	"github.com/streambridge/fsb/internal/locator"
	"github.com/streambridge/fsb/internal/policy"
	"github.com/streambridge/fsb/internal/refcodec"
	"github.com/streambridge/fsb/internal/upstream"
)

// maxReselections bounds how many times the handler will pick a different
// identity after an identity-specific dispatch failure (spec.md §4.5).
const maxReselections = 2

func (a *allRoutes) loadStream(r *Route) {
	log := a.log.Named("stream")
	r.Engine.GET("/stream/:ref", a.handleGet(log, false))
	r.Engine.GET("/dl/:ref", a.handleGet(log, true))
	r.Engine.OPTIONS("/stream/:ref", a.svc.CORS.Preflight)
	r.Engine.OPTIONS("/dl/:ref", a.svc.CORS.Preflight)
	log.Info("loaded stream routes")
}

func (a *allRoutes) handleGet(log *zap.Logger, download bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" && a.svc.CORS.IsAllowed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Expose-Headers", "Content-Range, Accept-Ranges, Content-Length")
		}

		if ok, retryAfter := a.svc.RateLimit.Allow(clientIP(c)); !ok {
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			writePlain(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		messageID, err := refcodec.Decode(c.Param("ref"))
		if err != nil {
			writePlain(c, http.StatusNotFound, "invalid reference")
			return
		}

		if err := a.svc.Bandwidth.Check(); err != nil {
			writePlain(c, http.StatusServiceUnavailable, "monthly bandwidth ceiling reached")
			return
		}

		excluded := map[string]bool{}
		var identity *dispatch.Identity
		var loc upstream.Locator
		for attempt := 0; ; attempt++ {
			identity, err = a.svc.Dispatcher.Select(excluded)
			if err != nil {
				writePlain(c, http.StatusServiceUnavailable, "no upstream identity available")
				return
			}

			loc, err = a.svc.Locators.For(identity.ID()).Get(c.Request.Context(), messageID, identity.Primary())
			if err == nil {
				break
			}
			if locator.IsNegativeCached(err) || errors.Is(err, upstream.ErrNotFound) {
				writePlain(c, http.StatusNotFound, "file not found")
				return
			}
			if attempt >= maxReselections {
				writePlain(c, http.StatusServiceUnavailable, "upstream lookup failed")
				return
			}
			excluded[identity.ID()] = true
		}

		if err := a.svc.Expiry.Check(loc.MessageDate); err != nil {
			writePlain(c, http.StatusGone, "link expired")
			return
		}

		from, until, status, err := parseRange(c.Request.Header.Get("Range"), loc.Size)
		if err != nil {
			c.Header("Content-Range", fmt.Sprintf("bytes */%d", loc.Size))
			writeNoBody(c, http.StatusRequestedRangeNotSatisfiable)
			return
		}

		contentLength := until - from + 1
		if loc.Size == 0 {
			contentLength = 0
		}

		setCommonHeaders(c, loc, contentLength, download)
		if status == http.StatusPartialContent {
			c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", from, until, loc.Size))
		}
		c.Status(status)

		if c.Request.Method == http.MethodHead || loc.Size == 0 {
			return
		}

		a.pump(c, log, identity, loc, messageID, from, contentLength)
	}
}

// parseRange implements spec.md §4.6 step 5. An absent header yields the
// full body; a present header is parsed per RFC 7233 with multi-range
// rejected.
func parseRange(header string, size int64) (from, until int64, status int, err error) {
	if header == "" {
		if size == 0 {
			return 0, -1, http.StatusOK, nil
		}
		return 0, size - 1, http.StatusOK, nil
	}
	if size == 0 {
		return 0, 0, 0, fmt.Errorf("range on empty file")
	}

	ranges, perr := range_parser.Parse(size, header)
	if perr != nil || len(ranges) != 1 {
		return 0, 0, 0, fmt.Errorf("unsatisfiable range")
	}
	from, until = ranges[0].Start, ranges[0].End
	if from < 0 || until < from || until >= size {
		return 0, 0, 0, fmt.Errorf("unsatisfiable range")
	}
	return from, until, http.StatusPartialContent, nil
}

func setCommonHeaders(c *gin.Context, loc upstream.Locator, contentLength int64, download bool) {
	mimeType := loc.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Length", fmt.Sprintf("%d", contentLength))
	c.Header("Content-Type", mimeType)
	if download {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, loc.FileName))
	}
}

// pump drives the Chunk Fetcher over [from, from+length) and writes each
// slice to the response body, registering a StreamSession first and
// releasing it on every exit path (spec.md §4.6 steps 7-9).
func (a *allRoutes) pump(c *gin.Context, log *zap.Logger, identity *dispatch.Identity, loc upstream.Locator, messageID, from, length int64) {
	ctx, cancel := context.WithCancel(c.Request.Context())

	resolver := a.svc.Bot.ResolverFor(identity.ID())
	stream := a.svc.Registry.Register(ctx, identity.ID(), messageID, cancel, identity.Release)
	identity.Acquire()
	defer a.svc.Registry.Deregister(stream.ID)

	hooks := fetch.Hooks{
		OnBytes:    func(n int64) { stream.Touch(n); a.svc.Ledger.Accrue(n) },
		OnActivity: func() { stream.Touch(0) },
	}

	reader := a.svc.Fetcher.Open(ctx, resolver, loc, from, length, hooks)
	defer reader.Close()

	if _, err := io.Copy(c.Writer, reader); err != nil && ctx.Err() == nil {
		log.Warn("streaming error", zap.Error(err), zap.String("identity", identity.ID()))
	}
}
