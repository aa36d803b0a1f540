package routes

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/streambridge/fsb/internal/bot"
	"github.com/streambridge/fsb/internal/config"
	"github.com/streambridge/fsb/internal/dispatch"
	"github.com/streambridge/fsb/internal/fetch"
	"github.com/streambridge/fsb/internal/ledger"
	"github.com/streambridge/fsb/internal/locator"
	"github.com/streambridge/fsb/internal/policy"
	"github.com/streambridge/fsb/internal/refcodec"
	"github.com/streambridge/fsb/internal/registry"
	"github.com/streambridge/fsb/internal/service"
	"github.com/streambridge/fsb/internal/upstream"
	"github.com/streambridge/fsb/internal/upstream/upstreamtest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testHarness wires a full service.Service against a single fake identity,
// the same shape service.New assembles, but without a live Telegram
// connection (bot.NewIdentity/bot.NewService exist for exactly this).
type testHarness struct {
	engine   *gin.Engine
	session  *upstreamtest.FakeSession
	identity *dispatch.Identity
	svc      *service.Service
}

func newHarness(t *testing.T, size int64, chunkSize int64) *testHarness {
	t.Helper()
	log := zap.NewNop()

	const dc = 2
	session := upstreamtest.NewFakeSession(dc, size)
	metaFetcher := &upstreamtest.FakeMetadataFetcher{
		Locator: upstream.Locator{DataCenterID: dc, Size: size, MimeType: "video/mp4", FileName: "movie.mp4"},
	}
	primary := &upstreamtest.FakePrimarySession{FakeSession: session, FakeMetadataFetcher: metaFetcher}
	opener := &upstreamtest.FakeOpener{Session: session}

	dispatchIdentity := dispatch.NewIdentity("identity-0", dc, primary, opener)
	pool := upstream.NewPool(log)
	botIdentity := bot.NewIdentity(dispatchIdentity, pool, bot.Self{ID: 1, Username: "filebot"}, log)
	botSvc := bot.NewService(pool, []*bot.Identity{botIdentity}, 0, log)

	led, err := ledger.Open(filepath.Join(t.TempDir(), "bandwidth.db"), log)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}

	svc := &service.Service{
		Config:     &config.Config{},
		Bot:        botSvc,
		Dispatcher: botSvc.Dispatcher,
		Locators:   locator.NewPools(1000, log),
		Fetcher:    fetch.New(chunkSize, log),
		Registry:   registry.New(0, log),
		Ledger:     led,
		Expiry:     policy.ExpiryGate{Seconds: 0},
		Bandwidth:  policy.BandwidthGate{Usage: led, CeilingBytes: 0},
		CORS:       policy.NewCORSGate(nil),
		RateLimit:  policy.NewRateLimiter(1000, 1000),
	}

	engine := gin.New()
	Register(engine, svc, log)

	return &testHarness{engine: engine, session: session, identity: dispatchIdentity, svc: svc}
}

func (h *testHarness) get(t *testing.T, path, rangeHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func streamPath(messageID int64) string {
	ref, err := refcodec.Encode(messageID)
	if err != nil {
		panic(err)
	}
	return "/stream/" + ref
}

func TestStreamFullFileNoRange(t *testing.T) {
	h := newHarness(t, 1000, 64*1024)
	w := h.get(t, streamPath(42), "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Length"); got != "1000" {
		t.Fatalf("Content-Length = %q, want 1000", got)
	}
	if w.Body.Len() != 1000 {
		t.Fatalf("body length = %d, want 1000", w.Body.Len())
	}
}

func TestStreamPartialRange(t *testing.T) {
	h := newHarness(t, 1 << 20, 64*1024)
	w := h.get(t, streamPath(1), "bytes=0-1023")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != fmt.Sprintf("bytes 0-1023/%d", 1<<20) {
		t.Fatalf("Content-Range = %q", got)
	}
	if w.Body.Len() != 1024 {
		t.Fatalf("body length = %d, want 1024", w.Body.Len())
	}
	for i, b := range w.Body.Bytes() {
		if b != byte(i%256) {
			t.Fatalf("byte %d = %d, want %d", i, b, i%256)
		}
	}
}

func TestStreamSuffixRange(t *testing.T) {
	h := newHarness(t, 1000, 64*1024)
	w := h.get(t, streamPath(2), "bytes=-100")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 900-999/1000" {
		t.Fatalf("Content-Range = %q", got)
	}
	if w.Body.Len() != 100 {
		t.Fatalf("body length = %d, want 100", w.Body.Len())
	}
}

func TestStreamOpenEndedRange(t *testing.T) {
	h := newHarness(t, 1_500_000, 64*1024)
	w := h.get(t, streamPath(3), "bytes=1000000-")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 1000000-1499999/1500000" {
		t.Fatalf("Content-Range = %q", got)
	}
	if w.Body.Len() != 500000 {
		t.Fatalf("body length = %d, want 500000", w.Body.Len())
	}
}

func TestStreamOutOfBoundsRange(t *testing.T) {
	h := newHarness(t, 1000, 64*1024)
	w := h.get(t, streamPath(4), "bytes=5000-6000")

	if w.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes */1000" {
		t.Fatalf("Content-Range = %q, want bytes */1000", got)
	}
}

func TestStreamZeroByteFileWithRangeIs416(t *testing.T) {
	h := newHarness(t, 0, 64*1024)
	w := h.get(t, streamPath(5), "bytes=0-10")

	if w.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", w.Code)
	}
}

func TestStreamZeroByteFileNoRangeIs200(t *testing.T) {
	h := newHarness(t, 0, 64*1024)
	w := h.get(t, streamPath(6), "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("body length = %d, want 0", w.Body.Len())
	}
}

func TestStreamChunkAlignedRange(t *testing.T) {
	h := newHarness(t, 16, 4)
	w := h.get(t, streamPath(7), "bytes=4-7")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if w.Body.Len() != 4 {
		t.Fatalf("body length = %d, want 4", w.Body.Len())
	}
	want := []byte{4, 5, 6, 7}
	if string(w.Body.Bytes()) != string(want) {
		t.Fatalf("body = %v, want %v", w.Body.Bytes(), want)
	}
	if got := h.session.Calls(); got != 1 {
		t.Fatalf("FetchChunk calls = %d, want 1 for a chunk-aligned range", got)
	}
}

func TestDownloadSetsContentDisposition(t *testing.T) {
	h := newHarness(t, 100, 64*1024)
	w := h.get(t, "/dl/"+refMust(8), "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="movie.mp4"` {
		t.Fatalf("Content-Disposition = %q", got)
	}
}

func TestStreamBandwidthCeilingRejectsBeforeBody(t *testing.T) {
	h := newHarness(t, 1000, 64*1024)
	h.svc.Ledger.Accrue(1000)
	h.svc.Bandwidth = policy.BandwidthGate{Usage: h.svc.Ledger, CeilingBytes: 500}

	w := h.get(t, streamPath(9), "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if w.Body.Len() == 0 {
		t.Fatal("expected an error body, not a truncated stream")
	}
}

func TestStreamInvalidReferenceIs404(t *testing.T) {
	h := newHarness(t, 1000, 64*1024)
	w := h.get(t, "/stream/not-a-valid-ref!!", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func refMust(messageID int64) string {
	ref, err := refcodec.Encode(messageID)
	if err != nil {
		panic(err)
	}
	return ref
}
