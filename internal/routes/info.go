package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startedAt = time.Now()

func (a *allRoutes) loadInfo(r *Route) {
	log := a.log.Named("info")
	r.Engine.GET("/api/info", a.handleInfo)
	log.Info("loaded info route")
}

type botInfo struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	Mention   string `json:"mention"`
}

type featureInfo struct {
	LinkExpiryEnabled        bool   `json:"link_expiry_enabled"`
	LinkExpiryDurationSecond int64  `json:"link_expiry_duration_seconds"`
	VideoFrontendURL         string `json:"video_frontend_url,omitempty"`
}

type bandwidthInfo struct {
	LimitBytes int64  `json:"limit_bytes"`
	UsedBytes  int64  `json:"used_bytes"`
	Month      string `json:"month"`
	Enabled    bool   `json:"enabled"`
}

type streamingInfo struct {
	ActiveStreams          int64    `json:"active_streams"`
	SupportedFormats       []string `json:"supported_formats"`
	RangeRequestsSupported bool     `json:"range_requests_supported"`
	SeekingSupported       bool     `json:"seeking_supported"`
}

type infoResponse struct {
	Status        string        `json:"status"`
	BotInfo       botInfo       `json:"bot_info"`
	Features      featureInfo   `json:"features"`
	Bandwidth     bandwidthInfo `json:"bandwidth"`
	Streaming     streamingInfo `json:"streaming"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	ServerTimeUTC string        `json:"server_time_utc"`
	TotalUsers    int64         `json:"total_users"`
}

// handleInfo implements GET /api/info (spec.md §6). The user/session store
// behind total_users lives outside core scope, so it is always reported as
// zero here; a deployment that wires the command surface's user collection
// can override it.
func (a *allRoutes) handleInfo(c *gin.Context) {
	cfg := a.svc.Config
	month := a.svc.Ledger.CurrentMonth()

	resp := infoResponse{
		Status: "online",
		Features: featureInfo{
			LinkExpiryEnabled:        cfg.LinkExpirySeconds > 0,
			LinkExpiryDurationSecond: cfg.LinkExpirySeconds,
			VideoFrontendURL:         cfg.PlayerURL,
		},
		Bandwidth: bandwidthInfo{
			LimitBytes: cfg.BandwidthCeiling,
			UsedBytes:  a.svc.Ledger.Used(month),
			Month:      month,
			Enabled:    cfg.BandwidthCeiling > 0,
		},
		Streaming: streamingInfo{
			ActiveStreams:          a.svc.Registry.SnapshotCount(),
			SupportedFormats:       []string{"*"},
			RangeRequestsSupported: true,
			SeekingSupported:       true,
		},
		UptimeSeconds: int64(time.Since(startedAt).Seconds()),
		ServerTimeUTC: time.Now().UTC().Format(time.RFC3339),
		TotalUsers:    0,
	}

	if identities := a.svc.Bot.Identities(); len(identities) > 0 {
		self := identities[0].Self
		resp.BotInfo = botInfo{
			ID:        self.ID,
			Username:  self.Username,
			FirstName: self.FirstName,
			Mention:   "@" + self.Username,
		}
	}

	c.JSON(http.StatusOK, resp)
}
