package relay

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/collabkit/meet/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable per-client id via
// cookie. The relay uses it as the member id inside rooms.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter builds the relay HTTP surface: the meeting snapshot API
// and the websocket meeting endpoint.
func SetupRouter(cfg *config.Config, rooms *Rooms) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MeetSessions", store))
	r.Use(ClientTokenMiddleware())

	ctrl := NewController(rooms, cfg.ReadLimit, cfg.PingPeriod)

	r.GET("/meetings/:id", func(c *gin.Context) {
		room, ok := rooms.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		c.JSON(http.StatusOK, meetingSnapshot(room))
	})

	r.GET("/ws/meet/:id", func(c *gin.Context) {
		log.Info().Str("module", "relay.http").Str("sid", c.GetString("client_token")).Str("meeting", c.Param("id")).Msg("ws meeting endpoint hit")
		ctrl.HandleMeeting(c)
	})

	return r
}
