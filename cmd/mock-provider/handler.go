package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/gitoutofhere7/japan-post-demo/internal/common/errors"
	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
	"github.com/gitoutofhere7/japan-post-demo/internal/provider"
	"github.com/gitoutofhere7/japan-post-demo/pkg/sse"
)

// ScenarioHeader selects a scenario per request, overriding the default.
const ScenarioHeader = "X-Mock-Scenario"

type server struct {
	scenarios       map[string]Scenario
	defaultScenario string
	apiKey          string
	delay           time.Duration
	logger          *logger.Logger
}

func newRouter(s *server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST(provider.RunPath, s.httpRun)
	router.GET("/scenarios", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"scenarios": scenarioNames(s.scenarios), "default": s.defaultScenario})
	})
	return router
}

func (s *server) httpRun(c *gin.Context) {
	if s.apiKey != "" && c.GetHeader("X-API-Key") != s.apiKey {
		apperrors.Abort(c, apperrors.Unauthorized("invalid API key"))
		return
	}

	var req provider.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, apperrors.BadRequest("invalid run request"))
		return
	}
	if req.URL == "" || req.Goal == "" {
		apperrors.Abort(c, apperrors.BadRequest("url and goal are required"))
		return
	}

	name := c.GetHeader(ScenarioHeader)
	if name == "" {
		name = c.Query("scenario")
	}
	if name == "" {
		name = s.defaultScenario
	}
	scenario, ok := s.scenarios[name]
	if !ok {
		apperrors.Abort(c, apperrors.BadRequest("unknown scenario: "+name))
		return
	}

	log := s.logger.WithFields(zap.String("scenario", name), zap.String("url", req.URL))
	if scenario.Status != 0 && scenario.Status != http.StatusOK {
		log.Info("Answering with scripted error", zap.Int("status", scenario.Status))
		c.String(scenario.Status, scenario.Body)
		return
	}

	sse.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for i, frame := range scenario.Frames {
		delay := s.delay
		if frame.DelayMS > 0 {
			delay = time.Duration(frame.DelayMS) * time.Millisecond
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				log.Info("Client went away", zap.Int("frames_sent", i))
				return
			case <-time.After(delay):
			}
		}

		payload, err := frame.payload()
		if err != nil {
			log.Error("Failed to encode frame", zap.Int("frame", i), zap.Error(err))
			return
		}
		if err := sse.Encode(c.Writer, payload); err != nil {
			log.Info("Write failed", zap.Int("frame", i), zap.Error(err))
			return
		}
		c.Writer.Flush()
	}
	log.Info("Scenario finished", zap.Int("frames", len(scenario.Frames)))
}
