package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
	"github.com/gitoutofhere7/japan-post-demo/internal/demo"
	"github.com/gitoutofhere7/japan-post-demo/internal/player"
	"github.com/gitoutofhere7/japan-post-demo/internal/provider"
	"github.com/gitoutofhere7/japan-post-demo/internal/relay"
	"github.com/gitoutofhere7/japan-post-demo/internal/relay/handlers"
	"github.com/gitoutofhere7/japan-post-demo/pkg/protocol"
)

type countingRenderer struct {
	statuses []string
	steps    []string
}

func (r *countingRenderer) Status(m string)                   { r.statuses = append(r.statuses, m) }
func (r *countingRenderer) Progress(int)                      {}
func (r *countingRenderer) Step(id protocol.StepID, d string) { r.steps = append(r.steps, id.String()+". "+d) }
func (r *countingRenderer) LiveView(string)                   {}
func (r *countingRenderer) Screenshot(string)                 {}

func startRelay(t *testing.T, scenario string) *httptest.Server {
	t.Helper()
	scenarios, err := loadScenarios("")
	if err != nil {
		t.Fatal(err)
	}
	upstream := httptest.NewServer(newRouter(&server{
		scenarios:       scenarios,
		defaultScenario: scenario,
		logger:          logger.NewNop(),
	}))
	t.Cleanup(upstream.Close)

	log := logger.NewNop()
	client := provider.NewClient(upstream.URL, "sk-e2e", time.Second, log)
	orch := relay.NewOrchestrator(demo.NewRandom(nil, nil), client, nil, relay.Options{
		TargetURL:      "https://example.com/form",
		Mode:           "stealth",
		TimeoutMS:      1000,
		AbandonAsError: true,
	}, log)

	router := gin.New()
	handlers.RegisterRoutes(router, orch, relay.NewLimiter(0, 4), nil, nil, log)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestEndToEnd(t *testing.T) {
	tests := []struct {
		scenario   string
		outcome    player.Outcome
		lastStatus string
	}{
		{scenario: "success", outcome: player.OutcomeCompleted, lastStatus: player.MsgComplete},
		{scenario: "legacy", outcome: player.OutcomeCompleted, lastStatus: player.MsgComplete},
		{scenario: "failure", outcome: player.OutcomeFailed, lastStatus: "✗ Error: Tracking number was rejected"},
		{scenario: "error", outcome: player.OutcomeFailed, lastStatus: "✗ Error: Browser session crashed"},
		{scenario: "truncated", outcome: player.OutcomeFailed, lastStatus: "✗ Error: stream ended unexpectedly"},
		{scenario: "quota", outcome: player.OutcomeFailed, lastStatus: `✗ Error: TinyFish API error: 500 Internal Server Error - "quota exceeded"`},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			srv := startRelay(t, tt.scenario)
			r := &countingRenderer{}

			res := player.New(srv.URL+"/api/run-demo", r,
				player.WithLogger(logger.NewNop()),
				player.WithCeiling(5*time.Second)).Play(context.Background())

			assert.Equal(t, tt.outcome, res.Outcome)
			if assert.NotEmpty(t, r.statuses) {
				assert.Equal(t, tt.lastStatus, r.statuses[len(r.statuses)-1])
			}
			assert.Contains(t, r.steps, "1. Navigating to Japan Post redelivery form")
		})
	}
}
