package test

import (
	"context"
	"fmt"

	agentAuth "github.com/MrEthical07/agentAuth"
	"github.com/MrEthical07/agentAuth/activity"
	"github.com/MrEthical07/agentAuth/oauthflow"
	"github.com/MrEthical07/agentAuth/storage"
	"github.com/MrEthical07/agentAuth/tokenservice"
	"github.com/redis/go-redis/v9"
)

// ExampleNew demonstrates construction with production-style dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	tokens, _ := tokenservice.NewClient("https://tokens.example.com",
		tokenservice.WithAppCredentials("https://login.example.com/oauth2/token", "bot-id", "bot-secret"))

	graph := agentAuth.AuthHandler{ID: "graph", ConnectionName: "graph-conn"}
	auth, _ := agentAuth.New().
		WithStorage(storage.NewRedisStorage(rdb)).
		WithHandler(graph, oauthflow.New(tokens, graph)).
		Build()
	_ = auth
}

// ExampleAuthorization_ContinueFlow shows how a continuation outcome is read.
func ExampleAuthorization_ContinueFlow() {
	var auth *agentAuth.Authorization
	var tc activity.TurnContext
	resp, err := auth.ContinueFlow(context.Background(), tc, "")
	switch {
	case err != nil:
		_ = err
	case resp.Completed():
		_ = resp.Token
	case resp.Retryable:
		fmt.Println("attempts left:", resp.AttemptsRemaining)
	}
}

// ExampleAuthorization_MetricsSnapshot shows how to read in-process counters.
func ExampleAuthorization_MetricsSnapshot() {
	var auth *agentAuth.Authorization
	snapshot := auth.MetricsSnapshot()
	_ = snapshot.Counters[agentAuth.MetricFlowBegin]
}
