package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http
//
// API Gateway buffers responses, so agent streams arrive as one body of
// SSE frames. Deploy cmd/api where incremental delivery matters.

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"stackdocs-backend/internal/bootstrap"
	"stackdocs-backend/internal/shared/config"
	"stackdocs-backend/internal/shared/server/respond"
	"stackdocs-backend/internal/shared/telemetry"
)

var (
	initOnce  sync.Once
	initErr   error
	ginLambda *ginadapter.GinLambdaV2
)

func initApp() {
	cfg := config.Load()
	if cfg.QueueBackend == "" || cfg.QueueBackend == "memory" {
		// An in-process queue dies with the invocation; stages would be lost.
		telemetry.Warn("lambda.memory_queue", map[string]any{"hint": "set QUEUE_BACKEND=sqs"})
	}
	gin.SetMode(gin.ReleaseMode)
	app, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	ginLambda = ginadapter.NewV2(app.Router)
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{
			"error":      initErr.Error(),
			"route_key":  req.RouteKey,
			"request_id": req.RequestContext.RequestID,
		})
		return bootstrapFailure(), nil
	}
	return ginLambda.ProxyWithContext(ctx, req)
}

// bootstrapFailure answers with the regular error envelope so clients see
// a 503 rather than an API Gateway integration error.
func bootstrapFailure() events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(respond.ErrorResponse{Error: respond.ErrorBody{
		Code:    "unavailable",
		Message: "service is starting up; retry shortly",
	}})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Retry-After":  "5",
		},
	}
}

func main() {
	lambda.Start(handler)
}
