package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/langchou/fleetcare/internal/models"
)

// ErrUnavailable 外部服务不可用（未配置、超时、5xx）
var ErrUnavailable = errors.New("external service unavailable")

// Client 车辆读数 / ODP 历史保养 API 客户端
type Client struct {
	httpClient *http.Client
	host       string
	token      string
}

// NewClient 创建客户端，host 为空时所有调用返回 ErrUnavailable
func NewClient(host, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		host:  host,
		token: token,
	}
}

// IsConfigured 是否配置了服务地址
func (c *Client) IsConfigured() bool {
	return c.host != ""
}

// apiResponse 通用 API 响应结构
type apiResponse struct {
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error,omitempty"`
}

// doRequest 执行带认证的 GET 请求，返回 response 字段；404 返回 (nil, nil)
func (c *Client) doRequest(ctx context.Context, path string) (json.RawMessage, error) {
	if !c.IsConfigured() {
		return nil, ErrUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status=%d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("request %s failed: status=%d body=%s", path, resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != "" {
		return nil, fmt.Errorf("api error: %s", apiResp.Error)
	}
	return apiResp.Response, nil
}

// metricsPayload 读数接口返回
type metricsPayload struct {
	Odometer  *float64   `json:"odometer"`
	HourMeter *float64   `json:"hour_meter"`
	AsOf      *time.Time `json:"as_of"`
}

// GetMetrics 获取车辆当前读数，车辆不存在时返回空读数
func (c *Client) GetMetrics(ctx context.Context, chassisNumber string) (*models.VehicleMetrics, error) {
	raw, err := c.doRequest(ctx, "/api/v1/vehicles/"+url.PathEscape(chassisNumber)+"/metrics")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return &models.VehicleMetrics{}, nil
	}

	var payload metricsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return &models.VehicleMetrics{
		OdometerKm: payload.Odometer,
		HourMeter:  payload.HourMeter,
		AsOf:       payload.AsOf,
	}, nil
}

// revisionPayload 历史保养接口返回
type revisionPayload struct {
	Mileage      *float64  `json:"mileage"`
	HourMeter    *float64  `json:"hour_meter"`
	RevisionDate time.Time `json:"revision_date"`
	ServiceOrder string    `json:"service_order"`
}

// GetRevisions 获取车辆历史保养记录
func (c *Client) GetRevisions(ctx context.Context, chassisNumber string) ([]models.Revision, error) {
	raw, err := c.doRequest(ctx, "/api/v1/revisions?chassis="+url.QueryEscape(chassisNumber))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var payload []revisionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode revisions: %w", err)
	}

	revisions := make([]models.Revision, 0, len(payload))
	for _, p := range payload {
		revisions = append(revisions, models.Revision{
			Mileage:      p.Mileage,
			HourMeter:    p.HourMeter,
			RevisionDate: p.RevisionDate,
			ServiceOrder: p.ServiceOrder,
		})
	}
	return revisions, nil
}
