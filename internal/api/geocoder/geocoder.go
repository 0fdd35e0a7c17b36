package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL Nominatim 服务地址
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

const maxCacheSize = 10000

// Client 逆地理编码客户端 (Nominatim / OpenStreetMap)
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	interval   time.Duration

	// 缓存：避免重复请求相同坐标
	cache   map[string]string
	cacheMu sync.RWMutex

	// 请求限流（默认每秒最多 1 次）
	lastRequest time.Time
	rateMu      sync.Mutex
}

// NewClient 创建逆地理编码客户端
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:   logger,
		interval: time.Second,
		cache:    make(map[string]string),
	}
}

// nominatimResponse Nominatim 逆地理编码响应
type nominatimResponse struct {
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
}

type nominatimAddress struct {
	HouseNumber string `json:"house_number"`
	Road        string `json:"road"`
	Suburb      string `json:"suburb"`
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
}

// label 简短地址：门牌 + 道路 + 城市，缺失时退回完整地址
func (r nominatimResponse) label() string {
	city := r.Address.City
	if city == "" {
		city = r.Address.Town
	}
	if city == "" {
		city = r.Address.Village
	}

	street := strings.TrimSpace(r.Address.Road + " " + r.Address.HouseNumber)
	var parts []string
	if street != "" {
		parts = append(parts, street)
	}
	if city != "" {
		parts = append(parts, city)
	}
	if len(parts) == 0 {
		return r.DisplayName
	}
	return strings.Join(parts, ", ")
}

// ReverseGeocode 根据经纬度获取地址描述
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	// 精确到小数点后4位，约11米精度
	cacheKey := fmt.Sprintf("%.4f,%.4f", lat, lng)

	c.cacheMu.RLock()
	if label, ok := c.cache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		return label, nil
	}
	c.cacheMu.RUnlock()

	if err := c.wait(ctx); err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("lat", fmt.Sprintf("%.6f", lat))
	query.Set("lon", fmt.Sprintf("%.6f", lng))
	query.Set("format", "json")
	apiURL := c.baseURL + "/reverse?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	// Nominatim 要求设置 User-Agent
	req.Header.Set("User-Agent", "ovmsgazer/1.0 (OVMS vehicle logger)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nominatim api returned status %d", resp.StatusCode)
	}

	var result nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	label := result.label()
	if label == "" {
		return "", fmt.Errorf("no address for %s", cacheKey)
	}

	c.cacheMu.Lock()
	if len(c.cache) >= maxCacheSize {
		c.cache = make(map[string]string)
	}
	c.cache[cacheKey] = label
	c.cacheMu.Unlock()

	c.logger.Debug("Geocoded via Nominatim",
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
		zap.String("address", label))

	return label, nil
}

// wait 请求限流
func (c *Client) wait(ctx context.Context) error {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	if elapsed := time.Since(c.lastRequest); elapsed < c.interval {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.interval - elapsed):
		}
	}
	c.lastRequest = time.Now()
	return nil
}

// CacheSize 获取缓存大小
func (c *Client) CacheSize() int {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return len(c.cache)
}
