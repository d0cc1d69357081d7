package eligibility

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Result 资质核验结论。AuthorityStatus 是给人看的摘要串。
type Result struct {
	MCNumber        string `json:"mc_number"`
	Eligible        bool   `json:"eligible"`
	AuthorityStatus string `json:"authority_status,omitempty"`
	SafetyRating    string `json:"safety_rating,omitempty"`
	Source          string `json:"source"`
	DOTNumber       string `json:"dot_number,omitempty"`
	LegalName       string `json:"legal_name,omitempty"`
}

// Verifier 承运方资质核验接口；协商开始前调用。
type Verifier interface {
	Verify(ctx context.Context, mcNumber string) (Result, error)
}

// Client 访问 FMCSA QCMobile 服务的简化客户端；
// HTTPClient 可注入 httptest，默认不带签名只带 webKey。
type Client struct {
	BaseURL    string
	WebKey     string
	HTTPClient *http.Client
	// Limiter 非空时每个出站请求先取令牌，保护 webKey 配额。
	Limiter RateLimiter
	// Mock 为真（或 WebKey 为空）时返回模拟的可用结论，便于离线联调。
	Mock bool
}

// NewDefaultHTTPClient 带合理超时的默认客户端。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// Verify 解析 MC（docket）→ DOT，再读 authority 与 OOS 记录。
// 传输层失败返回 error，由调用层折算为"暂不可核验"。
func (c *Client) Verify(ctx context.Context, mcNumber string) (Result, error) {
	if c.Mock || c.WebKey == "" {
		return Result{
			MCNumber:        mcNumber,
			Eligible:        true,
			AuthorityStatus: "MOCK: Common:ACTIVE; Contract:N/A; Broker:N/A",
			Source:          "mock",
		}, nil
	}
	if c.HTTPClient == nil {
		return Result{}, fmt.Errorf("http client not set")
	}

	mc := normalizeMC(mcNumber)
	out := Result{MCNumber: mcNumber, Source: "fmcsa"}

	// 1) docket -> DOT，404 或空 content 时退回 search 端点。
	docket, err := c.getJSON(ctx, "/carriers/docket-number/"+url.PathEscape(mc))
	if err != nil || emptyContent(docket) {
		docket, err = c.getJSON(ctx, "/carriers/search/docket-number/"+url.PathEscape(mc))
		if err != nil {
			return out, err
		}
	}
	content := contentOf(docket)
	dot := findDOT(content)
	if dot == "" {
		out.AuthorityStatus = "DOT NOT FOUND FROM DOCKET"
		return out, nil
	}
	out.DOTNumber = dot

	carrier := coerceMapping(content)
	if inner, ok := carrier["carrier"].(map[string]interface{}); ok {
		carrier = inner
	}
	if name, ok := carrier["legalName"].(string); ok {
		out.LegalName = name
	}
	oosDatePresent := false
	if v, ok := carrier["oosDate"]; ok && v != nil && v != "" {
		oosDatePresent = true
	}

	// 2) authority
	authority, err := c.getJSON(ctx, "/carriers/"+dot+"/authority")
	if err != nil {
		return out, err
	}
	common, contract, broker := extractStatuses(contentOf(authority))
	if common == "" {
		common, _ = carrier["commonAuthorityStatus"].(string)
	}
	if contract == "" {
		contract, _ = carrier["contractAuthorityStatus"].(string)
	}
	if broker == "" {
		broker, _ = carrier["brokerAuthorityStatus"].(string)
	}
	anyActive := statusActive(common) || statusActive(contract) || statusActive(broker)
	out.AuthorityStatus = fmt.Sprintf("Common:%s; Contract:%s; Broker:%s",
		statusLabel(common), statusLabel(contract), statusLabel(broker))

	// 3) out-of-service；失败不阻塞结论。
	oosActive := false
	if oos, err := c.getJSON(ctx, "/carriers/"+dot+"/oos"); err == nil {
		oosActive = hasOOS(contentOf(oos))
	}

	out.Eligible = anyActive && !oosActive && !oosDatePresent
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string) (interface{}, error) {
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
	u := c.BaseURL + path + "?webKey=" + url.QueryEscape(c.WebKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "rate-desk/1.0")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fmcsa status %d for %s", resp.StatusCode, path)
	}
	var payload interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode fmcsa payload: %w", err)
	}
	return payload, nil
}
