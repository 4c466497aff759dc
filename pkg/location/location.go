package location

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
)

// Fix 一次定位结果
type Fix struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"` // 单位米，GeoIP 为城市级估计
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Provider 位置协作方：设备上报优先，GeoIP 兜底，最后退回配置的默认坐标
type Provider struct {
	mu       sync.RWMutex
	lastByID map[string]Fix // ownerID -> 最近一次设备上报

	geoip       *geoip2.Reader
	fallbackLat float64
	fallbackLng float64
}

func NewProvider(geoipPath string, fallbackLat, fallbackLng float64) *Provider {
	p := &Provider{
		lastByID:    make(map[string]Fix),
		fallbackLat: fallbackLat,
		fallbackLng: fallbackLng,
	}
	if geoipPath != "" {
		// 打不开就按没有处理，定位兜底而已
		if r, err := geoip2.Open(geoipPath); err == nil {
			p.geoip = r
		}
	}
	return p
}

// Report 设备上报位置
func (p *Provider) Report(ownerID string, fix Fix) {
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now()
	}
	p.mu.Lock()
	p.lastByID[ownerID] = fix
	p.mu.Unlock()
}

// Current 获取当前最优位置；clientIP 可为空
// 顺序：最近设备上报 → GeoIP(clientIP) → 配置的默认坐标
func (p *Provider) Current(ownerID, clientIP string) Fix {
	p.mu.RLock()
	fix, ok := p.lastByID[ownerID]
	p.mu.RUnlock()
	if ok {
		return fix
	}

	if p.geoip != nil && clientIP != "" {
		if ip := net.ParseIP(clientIP); ip != nil {
			if city, err := p.geoip.City(ip); err == nil && city.Location.Latitude != 0 {
				return Fix{
					Lat:       city.Location.Latitude,
					Lng:       city.Location.Longitude,
					Accuracy:  float64(city.Location.AccuracyRadius) * 1000,
					Address:   city.City.Names["en"],
					Timestamp: time.Now(),
				}
			}
		}
	}

	return Fix{Lat: p.fallbackLat, Lng: p.fallbackLng, Accuracy: -1, Timestamp: time.Now()}
}

// MapLink 生成通知中附带的位置链接
func MapLink(f Fix) string {
	return fmt.Sprintf("https://maps.google.com/?q=%.6f,%.6f", f.Lat, f.Lng)
}

// Close 释放 GeoIP 句柄
func (p *Provider) Close() error {
	if p.geoip != nil {
		return p.geoip.Close()
	}
	return nil
}
