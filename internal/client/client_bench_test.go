package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// BenchmarkClient_BuildRequest benchmarks HTTP request construction.
func BenchmarkClient_BuildRequest(b *testing.B) {
	client, _ := NewOpenWeatherClient("test-api-key", "https://api.openweathermap.org/data/2.5/forecast", 2*time.Second)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = client.buildRequest(ctx, "seattle", 0)
	}
}

// BenchmarkAggregateDaily benchmarks folding a full 40-entry response into days.
func BenchmarkAggregateDaily(b *testing.B) {
	raw, _ := json.Marshal(sampleForecast())
	var resp forecastResponse
	_ = json.Unmarshal(raw, &resp)
	for len(resp.List) < 40 {
		next := resp.List[len(resp.List)-1]
		next.Dt += 3 * 3600
		resp.List = append(resp.List, next)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = aggregateDaily(resp, "seattle", time.UTC)
	}
}

// BenchmarkClient_CalculateBackoff benchmarks backoff delay calculation.
func BenchmarkClient_CalculateBackoff(b *testing.B) {
	client := &OpenWeatherClient{retryBaseDelay: 100 * time.Millisecond, retryMaxDelay: 2 * time.Second}
	for i := 0; i < b.N; i++ {
		_ = client.calculateBackoff(i%5 + 1)
	}
}
