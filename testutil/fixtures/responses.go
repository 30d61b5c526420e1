// =============================================================================
// 📦 测试数据工厂 - 外部 API 与 LLM 响应
// =============================================================================
// 提供天气、景点、汇率接口的样例负载，以及组合这些负载的 httptest 服务
// =============================================================================
package fixtures

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// =============================================================================
// 🌦️ 外部 API 负载
// =============================================================================

// ForecastJSON 返回 OpenWeatherMap 风格的预报，含 6 个时段
const ForecastJSON = `{
  "cod": "200",
  "list": [
    {"dt_txt": "2025-07-15 09:00:00", "main": {"temp": 21.5}, "weather": [{"description": "clear sky"}]},
    {"dt_txt": "2025-07-15 12:00:00", "main": {"temp": 25.1}, "weather": [{"description": "few clouds"}]},
    {"dt_txt": "2025-07-15 15:00:00", "main": {"temp": 27}, "weather": [{"description": "few clouds"}]},
    {"dt_txt": "2025-07-15 18:00:00", "main": {"temp": 24.3}, "weather": [{"description": "light rain"}]},
    {"dt_txt": "2025-07-15 21:00:00", "main": {"temp": 19.8}, "weather": [{"description": "overcast clouds"}]},
    {"dt_txt": "2025-07-16 00:00:00", "main": {"temp": 17.2}, "weather": [{"description": "clear sky"}]}
  ]
}`

// PlacesJSON 返回 Google Places 风格的文本搜索结果
const PlacesJSON = `{
  "status": "OK",
  "results": [
    {"name": "Eiffel Tower"},
    {"name": "Louvre Museum"},
    {"name": "Notre-Dame Cathedral"},
    {"name": "Louvre Museum"},
    {"name": "Arc de Triomphe"},
    {"name": "Sacré-Cœur"},
    {"name": "Musée d'Orsay"}
  ]
}`

// ExchangeJSON 返回 exchangerate-api 风格的汇率表（基准 USD）
const ExchangeJSON = `{
  "result": "success",
  "base_code": "USD",
  "conversion_rates": {"USD": 1, "EUR": 0.92, "INR": 83.5}
}`

// ParisAttractions 为 PlacesJSON 去重截断后的前 5 个景点
var ParisAttractions = []string{
	"Eiffel Tower",
	"Louvre Museum",
	"Notre-Dame Cathedral",
	"Arc de Triomphe",
	"Sacré-Cœur",
}

// =============================================================================
// 🤖 LLM 回复
// =============================================================================

// TripInfoReply 是结构化抽取的模型回复，带推理块与代码围栏
const TripInfoReply = "<think>The user wants Paris in mid July.</think>\n```json\n" +
	`{"city": "Paris", "start_date": "2025-07-15", "end_date": "2025-07-20", "currency": "usd"}` +
	"\n```"

// SummaryReply 是带推理块的自由文本回复
const SummaryReply = "<think>Summarise weather, sights and cost.</think>\n" +
	"Paris in mid July promises warm days, iconic sights and a comfortable budget."

// =============================================================================
// 🧪 组合 API 服务
// =============================================================================

// APIServer 在同一个 httptest.Server 上模拟三个数据源
type APIServer struct {
	*httptest.Server

	WeatherHits  atomic.Int32
	PlacesHits   atomic.Int32
	ExchangeHits atomic.Int32
	ChatHits     atomic.Int32

	// 置为非零时对应接口返回该状态码
	WeatherStatus  atomic.Int32
	PlacesStatus   atomic.Int32
	ExchangeStatus atomic.Int32

	mu          sync.Mutex
	chatReplies []string
}

// 路径
const (
	WeatherPath  = "/weather"
	PlacesPath   = "/places"
	ExchangePath = "/exchange"
	// ChatPath 是 OpenAI 兼容聊天接口的前缀，provider 的 base_url 指向 URL(ChatPath)
	ChatPath     = "/llm"
)

// NewAPIServer 启动服务并在测试结束时关闭
func NewAPIServer(t testing.TB) *APIServer {
	s := &APIServer{}
	mux := http.NewServeMux()
	mux.HandleFunc(WeatherPath, func(w http.ResponseWriter, r *http.Request) {
		s.WeatherHits.Add(1)
		write(w, int(s.WeatherStatus.Load()), ForecastJSON)
	})
	mux.HandleFunc(PlacesPath, func(w http.ResponseWriter, r *http.Request) {
		s.PlacesHits.Add(1)
		write(w, int(s.PlacesStatus.Load()), PlacesJSON)
	})
	mux.HandleFunc(ExchangePath+"/", func(w http.ResponseWriter, r *http.Request) {
		s.ExchangeHits.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/latest/USD") {
			write(w, 0, `{"result": "error", "error-type": "unsupported-code"}`)
			return
		}
		write(w, int(s.ExchangeStatus.Load()), ExchangeJSON)
	})
	mux.HandleFunc(ChatPath+"/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/models") {
			write(w, 0, `{"object": "list", "data": [{"id": "fixture-model", "object": "model"}]}`)
			return
		}
		s.ChatHits.Add(1)
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"id":    fmt.Sprintf("chat-%d", s.ChatHits.Load()),
			"model": "fixture-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": s.nextChatReply()},
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
		write(w, 0, string(body))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// URL 返回某个数据源的完整地址
func (s *APIServer) URL(path string) string {
	return s.Server.URL + path
}

// QueueChat 设置聊天接口依次返回的内容，耗尽后重复最后一条
func (s *APIServer) QueueChat(replies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatReplies = append([]string(nil), replies...)
}

func (s *APIServer) nextChatReply() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chatReplies) == 0 {
		return "ok"
	}
	reply := s.chatReplies[0]
	if len(s.chatReplies) > 1 {
		s.chatReplies = s.chatReplies[1:]
	}
	return reply
}

func write(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"message": "%s"}`, http.StatusText(status))
		return
	}
	_, _ = w.Write([]byte(body))
}
