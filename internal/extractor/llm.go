package extractor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/doclab/labrepair-cli/internal/model"
	"github.com/doclab/labrepair-cli/internal/resilience"
	"github.com/doclab/labrepair-cli/pkg/anthropic"
)

const structuringPrompt = `Ты эксперт по медицинским анализам. Извлеки из текста
лабораторного отчёта структурированные данные и верни JSON-массив объектов с
полями: test_name, result, reference_values, units, test_system, equipment,
test_date.

Правила:
- НЕ используй символы "**" или "*" вместо реальных значений
- Если результат "отрицательно" или "положительно", используй эти слова
- Референсные значения извлекай как есть ("0-10", "< 5")
- Сохраняй оригинальные названия анализов, включая аббревиатуры
- Даты приводи к формату ГГГГ-ММ-ДД
- Тест-системы: Abbott, Roche, Siemens. Оборудование: Alinity i, Cobas e602
- Верни ТОЛЬКО JSON-массив, без пояснений`

// structuredTest mirrors the JSON shape the model is asked to produce.
type structuredTest struct {
	TestName        string `json:"test_name"`
	Result          string `json:"result"`
	ReferenceValues string `json:"reference_values"`
	Units           string `json:"units"`
	TestSystem      string `json:"test_system"`
	Equipment       string `json:"equipment"`
	TestDate        string `json:"test_date"`
}

// LLMStructurer extracts test records by asking a model to structure the
// document. Calls go through a rate limiter, retry with backoff, and a
// circuit breaker; on any failure the deterministic parser takes over.
type LLMStructurer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
	fallback  *Parser
}

// LLMOptions configures the LLM structuring path.
type LLMOptions struct {
	Model             string
	MaxTokens         int64
	RequestsPerMinute int
	Retry             resilience.RetryConfig
	Breaker           resilience.CircuitBreakerConfig
}

// NewLLMStructurer builds a structurer over the given client with the
// parser as its degradation path.
func NewLLMStructurer(client anthropic.Client, fallback *Parser, opts LLMOptions) *LLMStructurer {
	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &LLMStructurer{
		client:    client,
		model:     opts.Model,
		maxTokens: maxTokens,
		limiter:   rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		retry:     opts.Retry,
		breaker:   resilience.NewCircuitBreaker(opts.Breaker),
		fallback:  fallback,
	}
}

// Structure asks the model to structure content and falls back to the
// deterministic parser when the call or its output is unusable.
func (s *LLMStructurer) Structure(ctx context.Context, content string) ([]model.TestRecord, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extractor: rate limit wait")
	}

	resp, err := resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return s.client.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     s.model,
				MaxTokens: s.maxTokens,
				System:    anthropic.BuildCachedSystemBlocks(structuringPrompt),
				Messages: []anthropic.Message{
					{Role: "user", Content: content},
				},
			})
		})
	})
	if err != nil {
		zap.L().Warn("model structuring failed, using parser",
			zap.Error(err),
		)
		return s.fallback.Structure(content), nil
	}

	resp.Usage.LogCost(s.model, "structure")

	recs, err := decodeStructured(resp.Text())
	if err != nil {
		zap.L().Warn("unparseable model output, using parser",
			zap.Error(err),
		)
		return s.fallback.Structure(content), nil
	}
	return recs, nil
}

// decodeStructured pulls the JSON array out of the model output. Models
// sometimes wrap the array in prose or code fences despite instructions.
func decodeStructured(text string) ([]model.TestRecord, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, eris.New("extractor: no JSON array in model output")
	}

	var tests []structuredTest
	if err := json.Unmarshal([]byte(text[start:end+1]), &tests); err != nil {
		return nil, eris.Wrap(err, "extractor: decode model output")
	}

	recs := make([]model.TestRecord, 0, len(tests))
	for _, t := range tests {
		recs = append(recs, model.TestRecord{
			TestName:        t.TestName,
			Result:          t.Result,
			ReferenceValues: t.ReferenceValues,
			Units:           t.Units,
			TestSystem:      t.TestSystem,
			Equipment:       t.Equipment,
			TestDate:        normalizeDate(t.TestDate),
		})
	}
	return recs, nil
}
