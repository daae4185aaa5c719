// Package llm turns free-text descriptions into item field bags using a generative model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pid-editor/backend/internal/cache"
	"github.com/pid-editor/backend/internal/codegen"
	"github.com/pid-editor/backend/internal/metrics"
	"github.com/pid-editor/backend/internal/models"
	"github.com/pid-editor/backend/internal/parser"
	"go.uber.org/zap"
)

// UnusableReplyMessage is returned to the user when the model reply cannot be decoded.
const UnusableReplyMessage = "I could not turn that into an item. Try naming the category, unit and sequence."

// ErrDisabled is returned when natural-language parsing is not configured.
var ErrDisabled = errors.New("natural-language parsing is disabled")

// ItemParser parses a free-text request into a ParseResult.
type ItemParser interface {
	ParseItem(ctx context.Context, text string) (*models.ParseResult, error)
}

// Generator produces a raw model reply for a system instruction and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// Parser implements ItemParser over a Generator, caching decodable replies by prompt.
type Parser struct {
	gen    Generator
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewParser creates a Parser. A nil cache disables reply caching.
func NewParser(gen Generator, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Parser {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{gen: gen, cache: c, ttl: ttl, logger: logger}
}

// ParseItem sends text to the model. Generator failures are returned as errors; replies
// that cannot be decoded become a chat message.
func (p *Parser) ParseItem(ctx context.Context, text string) (*models.ParseResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty request")
	}

	key := cache.Key("parse", p.gen.Model(), text)
	if data, ok, err := p.cache.Get(ctx, key); err != nil {
		p.logger.Warn("parse cache read failed", zap.Error(err))
	} else if ok {
		if res, err := parser.ParseItemReply(data); err == nil {
			metrics.LLMRequests.WithLabelValues("cached").Inc()
			return res, nil
		}
	}

	reply, err := p.gen.Generate(ctx, SystemPrompt(), text)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("generating reply: %w", err)
	}

	res, err := parser.ParseItemReply([]byte(reply))
	if err != nil {
		metrics.LLMRequests.WithLabelValues("unusable").Inc()
		p.logger.Info("unusable model reply", zap.Error(err), zap.Int("length", len(reply)))
		return &models.ParseResult{Message: UnusableReplyMessage}, nil
	}

	if err := p.cache.Set(ctx, key, []byte(reply), p.ttl); err != nil {
		p.logger.Warn("parse cache write failed", zap.Error(err))
	}
	if res.IsItem() {
		metrics.LLMRequests.WithLabelValues("item").Inc()
	} else {
		metrics.LLMRequests.WithLabelValues("message").Inc()
	}
	return res, nil
}

// SystemPrompt describes the reply format and the known catalogues to the model.
func SystemPrompt() string {
	var b strings.Builder
	b.WriteString("You convert requests to add items to a piping and instrumentation diagram into JSON.\n")
	b.WriteString("Reply with one JSON object and nothing else.\n")
	b.WriteString("If the request describes an item, reply {\"item\": {...}, \"explanation\": \"...\"} where item may carry ")
	b.WriteString("Name, Category, Type, Unit, SubUnit, Sequence (integer), Number (how many copies, default 1), ")
	b.WriteString("SensorType and Connections (list of item names or codes).\n")
	b.WriteString("Otherwise reply {\"message\": \"...\"} with a short answer.\n")
	b.WriteString("Categories: ")
	b.WriteString(strings.Join(codegen.Categories(), ", "))
	b.WriteString(".\nSensor types: ")
	b.WriteString(strings.Join(codegen.SensorTypes(), ", "))
	b.WriteString(".\n")
	return b.String()
}

// Disabled is the ItemParser used when no model is configured.
type Disabled struct{}

// ParseItem always fails with ErrDisabled.
func (Disabled) ParseItem(ctx context.Context, text string) (*models.ParseResult, error) {
	return nil, ErrDisabled
}

var (
	_ ItemParser = (*Parser)(nil)
	_ ItemParser = Disabled{}
)
