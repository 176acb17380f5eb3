// Package assistant is the conversational shopping helper. Conversation
// history is owned by the client: it arrives by value with every request,
// is bounded, and is never stored server-side. The only shared state is
// the cached inventory digest embedded into the system prompt.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"smartshop/internal/cache"
	"smartshop/internal/catalog"
	"smartshop/internal/logging"
	"smartshop/internal/oracle"
)

// Turn is one message in the conversation transcript.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	maxHistory       = 30
	transcriptWindow = 20
	inventoryWindow  = 120
	inventoryKey     = "assistant:inventory:v1"

	unconfiguredReply = "The shopping assistant is not configured on the server."
	unavailableReply  = "The shopping assistant is temporarily unavailable. Please try again shortly."
	emptyReply        = "Sorry, I couldn't generate a reply."
)

// Service answers chat messages grounded in the current inventory.
type Service struct {
	catalogs     catalog.Reader
	store        cache.Cache
	client       oracle.Client
	inventoryTTL time.Duration
}

func NewService(catalogs catalog.Reader, store cache.Cache, client oracle.Client, inventoryTTL time.Duration) *Service {
	return &Service{catalogs: catalogs, store: store, client: client, inventoryTTL: inventoryTTL}
}

// Chat answers one message. The returned history is the caller's history
// plus this exchange, trimmed to the most recent turns; callers send it
// back with their next request. Oracle failures produce a stock reply, not
// an error.
func (s *Service) Chat(ctx context.Context, message string, history []Turn) (string, []Turn, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", nil, fmt.Errorf("message is required")
	}

	reply := s.generateReply(ctx, message, history)

	next := append(append([]Turn(nil), history...),
		Turn{Role: RoleUser, Content: message},
		Turn{Role: RoleAssistant, Content: reply},
	)
	if len(next) > maxHistory {
		next = next[len(next)-maxHistory:]
	}
	return reply, next, nil
}

func (s *Service) generateReply(ctx context.Context, message string, history []Turn) string {
	if !s.client.Configured() {
		return unconfiguredReply
	}

	system, err := s.systemMessage(ctx)
	if err != nil {
		logging.AssistantDebug("Inventory digest failed: %v", err)
		return unavailableReply
	}

	window := history
	if len(window) > transcriptWindow {
		window = window[len(window)-transcriptWindow:]
	}
	var transcript []string
	for _, t := range window {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		prefix := "USER"
		if strings.EqualFold(t.Role, RoleAssistant) {
			prefix = "ASSISTANT"
		}
		transcript = append(transcript, prefix+": "+content)
	}
	transcript = append(transcript, "USER: "+message)

	prompt := fmt.Sprintf("SYSTEM:\n%s\n\nCONVERSATION SO FAR:\n%s\n\nASSISTANT:",
		system, strings.Join(transcript, "\n"))

	text, err := s.client.Complete(ctx, prompt)
	if err != nil {
		logging.Assistant("Reply generation failed: %v", err)
		return unavailableReply
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return emptyReply
	}
	return text
}

// inventoryItem is the compact product shape inside the system prompt.
type inventoryItem struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	Price            float64 `json:"price"`
	ShortDescription string  `json:"ai_short_description"`
	ReviewSummary    string  `json:"ai_review_summary"`
}

// systemMessage builds the grounding prompt around a cached inventory
// digest. The digest is shared across conversations and refreshed by TTL;
// a few minutes of staleness is acceptable here.
func (s *Service) systemMessage(ctx context.Context) (string, error) {
	var digest string
	if !cache.GetJSON(s.store, inventoryKey, &digest) {
		items, err := s.catalogs.ListAll(ctx)
		if err != nil {
			return "", fmt.Errorf("load catalog: %w", err)
		}
		if len(items) > inventoryWindow {
			items = items[:inventoryWindow]
		}
		compact := make([]inventoryItem, len(items))
		for i, p := range items {
			it := inventoryItem{ID: p.ID, Name: p.Name, Category: p.Category, Price: p.Price}
			if p.Profile != nil {
				it.ShortDescription = strings.TrimSpace(p.Profile.ShortDescription)
				it.ReviewSummary = strings.TrimSpace(p.Profile.ReviewSummary)
			}
			compact[i] = it
		}
		raw, err := json.Marshal(map[string]interface{}{"inventory": compact})
		if err != nil {
			return "", fmt.Errorf("encode inventory: %w", err)
		}
		digest = string(raw)
		if err := cache.SetJSON(s.store, inventoryKey, digest, s.inventoryTTL); err != nil {
			logging.AssistantDebug("Inventory digest cache write failed: %v", err)
		}
	}

	return fmt.Sprintf(`You are a virtual shopping assistant for an e-commerce shop.

GOALS
- Help users find products, compare options, and decide what to buy.
- Ask 1-2 clarifying questions if the request is vague (budget/use-case/constraints).
- Recommend up to 5 products max.

STRICT RULES
- Only recommend products that exist in the inventory context below.
- Never invent products, prices, categories, features, or reviews.
- If you cannot find a match, say so and ask a clarifying question.

RESPONSE FORMAT
- Start with a short helpful reply.
- Then list recommendations as bullets:
  - Product Name (Category), $Price, Reason (<= 18 words, grounded in context)

INVENTORY CONTEXT (JSON)
%s`, digest), nil
}
