package session

import (
	"sort"
	"time"

	"github.com/harun/shopagent/pkg/llm"
	"github.com/harun/shopagent/pkg/product"
)

const (
	// MaxChoices caps every ChoiceSet
	MaxChoices = 6
	// maxCachedDetails bounds WorkingMemory.Details
	maxCachedDetails = 20
)

// State is everything persisted for one tenant session
type State struct {
	Key          string        `json:"key"`
	Conversation []llm.Message `json:"conversation"`
	MCP          MCPState      `json:"mcp_state"`
	Memory       WorkingMemory `json:"working_memory"`
	UpdatedAt    int64         `json:"updated_at"`
	ExpiresAt    int64         `json:"expires_at"`
}

// MCPState carries the commerce backend protocol counters between turns
type MCPState struct {
	NextRequestID int64  `json:"next_request_id"`
	SessionID     string `json:"session_id,omitempty"`
}

// Started reports whether a request was already sent in this backend session.
// The first request of a session carries the initialize handshake.
func (m *MCPState) Started() bool {
	return m.NextRequestID > 0
}

// NextID returns the next JSON-RPC request id
func (m *MCPState) NextID() int64 {
	m.NextRequestID++
	return m.NextRequestID
}

// SearchHit is a compact search result kept in working memory
type SearchHit struct {
	Index           int      `json:"index"`
	ProductID       string   `json:"product_id"`
	PartNo          string   `json:"part_no,omitempty"`
	Name            string   `json:"name"`
	Brand           string   `json:"brand,omitempty"`
	Color           string   `json:"color,omitempty"`
	Price           *float64 `json:"price,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	BuyableVariants *int     `json:"buyable_variants,omitempty"`
	InStockVariants *int     `json:"in_stock_variants,omitempty"`
}

// HasAvailability reports whether the hit carries any stock signal
func (h SearchHit) HasAvailability() bool {
	return h.BuyableVariants != nil || h.InStockVariants != nil
}

// Choice is one selectable option of a ChoiceSet, indexed from 1
type Choice struct {
	Index        int                   `json:"index"`
	Label        string                `json:"label"`
	ID           string                `json:"id"`
	PartNo       string                `json:"part_no,omitempty"`
	Availability *product.Availability `json:"availability,omitempty"`
}

// ChoiceSet is a pending disambiguation prompt. ToolName and Arguments hold the
// tool call that resumes once a choice is made.
type ChoiceSet struct {
	Kind      string                 `json:"kind"` // variant, product
	Prompt    string                 `json:"prompt"`
	Choices   []Choice               `json:"choices"`
	ToolName  string                 `json:"tool_name,omitempty"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	ArgKey    string                 `json:"arg_key,omitempty"` // argument the chosen id is written to
	CreatedAt int64                  `json:"created_at"`
}

// PendingConfirmation is a cart mutation awaiting the user's consent
type PendingConfirmation struct {
	ToolName      string                 `json:"tool_name"`
	Arguments     map[string]interface{} `json:"arguments"`
	CanonicalArgs string                 `json:"canonical_args"`
	Prompt        string                 `json:"prompt"`
	CreatedAt     int64                  `json:"created_at"`
}

// CachedProduct is the most recent product_get result for an id
type CachedProduct struct {
	Product   product.Product `json:"product"`
	FetchedAt int64           `json:"fetched_at"`
}

// WorkingMemory is session-scoped state the guardrails read and the agent writes
type WorkingMemory struct {
	LastQuery           string                   `json:"last_query,omitempty"`
	LastResults         []SearchHit              `json:"last_results,omitempty"`
	Shortlist           []SearchHit              `json:"shortlist,omitempty"`
	ActiveChoiceSet     *ChoiceSet               `json:"active_choice_set,omitempty"`
	PendingConfirmation *PendingConfirmation     `json:"pending_confirmation,omitempty"`
	Details             map[string]CachedProduct `json:"details,omitempty"`
}

// SetResults replaces the last results wholesale and renumbers them from 1
func (m *WorkingMemory) SetResults(query string, hits []SearchHit) {
	m.LastQuery = query
	m.LastResults = make([]SearchHit, len(hits))
	for i, h := range hits {
		h.Index = i + 1
		m.LastResults[i] = h
	}
}

// AddToShortlist pins a hit, ignoring duplicates
func (m *WorkingMemory) AddToShortlist(hit SearchHit) {
	for _, h := range m.Shortlist {
		if h.ProductID == hit.ProductID {
			return
		}
	}
	m.Shortlist = append(m.Shortlist, hit)
}

// CacheDetail stores p, evicting the oldest entries past the bound
func (m *WorkingMemory) CacheDetail(p product.Product, now time.Time) {
	if p.ID == "" {
		return
	}
	if m.Details == nil {
		m.Details = make(map[string]CachedProduct)
	}
	m.Details[p.ID] = CachedProduct{Product: p, FetchedAt: now.UnixMilli()}

	if len(m.Details) <= maxCachedDetails {
		return
	}
	ids := make([]string, 0, len(m.Details))
	for id := range m.Details {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.Details[ids[i]].FetchedAt < m.Details[ids[j]].FetchedAt
	})
	for _, id := range ids[:len(ids)-maxCachedDetails] {
		delete(m.Details, id)
	}
}

// Detail finds cached detail for a product id, part number or variant id
func (m *WorkingMemory) Detail(id string) (product.Product, bool) {
	if cached, ok := m.Details[id]; ok {
		return cached.Product, true
	}
	for _, cached := range m.Details {
		if cached.Product.Matches(id) {
			return cached.Product, true
		}
	}
	return product.Product{}, false
}

// NewState creates an empty session state
func NewState(key string, now time.Time, ttl time.Duration) *State {
	s := &State{Key: key}
	s.Stamp(now, ttl)
	return s
}

// Stamp sets UpdatedAt to now and ExpiresAt to now+ttl
func (s *State) Stamp(now time.Time, ttl time.Duration) {
	s.UpdatedAt = now.UnixMilli()
	s.ExpiresAt = now.Add(ttl).UnixMilli()
}

// Expired reports whether the state is past its ExpiresAt
func (s *State) Expired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.UnixMilli() >= s.ExpiresAt
}

// TrimConversation keeps at most max of the most recent messages. The cut never
// leaves tool results whose assistant tool call was dropped.
func (s *State) TrimConversation(max int) {
	if max <= 0 || len(s.Conversation) <= max {
		return
	}
	start := len(s.Conversation) - max
	for start < len(s.Conversation) && s.Conversation[start].Role == llm.RoleTool {
		start++
	}
	trimmed := make([]llm.Message, len(s.Conversation)-start)
	copy(trimmed, s.Conversation[start:])
	s.Conversation = trimmed
}

// Clone returns a deep copy made through the persisted encoding
func (s *State) Clone() (*State, error) {
	data, err := encodeState(s)
	if err != nil {
		return nil, err
	}
	return decodeState(data)
}
