package portal

import (
	"sort"
	"sync"

	"github.com/Ramsey-B/clover/pkg/access"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Cache is the in-memory copy of the store. Writes are last-write-wins per id.
type Cache struct {
	mu            sync.RWMutex
	agents        map[string]models.Agent
	pages         map[string]models.Page
	conversations map[string]models.Conversation
	messages      map[string]models.Message
	links         map[string]models.ApprovedLink
	media         map[string]models.ApprovedMedia
	relation      *access.Relation
}

func NewCache() *Cache {
	c := &Cache{}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.agents = make(map[string]models.Agent)
	c.pages = make(map[string]models.Page)
	c.conversations = make(map[string]models.Conversation)
	c.messages = make(map[string]models.Message)
	c.links = make(map[string]models.ApprovedLink)
	c.media = make(map[string]models.ApprovedMedia)
	c.relation = access.NewRelation()
}

// Reset drops everything, used when the namespace changes.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func fill[T models.Entity](dst map[string]T, items []T) {
	for k := range dst {
		delete(dst, k)
	}
	for _, item := range items {
		dst[item.GetID()] = item
	}
}

func values[T any](src map[string]T) []T {
	out := make([]T, 0, len(src))
	for _, v := range src {
		out = append(out, v)
	}
	return out
}

func (c *Cache) SetAgents(items []models.Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fill(c.agents, items)
}

func (c *Cache) SetPages(items []models.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fill(c.pages, items)
}

func (c *Cache) SetConversations(items []models.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fill(c.conversations, items)
}

func (c *Cache) SetMessages(items []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fill(c.messages, items)
}

func (c *Cache) SetLinks(items []models.ApprovedLink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fill(c.links, items)
}

func (c *Cache) SetMedia(items []models.ApprovedMedia) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fill(c.media, items)
}

func (c *Cache) SetRelation(rel *access.Relation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relation = rel
}

func (c *Cache) Relation() *access.Relation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.relation
}

func (c *Cache) PutAgent(a models.Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[a.ID] = a
}

func (c *Cache) RemoveAgent(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.agents, id)
}

func (c *Cache) Agent(id string) (models.Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agents[id]
	return a, ok
}

// Agents returns agents sorted by name.
func (c *Cache) Agents() []models.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := values(c.agents)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Cache) PutPage(p models.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[p.ID] = p
}

func (c *Cache) RemovePage(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pages, id)
}

func (c *Cache) Page(id string) (models.Page, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pages[id]
	return p, ok
}

func (c *Cache) Pages() []models.Page {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := values(c.pages)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Cache) PutConversation(conv models.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversations[conv.ID] = conv
}

func (c *Cache) Conversation(id string) (models.Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.conversations[id]
	return conv, ok
}

// RemoveConversation drops a conversation and its messages.
func (c *Cache) RemoveConversation(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conversations, id)
	for mid, m := range c.messages {
		if m.ConversationID == id {
			delete(c.messages, mid)
		}
	}
}

// Conversations returns conversations newest first.
func (c *Cache) Conversations() []models.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := values(c.conversations)
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastTimestamp.Equal(out[j].LastTimestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastTimestamp.After(out[j].LastTimestamp)
	})
	return out
}

func (c *Cache) PutMessage(m models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[m.ID] = m
}

func (c *Cache) RemoveMessage(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.messages, id)
}

// Messages returns one thread oldest first.
func (c *Cache) Messages(conversationID string) []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.Message
	for _, m := range c.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sortMessages(out)
	return out
}

// ReplaceThread swaps the cached messages of one conversation.
func (c *Cache) ReplaceThread(conversationID string, msgs []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, m := range c.messages {
		if m.ConversationID == conversationID {
			delete(c.messages, id)
		}
	}
	for _, m := range msgs {
		c.messages[m.ID] = m
	}
}

func (c *Cache) ClearChats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversations = make(map[string]models.Conversation)
	c.messages = make(map[string]models.Message)
}

func (c *Cache) PutLink(l models.ApprovedLink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links[l.ID] = l
}

func (c *Cache) RemoveLink(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.links, id)
}

func (c *Cache) Links() []models.ApprovedLink {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := values(c.links)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Cache) PutMedia(m models.ApprovedMedia) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media[m.ID] = m
}

func (c *Cache) RemoveMedia(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.media, id)
}

func (c *Cache) Media() []models.ApprovedMedia {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := values(c.media)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
