package reconciler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/batch-reconciler/internal/domain"
)

type memUser struct {
	email    string
	plan     string
	balances map[domain.Tier]int
}

type memPending struct {
	domain.PendingKeyword
	seq int
}

// memLedger mirrors the Postgres store's contract: guarded batch update first,
// every bulk write must hit exactly the expected rows, and nothing is written on error.
type memLedger struct {
	mu       sync.Mutex
	users    map[string]*memUser
	batches  map[string]*domain.Batch
	articles map[string]*domain.Article
	pending  map[string]*memPending
	seq      int

	listErr     error
	beforeApply func(t *domain.Transition)
	applyCalls  int
}

func newMemLedger() *memLedger {
	return &memLedger{
		users:    make(map[string]*memUser),
		batches:  make(map[string]*domain.Batch),
		articles: make(map[string]*domain.Article),
		pending:  make(map[string]*memPending),
	}
}

func (m *memLedger) addUser(id, email, plan string) {
	m.users[id] = &memUser{email: email, plan: plan, balances: make(map[domain.Tier]int)}
}

// addBatch seeds a batch with one article and pending row per keyword
func (m *memLedger) addBatch(b domain.Batch, keywords ...string) {
	b.Articles = len(keywords)
	b.PendingArticles = len(keywords)
	if b.ArticleType == "" {
		b.ArticleType = domain.ArticleTypeGodmode
	}
	m.batches[b.ID] = &b

	for i, kw := range keywords {
		articleID := fmt.Sprintf("%s-a%d", b.ID, i+1)
		pendingID := fmt.Sprintf("%s-p%d", b.ID, i+1)
		m.articles[articleID] = &domain.Article{
			ID:      articleID,
			BatchID: b.ID,
			UserID:  b.UserID,
			Keyword: kw,
			Status:  domain.ArticleStatusPending,
		}
		m.seq++
		m.pending[pendingID] = &memPending{
			PendingKeyword: domain.PendingKeyword{
				ID:        pendingID,
				BatchID:   b.ID,
				ArticleID: articleID,
				Keyword:   kw,
			},
			seq: m.seq,
		}
	}
}

func (m *memLedger) fillContent(articleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content := "generated text"
	m.articles[articleID].Content = &content
}

func (m *memLedger) setCron(pendingID string, cron int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[pendingID].CronRequest = cron
}

func (m *memLedger) batch(id string) domain.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.batches[id]
}

func (m *memLedger) article(id string) domain.Article {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.articles[id]
}

func (m *memLedger) pendingRow(id string) (domain.PendingKeyword, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	if !ok {
		return domain.PendingKeyword{}, false
	}
	return p.PendingKeyword, true
}

func (m *memLedger) pendingCount(batchID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.pending {
		if p.BatchID == batchID {
			n++
		}
	}
	return n
}

func (m *memLedger) balance(userID string, tier domain.Tier) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID].balances[tier]
}

func (m *memLedger) ListCandidates(_ context.Context, cutoff time.Time, limit int) ([]domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	var out []domain.Batch
	for _, b := range m.batches {
		if b.Status != domain.BatchStatusOpen || b.ArticleType != domain.ArticleTypeGodmode || !b.UpdatedAt.Before(cutoff) {
			continue
		}
		c := *b
		if u, ok := m.users[b.UserID]; ok {
			c.UserEmail = u.email
			c.UserPlan = u.plan
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLedger) LoadPending(_ context.Context, batchID string) ([]domain.PendingKeyword, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []*memPending
	for _, p := range m.pending {
		if p.BatchID == batchID {
			rows = append(rows, p)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]domain.PendingKeyword, 0, len(rows))
	for _, p := range rows {
		row := p.PendingKeyword
		a, ok := m.articles[row.ArticleID]
		if !ok {
			return nil, fmt.Errorf("%w: pending %s article %s", domain.ErrMissingArticle, row.ID, row.ArticleID)
		}
		if a.Status != domain.ArticleStatusPending {
			return nil, fmt.Errorf("%w: pending %s points at resolved article", domain.ErrInvariant, row.ID)
		}
		row.ArticleFound = true
		row.ArticleLive = true
		row.HasContent = a.Content != nil
		out = append(out, row)
	}
	return out, nil
}

func (m *memLedger) ApplyTransition(_ context.Context, t *domain.Transition) (*domain.Batch, error) {
	if m.beforeApply != nil {
		m.beforeApply(t)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++

	b, ok := m.batches[t.BatchID]
	if !ok || b.Status != domain.BatchStatusOpen || !b.UpdatedAt.Equal(t.Snapshot) {
		return nil, domain.ErrBatchChanged
	}

	updated := *b
	updated.CompletedArticles += len(t.Promote)
	updated.FailedArticles += len(t.Fail)
	updated.PendingArticles -= len(t.Promote) + len(t.Fail)
	updated.UpdatedAt = t.Now
	if t.Close {
		updated.Status = domain.BatchStatusClosed
	}
	if !updated.CountersConsistent() {
		return nil, fmt.Errorf("%w: counters", domain.ErrInvariant)
	}

	for _, p := range t.Promote {
		a, ok := m.articles[p.ArticleID]
		if !ok || a.Status != domain.ArticleStatusPending || a.Content == nil {
			return nil, fmt.Errorf("%w: promote %s", domain.ErrInvariant, p.ArticleID)
		}
	}
	for _, p := range t.Fail {
		a, ok := m.articles[p.ArticleID]
		if !ok || a.Status != domain.ArticleStatusPending || a.Content != nil {
			return nil, fmt.Errorf("%w: fail %s", domain.ErrBatchChanged, p.ArticleID)
		}
	}
	resolved := make(map[string]bool)
	for _, id := range t.ResolvedPendingIDs() {
		if _, ok := m.pending[id]; !ok {
			return nil, fmt.Errorf("%w: delete %s", domain.ErrInvariant, id)
		}
		resolved[id] = true
	}
	for _, p := range t.Dispatch {
		row, ok := m.pending[p.ID]
		if !ok || row.CronRequest != domain.CronRequestNotDispatched {
			return nil, fmt.Errorf("%w: dispatch %s", domain.ErrInvariant, p.ID)
		}
	}
	if t.Refund() > 0 {
		if _, ok := m.users[t.UserID]; !ok {
			return nil, fmt.Errorf("%w: refund user %s", domain.ErrInvariant, t.UserID)
		}
		if _, err := domain.ParseTier(string(t.RefundTier)); err != nil {
			return nil, err
		}
	}
	if t.Close {
		for id, p := range m.pending {
			if p.BatchID == t.BatchID && !resolved[id] {
				return nil, fmt.Errorf("%w: closing with pending %s", domain.ErrInvariant, id)
			}
		}
	}

	// commit
	for _, p := range t.Promote {
		m.articles[p.ArticleID].Status = domain.ArticleStatusCompleted
	}
	for _, p := range t.Fail {
		m.articles[p.ArticleID].Status = domain.ArticleStatusFailed
	}
	for id := range resolved {
		delete(m.pending, id)
	}
	for _, p := range t.Dispatch {
		m.pending[p.ID].CronRequest = domain.CronRequestDispatched
	}
	if t.Refund() > 0 {
		m.users[t.UserID].balances[t.RefundTier] += t.Refund()
	}
	*b = updated

	out := updated
	return &out, nil
}

func (m *memLedger) RecordSendFailure(ctx context.Context, pendingID string, maxFailures int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[pendingID]
	if !ok || p.CronRequest != domain.CronRequestDispatched || p.SendFailures >= maxFailures {
		return false, nil
	}
	p.CronRequest = domain.CronRequestNotDispatched
	p.SendFailures++
	return true, nil
}
