package render

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
)

func fastConfig() Config {
	return Config{
		NavigationTimeout: time.Second,
		ExpansionTimeout:  5 * time.Second,
		SettleDelay:       time.Millisecond,
		StabilizeDelay:    time.Millisecond,
	}
}

func TestRenderExpandsUntilControlDisappears(t *testing.T) {
	t.Parallel()

	session := &fakeSession{loadMoreProbes: 3, html: "<html>done</html>"}
	r := New(&fakeBrowser{session: session}, fastConfig(), zap.NewNop())

	page, err := r.Render(context.Background(), "https://example.com/app/x")
	require.NoError(t, err)

	assert.Equal(t, "<html>done</html>", page.HTML)
	assert.Equal(t, "https://example.com/app/x", page.URL)
	assert.Equal(t, 3, page.Expansions)
	assert.Equal(t, 3, session.clicks)
	assert.Equal(t, 3, session.scrolls)
	assert.Equal(t, 4, session.probes)
	assert.True(t, session.closed)
}

func TestRenderLogsClicksWhenEnabled(t *testing.T) {
	t.Parallel()

	for _, enabled := range []bool{true, false} {
		core, logs := observer.New(zapcore.InfoLevel)
		cfg := fastConfig()
		cfg.LogClicks = enabled
		session := &fakeSession{loadMoreProbes: 2, html: "<html/>"}

		_, err := New(&fakeBrowser{session: session}, cfg, zap.New(core)).Render(context.Background(), "u")
		require.NoError(t, err)

		want := 0
		if enabled {
			want = 2
		}
		assert.Equal(t, want, logs.FilterMessage("clicked load-more").Len(), "log_clicks=%v", enabled)
	}
}

func TestRenderNoControlCompletesImmediately(t *testing.T) {
	t.Parallel()

	session := &fakeSession{html: "<html/>"}
	page, err := New(&fakeBrowser{session: session}, fastConfig(), nil).Render(context.Background(), "u")
	require.NoError(t, err)
	assert.Zero(t, page.Expansions)
	assert.Zero(t, session.clicks)
	assert.True(t, session.closed)
}

func TestRenderNavigationTimeout(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.NavigationTimeout = 20 * time.Millisecond
	session := &fakeSession{blockNavigate: true}

	_, err := New(&fakeBrowser{session: session}, cfg, zap.NewNop()).Render(context.Background(), "u")
	require.Error(t, err)
	assert.Equal(t, crawler.KindNavigationTimeout, crawler.KindOf(err))
	assert.True(t, session.closed)
	assert.Zero(t, session.probes)
}

func TestRenderNavigationFailureIsUnknown(t *testing.T) {
	t.Parallel()

	session := &fakeSession{navigateErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	_, err := New(&fakeBrowser{session: session}, fastConfig(), zap.NewNop()).Render(context.Background(), "u")
	require.Error(t, err)
	assert.Equal(t, crawler.KindUnknown, crawler.KindOf(err))
	assert.ErrorContains(t, err, "ERR_NAME_NOT_RESOLVED")
	assert.True(t, session.closed)
}

func TestRenderBudgetExceededIsExpansionTimeout(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.ExpansionTimeout = 60 * time.Millisecond
	cfg.SettleDelay = 5 * time.Millisecond
	session := &fakeSession{loadMoreProbes: -1, html: "<html/>"}

	page, err := New(&fakeBrowser{session: session}, cfg, zap.NewNop()).Render(context.Background(), "u")
	require.Error(t, err)
	assert.Equal(t, crawler.KindExpansionTimeout, crawler.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, page.HTML)
	assert.Positive(t, session.clicks)
	assert.True(t, session.closed)
}

func TestRenderExpansionErrorsProceedToComplete(t *testing.T) {
	t.Parallel()

	tests := map[string]*fakeSession{
		"probe fails":  {probeErr: errors.New("node detached"), html: "partial"},
		"click fails":  {loadMoreProbes: -1, clickErr: errors.New("not clickable"), html: "partial"},
		"scroll fails": {loadMoreProbes: -1, scrollErr: errors.New("no body"), html: "partial"},
	}
	for name, session := range tests {
		t.Run(name, func(t *testing.T) {
			page, err := New(&fakeBrowser{session: session}, fastConfig(), zap.NewNop()).Render(context.Background(), "u")
			require.NoError(t, err)
			assert.Equal(t, "partial", page.HTML)
			assert.True(t, session.closed)
		})
	}
}

func TestRenderScrollFailureStillCountsClick(t *testing.T) {
	t.Parallel()

	session := &fakeSession{loadMoreProbes: -1, scrollErr: errors.New("no body"), html: "x"}
	page, err := New(&fakeBrowser{session: session}, fastConfig(), zap.NewNop()).Render(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, 1, page.Expansions)
}

func TestRenderMaxExpansions(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.MaxExpansions = 2
	session := &fakeSession{loadMoreProbes: -1, html: "capped"}

	page, err := New(&fakeBrowser{session: session}, cfg, zap.NewNop()).Render(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, 2, page.Expansions)
	assert.Equal(t, 2, session.clicks)
}

func TestRenderCallerCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{blockNavigate: true, onNavigate: cancel}

	_, err := New(&fakeBrowser{session: session}, fastConfig(), zap.NewNop()).Render(ctx, "u")
	require.Error(t, err)
	assert.Equal(t, crawler.KindUnknown, crawler.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, crawler.Retryable(err))
	assert.True(t, session.closed)
}

func TestRenderSessionOpenFailure(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeBrowser{err: errors.New("chrome crashed")}, fastConfig(), zap.NewNop()).Render(context.Background(), "u")
	require.Error(t, err)
	assert.Equal(t, crawler.KindUnknown, crawler.KindOf(err))
}

func TestRenderHTMLCaptureFailure(t *testing.T) {
	t.Parallel()

	session := &fakeSession{htmlErr: errors.New("target closed")}
	_, err := New(&fakeBrowser{session: session}, fastConfig(), zap.NewNop()).Render(context.Background(), "u")
	require.Error(t, err)
	assert.Equal(t, crawler.KindUnknown, crawler.KindOf(err))
	assert.True(t, session.closed)
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	r := New(&fakeBrowser{}, Config{SettleDelay: -1}, nil)
	assert.Equal(t, 30*time.Second, r.cfg.NavigationTimeout)
	assert.Equal(t, 360*time.Second, r.cfg.ExpansionTimeout)
	assert.Zero(t, r.cfg.SettleDelay)
	assert.Equal(t, "expanding", StateExpanding.String())
}

type fakeBrowser struct {
	session *fakeSession
	err     error
}

func (b *fakeBrowser) NewSession(context.Context) (Session, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.session, nil
}

// fakeSession reports the load-more control for loadMoreProbes probes, or
// forever when negative.
type fakeSession struct {
	mu             sync.Mutex
	loadMoreProbes int
	blockNavigate  bool
	onNavigate     func()
	navigateErr    error
	probeErr       error
	clickErr       error
	scrollErr      error
	htmlErr        error
	html           string

	probes  int
	clicks  int
	scrolls int
	closed  bool
}

func (s *fakeSession) Navigate(ctx context.Context, _ string) error {
	if s.onNavigate != nil {
		s.onNavigate()
	}
	if s.blockNavigate {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.navigateErr
}

func (s *fakeSession) HasLoadMore(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.probeErr != nil {
		return false, s.probeErr
	}
	s.probes++
	return s.loadMoreProbes < 0 || s.probes <= s.loadMoreProbes, nil
}

func (s *fakeSession) ClickLoadMore(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clickErr != nil {
		return s.clickErr
	}
	s.clicks++
	return nil
}

func (s *fakeSession) ScrollToBottom(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scrollErr != nil {
		return s.scrollErr
	}
	s.scrolls++
	return nil
}

func (s *fakeSession) HTML(context.Context) (string, error) {
	if s.htmlErr != nil {
		return "", s.htmlErr
	}
	return s.html, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
