package slack

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/slack-go/slack"
)

// fakeLister serves channels from pages keyed by channel type and cursor
type fakeLister struct {
	mu    sync.Mutex
	pages map[string][][]slack.Channel
	err   error
	calls int
}

func (f *fakeLister) GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, "", f.err
	}

	pages := f.pages[params.Types[0]]
	idx := 0
	if params.Cursor != "" {
		idx = int(params.Cursor[0] - '0')
	}
	if idx >= len(pages) {
		return nil, "", nil
	}
	next := ""
	if idx+1 < len(pages) {
		next = string(rune('0' + idx + 1))
	}
	return pages[idx], next, nil
}

func channel(id, name string) slack.Channel {
	var c slack.Channel
	c.ID = id
	c.Name = name
	return c
}

func TestIsChannelID(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"C01234567890", true},
		{"C01234567", true},
		{"G0ABC123DEF", true},
		{"C012345678901234", false},
		{"C1234567", false},
		{"D01234567890", false},
		{"C01234abcdef", false},
		{"#alerts", false},
		{"alerts", false},
		{"C0123-4567890", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isChannelID(tt.input); got != tt.want {
			t.Errorf("isChannelID(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestChannelResolver_ChannelIDPassesThrough(t *testing.T) {
	lister := &fakeLister{}
	resolver := NewChannelResolver(lister)

	got, err := resolver.ResolveChannel(context.Background(), "C01234567890")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "C01234567890" {
		t.Errorf("got %q", got)
	}
	if lister.calls != 0 {
		t.Errorf("expected no API calls, got %d", lister.calls)
	}
}

func TestChannelResolver_EmptyInput(t *testing.T) {
	resolver := NewChannelResolver(&fakeLister{})
	if _, err := resolver.ResolveChannel(context.Background(), ""); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestChannelResolver_PagesAndCaches(t *testing.T) {
	lister := &fakeLister{pages: map[string][][]slack.Channel{
		"public_channel": {
			{channel("C0000000001", "general")},
			{channel("C0000000002", "pharmacy-alerts")},
		},
	}}
	resolver := NewChannelResolver(lister)

	got, err := resolver.ResolveChannel(context.Background(), "#pharmacy-alerts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "C0000000002" {
		t.Errorf("got %q, want C0000000002", got)
	}
	if lister.calls != 2 {
		t.Errorf("expected 2 paged calls, got %d", lister.calls)
	}

	if _, err := resolver.ResolveChannel(context.Background(), "pharmacy-alerts"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lister.calls != 2 {
		t.Errorf("expected cache hit, got %d calls", lister.calls)
	}

	resolver.ClearCache()
	resolver.ResolveChannel(context.Background(), "pharmacy-alerts")
	if lister.calls != 4 {
		t.Errorf("expected lookup after ClearCache, got %d calls", lister.calls)
	}
}

func TestChannelResolver_FindsPrivateChannel(t *testing.T) {
	lister := &fakeLister{pages: map[string][][]slack.Channel{
		"private_channel": {{channel("G0000000009", "on-call")}},
	}}
	resolver := NewChannelResolver(lister)

	got, err := resolver.ResolveChannel(context.Background(), "on-call")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "G0000000009" {
		t.Errorf("got %q", got)
	}
}

func TestChannelResolver_NotFoundAndErrors(t *testing.T) {
	resolver := NewChannelResolver(&fakeLister{})
	if _, err := resolver.ResolveChannel(context.Background(), "missing"); err == nil {
		t.Error("expected not found error")
	}

	resolver = NewChannelResolver(&fakeLister{err: errors.New("invalid_auth")})
	if _, err := resolver.ResolveChannel(context.Background(), "alerts"); err == nil {
		t.Error("expected API error to be returned")
	}
}

func TestChannelResolver_ConcurrentReads(t *testing.T) {
	resolver := NewChannelResolver(&fakeLister{})
	resolver.cache["alerts"] = "C01234567890"

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			resolver.ResolveChannel(context.Background(), "#alerts")
		}()
		go func() {
			defer wg.Done()
			resolver.ClearCache()
		}()
	}
	wg.Wait()
}
