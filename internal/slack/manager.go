package slack

import (
	"context"
	"log"
	"sync"

	"github.com/slack-go/slack"
	"github.com/stockalert/stockalert/internal/database"
)

// Manager owns the Slack Web API client and reloads it when settings change
type Manager struct {
	mu sync.RWMutex

	client   *slack.Client
	resolver *ChannelResolver
	channel  string
	options  []slack.Option

	reloadChan chan struct{}
}

// NewManager creates a new Slack manager.
// options are passed to every client the manager creates.
func NewManager(options ...slack.Option) *Manager {
	return &Manager{
		reloadChan: make(chan struct{}, 1),
		options:    options,
	}
}

// GetClient returns the current Slack client (nil if not configured)
func (m *Manager) GetClient() *slack.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// IsActive returns true when a client and alerts channel are available
func (m *Manager) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil && m.channel != ""
}

// target returns the client, resolver and channel used for the next post
func (m *Manager) target() (*slack.Client, *ChannelResolver, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client, m.resolver, m.channel
}

// Start initializes the Slack client from database settings
func (m *Manager) Start() error {
	settings, err := database.GetSlackSettings()
	if err != nil {
		log.Printf("SlackManager: Could not load Slack settings: %v", err)
		return nil // Not an error, just disabled
	}

	m.apply(settings)
	return nil
}

// apply swaps the client for one built from settings, or clears it when Slack is inactive
func (m *Manager) apply(settings *database.SlackSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if settings == nil || !settings.IsActive() {
		if m.client != nil {
			log.Printf("SlackManager: Slack escalation disabled")
		}
		m.client = nil
		m.resolver = nil
		m.channel = ""
		return
	}

	options := append([]slack.Option{slack.OptionDebug(false)}, m.options...)
	m.client = slack.New(settings.BotToken, options...)
	m.resolver = NewChannelResolver(m.client)
	m.channel = settings.AlertsChannel
	log.Printf("SlackManager: Slack escalation is ACTIVE (channel=%s)", settings.AlertsChannel)
}

// Stop drops the current client
func (m *Manager) Stop() {
	m.apply(nil)
}

// Reload reloads Slack settings from the database
func (m *Manager) Reload() error {
	log.Printf("SlackManager: Reloading Slack settings...")

	settings, err := database.GetSlackSettings()
	if err != nil {
		log.Printf("SlackManager: Could not load Slack settings: %v", err)
		m.Stop()
		return err
	}

	m.apply(settings)
	return nil
}

// TriggerReload signals that a reload is needed (non-blocking)
func (m *Manager) TriggerReload() {
	select {
	case m.reloadChan <- struct{}{}:
		log.Printf("SlackManager: Reload triggered")
	default:
		log.Printf("SlackManager: Reload already pending")
	}
}

// WatchForReloads runs a loop that watches for reload signals
func (m *Manager) WatchForReloads(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.reloadChan:
			if err := m.Reload(); err != nil {
				log.Printf("SlackManager: Reload failed: %v", err)
			}
		}
	}
}
