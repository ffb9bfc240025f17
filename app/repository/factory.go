package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Repositories bundles all repository instances.
type Repositories struct {
	User     UserRepository
	Survey   SurveyRepository
	Response ResponseRepository
	Payout   PayoutRepository
	Webhook  WebhookRepository
	Event    EventRepository
}

// NewRepositories creates all repositories on one DB handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:     NewUserRepository(db),
		Survey:   NewSurveyRepository(db),
		Response: NewResponseRepository(db),
		Payout:   NewPayoutRepository(db),
		Webhook:  NewWebhookRepository(db),
		Event:    NewEventRepository(db),
	}
}

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the user repository
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetSurveyRepository returns the survey repository
func (f *Factory) GetSurveyRepository() SurveyRepository {
	return f.GetRepositories().Survey
}

// GetResponseRepository returns the survey response repository
func (f *Factory) GetResponseRepository() ResponseRepository {
	return f.GetRepositories().Response
}

// GetPayoutRepository returns the payout repository
func (f *Factory) GetPayoutRepository() PayoutRepository {
	return f.GetRepositories().Payout
}

// GetWebhookRepository returns the webhook registration repository
func (f *Factory) GetWebhookRepository() WebhookRepository {
	return f.GetRepositories().Webhook
}

// GetEventRepository returns the event log repository
func (f *Factory) GetEventRepository() EventRepository {
	return f.GetRepositories().Event
}

var (
	globalFactory   *Factory
	globalFactoryMu sync.Mutex
)

// SetGlobalFactory installs the process-wide factory (called once at boot).
func SetGlobalFactory(f *Factory) {
	globalFactoryMu.Lock()
	defer globalFactoryMu.Unlock()
	globalFactory = f
}

// GetGlobalFactory returns the process-wide factory, or nil before boot.
func GetGlobalFactory() *Factory {
	globalFactoryMu.Lock()
	defer globalFactoryMu.Unlock()
	return globalFactory
}
