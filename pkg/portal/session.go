package portal

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Login authenticates and replaces the current session. It returns the bearer token for the API.
func (p *Portal) Login(ctx context.Context, email, credential string) (models.Agent, string, error) {
	agent, err := p.auth.Login(p.scope(ctx), email, credential)
	if err != nil {
		return models.Agent{}, "", err
	}
	token, err := p.session.Login(ctx, agent)
	if err != nil {
		return models.Agent{}, "", err
	}
	p.logger.WithContext(ctx).WithField("agent_id", agent.ID).Info("agent logged in")
	return agent, token, nil
}

// Logout ends the current session.
func (p *Portal) Logout(ctx context.Context) error {
	if agent, ok := p.session.Current(); ok {
		p.logger.WithContext(ctx).WithField("agent_id", agent.ID).Info("agent logged out")
	}
	return p.session.Logout(ctx)
}

// CurrentUser returns the logged-in agent, if any.
func (p *Portal) CurrentUser() (models.Agent, bool) {
	return p.session.Current()
}

func (p *Portal) actor() (models.Agent, error) {
	agent, ok := p.session.Current()
	if !ok {
		return models.Agent{}, ErrNotLoggedIn
	}
	return agent, nil
}
