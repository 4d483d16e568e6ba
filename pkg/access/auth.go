package access

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
)

// FallbackAdminID is the fixed id of the configured administrator.
const FallbackAdminID = "admin-master"

// FallbackAdmin builds the administrator identity that does not depend on the store.
func FallbackAdmin(name, email, credential string) models.Agent {
	if name == "" {
		name = "Master Admin"
	}
	return models.Agent{
		ID:              FallbackAdminID,
		Name:            name,
		Email:           email,
		Credential:      credential,
		Role:            models.RoleAdmin,
		Status:          models.PresenceOnline,
		AssignedPageIDs: []string{},
	}
}

// LoadStaticAgents reads the local agent list from a JSON array file.
func LoadStaticAgents(path string) ([]models.Agent, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read static agents file: %w", err)
	}
	var agents []models.Agent
	if err := json.Unmarshal(data, &agents); err != nil {
		return nil, fmt.Errorf("failed to parse static agents file: %w", err)
	}
	for i := range agents {
		agents[i].Role = models.ParseRole(string(agents[i].Role))
		if err := models.Validate(agents[i]); err != nil {
			return nil, err
		}
	}
	return agents, nil
}

// Authenticator resolves an email and credential to an agent. Sources are tried in order:
// fallback admin, the store's agents, then the static list.
type Authenticator struct {
	fallback models.Agent
	agents   *docstore.Collection[models.Agent]
	static   []models.Agent
	verifier CredentialVerifier
	logger   ectologger.Logger
}

// NewAuthenticator checks the fallback admin first, then stored agents, then the static list.
func NewAuthenticator(fallback models.Agent, gateway docstore.Gateway, static []models.Agent, verifier CredentialVerifier, logger ectologger.Logger) *Authenticator {
	return &Authenticator{
		fallback: fallback,
		agents:   docstore.NewCollection[models.Agent](gateway, docstore.KindAgents, logger),
		static:   static,
		verifier: verifier,
		logger:   logger,
	}
}

// Fallback returns the fallback admin without its credential.
func (a *Authenticator) Fallback() models.Agent {
	return a.fallback.Public()
}

// Static returns the static agent list without credentials.
func (a *Authenticator) Static() []models.Agent {
	return ectolinq.Map(a.static, func(agent models.Agent) models.Agent { return agent.Public() })
}

// Login resolves an agent by email and credential.
func (a *Authenticator) Login(ctx context.Context, email, credential string) (models.Agent, error) {
	log := a.logger.WithContext(ctx).WithField("email", email)

	if email == "" || credential == "" {
		metrics.LoginsTotal.WithLabelValues("none", "failure").Inc()
		return models.Agent{}, ErrAuthenticationFailed
	}

	if a.fallback.Email != "" && a.match(a.fallback, email, credential) {
		metrics.LoginsTotal.WithLabelValues("fallback", "success").Inc()
		log.Info("fallback administrator logged in")
		return a.fallback.Public(), nil
	}

	remote, err := a.agents.List(ctx, nil)
	if err != nil {
		log.WithError(err).Warn("agent directory unavailable, trying static agents")
	} else if agent := ectolinq.Find(remote, func(candidate models.Agent) bool { return a.match(candidate, email, credential) }); agent.ID != "" {
		metrics.LoginsTotal.WithLabelValues("store", "success").Inc()
		return normalize(agent), nil
	}

	if agent := ectolinq.Find(a.static, func(candidate models.Agent) bool { return a.match(candidate, email, credential) }); agent.ID != "" {
		metrics.LoginsTotal.WithLabelValues("static", "success").Inc()
		return normalize(agent), nil
	}

	metrics.LoginsTotal.WithLabelValues("none", "failure").Inc()
	log.Debug("login rejected")
	return models.Agent{}, ErrAuthenticationFailed
}

func (a *Authenticator) match(agent models.Agent, email, credential string) bool {
	return agent.Email == email && a.verifier.Verify(agent.Credential, credential)
}

func normalize(agent models.Agent) models.Agent {
	agent.Role = models.ParseRole(string(agent.Role))
	if agent.AssignedPageIDs == nil {
		agent.AssignedPageIDs = []string{}
	}
	return agent.Public()
}

// NormalizeEmail trims an email for storage. Matching at login stays exact.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}
