package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ledgerflow/backend/internal/domain/integration"
	"github.com/ledgerflow/backend/internal/interfaces/http/dto"
)

// Connector stores the credential of an authorization-code grant.
type Connector interface {
	Connect(ctx context.Context, key integration.CredentialKey, code, redirectURI string) (*integration.Credential, error)
}

// IntegrationHandler connects users to the accounting platform.
type IntegrationHandler struct {
	BaseHandler
	connector          Connector
	integration        integration.Integration
	defaultRedirectURI string
}

// NewIntegrationHandler creates an IntegrationHandler for one platform.
func NewIntegrationHandler(connector Connector, name integration.Integration, defaultRedirectURI string) *IntegrationHandler {
	return &IntegrationHandler{connector: connector, integration: name, defaultRedirectURI: defaultRedirectURI}
}

// RegisterRoutes implements router.RouteRegistrar.
func (h *IntegrationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/integrations/"+string(h.integration)+"/connect", h.Connect)
}

// Connect exchanges the authorization code and stores the tokens.
func (h *IntegrationHandler) Connect(c *gin.Context) {
	var req dto.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = h.defaultRedirectURI
	}

	key := integration.CredentialKey{UserID: uuid.MustParse(req.UserID), Integration: h.integration}
	cred, err := h.connector.Connect(c.Request.Context(), key, req.Code, redirectURI)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ConnectionResponse{
		Integration: string(cred.Key.Integration),
		UserID:      cred.Key.UserID.String(),
		Scope:       cred.Scope,
		ExpiresAt:   cred.ExpiresAt,
		Version:     cred.Version,
	})
}
