package controllers

import (
	"net/http"

	"github.com/RealZimboGuy/chainflow/internal/network"
	"github.com/RealZimboGuy/chainflow/internal/templates"
	"github.com/RealZimboGuy/chainflow/internal/util"
)

// CatalogueController serves the static network and template catalogues.
type CatalogueController struct {
	AuthController
}

func NewCatalogueController(auth AuthController) *CatalogueController {
	return &CatalogueController{AuthController: auth}
}

func (c *CatalogueController) handleGetNetworks(w http.ResponseWriter, r *http.Request) {
	util.WriteJSONResponse(w, http.StatusOK, NetworksResponse{Networks: network.Configs()})
}

func (c *CatalogueController) handleGetTemplates(w http.ResponseWriter, r *http.Request) {
	util.WriteJSONResponse(w, http.StatusOK, TemplatesResponse{Templates: templates.All()})
}
