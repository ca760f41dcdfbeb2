package api

import (
	"net/http"

	"github.com/dennisdiepolder/breakroster/internal/rules"
	"github.com/rs/zerolog"
)

// RuleSource yields the active rule set. The rules store satisfies it.
type RuleSource interface {
	Rules() []rules.Rule
}

// RulesHandler serves a read-only view of the loaded rule set
type RulesHandler struct {
	source RuleSource
	logger zerolog.Logger
}

func NewRulesHandler(source RuleSource, logger zerolog.Logger) *RulesHandler {
	return &RulesHandler{
		source: source,
		logger: logger.With().Str("component", "rules").Logger(),
	}
}

// List handles GET /api/rules
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	active := h.source.Rules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": active,
		"count": len(active),
	})
}
