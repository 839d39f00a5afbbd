package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Muhammad-NSQ/Dlens/internal/infrastructure"
	"github.com/Muhammad-NSQ/Dlens/internal/license"
)

// TierGate blocks routes that require a paid tier when the feature
// manager only grants free access. License management routes must stay
// outside the gate so an expired install can still activate.
type TierGate struct {
	features *license.FeatureManager
	minimum  license.Tier
	logger   *slog.Logger
}

// NewTierGate creates a gate requiring at least the given tier
func NewTierGate(features *license.FeatureManager, minimum license.Tier, logger *slog.Logger) *TierGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &TierGate{
		features: features,
		minimum:  minimum,
		logger:   logger.With(slog.String("middleware", "tier_gate")),
	}
}

// Handler enforces the tier requirement
func (g *TierGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		granted := g.features.Tier()
		if tierRank(granted) < tierRank(g.minimum) {
			ctx := r.Context()
			g.logger.WarnContext(ctx, "request blocked by tier gate",
				"path", r.URL.Path,
				"granted_tier", string(granted),
				"required_tier", string(g.minimum),
			)

			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusPaymentRequired)

			traceID := infrastructure.GetTraceID(ctx)
			response := `{"type":"/errors/tier-required","title":"Upgrade Required","status":402,"detail":"This feature requires an active ` + string(g.minimum) + ` license","trace_id":"` + traceID + `"}`
			w.Write([]byte(response))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func tierRank(t license.Tier) int {
	switch t {
	case license.TierEnterprise:
		return 2
	case license.TierPro:
		return 1
	default:
		return 0
	}
}
