package gateway

import (
	"context"
	"net/http"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// SimulatedGateway sends nothing. With LimitReached set every attempt is
// rejected the way Gmail rejects a spent daily quota, which exercises the
// pause path end to end without a provider account.
type SimulatedGateway struct {
	LimitReached bool
	composer     *Composer
}

func NewSimulatedGateway(limitReached bool, composer *Composer) *SimulatedGateway {
	if composer == nil {
		composer = NewComposer(nil)
	}
	return &SimulatedGateway{LimitReached: limitReached, composer: composer}
}

func (g *SimulatedGateway) Send(ctx context.Context, user *model.User, lead model.Lead, msg Message) Outcome {
	if err := ctx.Err(); err != nil {
		return Failed(0, err.Error())
	}
	if g.LimitReached {
		return Classify(http.StatusForbidden, "Daily Limit Exceeded")
	}
	// still render, so template and address problems surface as they would for real
	if _, err := g.composer.Compose(user, lead, msg); err != nil {
		return Failed(0, err.Error())
	}
	return Sent()
}
