package subscription_test

import (
	"testing"

	"github.com/dmitrymomot/quotagate/pkg/subscription"
	"github.com/dmitrymomot/quotagate/pkg/subscription/storetest"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) subscription.Store {
		return subscription.NewMemoryStore()
	})
}
