package registry

import (
	"github.com/rafaeljc/gatekeeper/internal/auth"
	"github.com/rafaeljc/gatekeeper/internal/observability"
	"github.com/rafaeljc/gatekeeper/internal/store"
)

// authorizeMutation is the kill-switch guard. It runs after the flag was found, so an
// unknown key surfaces as NotFound and never as Forbidden.
func authorizeMutation(f *store.Flag, actor auth.Actor) error {
	if f.KillSwitch && !actor.IsTopPrivilege() {
		observability.KillSwitchDenials.Inc()
		return forbiddenf("Only %s can modify kill-switch feature flags", auth.TopRole)
	}
	return nil
}
