package common

import (
	"errors"
	"strings"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// PauseSet is a static PauseView populated from configuration.
type PauseSet map[string]bool

// NewPauseSet builds a PauseSet from module names; blank names are ignored.
func NewPauseSet(modules ...string) PauseSet {
	set := make(PauseSet, len(modules))
	for _, m := range modules {
		if trimmed := strings.ToLower(strings.TrimSpace(m)); trimmed != "" {
			set[trimmed] = true
		}
	}
	return set
}

// IsPaused implements PauseView.
func (p PauseSet) IsPaused(module string) bool {
	return p[strings.ToLower(strings.TrimSpace(module))]
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
