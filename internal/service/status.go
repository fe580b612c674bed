package service

import (
	"context"
	"errors"

	"github.com/MahdiGraph/SiteSniper/internal/database"
	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/utils"
)

// GetAgentStatus reports whether an agent holds lockPath, how many rules are
// stored and the last recorded pass
func GetAgentStatus(ctx context.Context, lockPath string, store database.RuleStore) (models.AgentStatus, error) {
	var status models.AgentStatus

	pid, err := utils.LockOwner(lockPath)
	switch {
	case err == nil:
		status.Running = true
		status.PID = pid
	case !errors.Is(err, utils.ErrAgentNotRunning):
		return status, err
	}

	stored, err := store.LoadRules(ctx)
	if err != nil {
		return status, err
	}
	status.Rules = len(stored)

	status.LastSync, err = store.LastSync(ctx)
	return status, err
}
