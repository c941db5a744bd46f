package main

import (
	"fmt"
	"strings"
)

// nightRoleOrder is the fixed order in which roles wake up at night.
var nightRoleOrder = []Role{
	RoleMafia,
	RoleMafiaBoss,
	RoleSerialKiller,
	RoleDoctor,
	RoleBodyguard,
	RoleDetective,
	RoleSpy,
	RoleWatcher,
}

var roleActions = map[Role]ActionType{
	RoleMafia:        ActionKill,
	RoleMafiaBoss:    ActionKill,
	RoleSerialKiller: ActionKill,
	RoleDoctor:       ActionProtect,
	RoleBodyguard:    ActionGuard,
	RoleDetective:    ActionInvestigate,
	RoleSpy:          ActionWatch,
	RoleWatcher:      ActionWatch,
}

func actionForRole(role Role) ActionType {
	return roleActions[role]
}

// nextNightRole scans forward from the current role to the next one with a
// living holder. "" signals that the night order is exhausted.
func nextNightRole(room *Room) Role {
	start := 0
	if cur := room.Mafia.CurrentNightRole; cur != "" {
		for i, role := range nightRoleOrder {
			if role == cur {
				start = i + 1
				break
			}
		}
	}

	for _, role := range nightRoleOrder[start:] {
		for _, p := range room.Players {
			if p.Mafia != nil && p.Mafia.Alive && p.Mafia.Role == role {
				return role
			}
		}
	}
	return ""
}

// resolveNight applies the collected night actions in rule order and builds
// the public summary. The summary never names a protected player, so the
// doctor's choice stays secret even when a kill is thwarted.
func resolveNight(room *Room) (deaths []string, summary string) {
	actions := room.Mafia.NightActions

	var kills, protections []string
	var investigations, watches []NightAction

	for _, a := range actions {
		switch a.ActionType {
		case ActionKill:
			kills = append(kills, a.TargetID)
		case ActionProtect, ActionGuard:
			protections = append(protections, a.TargetID)
		case ActionInvestigate:
			investigations = append(investigations, a)
		case ActionWatch:
			watches = append(watches, a)
		}
	}

	protected := make(map[string]bool, len(protections))
	for _, id := range protections {
		protected[id] = true
	}

	// Kills die unless protected.
	for _, targetID := range kills {
		if protected[targetID] {
			continue
		}
		target := room.player(targetID)
		if target != nil && target.Mafia != nil && target.Mafia.Alive {
			target.Mafia.Alive = false
			deaths = append(deaths, targetID)
		}
	}

	// A guard whose charge was both attacked and protected takes the hit
	// instead. At most one swap per guard; a single kill never produces
	// stacked deaths.
	killed := make(map[string]bool, len(kills))
	for _, id := range kills {
		killed[id] = true
	}
	for _, a := range actions {
		if a.ActionType != ActionGuard {
			continue
		}
		if killed[a.TargetID] && protected[a.TargetID] {
			guard := room.player(a.PlayerID)
			if guard != nil && guard.Mafia != nil && guard.Mafia.Alive {
				guard.Mafia.Alive = false
				deaths = append(deaths, a.PlayerID)
			}
		}
	}

	// Investigations cache a result on the investigator only.
	for _, inv := range investigations {
		target := room.player(inv.TargetID)
		investigator := room.player(inv.PlayerID)
		if target == nil || target.Mafia == nil || investigator == nil || investigator.Mafia == nil {
			continue
		}
		if target.Mafia.Team == TeamMafia {
			investigator.Mafia.InvestigationResult = fmt.Sprintf("%s is mafia", target.Name)
		} else {
			investigator.Mafia.InvestigationResult = fmt.Sprintf("%s is not mafia", target.Name)
		}
	}

	// Watches record who else visited the watched player.
	for _, w := range watches {
		watcher := room.player(w.PlayerID)
		if watcher == nil || watcher.Mafia == nil {
			continue
		}
		var visitors []string
		for _, a := range actions {
			if a.TargetID == w.TargetID && a.PlayerID != w.PlayerID {
				if visitor := room.player(a.PlayerID); visitor != nil {
					visitors = append(visitors, visitor.Name)
				}
			}
		}
		watcher.Mafia.WatchResult = visitors
	}

	return deaths, nightSummary(room, deaths, kills, protected)
}

func nightSummary(room *Room, deaths, kills []string, protected map[string]bool) string {
	if len(deaths) > 0 {
		names := make([]string, 0, len(deaths))
		for _, id := range deaths {
			if p := room.player(id); p != nil {
				names = append(names, p.Name)
			}
		}
		return fmt.Sprintf("Killed tonight: %s.", strings.Join(names, ", "))
	}

	for _, id := range kills {
		if protected[id] {
			return "A kill was attempted tonight, but the target was protected!"
		}
	}
	return "The night was quiet; no one died."
}
