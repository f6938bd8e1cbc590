package fleet

import "strings"

// Decision is a plan-gate outcome.
type Decision string

const (
	Allow          Decision = "allow"
	RequireUpgrade Decision = "require_upgrade"
)

// PlanIsFree treats a missing plan as the free tier.
func PlanIsFree(plan string) bool {
	p := strings.ToLower(strings.TrimSpace(plan))
	return p == "" || p == "free"
}

// CanCreateBot gates creating (or starting into existence) a new bot
// configuration. Free tier is capped at one configuration. Pure function of
// its arguments.
func CanCreateBot(plan string, currentConfigCount int) Decision {
	if PlanIsFree(plan) && currentConfigCount >= 1 {
		return RequireUpgrade
	}
	return Allow
}

// CanQuickCreate gates the promotional one-click create: any paid plan, or
// the first-bot-free exception for users with no configurations yet.
func CanQuickCreate(plan string, currentConfigCount int) Decision {
	if !PlanIsFree(plan) || currentConfigCount == 0 {
		return Allow
	}
	return RequireUpgrade
}
