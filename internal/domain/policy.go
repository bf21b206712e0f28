package domain

// EnvProduction is the deployment environment in which real money moves.
const EnvProduction = "production"

// ManualActivationAllowed reports whether a membership may be activated without
// a gateway payment. Only a real gateway in production refuses it.
func ManualActivationAllowed(mockMode bool, environment string) bool {
	return mockMode || environment != EnvProduction
}

// LiveNotificationAccepted reports whether a webhook may change state given its
// live_mode flag. Production only accepts notifications explicitly marked live;
// sandbox traffic is accepted everywhere else.
func LiveNotificationAccepted(liveMode *bool, environment string) bool {
	if environment != EnvProduction {
		return true
	}
	return liveMode != nil && *liveMode
}
