package providers

import "context"

// HealthStatus reports whether one provider's credentials are usable.
type HealthStatus struct {
	Name     string
	IsOnline bool
	ErrorMsg string
}

// CheckAll pings every provider and collects the results. Used at startup so
// a misconfigured provider surfaces before the first user message.
func CheckAll(ctx context.Context, provs []Provider) []HealthStatus {
	statuses := make([]HealthStatus, 0, len(provs))
	for _, p := range provs {
		err := p.Ping(ctx)
		status := HealthStatus{
			Name:     p.Name(),
			IsOnline: err == nil,
		}
		if err != nil {
			status.ErrorMsg = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}
