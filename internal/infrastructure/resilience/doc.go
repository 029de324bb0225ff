/*
Package resilience provides the circuit breaker that guards each browser
backend in the launch chain.

A backend that keeps failing (missing binary, dead remote worker) is
skipped for a cooldown instead of costing every launch a timeout. Calls
cancelled by the caller never count as failures.

# Usage

	breaker := resilience.New("rod", resilience.Settings{
		Cooldown: 30 * time.Second,
		Trip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})

	b, err := resilience.Do(ctx, breaker, func(ctx context.Context) (Browser, error) {
		return launcher.Launch(ctx, opts)
	})

# States

	Closed --[trip]-> Open --[cooldown]-> Half-Open --[probes succeed]-> Closed
	                                          |
	                                      [failure]
	                                          v
	                                        Open
*/
package resilience
