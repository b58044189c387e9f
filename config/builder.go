package config

import (
	"golang.org/x/time/rate"

	"github.com/jpalmerr/stationboard"
)

// BuildOptions converts parsed configuration into SDK options.
//
// The returned options cover stations, connection, reconnect policy and
// dashboard settings. Callers append their own (logger, callbacks) before
// passing them to [stationboard.New].
func BuildOptions(cfg *Config) []stationboard.Option {
	opts := []stationboard.Option{
		stationboard.WithTitle(cfg.Title),
		stationboard.WithPort(cfg.Port),
		stationboard.WithSocketURL(cfg.Realtime.URL),
		stationboard.WithAuth(cfg.Realtime.Host, cfg.Realtime.Token),
		stationboard.WithStations(buildStations(cfg.Stations)...),
	}

	if cfg.Realtime.Channel != "" {
		opts = append(opts, stationboard.WithChannel(cfg.Realtime.Channel))
	}

	if cfg.Realtime.HandshakeTimeout > 0 {
		opts = append(opts, stationboard.WithHandshakeTimeout(cfg.Realtime.HandshakeTimeout.Duration()))
	}

	if cfg.Realtime.ReadTimeout > 0 {
		opts = append(opts, stationboard.WithReadTimeout(cfg.Realtime.ReadTimeout.Duration()))
	}

	if rc := cfg.Realtime.Reconnect; rc.IsEnabled() {
		policy := stationboard.DefaultReconnectPolicy()
		if rc.InitialBackoff > 0 {
			policy.InitialBackoff = rc.InitialBackoff.Duration()
		}
		if rc.MaxBackoff > 0 {
			policy.MaxBackoff = rc.MaxBackoff.Duration()
		}
		policy.MaxAttempts = rc.MaxAttempts
		opts = append(opts, stationboard.WithReconnectPolicy(policy))
	} else {
		opts = append(opts, stationboard.WithoutReconnect())
	}

	if cfg.InjectRate > 0 || cfg.InjectBurst > 0 {
		limit := rate.Limit(cfg.InjectRate)
		if limit == 0 {
			limit = rate.Limit(5)
		}
		burst := cfg.InjectBurst
		if burst == 0 {
			burst = 10
		}
		opts = append(opts, stationboard.WithInjectRateLimit(limit, burst))
	}

	return opts
}

// buildStations converts station configs to SDK stations, keeping order.
func buildStations(stations []StationConfig) []stationboard.Station {
	result := make([]stationboard.Station, len(stations))
	for i, s := range stations {
		result[i] = stationboard.Station{ID: s.ID, Name: s.Name}
	}
	return result
}
