package tools

import (
	"github.com/rs/zerolog/log"

	"github.com/skyplanner/skyplanner/internal/agent"
	"github.com/skyplanner/skyplanner/internal/config"
)

// BuildRegistry registers every planning tool. Tools whose backing services
// are unconfigured are still registered; they report the missing
// configuration to the model at call time so it can explain the limitation.
func BuildRegistry(cfg config.ToolsConfig) *agent.Registry {
	registry := agent.NewRegistry()

	registry.Register(NewWeatherTool(cfg.OpenWeatherMapKey))
	registry.Register(NewSearchTool(cfg.TavilyKey))
	registry.Register(NewCalendarTool(CalendarOptions{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		TokenFile:    cfg.GoogleTokenFile,
		Timezone:     cfg.Timezone,
	}))

	if cfg.OpenWeatherMapKey == "" {
		log.Warn().Msg("OpenWeatherMap key not set; weather tool will report unavailable")
	}
	if cfg.TavilyKey == "" {
		log.Warn().Msg("Tavily key not set; web search tool will report unavailable")
	}
	if cfg.GoogleClientID == "" {
		log.Warn().Msg("Google credentials not set; calendar tool will report unavailable")
	}

	return registry
}
