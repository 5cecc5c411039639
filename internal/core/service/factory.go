package service

import (
	"net/http"
	"shelfsync/internal/adapters/source"
	"shelfsync/internal/config"
	"shelfsync/internal/core/domain/ports"
)

func CreateRowSource(cfg *config.Config, client *http.Client) ports.RowSource {
	switch cfg.SourceType {
	case "rss":
		return source.NewShelfFeedSource(cfg.FeedURL, client)
	default:
		// Default to the CSV export
		return source.NewCSVSource(cfg.InputPath)
	}
}
