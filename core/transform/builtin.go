package transform

import (
	"log/slog"
	"net/http"

	"github.com/siherrmann/pano/core/pipeline"
	"github.com/siherrmann/pano/helper"
)

// Builtins returns the built-in transforms configured from cfg. The text
// transform is only included when extract is given.
func Builtins(cfg helper.TransformConfiguration, extract pipeline.EntityExtractFunc, logger *slog.Logger) []Transform {
	client := &http.Client{Timeout: cfg.Timeout}

	transforms := []Transform{
		NewEmailToPerson(),
		NewEmailToWebsite(),
		NewUsernameToWebsite(client, cfg.UserAgent, cfg.RequestsPerSecond),
		NewWebsiteToText(client, cfg.UserAgent, 20000),
	}
	if extract != nil {
		transforms = append(transforms, NewTextToEntities(extract, logger))
	}
	return transforms
}
