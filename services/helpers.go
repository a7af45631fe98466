package services

import (
	"fmt"
	"strings"

	"github.com/defuselab/defusal-tournament/models"
	"github.com/defuselab/defusal-tournament/storage"
)

func derefParticipants(slice []*models.Participant) []models.Participant {
	if slice == nil {
		return []models.Participant{}
	}
	result := make([]models.Participant, len(slice))
	for i, ptr := range slice {
		if ptr != nil {
			result[i] = *ptr
		}
	}
	return result
}

func populateTeamEmblemURL(team *models.Team, uploader storage.FileUploader) {
	if team != nil && team.EmblemKey != nil && *team.EmblemKey != "" && uploader != nil {
		url := uploader.GetPublicURL(*team.EmblemKey)
		if url != "" {
			team.EmblemURL = &url
		}
	}
}

func extensionForContentType(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	default:
		parts := strings.Split(contentType, "/")
		if len(parts) == 2 && strings.HasPrefix(parts[0], "image") && parts[1] != "" {
			return "." + strings.Split(parts[1], "+")[0], nil
		}
		return "", fmt.Errorf("could not determine file extension from content type %q", contentType)
	}
}
