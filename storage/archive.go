package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Dosada05/pong-server/models"
)

// TournamentArchive хранит итоговое состояние каждого турнира в объектном
// хранилище как tournaments/{id}.json.
type TournamentArchive struct {
	uploader FileUploader
}

func NewTournamentArchive(uploader FileUploader) *TournamentArchive {
	return &TournamentArchive{uploader: uploader}
}

func ArchiveKey(tournamentID string) string {
	return "tournaments/" + tournamentID + ".json"
}

// Store загружает t и возвращает публичный URL.
func (a *TournamentArchive) Store(ctx context.Context, t models.Tournament) (string, error) {
	if t.Status != models.StatusFinished {
		return "", fmt.Errorf("tournament %s is not finished", t.ID)
	}

	body, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode tournament %s: %w", t.ID, err)
	}

	res, err := a.uploader.Upload(ctx, ArchiveKey(t.ID), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	return res.Location, nil
}
